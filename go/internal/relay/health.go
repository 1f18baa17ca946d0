package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// maxPending is the backlog size above which the relay reports an error.
const maxPending = 1000

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsPublished   uint64    `json:"events_published"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ConnState is satisfied by *nats.Conn.
type ConnState interface {
	IsConnected() bool
}

type HealthChecker struct {
	relay     *Relay
	db        Pinger
	nats      ConnState
	threshold time.Duration // how long a backlog may sit untouched
	clock     clockwork.Clock
}

func NewHealthChecker(relay *Relay, db Pinger, nats ConnState, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		relay:     relay,
		db:        db,
		nats:      nats,
		threshold: threshold,
		clock:     clockwork.NewRealClock(),
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}
	status.EventsPublished, status.LastEventTime = h.relay.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.relay.repo.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending changes: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > maxPending {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending change count: %d", pending))
			}
		}
	}

	// a backlog that nothing has drained for a while means the relay is stuck
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if since := h.clock.Since(status.LastEventTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no changes published for %s", since.Round(time.Second)))
		}
	}

	return status
}

// ServeHTTP answers with the status as JSON, 503 when unhealthy.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// Export renders the status in the Prometheus text format.
func (h *HealthChecker) Export(ctx context.Context) string {
	status := h.Check(ctx)
	return fmt.Sprintf(`# HELP matchday_relay_healthy Whether the change relay is healthy
# TYPE matchday_relay_healthy gauge
matchday_relay_healthy %d

# HELP matchday_relay_events_published_total Changes published since start
# TYPE matchday_relay_events_published_total counter
matchday_relay_events_published_total %d

# HELP matchday_relay_pending_events Changes waiting to be published
# TYPE matchday_relay_pending_events gauge
matchday_relay_pending_events %d

# HELP matchday_relay_database_connected Whether the database answers pings
# TYPE matchday_relay_database_connected gauge
matchday_relay_database_connected %d

# HELP matchday_relay_nats_connected Whether NATS is connected
# TYPE matchday_relay_nats_connected gauge
matchday_relay_nats_connected %d

# HELP matchday_relay_listener_active Whether the notification listener is running
# TYPE matchday_relay_listener_active gauge
matchday_relay_listener_active %d

# HELP matchday_relay_last_event_timestamp Unix time of the last published change
# TYPE matchday_relay_last_event_timestamp gauge
matchday_relay_last_event_timestamp %d
`,
		gauge(status.Healthy),
		status.EventsPublished,
		status.PendingEvents,
		gauge(status.DatabaseConnected),
		gauge(status.NATSConnected),
		gauge(status.ListenerActive),
		status.LastEventTime.Unix(),
	)
}

// MetricsHandler serves Export.
func (h *HealthChecker) MetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		if _, err := w.Write([]byte(h.Export(r.Context()))); err != nil {
			log.Error().Err(err).Msg("failed to write metrics response")
		}
	})
}

func gauge(b bool) int {
	if b {
		return 1
	}
	return 0
}
