package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Service ties the websocket fan-out, the JetStream consumer and the
// state endpoint together.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
	allowedOrigins    []string
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	AllowedOrigins   []string
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		AllowedOrigins:   []string{"*"},
	}
}

func NewService(ctx context.Context, config Config, js jetstream.JetStream, stateProvider StateProvider) (*Service, error) {
	if config.ConnectionConfig.CheckOrigin == nil {
		config.ConnectionConfig.CheckOrigin = originChecker(config.AllowedOrigins)
	}
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	eventConsumer, err := NewEventConsumer(ctx, connectionManager, js, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		eventConsumer:     eventConsumer,
		stateHandler:      NewStateHandler(stateProvider),
		allowedOrigins:    config.AllowedOrigins,
	}, nil
}

// Start runs the connection manager and consumer until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting match day gateway service")

	go s.connectionManager.Start(ctx)

	if err := s.eventConsumer.Start(ctx); err != nil {
		return fmt.Errorf("event consumer: %w", err)
	}

	log.Info().Msg("match day gateway service stopped")
	return nil
}

// Handler returns the gateway's routes wrapped in CORS and h2c.
func (s *Service) Handler() http.Handler {
	return NewHandler(s.wsHandler, s.stateHandler, s.allowedOrigins)
}

// Stats returns connection statistics.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.Stats()
}

// NewHandler builds the HTTP surface.
func NewHandler(ws *WebSocketHandler, state *StateHandler, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	ws.RegisterRoutes(mux)
	state.RegisterStateRoutes(mux)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet},
		AllowedOrigins: allowedOrigins,
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(mux), &http2.Server{})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}
