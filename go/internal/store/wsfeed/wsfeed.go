// Package wsfeed implements store.Feed over the gateway's websocket, for
// clients that cannot reach NATS directly.
package wsfeed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/clients"
	"github.com/mcdev12/matchday/go/internal/events"
	"github.com/mcdev12/matchday/go/internal/gateway"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/week"
)

// ErrWeekRequired is returned for subscriptions that do not pin a week:
// the gateway streams one week per socket.
var ErrWeekRequired = errors.New("gateway subscriptions need a week_date filter")

// Feed dials one websocket per subscription and redials when it drops.
type Feed struct {
	baseURL *url.URL
	userID  string
	dialer  *websocket.Dialer
	api     *clients.BaseClient
	redial  time.Duration
}

// New creates a feed for the gateway at baseURL (http or https).
func New(baseURL, userID string) (*Feed, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway URL must be http or https, got %q", u.Scheme)
	}
	return &Feed{
		baseURL: u,
		userID:  userID,
		dialer:  websocket.DefaultDialer,
		api:     clients.NewBaseClient(baseURL),
		redial:  2 * time.Second,
	}, nil
}

func (f *Feed) changesURL(key string) string {
	u := *f.baseURL
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/changes"
	q := url.Values{"week": {key}}
	if f.userID != "" {
		q.Set("user_id", f.userID)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (f *Feed) SubscribeChanges(ctx context.Context, table store.Table, filter store.Filter, event store.Event, cb func(store.Change)) (store.Subscription, error) {
	if !table.Valid() {
		return nil, store.Wrap(store.OpSubscribe, table, store.ErrUnknownTable)
	}
	key := events.WeekOf(filter)
	if key == "" {
		return nil, store.Wrap(store.OpSubscribe, table, ErrWeekRequired)
	}

	target := f.changesURL(key)
	conn, _, err := f.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, store.Wrap(store.OpSubscribe, table, fmt.Errorf("dial %s: %w", target, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		feed:    f,
		target:  target,
		deliver: events.Dispatcher(table, filter, event, cb),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.setConn(conn)
	go s.run(ctx)
	return s, nil
}

type subscription struct {
	feed    *Feed
	target  string
	deliver func([]byte)
	cancel  context.CancelFunc
	done    chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *subscription) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *subscription) closeConn() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)
	stop := context.AfterFunc(ctx, s.closeConn)
	defer stop()

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Warn().Err(err).Str("url", s.target).Msg("change socket dropped, redialing")
				}
				break
			}
			s.deliver(data)
		}
		conn.Close()

		next, ok := s.redial(ctx)
		if !ok {
			return
		}
		s.setConn(next)
		if ctx.Err() != nil {
			next.Close()
			return
		}
	}
}

func (s *subscription) redial(ctx context.Context) (*websocket.Conn, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(s.feed.redial):
		}
		conn, _, err := s.feed.dialer.DialContext(ctx, s.target, nil)
		if err == nil {
			log.Info().Str("url", s.target).Msg("change socket reconnected")
			return conn, true
		}
		log.Warn().Err(err).Str("url", s.target).Msg("redial failed")
	}
}

func (s *subscription) Unsubscribe() error {
	s.cancel()
	s.closeConn()
	<-s.done
	return nil
}

// FetchState reads the server-derived state of key as seen by viewerID.
func (f *Feed) FetchState(ctx context.Context, key week.Key, viewerID string) (*gateway.WeekStateResponse, error) {
	var query url.Values
	if viewerID != "" {
		query = url.Values{"viewer_id": {viewerID}}
	}
	var state gateway.WeekStateResponse
	endpoint := "/api/weeks/" + url.PathEscape(key.String()) + "/state"
	if err := f.api.GetJSON(ctx, endpoint, query, &state); err != nil {
		return nil, fmt.Errorf("fetch state of week %s: %w", key, err)
	}
	return &state, nil
}
