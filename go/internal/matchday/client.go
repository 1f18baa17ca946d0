package matchday

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/week"
)

// ClientConfig configures a Client. Zero values pick production defaults.
type ClientConfig struct {
	Resolver *week.Resolver
	Clock    clockwork.Clock
	// Interval between week-key re-evaluations, at most a minute.
	Interval time.Duration
	// EnforceVotingWindow rejects votes outside Friday and Saturday.
	EnforceVotingWindow bool
	Shuffle             func(n int, swap func(i, j int))
}

// Client is one user's match-day session: it follows the current week,
// keeps the snapshot converged and runs the user's actions.
type Client struct {
	viewer   models.Viewer
	resolver *week.Resolver
	clock    clockwork.Clock
	watcher  *week.Watcher
	sync     *Synchronizer
	ctrl     *Controller

	mu          sync.Mutex
	unsubscribe func()
	cancel      context.CancelFunc

	pushMu  sync.Mutex
	updates chan View
}

// NewClient wires a synchronizer and controller for viewer over st.
func NewClient(st store.Store, viewer models.Viewer, cfg ClientConfig) *Client {
	if cfg.Resolver == nil {
		cfg.Resolver = week.NewResolver(nil)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	c := &Client{
		viewer:   viewer,
		resolver: cfg.Resolver,
		clock:    cfg.Clock,
		watcher:  week.NewWatcher(cfg.Resolver, cfg.Clock, cfg.Interval),
		sync:     NewSynchronizer(st),
		updates:  make(chan View, 1),
	}

	var opts []ControllerOption
	if cfg.Shuffle != nil {
		opts = append(opts, WithShuffle(cfg.Shuffle))
	}
	if cfg.EnforceVotingWindow {
		opts = append(opts, WithVotingWindow(func() bool {
			return c.resolver.VotingWindowOpen(c.clock.Now())
		}))
	}
	c.ctrl = NewController(c.sync, st, viewer, opts...)
	return c
}

// Start subscribes to the current week, loads it and begins following
// week rollovers until ctx is done or Close is called. A failed initial
// load is returned so the caller can retry Start.
func (c *Client) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	key := c.watcher.Current()

	if err := c.follow(ctx, key); err != nil {
		cancel()
		return err
	}
	if _, err := c.sync.Load(ctx, key); err != nil {
		c.stopFollowing()
		cancel()
		return fmt.Errorf("initial load of week %s: %w", key, err)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.watcher.Run(ctx, func(prev, next week.Key) {
		if err := c.follow(ctx, next); err != nil {
			log.Error().Err(err).Str("week", next.String()).Msg("failed to subscribe to new week")
			return
		}
		if _, err := c.sync.Load(ctx, next); err != nil {
			log.Error().Err(err).Str("week", next.String()).Msg("failed to load new week")
		}
	})

	log.Info().Str("week", key.String()).Str("user_id", c.viewer.ID).Msg("match day client started")
	return nil
}

// follow replaces the current subscription with one for key.
func (c *Client) follow(ctx context.Context, key week.Key) error {
	unsubscribe, err := c.sync.Subscribe(ctx, key, c.push)
	if err != nil {
		return err
	}
	c.mu.Lock()
	prev := c.unsubscribe
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	if prev != nil {
		prev()
	}
	return nil
}

func (c *Client) stopFollowing() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// push delivers the newest view, dropping one the reader has not taken yet.
func (c *Client) push(snap Snapshot) {
	view := c.derive(snap)
	c.pushMu.Lock()
	defer c.pushMu.Unlock()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- view:
	default:
	}
}

func (c *Client) derive(snap Snapshot) View {
	now := c.clock.Now()
	view := DeriveView(snap, c.viewer.ID)
	view.EventLabel = c.resolver.EventLabel(now)
	view.VotingOpen = c.resolver.VotingWindowOpen(now)
	return view
}

// Close stops following the week and tears down every subscription.
func (c *Client) Close() {
	c.stopFollowing()
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// View returns the derived view of the current snapshot.
func (c *Client) View() View {
	return c.derive(c.sync.Snapshot())
}

// Updates delivers the latest view after every snapshot change. Only the
// newest undelivered view is kept.
func (c *Client) Updates() <-chan View {
	return c.updates
}

// Reload forces a full read of the current week.
func (c *Client) Reload(ctx context.Context) (View, error) {
	key := c.sync.Week()
	if key == "" {
		key = c.watcher.Current()
	}
	snap, err := c.sync.Load(ctx, key)
	if err != nil {
		return c.derive(snap), err
	}
	return c.derive(snap), nil
}

// Busy reports whether an action is submitting.
func (c *Client) Busy() bool { return c.ctrl.Busy() }

// SetParticipation records whether the viewer attends the current week.
func (c *Client) SetParticipation(ctx context.Context, attending bool) error {
	return c.ctrl.SetParticipation(ctx, attending)
}

// LaunchDraw splits the present players into two teams and stores the draw.
func (c *Client) LaunchDraw(ctx context.Context) (*models.TeamDraw, error) {
	return c.ctrl.LaunchDraw(ctx)
}

// VoteMVP casts the viewer's MVP ballot for candidateEmail.
func (c *Client) VoteMVP(ctx context.Context, candidateEmail string) error {
	return c.ctrl.VoteMVP(ctx, candidateEmail)
}
