package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/gateway"
	"github.com/mcdev12/matchday/go/internal/matchday"
	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/relay"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/store/memstore"
	"github.com/mcdev12/matchday/go/internal/store/natsfeed"
	"github.com/mcdev12/matchday/go/internal/store/pgstore"
	"github.com/mcdev12/matchday/go/internal/store/wsfeed"
	"github.com/mcdev12/matchday/go/internal/week"
)

var demoViewer = models.Viewer{ID: "demo", Email: "demo@matchday.local"}

var demoPlayers = []string{"ana", "ben", "carla", "dan", "eva", "femi", "gus", "hana", "ivo"}

// stateFetcher reads server-derived week state from the gateway.
type stateFetcher interface {
	FetchState(ctx context.Context, key week.Key, viewerID string) (*gateway.WeekStateResponse, error)
}

// deps are the seams the commands are built on. Tests swap them out.
type deps struct {
	clock       clockwork.Clock
	openStore   func(ctx context.Context, opts *rootOptions, key week.Key) (store.Store, func(), error)
	openGateway func(opts *rootOptions) (stateFetcher, error)
}

func defaultDeps() *deps {
	return &deps{
		clock:       clockwork.NewRealClock(),
		openStore:   openStore,
		openGateway: openGateway,
	}
}

func (o *rootOptions) viewer() (models.Viewer, error) {
	v := o.cfg.Client.Viewer()
	if v.ID == "" && v.Email == "" && o.Demo {
		return demoViewer, nil
	}
	if v.ID == "" || v.Email == "" {
		return models.Viewer{}, errors.New("client identity missing: set MATCHDAY_USER_ID and MATCHDAY_EMAIL")
	}
	return v, nil
}

func (o *rootOptions) resolver() (*week.Resolver, error) {
	loc, err := o.cfg.Client.Location()
	if err != nil {
		return nil, err
	}
	return week.NewResolver(loc), nil
}

// openClient starts a match day client on the current week. The returned
// func closes the client and its store.
func openClient(ctx context.Context, opts *rootOptions) (*matchday.Client, func(), error) {
	viewer, err := opts.viewer()
	if err != nil {
		return nil, nil, err
	}
	resolver, err := opts.resolver()
	if err != nil {
		return nil, nil, err
	}
	clock := opts.deps.clock

	st, closeStore, err := opts.deps.openStore(ctx, opts, resolver.CurrentKey(clock.Now()))
	if err != nil {
		return nil, nil, err
	}

	client := matchday.NewClient(st, viewer, matchday.ClientConfig{
		Resolver:            resolver,
		Clock:               clock,
		Interval:            opts.cfg.Client.WeekCheckInterval,
		EnforceVotingWindow: opts.cfg.Client.EnforceVotingWindow,
	})
	if err := client.Start(ctx); err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("load current week: %w", err)
	}
	return client, func() {
		client.Close()
		closeStore()
	}, nil
}

func openStore(ctx context.Context, opts *rootOptions, key week.Key) (store.Store, func(), error) {
	if opts.Demo {
		return demoStore(ctx, opts.deps.clock, key)
	}
	cfg := opts.cfg

	pg, err := pgstore.Connect(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Client.Feed {
	case "", "nats":
		jsCfg := relay.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		nc, js, err := relay.Connect(jsCfg)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		feed := natsfeed.New(js, cfg.NATS.Stream, cfg.NATS.SubjectPrefix)
		return store.Compose(pg, feed), func() {
			nc.Close()
			pg.Close()
		}, nil
	case "gateway":
		feed, err := wsfeed.New(cfg.Gateway.URL, cfg.Client.UserID)
		if err != nil {
			pg.Close()
			return nil, nil, err
		}
		return store.Compose(pg, feed), pg.Close, nil
	default:
		pg.Close()
		return nil, nil, fmt.Errorf("unknown feed %q: must be nats or gateway", cfg.Client.Feed)
	}
}

// demoStore seeds nine present players so a single join unlocks the draw.
func demoStore(ctx context.Context, clock clockwork.Clock, key week.Key) (store.Store, func(), error) {
	st := memstore.New(clock)
	for _, name := range demoPlayers {
		p := models.Participation{
			UserID:       name,
			UserEmail:    name + "@matchday.local",
			WeekDate:     key.String(),
			Participates: true,
		}
		if err := st.Insert(ctx, store.TableParticipation, p.Record()); err != nil {
			return nil, nil, err
		}
	}
	log.Debug().Str("week", key.String()).Int("players", len(demoPlayers)).Msg("seeded demo store")
	return st, func() {}, nil
}

func openGateway(opts *rootOptions) (stateFetcher, error) {
	return wsfeed.New(opts.cfg.Gateway.URL, opts.cfg.Client.UserID)
}
