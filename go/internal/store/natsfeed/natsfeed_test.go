package natsfeed

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/matchday/go/internal/events"
	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
)

type fakeJS struct {
	jetstream.JetStream
	stream string
	cfg    jetstream.OrderedConsumerConfig
	cons   *fakeConsumer
}

func (f *fakeJS) OrderedConsumer(_ context.Context, stream string, cfg jetstream.OrderedConsumerConfig) (jetstream.Consumer, error) {
	f.stream = stream
	f.cfg = cfg
	return f.cons, nil
}

type fakeConsumer struct {
	jetstream.Consumer
	handler jetstream.MessageHandler
	cc      *fakeConsumeContext
}

func (c *fakeConsumer) Consume(h jetstream.MessageHandler, _ ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	c.handler = h
	return c.cc, nil
}

type fakeConsumeContext struct {
	jetstream.ConsumeContext
	stopped atomic.Int32
}

func (c *fakeConsumeContext) Stop() { c.stopped.Add(1) }

type fakeMsg struct {
	jetstream.Msg
	data []byte
}

func (m fakeMsg) Data() []byte { return m.data }

func newFake() *fakeJS {
	return &fakeJS{cons: &fakeConsumer{cc: &fakeConsumeContext{}}}
}

func TestSubscribeChanges(t *testing.T) {
	js := newFake()
	feed := New(js, "MATCHDAY_CHANGES", "matchday.changes")

	var got []store.Change
	sub, err := feed.SubscribeChanges(context.Background(), store.TableParticipation,
		store.Filter{"week_date": "2026-10-22"}, store.EventAny, func(c store.Change) { got = append(got, c) })
	require.NoError(t, err)

	assert.Equal(t, "MATCHDAY_CHANGES", js.stream)
	assert.Equal(t, []string{"matchday.changes.match_participation.2026-10-22"}, js.cfg.FilterSubjects)
	assert.Equal(t, jetstream.DeliverNewPolicy, js.cfg.DeliverPolicy)

	p := models.Participation{UserID: "u", UserEmail: "u@x", WeekDate: "2026-10-22", Participates: true}
	env, err := events.FromChange("e1", store.Change{Table: store.TableParticipation, Event: store.EventInsert, New: p.Record()})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	js.cons.handler(fakeMsg{data: data})

	require.Len(t, got, 1)
	assert.Equal(t, "u", got[0].New["user_id"])

	require.NoError(t, sub.Unsubscribe())
	assert.Positive(t, js.cons.cc.stopped.Load())
}

func TestSubscribeChanges_AllWeeks(t *testing.T) {
	js := newFake()
	_, err := New(js, "S", "p").SubscribeChanges(context.Background(), store.TableTeamDraws, nil, store.EventAny, func(store.Change) {})
	require.NoError(t, err)
	assert.Equal(t, []string{"p.team_draws.>"}, js.cfg.FilterSubjects)
}

func TestSubscribeChanges_StopsWithContext(t *testing.T) {
	js := newFake()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := New(js, "S", "p").SubscribeChanges(ctx, store.TableMVPVotes, nil, store.EventAny, func(store.Change) {})
	require.NoError(t, err)

	cancel()
	assert.Eventually(t, func() bool { return js.cons.cc.stopped.Load() > 0 }, time.Second, time.Millisecond)
}

func TestSubscribeChanges_UnknownTable(t *testing.T) {
	_, err := New(nil, "S", "p").SubscribeChanges(context.Background(), "fixtures", nil, store.EventAny, func(store.Change) {})
	assert.ErrorIs(t, err, store.ErrUnknownTable)
}
