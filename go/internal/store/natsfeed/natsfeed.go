// Package natsfeed implements store.Feed on the JetStream stream the relay
// publishes row changes to.
package natsfeed

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/events"
	"github.com/mcdev12/matchday/go/internal/store"
)

// Feed opens one ordered consumer per subscription, starting at new messages.
type Feed struct {
	js     jetstream.JetStream
	stream string
	prefix string
}

func New(js jetstream.JetStream, stream, subjectPrefix string) *Feed {
	return &Feed{js: js, stream: stream, prefix: subjectPrefix}
}

func (f *Feed) SubscribeChanges(ctx context.Context, table store.Table, filter store.Filter, event store.Event, cb func(store.Change)) (store.Subscription, error) {
	if !table.Valid() {
		return nil, store.Wrap(store.OpSubscribe, table, store.ErrUnknownTable)
	}
	subject := events.Subject(f.prefix, table, events.WeekOf(filter))

	cons, err := f.js.OrderedConsumer(ctx, f.stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return nil, store.Wrap(store.OpSubscribe, table, fmt.Errorf("create ordered consumer on %s: %w", subject, err))
	}

	deliver := events.Dispatcher(table, filter, event, cb)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		deliver(msg.Data())
	})
	if err != nil {
		return nil, store.Wrap(store.OpSubscribe, table, fmt.Errorf("consume %s: %w", subject, err))
	}
	stopOnDone := context.AfterFunc(ctx, cc.Stop)

	log.Debug().Str("subject", subject).Msg("subscribed to change feed")
	return store.SubscriptionFunc(func() error {
		stopOnDone()
		cc.Stop()
		return nil
	}), nil
}
