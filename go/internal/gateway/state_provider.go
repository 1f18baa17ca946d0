package gateway

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/matchday/go/internal/matchday"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/week"
)

// SnapshotStateProvider reads a week straight from the records store and
// derives the view the same way clients do.
type SnapshotStateProvider struct {
	records  store.Records
	resolver *week.Resolver
	clock    clockwork.Clock
}

func NewSnapshotStateProvider(records store.Records, resolver *week.Resolver, clock clockwork.Clock) *SnapshotStateProvider {
	return &SnapshotStateProvider{records: records, resolver: resolver, clock: clock}
}

func (p *SnapshotStateProvider) WeekState(ctx context.Context, key week.Key, viewerID string) (*WeekStateResponse, error) {
	// loads only read, so the synchronizer needs no feed here
	sync := matchday.NewSynchronizer(store.Compose(p.records, nil))
	snap, err := sync.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load week %s: %w", key, err)
	}
	label, err := key.Label()
	if err != nil {
		return nil, err
	}

	view := matchday.DeriveView(snap, viewerID)
	view.EventLabel = label
	// only the current week can be open for voting
	now := p.clock.Now()
	view.VotingOpen = p.resolver.CurrentKey(now) == key && p.resolver.VotingWindowOpen(now)
	return &WeekStateResponse{
		Week:       key,
		EventLabel: label,
		View:       view,
		Snapshot:   snap,
	}, nil
}
