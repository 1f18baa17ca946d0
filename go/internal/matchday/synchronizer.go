package matchday

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/week"
)

// Synchronizer owns the local snapshot of one week and keeps it converged
// with the store. Participation and vote notifications are treated as
// invalidations and trigger a full reload; draw notifications carry a
// singleton row and are applied directly.
type Synchronizer struct {
	st store.Store

	mu         sync.RWMutex
	snap       Snapshot
	appliedSeq uint64
	optimistic bool

	// version counts installs into snap; it orders deliveries to listeners.
	version  uint64
	// drawMark is the newest load sequence started when a draw notification
	// was last applied. Loads up to it may have read an older draw.
	drawMark uint64

	loadSeq atomic.Uint64

	// publishMu serializes deliveries so listeners never see an older
	// install after a newer one.
	publishMu sync.Mutex
	delivered uint64

	listenersMu sync.RWMutex
	listeners   map[uint64]func(Snapshot)
	nextID      uint64
}

// NewSynchronizer creates a synchronizer with an empty snapshot.
func NewSynchronizer(st store.Store) *Synchronizer {
	return &Synchronizer{
		st:        st,
		listeners: make(map[uint64]func(Snapshot)),
	}
}

// Snapshot returns a copy of the current snapshot.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Week returns the key of the loaded snapshot, empty before the first load.
func (s *Synchronizer) Week() week.Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Week
}

// Load reads the full state of key and replaces the snapshot. When loads
// overlap, the one started last wins. On error the previous snapshot is
// kept and the caller is expected to retry.
func (s *Synchronizer) Load(ctx context.Context, key week.Key) (Snapshot, error) {
	seq := s.loadSeq.Add(1)
	filter := store.Filter{"week_date": key.String()}

	partRows, err := s.st.Select(ctx, store.TableParticipation, filter)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("load participations: %w", err)
	}
	drawRows, err := s.st.Select(ctx, store.TableTeamDraws, filter)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("load team draw: %w", err)
	}
	voteRows, err := s.st.Select(ctx, store.TableMVPVotes, filter)
	if err != nil {
		return s.Snapshot(), fmt.Errorf("load votes: %w", err)
	}

	next := Snapshot{Week: key}
	for _, row := range partRows {
		p, err := models.ParticipationFromRecord(row)
		if err != nil {
			log.Warn().Err(err).Str("week", key.String()).Msg("skipping malformed participation row")
			continue
		}
		next.Participations = append(next.Participations, p)
	}
	// at most one draw per week; if the store briefly holds more, the newest wins
	if n := len(drawRows); n > 0 {
		draw, err := models.TeamDrawFromRecord(drawRows[n-1])
		if err != nil {
			log.Warn().Err(err).Str("week", key.String()).Msg("skipping malformed team draw row")
		} else {
			next.Draw = draw
		}
	}
	for _, row := range voteRows {
		v, err := models.VoteFromRecord(row)
		if err != nil {
			log.Warn().Err(err).Str("week", key.String()).Msg("skipping malformed vote row")
			continue
		}
		next.Votes = append(next.Votes, v)
	}

	s.mu.Lock()
	if seq < s.appliedSeq {
		current := s.snap.Clone()
		s.mu.Unlock()
		log.Debug().Uint64("seq", seq).Str("week", key.String()).Msg("discarding superseded load")
		return current, nil
	}
	if seq <= s.drawMark && s.snap.Week == key {
		next.Draw = s.snap.Draw.Clone()
	}
	if s.optimistic && s.snap.Week == key && !sameState(s.snap, next) {
		log.Debug().Err(ErrConcurrencyAnomaly).Str("week", key.String()).Msg("reload replaced optimistic state")
	}
	s.snap = next
	s.appliedSeq = seq
	s.optimistic = false
	s.version++
	out, version := s.snap.Clone(), s.version
	s.mu.Unlock()

	s.publish(out, version)
	return out.Clone(), nil
}

// Mutate applies an optimistic change to the snapshot and notifies
// listeners right away. The next reload overwrites it with store truth.
func (s *Synchronizer) Mutate(fn func(*Snapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.optimistic = true
	s.version++
	out, version := s.snap.Clone(), s.version
	s.mu.Unlock()

	s.publish(out, version)
}

// Subscribe watches the three tables for key and calls onChange with the
// new snapshot after each reconciliation. Calls are serialized and never
// go backwards, so onChange must not block or call back into the
// synchronizer. The returned function tears the watch down; it is safe to
// call more than once.
func (s *Synchronizer) Subscribe(ctx context.Context, key week.Key, onChange func(Snapshot)) (func(), error) {
	var closed atomic.Bool
	filter := store.Filter{"week_date": key.String()}

	reload := func(store.Change) {
		if closed.Load() {
			return
		}
		if _, err := s.Load(ctx, key); err != nil {
			log.Error().Err(err).Str("week", key.String()).Msg("reload after change notification failed")
		}
	}
	applyDraw := func(c store.Change) {
		if closed.Load() {
			return
		}
		s.applyDrawChange(ctx, key, c)
	}

	handlers := []struct {
		table store.Table
		cb    func(store.Change)
	}{
		{store.TableParticipation, reload},
		{store.TableTeamDraws, applyDraw},
		{store.TableMVPVotes, reload},
	}

	var subs []store.Subscription
	unsubscribeAll := func() {
		for _, sub := range subs {
			if err := sub.Unsubscribe(); err != nil {
				log.Warn().Err(err).Str("week", key.String()).Msg("failed to unsubscribe")
			}
		}
	}
	for _, h := range handlers {
		sub, err := s.st.SubscribeChanges(ctx, h.table, filter, store.EventAny, h.cb)
		if err != nil {
			closed.Store(true)
			unsubscribeAll()
			return nil, fmt.Errorf("subscribe %s: %w", h.table, err)
		}
		subs = append(subs, sub)
	}

	id := s.addListener(onChange)

	var once sync.Once
	return func() {
		once.Do(func() {
			closed.Store(true)
			s.removeListener(id)
			unsubscribeAll()
		})
	}, nil
}

// applyDrawChange installs the draw carried by c. A notification that
// arrives before key has been loaded triggers a full load instead, since the
// pending load may have read the table before the change was committed.
func (s *Synchronizer) applyDrawChange(ctx context.Context, key week.Key, c store.Change) {
	var draw *models.TeamDraw
	if c.Event != store.EventDelete && c.New != nil {
		d, err := models.TeamDrawFromRecord(c.New)
		if err != nil {
			log.Warn().Err(err).Str("week", key.String()).Msg("ignoring malformed team draw notification")
			return
		}
		draw = d
	}

	s.mu.Lock()
	if s.snap.Week != key {
		s.mu.Unlock()
		if _, err := s.Load(ctx, key); err != nil {
			log.Error().Err(err).Str("week", key.String()).Msg("load after early team draw notification failed")
		}
		return
	}
	s.snap.Draw = draw
	s.drawMark = s.loadSeq.Load()
	s.version++
	out, version := s.snap.Clone(), s.version
	s.mu.Unlock()

	s.publish(out, version)
}

func (s *Synchronizer) addListener(fn func(Snapshot)) uint64 {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.nextID++
	s.listeners[s.nextID] = fn
	return s.nextID
}

func (s *Synchronizer) removeListener(id uint64) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	delete(s.listeners, id)
}

// publish delivers snap to every listener unless a newer install has
// already been delivered.
func (s *Synchronizer) publish(snap Snapshot, version uint64) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if version <= s.delivered {
		log.Debug().Uint64("version", version).Str("week", snap.Week.String()).Msg("skipping superseded snapshot")
		return
	}
	s.delivered = version

	s.listenersMu.RLock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.RUnlock()

	for _, fn := range fns {
		notify(fn, snap.Clone())
	}
}

// notify shields the feed from a misbehaving listener: a panic is logged
// and the subscription keeps delivering.
func notify(fn func(Snapshot), snap Snapshot) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Err(errors.New(fmt.Sprint(r))).
				Str("week", snap.Week.String()).
				Msg("change listener panicked")
		}
	}()
	fn(snap)
}

func sameState(a, b Snapshot) bool {
	return reflect.DeepEqual(latestParticipations(a.Participations), latestParticipations(b.Participations)) &&
		reflect.DeepEqual(latestVotes(a.Votes), latestVotes(b.Votes)) &&
		reflect.DeepEqual(a.Draw, b.Draw)
}
