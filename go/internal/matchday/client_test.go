package matchday

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/store/memstore"
	"github.com/mcdev12/matchday/go/internal/week"
)

func newTestClient(t *testing.T, now time.Time, enforce bool) (*Client, *memstore.Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	st := memstore.New(clock)
	c := NewClient(st, me, ClientConfig{
		Resolver:            week.NewResolver(time.UTC),
		Clock:               clock,
		EnforceVotingWindow: enforce,
		Shuffle:             noShuffle,
	})
	return c, st, clock
}

func nextView(t *testing.T, c *Client) View {
	t.Helper()
	select {
	case v := <-c.Updates():
		return v
	case <-time.After(time.Second):
		t.Fatal("no view update")
		return View{}
	}
}

func TestClient_StartLoadsCurrentWeek(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tuesday: the week is this Thursday.
	c, st, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), false)
	seed(t, st, store.TableParticipation, part("alice", true).Record())

	require.NoError(t, c.Start(ctx))
	defer c.Close()

	view := c.View()
	assert.Equal(t, week.Key(testWeek), view.Week)
	assert.Equal(t, "22/10/2026", view.EventLabel)
	assert.False(t, view.VotingOpen)
	require.Len(t, view.Present, 1)
	assert.Equal(t, 3, st.Subscribers())
}

func TestClient_UpdatesFollowActions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, _, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), false)
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	require.NoError(t, c.SetParticipation(ctx, true))
	view := nextView(t, c)
	require.NotNil(t, view.MyChoice)
	assert.True(t, *view.MyChoice)
	assert.Len(t, view.Present, 1)
	assert.False(t, c.Busy())
}

func TestClient_StartFailsWhenLoadFails(t *testing.T) {
	c, st, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), false)
	st.SetHook(func(_ context.Context, op store.Op, _ store.Table) error {
		if op == store.OpSelect {
			return errBoom
		}
		return nil
	})

	err := c.Start(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Zero(t, st.Subscribers())

	st.SetHook(nil)
	require.NoError(t, c.Start(context.Background()))
	c.Close()
	assert.Zero(t, st.Subscribers())
}

func TestClient_FollowsWeekRollover(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Thursday evening, a minute before the week flips to next Thursday.
	c, st, clock := newTestClient(t, time.Date(2026, 10, 22, 23, 59, 30, 0, time.UTC), false)
	seed(t, st, store.TableParticipation,
		part("alice", true).Record(),
		models.Participation{UserID: "bob", UserEmail: "bob@club.test", WeekDate: "2026-10-29", Participates: true}.Record(),
	)

	require.NoError(t, c.Start(ctx))
	defer c.Close()
	assert.Equal(t, week.Key(testWeek), c.View().Week)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		return c.View().Week == "2026-10-29"
	}, time.Second, 5*time.Millisecond)

	view := c.View()
	require.Len(t, view.Present, 1)
	assert.Equal(t, "bob", view.Present[0].Name)
	assert.Equal(t, "29/10/2026", view.EventLabel)
	assert.True(t, view.VotingOpen)
	assert.Equal(t, 3, st.Subscribers())
}

func TestClient_EnforcedVotingWindow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, st, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), true)
	seed(t, st, store.TableParticipation, part("alice", true).Record())
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	assert.ErrorIs(t, c.VoteMVP(ctx, "alice@club.test"), ErrVotingClosed)
}

func TestClient_CloseReleasesSubscriptions(t *testing.T) {
	c, st, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), false)
	require.NoError(t, c.Start(context.Background()))
	c.Close()
	c.Close()
	assert.Zero(t, st.Subscribers())
}

func TestClient_PendingUpdateIsNewestView(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, st, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), false)
	require.NoError(t, c.Start(ctx))
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.Reload(ctx)
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			draw := models.TeamDraw{WeekDate: testWeek, Team1: []string{"a"}, Team2: []string{"b"}, CreatedBy: fmt.Sprint(i)}
			assert.NoError(t, st.Upsert(ctx, store.TableTeamDraws, draw.Record(), "week_date"))
		}(i)
	}
	wg.Wait()

	pending := nextView(t, c)
	assert.Equal(t, c.View().Draw, pending.Draw)
}

func TestClient_PushKeepsOnlyLatest(t *testing.T) {
	c, _, _ := newTestClient(t, time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC), false)
	for _, by := range []string{"first", "second", "third"} {
		c.push(Snapshot{Week: testWeek, Draw: &models.TeamDraw{WeekDate: testWeek, CreatedBy: by}})
	}

	view := nextView(t, c)
	require.NotNil(t, view.Draw)
	assert.Equal(t, "third", view.Draw.CreatedBy)
	assert.Empty(t, c.Updates())
}
