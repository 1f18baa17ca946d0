package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/matchday/go/internal/gateway"
	"github.com/mcdev12/matchday/go/internal/matchday"
	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/store/memstore"
	"github.com/mcdev12/matchday/go/internal/week"
)

var (
	tuesday = time.Date(2026, 10, 20, 12, 0, 0, 0, time.UTC)
	friday  = time.Date(2026, 10, 23, 12, 0, 0, 0, time.UTC)
)

// syncBuffer lets the watch test read output while the command writes it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeGateway struct {
	key      week.Key
	viewerID string
	state    *gateway.WeekStateResponse
	err      error
}

func (f *fakeGateway) FetchState(_ context.Context, key week.Key, viewerID string) (*gateway.WeekStateResponse, error) {
	f.key, f.viewerID = key, viewerID
	return f.state, f.err
}

// testEnv shares one demo store across every command it runs.
type testEnv struct {
	t     *testing.T
	clock *clockwork.FakeClock
	store *memstore.Store
	gw    *fakeGateway
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()
	t.Setenv("MATCHDAY_TIMEZONE", "UTC")
	t.Setenv("MATCHDAY_USER_ID", "")
	t.Setenv("MATCHDAY_EMAIL", "")
	t.Setenv("MATCHDAY_ENFORCE_VOTING_WINDOW", "")

	env := &testEnv{t: t, clock: clockwork.NewFakeClockAt(now), gw: &fakeGateway{}}
	key := week.NewResolver(time.UTC).CurrentKey(now)
	st, _, err := demoStore(context.Background(), env.clock, key)
	require.NoError(t, err)
	env.store = st.(*memstore.Store)
	return env
}

func (e *testEnv) deps() *deps {
	return &deps{
		clock: e.clock,
		openStore: func(context.Context, *rootOptions, week.Key) (store.Store, func(), error) {
			return e.store, func() {}, nil
		},
		openGateway: func(*rootOptions) (stateFetcher, error) { return e.gw, nil },
	}
}

func (e *testEnv) run(ctx context.Context, args ...string) (string, error) {
	e.t.Helper()
	out := &bytes.Buffer{}
	cmd := newRootCommand(e.deps())
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--demo"}, args...))
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (e *testEnv) runJSON(args ...string) matchday.View {
	e.t.Helper()
	out, err := e.run(context.Background(), append(args, "--format", "json")...)
	require.NoError(e.t, err)
	var view matchday.View
	require.NoError(e.t, json.Unmarshal([]byte(out), &view))
	return view
}

func TestStatus_Text(t *testing.T) {
	env := newTestEnv(t, tuesday)

	out, err := env.run(context.Background(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Match day: Thursday 22/10/2026 (week 2026-10-22)")
	assert.Contains(t, out, "You: no answer yet")
	assert.Contains(t, out, "Present (9): ana, ben")
	assert.Contains(t, out, "9 of 10 players")
	assert.Contains(t, out, "closed until Friday")
}

func TestInvalidFormat(t *testing.T) {
	env := newTestEnv(t, tuesday)
	_, err := env.run(context.Background(), "status", "--format", "xml")
	assert.ErrorContains(t, err, "invalid format")
}

func TestJoinThenDraw(t *testing.T) {
	env := newTestEnv(t, tuesday)

	view := env.runJSON("join")
	require.NotNil(t, view.MyChoice)
	assert.True(t, *view.MyChoice)
	assert.Len(t, view.Present, 10)
	assert.True(t, view.CanDraw())

	out, err := env.run(context.Background(), "draw", "--format", "json")
	require.NoError(t, err)
	var draw models.TeamDraw
	require.NoError(t, json.Unmarshal([]byte(out), &draw))
	assert.Len(t, draw.Team1, 5)
	assert.Len(t, draw.Team2, 5)
	assert.Equal(t, "demo", draw.CreatedBy)
	assert.Len(t, env.store.Rows(store.TableTeamDraws), 1)

	out, err = env.run(context.Background(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Teams (drawn by demo):")
}

func TestLeave(t *testing.T) {
	env := newTestEnv(t, tuesday)

	env.runJSON("join")
	view := env.runJSON("leave")
	require.NotNil(t, view.MyChoice)
	assert.False(t, *view.MyChoice)
	assert.Len(t, view.Present, 9)
	assert.Len(t, env.store.Rows(store.TableParticipation), 10)
}

func TestDraw_NotEnoughPlayers(t *testing.T) {
	env := newTestEnv(t, tuesday)

	_, err := env.run(context.Background(), "draw")
	assert.ErrorIs(t, err, matchday.ErrInsufficientPlayers)
	assert.Empty(t, env.store.Rows(store.TableTeamDraws))
}

func TestVote_ByNameOnFriday(t *testing.T) {
	env := newTestEnv(t, friday)

	view := env.runJSON("vote", "Ana")
	assert.Equal(t, week.Key("2026-10-29"), view.Week)
	assert.True(t, view.VotingOpen)
	require.NotNil(t, view.MyVote)
	assert.Equal(t, "ana@matchday.local", *view.MyVote)
	require.NotNil(t, view.MVP)
	assert.Equal(t, "ana", view.MVP.Name)

	view = env.runJSON("vote", "ben@matchday.local")
	assert.Equal(t, "ben", view.MVP.Name)
	assert.Len(t, env.store.Rows(store.TableMVPVotes), 1)
}

func TestVote_UnknownPlayer(t *testing.T) {
	env := newTestEnv(t, friday)
	_, err := env.run(context.Background(), "vote", "zed")
	assert.ErrorIs(t, err, matchday.ErrUnknownCandidate)
}

func TestVote_EnforcedWindow(t *testing.T) {
	env := newTestEnv(t, tuesday)
	t.Setenv("MATCHDAY_ENFORCE_VOTING_WINDOW", "true")

	_, err := env.run(context.Background(), "vote", "ana")
	assert.ErrorIs(t, err, matchday.ErrVotingClosed)
	assert.Empty(t, env.store.Rows(store.TableMVPVotes))
}

func TestWatch_RendersUpdates(t *testing.T) {
	env := newTestEnv(t, tuesday)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	cmd := newRootCommand(env.deps())
	cmd.SetOut(out)
	cmd.SetArgs([]string{"--demo", "watch"})

	errCh := make(chan error, 1)
	go func() { errCh <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Present (9)")
	}, time.Second, 5*time.Millisecond)

	p := models.Participation{UserID: "jo", UserEmail: "jo@matchday.local", WeekDate: "2026-10-22", Participates: true}
	require.NoError(t, env.store.Insert(ctx, store.TableParticipation, p.Record()))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Present (10)")
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Zero(t, env.store.Subscribers())
}

func TestState(t *testing.T) {
	env := newTestEnv(t, tuesday)
	t.Setenv("MATCHDAY_USER_ID", "u1")
	env.gw.state = &gateway.WeekStateResponse{
		Week: "2026-10-29",
		View: matchday.View{Week: "2026-10-29", EventLabel: "29/10/2026"},
	}

	out, err := env.run(context.Background(), "state", "2026-10-29")
	require.NoError(t, err)
	assert.Equal(t, week.Key("2026-10-29"), env.gw.key)
	assert.Equal(t, "u1", env.gw.viewerID)
	assert.Contains(t, out, "Thursday 29/10/2026")

	_, err = env.run(context.Background(), "state")
	require.NoError(t, err)
	assert.Equal(t, week.Key("2026-10-22"), env.gw.key)

	_, err = env.run(context.Background(), "state", "29/10/2026")
	assert.Error(t, err)

	env.gw.err = errors.New("gateway down")
	_, err = env.run(context.Background(), "state")
	assert.ErrorContains(t, err, "gateway down")
}

func TestIdentityRequiredOutsideDemo(t *testing.T) {
	env := newTestEnv(t, tuesday)
	cmd := newRootCommand(env.deps())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"status"})
	assert.ErrorContains(t, cmd.Execute(), "MATCHDAY_USER_ID")
}

func TestMigrate_RefusesDemo(t *testing.T) {
	env := newTestEnv(t, tuesday)
	_, err := env.run(context.Background(), "migrate")
	assert.ErrorContains(t, err, "demo")
}

func TestCandidateEmail(t *testing.T) {
	view := matchday.View{Present: []models.Player{{Name: "ana", Email: "ana@x"}}}
	email, err := candidateEmail(view, "ANA@x")
	require.NoError(t, err)
	assert.Equal(t, "ana@x", email)
}
