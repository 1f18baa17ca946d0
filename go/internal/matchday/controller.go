package matchday

import (
	"context"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
	"github.com/mcdev12/matchday/go/internal/week"
)

// Controller runs the viewer's mutating actions against the synchronizer
// and the store. All actions share one slot: a second action started
// while the first is submitting is rejected with ErrActionInFlight.
type Controller struct {
	sync    *Synchronizer
	records store.Records
	viewer  models.Viewer

	shuffle    func(n int, swap func(i, j int))
	votingOpen func() bool

	slot chan struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithShuffle replaces the uniform random permutation used for draws.
func WithShuffle(shuffle func(n int, swap func(i, j int))) ControllerOption {
	return func(c *Controller) { c.shuffle = shuffle }
}

// WithVotingWindow makes VoteMVP fail with ErrVotingClosed whenever open
// returns false. Without it the voting window is advisory only.
func WithVotingWindow(open func() bool) ControllerOption {
	return func(c *Controller) { c.votingOpen = open }
}

// NewController creates a controller acting as viewer.
func NewController(sync *Synchronizer, records store.Records, viewer models.Viewer, opts ...ControllerOption) *Controller {
	c := &Controller{
		sync:    sync,
		records: records,
		viewer:  viewer,
		shuffle: rand.Shuffle,
		slot:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy reports whether an action is currently submitting.
func (c *Controller) Busy() bool {
	return len(c.slot) == 1
}

// acquire takes the single action slot. The returned release must run on
// every exit path.
func (c *Controller) acquire() (func(), error) {
	select {
	case c.slot <- struct{}{}:
		return func() { <-c.slot }, nil
	default:
		return nil, ErrActionInFlight
	}
}

// SetParticipation records the viewer's attendance choice for the loaded week.
func (c *Controller) SetParticipation(ctx context.Context, attending bool) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	key := c.sync.Week()
	if key == "" {
		return &ValidationError{Action: "set participation", Err: ErrNotLoaded}
	}

	rec := models.Participation{
		UserID:       c.viewer.ID,
		UserEmail:    c.viewer.Email,
		WeekDate:     key.String(),
		Participates: attending,
	}
	c.sync.Mutate(func(s *Snapshot) {
		s.Participations = replaceParticipation(s.Participations, rec)
	})

	match := store.Filter{"user_id": c.viewer.ID, "week_date": key.String()}
	if err := c.replace(ctx, store.TableParticipation, match, rec.Record()); err != nil {
		return c.rollback(ctx, key, "set participation", err)
	}

	log.Info().
		Str("user_id", c.viewer.ID).
		Str("week", key.String()).
		Bool("participates", attending).
		Msg("participation recorded")
	return nil
}

// LaunchDraw shuffles the present players into two teams and stores the
// draw for the loaded week, replacing any earlier draw.
func (c *Controller) LaunchDraw(ctx context.Context) (*models.TeamDraw, error) {
	release, err := c.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	snap := c.sync.Snapshot()
	if snap.Week == "" {
		return nil, &ValidationError{Action: "launch draw", Err: ErrNotLoaded}
	}
	present := DeriveView(snap, c.viewer.ID).Present
	if len(present) < minDrawPlayers {
		return nil, &ValidationError{Action: "launch draw", Err: ErrInsufficientPlayers}
	}

	names := make([]string, len(present))
	for i, p := range present {
		names[i] = p.Name
	}
	c.shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	half := (len(names) + 1) / 2

	draw := &models.TeamDraw{
		WeekDate:  snap.Week.String(),
		Team1:     append([]string(nil), names[:half]...),
		Team2:     append([]string(nil), names[half:]...),
		CreatedBy: c.viewer.Name(),
	}
	c.sync.Mutate(func(s *Snapshot) {
		s.Draw = draw.Clone()
	})

	if err := c.records.Upsert(ctx, store.TableTeamDraws, draw.Record(), "week_date"); err != nil {
		return nil, c.rollback(ctx, snap.Week, "launch draw", err)
	}

	log.Info().
		Str("week", snap.Week.String()).
		Str("created_by", draw.CreatedBy).
		Int("players", len(names)).
		Msg("teams drawn")
	return draw, nil
}

// VoteMVP replaces the viewer's MVP vote for the loaded week.
func (c *Controller) VoteMVP(ctx context.Context, candidateEmail string) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	snap := c.sync.Snapshot()
	if snap.Week == "" {
		return &ValidationError{Action: "vote MVP", Err: ErrNotLoaded}
	}
	if c.votingOpen != nil && !c.votingOpen() {
		return &ValidationError{Action: "vote MVP", Err: ErrVotingClosed}
	}
	if !isPresent(DeriveView(snap, c.viewer.ID).Present, candidateEmail) {
		return &ValidationError{Action: "vote MVP", Err: ErrUnknownCandidate}
	}

	vote := models.Vote{
		VoterID:       c.viewer.ID,
		VoterEmail:    c.viewer.Email,
		WeekDate:      snap.Week.String(),
		VotedForEmail: candidateEmail,
	}
	c.sync.Mutate(func(s *Snapshot) {
		s.Votes = replaceVote(s.Votes, vote)
	})

	match := store.Filter{"voter_id": c.viewer.ID, "week_date": snap.Week.String()}
	if err := c.replace(ctx, store.TableMVPVotes, match, vote.Record()); err != nil {
		return c.rollback(ctx, snap.Week, "vote MVP", err)
	}

	log.Info().
		Str("voter_id", c.viewer.ID).
		Str("week", snap.Week.String()).
		Str("voted_for", candidateEmail).
		Msg("MVP vote recorded")
	return nil
}

// replace emulates "one row per key" without a uniqueness constraint:
// delete the old rows, then insert the new one. A failure between the two
// leaves no row, which the next reload shows as "no answer yet".
func (c *Controller) replace(ctx context.Context, table store.Table, match store.Filter, rec store.Record) error {
	if err := c.records.Delete(ctx, table, match); err != nil {
		return err
	}
	return c.records.Insert(ctx, table, rec)
}

// rollback discards the optimistic mutation by reloading store truth and
// wraps the write failure for the caller.
func (c *Controller) rollback(ctx context.Context, key week.Key, action string, err error) error {
	log.Error().Err(err).Str("week", key.String()).Str("action", action).Msg("remote write failed, reloading")
	if _, lerr := c.sync.Load(ctx, key); lerr != nil {
		log.Warn().Err(lerr).Str("week", key.String()).Msg("reload after failed write also failed")
	}
	return &TransportError{Action: action, Err: err}
}

func isPresent(present []models.Player, email string) bool {
	for _, p := range present {
		if p.Email == email {
			return true
		}
	}
	return false
}
