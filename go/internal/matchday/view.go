package matchday

import (
	"sort"

	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/week"
)

const minDrawPlayers = models.MinDrawPlayers

// Snapshot is the raw weekly state as last read from the store, plus any
// optimistic mutations applied since.
type Snapshot struct {
	Week           week.Key               `json:"week"`
	Participations []models.Participation `json:"participations"`
	Draw           *models.TeamDraw       `json:"draw,omitempty"`
	Votes          []models.Vote          `json:"votes"`
}

// Clone returns a deep copy safe to hand to callers.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Week:           s.Week,
		Participations: append([]models.Participation(nil), s.Participations...),
		Draw:           s.Draw.Clone(),
		Votes:          append([]models.Vote(nil), s.Votes...),
	}
}

// VoteCount is a present player's tally. Share is the count relative to
// the MVP's, for progress bars; zero when there is no MVP.
type VoteCount struct {
	models.Player
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// View is everything a client renders, derived from a Snapshot for one viewer.
type View struct {
	Week       week.Key         `json:"week"`
	EventLabel string           `json:"event_label,omitempty"`
	Present    []models.Player  `json:"present"`
	MyChoice   *bool            `json:"my_choice"`
	MyVote     *string          `json:"my_vote"`
	Draw       *models.TeamDraw `json:"draw"`
	VoteCounts []VoteCount      `json:"vote_counts"`
	MVP        *VoteCount       `json:"mvp"`
	VotingOpen bool             `json:"voting_open"`
}

// CanChoose reports whether the viewer has not answered for this week yet.
func (v View) CanChoose() bool {
	return v.MyChoice == nil
}

// CanDraw reports whether the draw action should be offered.
func (v View) CanDraw() bool {
	return len(v.Present) >= minDrawPlayers && v.Draw == nil
}

// CanVote reports whether the viewer may cast an MVP vote.
func (v View) CanVote() bool {
	return v.VotingOpen && v.MyChoice != nil && *v.MyChoice && len(v.Present) > 0
}

// DeriveView recomputes every derived field from scratch. Participations
// and votes are collapsed to the most recent record per user, kept at the
// position of that record.
func DeriveView(snap Snapshot, viewerID string) View {
	view := View{
		Week: snap.Week,
		Draw: snap.Draw.Clone(),
	}

	parts := latestParticipations(snap.Participations)
	view.Present = make([]models.Player, 0, len(parts))
	for _, p := range parts {
		if p.UserID == viewerID {
			choice := p.Participates
			view.MyChoice = &choice
		}
		if p.Participates {
			view.Present = append(view.Present, models.Player{
				Name:  models.DisplayName(p.UserEmail),
				Email: p.UserEmail,
			})
		}
	}

	tally := make(map[string]int, len(view.Present))
	for _, v := range latestVotes(snap.Votes) {
		if v.VoterID == viewerID {
			choice := v.VotedForEmail
			view.MyVote = &choice
		}
		tally[v.VotedForEmail]++
	}

	view.VoteCounts = make([]VoteCount, len(view.Present))
	for i, p := range view.Present {
		view.VoteCounts[i] = VoteCount{Player: p, Count: tally[p.Email]}
	}
	sort.SliceStable(view.VoteCounts, func(i, j int) bool {
		return view.VoteCounts[i].Count > view.VoteCounts[j].Count
	})

	if len(view.VoteCounts) > 0 && view.VoteCounts[0].Count > 0 {
		top := view.VoteCounts[0].Count
		for i := range view.VoteCounts {
			view.VoteCounts[i].Share = float64(view.VoteCounts[i].Count) / float64(top)
		}
		mvp := view.VoteCounts[0]
		view.MVP = &mvp
	}

	return view
}

func latestParticipations(in []models.Participation) []models.Participation {
	last := make(map[string]int, len(in))
	for i, p := range in {
		last[p.UserID] = i
	}
	out := make([]models.Participation, 0, len(last))
	for i, p := range in {
		if last[p.UserID] == i {
			out = append(out, p)
		}
	}
	return out
}

func latestVotes(in []models.Vote) []models.Vote {
	last := make(map[string]int, len(in))
	for i, v := range in {
		last[v.VoterID] = i
	}
	out := make([]models.Vote, 0, len(last))
	for i, v := range in {
		if last[v.VoterID] == i {
			out = append(out, v)
		}
	}
	return out
}

func replaceParticipation(in []models.Participation, p models.Participation) []models.Participation {
	out := make([]models.Participation, 0, len(in)+1)
	for _, existing := range in {
		if existing.UserID != p.UserID {
			out = append(out, existing)
		}
	}
	return append(out, p)
}

func replaceVote(in []models.Vote, v models.Vote) []models.Vote {
	out := make([]models.Vote, 0, len(in)+1)
	for _, existing := range in {
		if existing.VoterID != v.VoterID {
			out = append(out, existing)
		}
	}
	return append(out, v)
}
