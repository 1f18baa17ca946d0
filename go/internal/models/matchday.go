package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mcdev12/matchday/go/internal/store"
)

// MinDrawPlayers is the number of present players required before teams can be drawn.
const MinDrawPlayers = 10

// Viewer is the authenticated identity driving a client.
type Viewer struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
}

// Name returns the display name, the local part of the email.
func (v Viewer) Name() string {
	return DisplayName(v.Email)
}

// DisplayName derives a user-visible name from an email address.
func DisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// Participation records a user's yes/no choice for a week.
type Participation struct {
	UserID       string `json:"user_id"`
	UserEmail    string `json:"user_email"`
	WeekDate     string `json:"week_date"`
	Participates bool   `json:"participates"`
}

// Record converts the participation into a store row.
func (p Participation) Record() store.Record {
	return store.Record{
		"user_id":      p.UserID,
		"user_email":   p.UserEmail,
		"week_date":    p.WeekDate,
		"participates": p.Participates,
	}
}

// TeamDraw is the randomized two-team split for a week. Rosters hold display names.
type TeamDraw struct {
	WeekDate  string   `json:"week_date"`
	Team1     []string `json:"team1"`
	Team2     []string `json:"team2"`
	CreatedBy string   `json:"created_by"`
}

// Record converts the draw into a store row.
func (d TeamDraw) Record() store.Record {
	return store.Record{
		"week_date":  d.WeekDate,
		"team1":      append([]string(nil), d.Team1...),
		"team2":      append([]string(nil), d.Team2...),
		"created_by": d.CreatedBy,
	}
}

// Clone returns a deep copy of the draw.
func (d *TeamDraw) Clone() *TeamDraw {
	if d == nil {
		return nil
	}
	return &TeamDraw{
		WeekDate:  d.WeekDate,
		Team1:     append([]string(nil), d.Team1...),
		Team2:     append([]string(nil), d.Team2...),
		CreatedBy: d.CreatedBy,
	}
}

// Vote is a single MVP ballot.
type Vote struct {
	VoterID       string `json:"voter_id"`
	VoterEmail    string `json:"voter_email"`
	WeekDate      string `json:"week_date"`
	VotedForEmail string `json:"voted_for_email"`
}

// Record converts the vote into a store row.
func (v Vote) Record() store.Record {
	return store.Record{
		"voter_id":        v.VoterID,
		"voter_email":     v.VoterEmail,
		"week_date":       v.WeekDate,
		"voted_for_email": v.VotedForEmail,
	}
}

// Player is a present participant as shown to users.
type Player struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ParticipationFromRecord decodes a store row.
func ParticipationFromRecord(r store.Record) (Participation, error) {
	var p Participation
	if err := decodeRecord(r, &p); err != nil {
		return Participation{}, fmt.Errorf("decode participation: %w", err)
	}
	return p, nil
}

// TeamDrawFromRecord decodes a store row.
func TeamDrawFromRecord(r store.Record) (*TeamDraw, error) {
	var d TeamDraw
	if err := decodeRecord(r, &d); err != nil {
		return nil, fmt.Errorf("decode team draw: %w", err)
	}
	return &d, nil
}

// VoteFromRecord decodes a store row.
func VoteFromRecord(r store.Record) (Vote, error) {
	var v Vote
	if err := decodeRecord(r, &v); err != nil {
		return Vote{}, fmt.Errorf("decode vote: %w", err)
	}
	return v, nil
}

// decodeRecord goes through JSON so rows from any backend decode the same
// way: native Go values from memory or pgx, or generic JSON from a feed.
func decodeRecord(r store.Record, dst any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
