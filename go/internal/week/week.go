// Package week computes the weekly partition key all match-day state is stored under.
package week

import (
	"fmt"
	"time"
)

// Key is the ISO calendar date (YYYY-MM-DD) of the Thursday a week is played on.
type Key string

const keyLayout = "2006-01-02"

// labelLayout is the fr-FR short date format.
const labelLayout = "02/01/2006"

func (k Key) String() string { return string(k) }

// Time parses the key back into a date in loc.
func (k Key) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(keyLayout, string(k), loc)
}

// Label formats the key as the match's display date.
func (k Key) Label() (string, error) {
	t, err := k.Time(time.UTC)
	if err != nil {
		return "", err
	}
	return t.Format(labelLayout), nil
}

// Parse validates s as a week key. Any calendar date is accepted; only the
// resolver decides which dates are match days.
func Parse(s string) (Key, error) {
	if _, err := time.Parse(keyLayout, s); err != nil {
		return "", fmt.Errorf("invalid week key %q: %w", s, err)
	}
	return Key(s), nil
}

// Resolver maps wall-clock instants to week keys in a fixed location.
type Resolver struct {
	loc *time.Location
}

// NewResolver returns a resolver for loc; nil means time.Local.
func NewResolver(loc *time.Location) *Resolver {
	if loc == nil {
		loc = time.Local
	}
	return &Resolver{loc: loc}
}

// Location returns the resolver's time zone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// EventDay returns midnight of the match Thursday for now: this week's
// Thursday through Thursday itself, next week's from Friday on.
func (r *Resolver) EventDay(now time.Time) time.Time {
	local := now.In(r.loc)
	day := int(local.Weekday())
	diff := int(time.Thursday) - day
	if day > int(time.Thursday) {
		diff += 7
	}
	y, m, d := local.Date()
	return time.Date(y, m, d+diff, 0, 0, 0, 0, r.loc)
}

// CurrentKey returns the week key for now.
func (r *Resolver) CurrentKey(now time.Time) Key {
	return Key(r.EventDay(now).Format(keyLayout))
}

// EventLabel returns the display date of the match for now.
func (r *Resolver) EventLabel(now time.Time) string {
	return r.EventDay(now).Format(labelLayout)
}

// VotingWindowOpen reports whether MVP voting should be offered: Friday
// and Saturday. Nothing enforces this at write time unless a controller
// is configured to.
func (r *Resolver) VotingWindowOpen(now time.Time) bool {
	return now.In(r.loc).Weekday() >= time.Friday
}
