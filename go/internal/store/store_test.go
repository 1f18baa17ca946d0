package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Matches(t *testing.T) {
	rec := Record{"user_id": "u1", "week_date": "2026-10-22", "participates": true}

	assert.True(t, Filter{}.Matches(rec))
	assert.True(t, Filter{"week_date": "2026-10-22"}.Matches(rec))
	assert.True(t, Filter{"user_id": "u1", "week_date": "2026-10-22"}.Matches(rec))
	assert.False(t, Filter{"week_date": "2026-10-29"}.Matches(rec))
	assert.False(t, Filter{"missing": "x"}.Matches(rec))
}

func TestFilter_MatchesDecodedNumbers(t *testing.T) {
	// JSON decoding turns integers into float64
	rec := Record{"id": float64(7)}
	assert.True(t, Filter{"id": int64(7)}.Matches(rec))
}

func TestRecord_ColumnsSorted(t *testing.T) {
	rec := Record{"week_date": 1, "created_by": 2, "team1": 3}
	assert.Equal(t, []string{"created_by", "team1", "week_date"}, rec.Columns())
}

func TestEvent_Accepts(t *testing.T) {
	assert.True(t, EventAny.Accepts(EventDelete))
	assert.True(t, EventInsert.Accepts(EventInsert))
	assert.False(t, EventInsert.Accepts(EventUpdate))
}

func TestChange_Row(t *testing.T) {
	oldRow := Record{"id": 1}
	newRow := Record{"id": 2}

	assert.Equal(t, newRow, Change{Event: EventUpdate, New: newRow, Old: oldRow}.Row())
	assert.Equal(t, oldRow, Change{Event: EventDelete, Old: oldRow}.Row())
}

func TestWrap(t *testing.T) {
	require.NoError(t, Wrap(OpInsert, TableMVPVotes, nil))

	base := errors.New("connection refused")
	err := Wrap(OpInsert, TableMVPVotes, base)

	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, OpInsert, se.Op)
	assert.Equal(t, TableMVPVotes, se.Table)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "store insert mvp_votes: connection refused", err.Error())

	// already wrapped errors pass through untouched
	assert.Same(t, se, Wrap(OpSelect, TableTeamDraws, err).(*Error))
}

func TestTable_Valid(t *testing.T) {
	assert.True(t, TableTeamDraws.Valid())
	assert.False(t, Table("users").Valid())
}
