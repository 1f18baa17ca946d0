package pgstore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/matchday/go/internal/models"
	"github.com/mcdev12/matchday/go/internal/store"
)

func TestBuildSelect(t *testing.T) {
	sql, args := buildSelect(store.TableParticipation, store.Filter{"week_date": "2026-10-22", "user_id": "u1"})
	assert.Equal(t, `SELECT * FROM "match_participation" WHERE "user_id" = $1 AND "week_date" = $2 ORDER BY id`, sql)
	assert.Equal(t, []any{"u1", "2026-10-22"}, args)

	sql, args = buildSelect(store.TableMVPVotes, nil)
	assert.Equal(t, `SELECT * FROM "mvp_votes" ORDER BY id`, sql)
	assert.Empty(t, args)
}

func TestBuildInsert(t *testing.T) {
	rec := models.Vote{VoterID: "v", VoterEmail: "v@x", WeekDate: "w", VotedForEmail: "c@x"}.Record()
	sql, args := buildInsert(store.TableMVPVotes, rec)
	assert.Equal(t,
		`INSERT INTO "mvp_votes" ("voted_for_email", "voter_email", "voter_id", "week_date") VALUES ($1, $2, $3, $4)`,
		sql)
	assert.Equal(t, []any{"c@x", "v@x", "v", "w"}, args)
}

func TestBuildDelete(t *testing.T) {
	sql, args := buildDelete(store.TableParticipation, store.Filter{"user_id": "u1", "week_date": "w"})
	assert.Equal(t, `DELETE FROM "match_participation" WHERE "user_id" = $1 AND "week_date" = $2`, sql)
	assert.Equal(t, []any{"u1", "w"}, args)
}

func TestBuildUpsert(t *testing.T) {
	rec := models.TeamDraw{WeekDate: "w", Team1: []string{"a"}, Team2: []string{"b"}, CreatedBy: "a"}.Record()
	sql, args := buildUpsert(store.TableTeamDraws, rec, "week_date")
	assert.True(t, strings.HasPrefix(sql, `INSERT INTO "team_draws" ("created_by", "team1", "team2", "week_date")`))
	assert.True(t, strings.HasSuffix(sql,
		`ON CONFLICT ("week_date") DO UPDATE SET "created_by" = EXCLUDED."created_by", "team1" = EXCLUDED."team1", "team2" = EXCLUDED."team2"`))
	assert.Equal(t, []any{"a", []string{"a"}, []string{"b"}, "w"}, args)

	sql, _ = buildUpsert(store.TableTeamDraws, store.Record{"week_date": "w"}, "week_date")
	assert.True(t, strings.HasSuffix(sql, `ON CONFLICT ("week_date") DO NOTHING`))
}

func TestIdentQuotesHostileNames(t *testing.T) {
	assert.Equal(t, `"a""b"`, ident(`a"b`))
}

func TestSchemaCoversEveryTable(t *testing.T) {
	for _, table := range store.Tables {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+string(table))
		assert.Contains(t, schema, "ON "+string(table)+"\n")
	}
	assert.Contains(t, schema, "pg_notify('matchday_changes'")
}

func TestValidation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	_, err := s.Select(ctx, "nope", nil)
	assert.ErrorIs(t, err, store.ErrUnknownTable)
	assert.ErrorIs(t, s.Delete(ctx, store.TableMVPVotes, nil), ErrUnfilteredDelete)
	assert.Error(t, s.Upsert(ctx, store.TableTeamDraws, store.Record{"team1": []string{}}, "week_date"))
}

// TestRoundTrip runs against a real database when MATCHDAY_TEST_DSN is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("MATCHDAY_TEST_DSN")
	if dsn == "" {
		t.Skip("MATCHDAY_TEST_DSN not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Migrate(ctx))

	week := "test-" + strings.ReplaceAll(t.Name(), "/", "-")
	filter := store.Filter{"week_date": week}
	require.NoError(t, s.Delete(ctx, store.TableTeamDraws, filter))
	t.Cleanup(func() { _ = s.Delete(context.Background(), store.TableTeamDraws, filter) })

	draw := models.TeamDraw{WeekDate: week, Team1: []string{"a", "b"}, Team2: []string{"c"}, CreatedBy: "a"}
	require.NoError(t, s.Upsert(ctx, store.TableTeamDraws, draw.Record(), "week_date"))
	draw.Team2 = []string{"d"}
	require.NoError(t, s.Upsert(ctx, store.TableTeamDraws, draw.Record(), "week_date"))

	rows, err := s.Select(ctx, store.TableTeamDraws, filter)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	got, err := models.TeamDrawFromRecord(rows[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, got.Team2)
}
