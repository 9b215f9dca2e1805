package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"negotiation-bench/server/engine"
)

func sampleRecord(index int) Record {
	return Record{
		Source:  "batch",
		Batch:   "runs/self",
		Index:   index,
		P0Model: "gpt-4o-mini",
		P1Model: "gpt-4o-mini",
		Outcome: engine.Outcome{
			Counts:       engine.Counts{engine.Book: 1, engine.Hat: 2, engine.Ball: 3},
			P0Values:     engine.Values{engine.Book: 1, engine.Hat: 3, engine.Ball: 1},
			P1Values:     engine.Values{engine.Book: 2, engine.Hat: 1, engine.Ball: 2},
			P0Allocation: engine.Allocation{engine.Book: 1, engine.Hat: 0, engine.Ball: 0},
			P1Allocation: engine.Allocation{engine.Book: 0, engine.Hat: 2, engine.Ball: 3},
			P0Score:      1,
			P1Score:      8,
			MessageCount: 4,
			TokenCount:   40,
			ValidDeal:    true,
			Status:       engine.StatusDealClosed,
			Objective:    engine.SelfInterested,
		},
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index", "games.sqlite"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.SaveOutcome(ctx, sampleRecord(0)))
	aborted := sampleRecord(1)
	aborted.Outcome.P0Allocation, aborted.Outcome.P1Allocation = nil, nil
	aborted.Outcome.P0Score, aborted.Outcome.P1Score = 0, 0
	aborted.Outcome.Abort, aborted.Outcome.ValidDeal = true, false
	aborted.Outcome.Status = engine.StatusAborted
	aborted.Disconnect = true
	require.NoError(t, idx.SaveOutcome(ctx, aborted))

	recs, err := idx.RecentOutcomes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.Equal(t, 1, recs[0].Index)
	require.True(t, recs[0].Disconnect)
	require.True(t, recs[0].Outcome.Abort)
	require.Nil(t, recs[0].Outcome.P0Allocation)

	want := sampleRecord(0)
	got := recs[1]
	require.NotZero(t, got.ID)
	got.ID = 0
	require.Equal(t, want, got)
}

func TestMultiSkipsNil(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "games.sqlite"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, Multi{nil, idx}.SaveOutcome(ctx, sampleRecord(3)))
	recs, err := idx.RecentOutcomes(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("")
	require.Error(t, err)
}

// TestPostgresRoundTrip runs only against a live database.
func TestPostgresRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(dsn)
	require.NoError(t, err)
	defer db.Close(ctx)
	require.NoError(t, Migrate(ctx, db))

	id, err := db.InsertGame(ctx, sampleRecord(0))
	require.NoError(t, err)
	recs, err := db.RecentOutcomes(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, id, recs[0].ID)
	require.Equal(t, 8, recs[0].Outcome.P1Score)

	elo, _, err := db.GetOrInitRating(ctx, "test-model", 1500)
	require.NoError(t, err)
	require.NoError(t, db.UpdateRating(ctx, "test-model", elo+10, 1))
	require.True(t, IsNotFound(db.UpdateRating(ctx, "no-such-model", 1500, 1)))
}
