package history_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/relaxcheck/internal/history"
	"github.com/signalnine/relaxcheck/internal/result"
)

func openStore(t *testing.T) *history.Store {
	t.Helper()
	s, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func verdicts() []result.Verdict {
	return []result.Verdict{
		{Cell: result.Cell{Index: 0, Precision: 0.01, ArraySize: 5, Workers: 2, Trials: 2}, Trials: 2, Outcome: result.OutcomeOK, DurationS: 0.5},
		{Cell: result.Cell{Index: 1, Precision: 0.01, ArraySize: 5, Workers: 4, Trials: 2}, Trials: 2, Failures: 1, Outcome: result.OutcomeError, Mismatch: "trial 2: text differs"},
		{Cell: result.Cell{Index: 2, Precision: 0.001, ArraySize: 5, Workers: 2, Trials: 2}, Trials: 2, Timeouts: 1, Outcome: result.OutcomeTimeout},
	}
}

func TestNewRunIDIsTimeOrdered(t *testing.T) {
	a := history.NewRunID()
	time.Sleep(2 * time.Millisecond)
	b := history.NewRunID()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Less(t, a, b)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	for i := 0; i < 3; i++ {
		s, err := history.Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}
}

func TestRecordAndReadBack(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	run := history.Run{ID: history.NewRunID(), Label: "relaxcheck.yaml", StartedAt: started, FinishedAt: started.Add(time.Minute)}
	require.NoError(t, s.RecordRun(ctx, run, verdicts()))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	got := runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "relaxcheck.yaml", got.Label)
	assert.True(t, started.Equal(got.StartedAt))
	assert.Equal(t, 3, got.Cells)
	assert.Equal(t, 1, got.OK)
	assert.Equal(t, 1, got.Errors)
	assert.Equal(t, 1, got.Timeouts)

	vs, err := s.Verdicts(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, verdicts(), vs)
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id := history.NewRunID()
		ids = append(ids, id)
		start := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.RecordRun(ctx, history.Run{ID: id, StartedAt: start, FinishedAt: start}, verdicts()[:1]))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestFindRunByPrefix(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	now := time.Now()
	require.NoError(t, s.RecordRun(ctx, history.Run{ID: "aaaa-1111", StartedAt: now, FinishedAt: now}, nil))
	require.NoError(t, s.RecordRun(ctx, history.Run{ID: "aaaa-2222", StartedAt: now, FinishedAt: now}, nil))

	run, err := s.FindRun(ctx, "aaaa-2")
	require.NoError(t, err)
	assert.Equal(t, "aaaa-2222", run.ID)

	_, err = s.FindRun(ctx, "aaaa")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = s.FindRun(ctx, "bbbb")
	assert.True(t, errors.Is(err, history.ErrRunNotFound))
}

func TestRecordRunIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	now := time.Now()
	dup := verdicts()
	dup[1].Cell.Index = 0 // primary key collision on the second verdict
	err := s.RecordRun(ctx, history.Run{ID: "run-1", StartedAt: now, FinishedAt: now}, dup)
	require.Error(t, err)

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
