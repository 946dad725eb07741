package report

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun(id string, started time.Time) *RunResult {
	return &RunResult{
		ID:        id,
		Kind:      Pipeline,
		Outcome:   "completed",
		Stage:     "done",
		StartedAt: started,
		Steps: []StepReport{
			{Name: "contents", ExitCode: 0, Succeeded: true},
			{Name: "comments", ExitCode: 2, Succeeded: false},
		},
	}
}

func TestDiskStore_SaveLoad(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	run := sampleRun("run-1", time.Now())

	require.NoError(t, s.Save(run))

	got, err := s.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Len(t, got.Steps, 2)
	assert.Equal(t, 2, got.Steps[1].ExitCode)
}

func TestDiskStore_LoadMissing(t *testing.T) {
	s := NewDiskStore(t.TempDir())

	_, err := s.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Load("../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskStore_ListNewestFirst(t *testing.T) {
	s := NewDiskStore(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, s.Save(sampleRun(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := s.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-2", all[0].ID)
	assert.Equal(t, "run-0", all[2].ID)

	two, err := s.List(2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestHistoryStore_WritesThroughAndFallsBack(t *testing.T) {
	disk := NewDiskStore(t.TempDir())
	s := NewHistoryStore(1, disk)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Save(sampleRun("a", base)))
	require.NoError(t, s.Save(sampleRun("b", base.Add(time.Hour))))

	// "a" dropped out of memory but is still on disk.
	got, err := s.Load("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	recent, err := s.List(1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b", recent[0].ID)

	all, err := s.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHistoryStore_OrdersByStartTime(t *testing.T) {
	s := NewHistoryStore(3, NewDiskStore(t.TempDir()))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// Saved out of order, e.g. a short step finishing before a long pipeline.
	require.NoError(t, s.Save(sampleRun("late", base.Add(2*time.Hour))))
	require.NoError(t, s.Save(sampleRun("early", base)))
	require.NoError(t, s.Save(sampleRun("mid", base.Add(time.Hour))))
	require.NoError(t, s.Save(sampleRun("mid", base.Add(time.Hour))))

	runs, err := s.List(3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"late", "mid", "early"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
}

func TestHistoryStore_PrimesFromBackingStore(t *testing.T) {
	dir := t.TempDir()
	disk := NewDiskStore(dir)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		require.NoError(t, disk.Save(sampleRun(fmt.Sprintf("old-%d", i), base.Add(time.Duration(i)*time.Hour))))
	}

	s := NewHistoryStore(2, NewDiskStore(dir))
	runs, err := s.List(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "old-2", runs[0].ID)
	assert.Equal(t, "old-1", runs[1].ID)
}

func TestRunResult_Summary(t *testing.T) {
	run := sampleRun("x", time.Now())
	assert.Equal(t, "completed: contents ok, comments FAIL(2)", run.Summary())
	assert.Len(t, run.Failed(), 1)

	fatal := &RunResult{Outcome: "fatal", Stage: "activate", Reason: "no venv"}
	assert.Equal(t, "fatal at activate: no venv", fatal.Summary())
}
