package batch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandDir(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "out")
	for _, name := range []string{"b.PNG", "a.jpg", "notes.txt", "c.webp"} {
		require.NoError(t, os.WriteFile(filepath.Join(in, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(in, "sub.png"), 0o755))

	jobs, err := ExpandDir(in, out, nil, "")
	require.NoError(t, err)
	assert.Equal(t, []Job{
		{Input: filepath.Join(in, "a.jpg"), Output: filepath.Join(out, "a.jpg")},
		{Input: filepath.Join(in, "b.PNG"), Output: filepath.Join(out, "b.PNG")},
		{Input: filepath.Join(in, "c.webp"), Output: filepath.Join(out, "c.webp")},
	}, jobs)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	jobs, err = ExpandDir(in, out, []string{"png"}, "webp")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, filepath.Join(out, "b.webp"), jobs[0].Output)

	_, err = ExpandDir(filepath.Join(in, "missing"), out, nil, "")
	assert.Error(t, err)
}

func TestSkipExisting(t *testing.T) {
	out := t.TempDir()
	done := filepath.Join(out, "a.png")
	require.NoError(t, os.WriteFile(done, []byte("x"), 0o644))
	jobs := []Job{
		{Input: "/in/a.png", Output: done},
		{Input: "/in/b.png", Output: filepath.Join(out, "b.png")},
	}
	got := SkipExisting(jobs)
	assert.Equal(t, []Job{jobs[1]}, got)
	assert.Len(t, jobs, 2, "input slice must not be modified")
	assert.Empty(t, SkipExisting(nil))
}

func TestSummarize(t *testing.T) {
	at := func(sec int) *time.Time {
		v := time.Unix(1_700_000_000, 0).Add(time.Duration(sec) * time.Second)
		return &v
	}
	statuses := []JobStatus{
		{Phase: PhaseSucceeded, StartedAt: at(0), FinishedAt: at(1)},
		{Phase: PhaseSucceeded, StartedAt: at(0), FinishedAt: at(2)},
		{Phase: PhaseFailed, StartedAt: at(0), FinishedAt: at(3), ExitCode: 1},
		{Phase: PhaseFailed, Error: "launch"},
		{Phase: PhaseCancelled, StartedAt: at(0), FinishedAt: at(10)},
	}
	s := summarize(statuses, 12*time.Second)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Len(t, s.Failures, 2)
	assert.Equal(t, 10*time.Second, s.Max)
	assert.True(t, s.P50 >= time.Second && s.P50 <= 3*time.Second, "p50 = %v", s.P50)
	assert.True(t, s.P99 <= 10*time.Second, "p99 = %v", s.P99)

	empty := summarize(nil, 0)
	assert.Zero(t, empty.P50)
	assert.True(t, empty.OK())
}

func TestPhaseFinished(t *testing.T) {
	assert.False(t, PhasePending.Finished())
	assert.False(t, PhaseRunning.Finished())
	assert.True(t, PhaseSucceeded.Finished())
	assert.True(t, PhaseFailed.Finished())
	assert.True(t, PhaseCancelled.Finished())
}
