package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
)

func defaultAllowSet() []string {
	return []string{"latin", "greek", "english"}
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	fn   func(ctx context.Context, jobID string) error
}

func (r *fakeRunner) Run(ctx context.Context, jobID string) error {
	r.mu.Lock()
	r.runs = append(r.runs, jobID)
	r.mu.Unlock()
	if r.fn != nil {
		return r.fn(ctx, jobID)
	}
	return nil
}

func (r *fakeRunner) ranJobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...)
}

func TestLauncher_CreateJob_ReturnsPendingImmediately(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	runner := &fakeRunner{}
	launcher := NewLauncher(store, tracker, runner, defaultAllowSet)
	defer launcher.Close()

	job, err := launcher.CreateJob(context.Background(), jobs.ProcessRequest{
		Title:    "De Bello Gallico",
		Author:   "Caesar",
		Language: "Latin",
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, jobs.StatusPending, job.Status)

	status, ok := tracker.GetStatus(job.ID)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusPending, status)

	stored, ok, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, jobs.StatusPending, stored.Status)

	require.Eventually(t, func() bool {
		return len(runner.ranJobs()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{job.ID}, runner.ranJobs())
}

func TestLauncher_CreateJob_UniqueIDs(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	launcher := NewLauncher(store, tracker, &fakeRunner{}, defaultAllowSet)
	defer launcher.Close()

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		job, err := launcher.CreateJob(context.Background(), jobs.ProcessRequest{
			Title:    "Iliad",
			Author:   "Homer",
			Language: "greek",
		})
		require.NoError(t, err)
		assert.False(t, seen[job.ID], "id %s issued twice", job.ID)
		seen[job.ID] = true
	}
}

func TestLauncher_CreateJob_RejectsUnknownLanguage(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	runner := &fakeRunner{}
	launcher := NewLauncher(store, tracker, runner, defaultAllowSet)
	defer launcher.Close()

	job, err := launcher.CreateJob(context.Background(), jobs.ProcessRequest{
		Title:    "X",
		Author:   "Y",
		Language: "Klingon",
	})
	require.Error(t, err)
	assert.Nil(t, job)
	assert.True(t, IsErrorType(err, ErrValidation))

	all, err := store.ListJobs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "rejected requests create no job row")
	assert.Empty(t, runner.ranJobs())
}

func TestLauncher_CreateJob_LanguageCaseInsensitive(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	launcher := NewLauncher(store, tracker, &fakeRunner{}, defaultAllowSet)
	defer launcher.Close()

	for _, lang := range []string{"Latin", "LATIN", "latin", "English"} {
		_, err := launcher.CreateJob(context.Background(), jobs.ProcessRequest{
			Title:    "T",
			Author:   "A",
			Language: lang,
		})
		require.NoError(t, err, "language %q", lang)
	}
}

func TestLauncher_CreateJob_RequiredFields(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	launcher := NewLauncher(store, tracker, &fakeRunner{}, defaultAllowSet)
	defer launcher.Close()

	cases := []jobs.ProcessRequest{
		{Author: "A", Language: "latin"},
		{Title: "T", Language: "latin"},
		{Title: "T", Author: "A"},
	}
	for _, req := range cases {
		_, err := launcher.CreateJob(context.Background(), req)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ErrValidation))
	}
}

func TestLauncher_DrainWaitsForRuns(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	release := make(chan struct{})
	runner := &fakeRunner{
		fn: func(context.Context, string) error {
			<-release
			return nil
		},
	}
	launcher := NewLauncher(store, tracker, runner, defaultAllowSet)
	defer launcher.Close()

	_, err := launcher.CreateJob(context.Background(), jobs.ProcessRequest{
		Title:    "Aeneid",
		Author:   "Vergil",
		Language: "latin",
	})
	require.NoError(t, err)

	shortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.Error(t, launcher.Drain(shortCtx), "drain should time out while the run is blocked")

	close(release)
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), time.Second)
	defer cancelDrain()
	require.NoError(t, launcher.Drain(drainCtx))
}

func TestLauncher_CloseRaisesCancellation(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	observed := make(chan error, 1)
	runner := &fakeRunner{
		fn: func(ctx context.Context, _ string) error {
			<-ctx.Done()
			observed <- ctx.Err()
			return ctx.Err()
		},
	}
	launcher := NewLauncher(store, tracker, runner, defaultAllowSet)

	_, err := launcher.CreateJob(context.Background(), jobs.ProcessRequest{
		Title:    "Odyssey",
		Author:   "Homer",
		Language: "greek",
	})
	require.NoError(t, err)

	launcher.Close()

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not observe cancellation")
	}
}
