package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
)

type memoryStore struct {
	mu   sync.Mutex
	jobs map[string]*jobs.Job
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*jobs.Job)}
}

func (s *memoryStore) UpsertJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = jobs.CloneJob(job)
	return nil
}

func (s *memoryStore) GetJob(_ context.Context, jobID string) (*jobs.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, false, nil
	}
	return jobs.CloneJob(job), true, nil
}

func (s *memoryStore) ListJobs(_ context.Context) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*jobs.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		ret = append(ret, jobs.CloneJob(job))
	}
	return ret, nil
}

func (s *memoryStore) ListStaleJobs(_ context.Context, cutoff time.Time) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]*jobs.Job, 0)
	for _, job := range s.jobs {
		if !job.Status.Terminal() && !job.UpdatedAt.After(cutoff) {
			ret = append(ret, jobs.CloneJob(job))
		}
	}
	return ret, nil
}

func (s *memoryStore) PutProcessedWork(_ context.Context, _ *jobs.ProcessedWork) error {
	return nil
}

func (s *memoryStore) GetProcessedWorkByJob(_ context.Context, _ string) (*jobs.ProcessedWork, bool, error) {
	return nil, false, nil
}

func seed(t *testing.T, store *memoryStore, id string, status jobs.Status, updatedAt time.Time) {
	t.Helper()
	require.NoError(t, store.UpsertJob(context.Background(), &jobs.Job{
		ID:        id,
		Title:     "Iliad",
		Author:    "Homer",
		Language:  "Greek",
		Status:    status,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}))
}

func TestSweepForceFailsStalledJobs(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	now := time.Now().UTC()

	seed(t, store, "stalled", jobs.StatusProcessing, now.Add(-2*time.Hour))
	seed(t, store, "fresh", jobs.StatusDownloading, now)
	seed(t, store, "done", jobs.StatusCompleted, now.Add(-3*time.Hour))

	r := NewReconciler(store, tracker, cron.New(), "*/10 * * * *", Options{StaleAfter: time.Hour})
	require.NoError(t, r.Sweep(context.Background()))

	stalled, _, err := store.GetJob(context.Background(), "stalled")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, stalled.Status)
	assert.Contains(t, stalled.ErrorMessage, "stalled")

	trackerStatus, ok := tracker.GetStatus("stalled")
	require.True(t, ok)
	assert.Equal(t, jobs.StatusFailed, trackerStatus)

	fresh, _, err := store.GetJob(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusDownloading, fresh.Status)

	done, _, err := store.GetJob(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Empty(t, done.ErrorMessage)
}

func TestSweepPrunesExpiredArtifacts(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old_work.pdf")
	newPath := filepath.Join(dir, "new_work.pdf")
	require.NoError(t, os.WriteFile(oldPath, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(newPath, []byte("new"), 0o644))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	r := NewReconciler(newMemoryStore(), jobs.NewStatusTracker(), cron.New(), "*/10 * * * *", Options{
		StaleAfter:  time.Hour,
		ArtifactTTL: 24 * time.Hour,
		ArtifactDir: dir,
	})
	require.NoError(t, r.Sweep(context.Background()))

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestScheduleFiresSweep(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	seed(t, store, "stalled", jobs.StatusProcessing, time.Now().UTC().Add(-2*time.Hour))

	cronEngine := cron.New(cron.WithSeconds())
	// Six-field expression: fire every second so the test observes a run.
	r := NewReconciler(store, tracker, cronEngine, "* * * * * *", Options{StaleAfter: time.Hour})
	require.NoError(t, r.Schedule(context.Background()))

	cronEngine.Start()
	defer cronEngine.Stop()

	require.Eventually(t, func() bool {
		job, _, err := store.GetJob(context.Background(), "stalled")
		return err == nil && job.Status == jobs.StatusFailed
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRescheduleMovesSweep(t *testing.T) {
	store := newMemoryStore()
	tracker := jobs.NewStatusTracker()
	seed(t, store, "stalled", jobs.StatusProcessing, time.Now().UTC().Add(-2*time.Hour))

	cronEngine := cron.New(cron.WithSeconds())
	// Initial schedule fires once a year; the reschedule must take over.
	r := NewReconciler(store, tracker, cronEngine, "0 0 0 1 1 *", Options{StaleAfter: time.Hour})
	require.NoError(t, r.Schedule(context.Background()))

	cronEngine.Start()
	defer cronEngine.Stop()

	require.Error(t, r.Reschedule("not a cron expression"))
	require.NoError(t, r.Reschedule("* * * * * *"))

	require.Eventually(t, func() bool {
		job, _, err := store.GetJob(context.Background(), "stalled")
		return err == nil && job.Status == jobs.StatusFailed
	}, 5*time.Second, 50*time.Millisecond)
}
