package jobs

import "sync"

// StatusTracker is the in-memory live view of job statuses, consulted
// before the durable store for low-latency polling. It starts empty on
// every process start and is never the source of truth after a restart.
type StatusTracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		statuses: make(map[string]Status),
	}
}

func (t *StatusTracker) SetStatus(jobID string, status Status) {
	t.mu.Lock()
	t.statuses[jobID] = status
	t.mu.Unlock()
}

// GetStatus returns the tracked status. On absence the caller must fall
// back to the durable store.
func (t *StatusTracker) GetStatus(jobID string) (Status, bool) {
	t.mu.RLock()
	status, ok := t.statuses[jobID]
	t.mu.RUnlock()
	return status, ok
}

func (t *StatusTracker) Forget(jobID string) {
	t.mu.Lock()
	delete(t.statuses, jobID)
	t.mu.Unlock()
}
