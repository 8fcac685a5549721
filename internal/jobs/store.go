package jobs

import (
	"context"
	"time"
)

// Store is the durable record of jobs and their final artifacts. All
// writes are atomic per row; each pipeline run owns exactly one job.
type Store interface {
	UpsertJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID string) (*Job, bool, error)
	ListJobs(ctx context.Context) ([]*Job, error)
	// ListStaleJobs returns non-terminal jobs whose updated_at is at or
	// before cutoff. Used by the reconciliation sweep.
	ListStaleJobs(ctx context.Context, cutoff time.Time) ([]*Job, error)

	PutProcessedWork(ctx context.Context, work *ProcessedWork) error
	GetProcessedWorkByJob(ctx context.Context, jobID string) (*ProcessedWork, bool, error)
}
