// Package reconcile runs the background sweep that force-fails stalled
// jobs and prunes expired staged artifacts.
package reconcile

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/pkg/file"
	"github.com/DonISO100/classical-works-processor/pkg/icron"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

const stalledMessage = "job stalled: no progress before the reconcile deadline"

// Options tunes a sweep run.
type Options struct {
	// StaleAfter is how long a non-terminal job may go without a
	// status update before the sweep force-fails it.
	StaleAfter time.Duration
	// ArtifactTTL is how long staged artifacts are kept. Zero
	// disables pruning.
	ArtifactTTL time.Duration
	// ArtifactDir is the staging directory pruning scans.
	ArtifactDir string
}

type Reconciler struct {
	store   jobs.Store
	tracker *jobs.StatusTracker
	cron    *cron.Cron
	opts    Options

	mu       sync.Mutex
	cronExpr string
	entryID  cron.EntryID
	runFunc  func()
}

func NewReconciler(
	store jobs.Store,
	tracker *jobs.StatusTracker,
	cronEngine *cron.Cron,
	cronExpr string,
	opts Options,
) *Reconciler {
	return &Reconciler{
		store:    store,
		tracker:  tracker,
		cronExpr: cronExpr,
		cron:     cronEngine,
		opts:     opts,
	}
}

var singleflightGroup singleflight.Group

// Schedule registers the sweep with the cron engine. Overlapping
// firings collapse into one run.
func (r *Reconciler) Schedule(ctx context.Context) error {
	if info, err := icron.GetTriggerInfo(r.cronExpr, time.Now()); err == nil {
		log.Info("Reconcile sweep scheduled (%s), next firing in %s", r.cronExpr, info.TimeUntilNext)
	}

	runFunc := func() {
		_, _, _ = singleflightGroup.Do("sweep", func() (any, error) {
			if err := r.Sweep(ctx); err != nil {
				log.Error("Reconcile sweep failed: %v", err)
			}
			return nil, nil
		})
	}
	entryID, err := r.cron.AddFunc(r.cronExpr, runFunc)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.entryID = entryID
	r.runFunc = runFunc
	r.mu.Unlock()
	return nil
}

// Reschedule moves the registered sweep to a new cron expression, so a
// settings update takes effect without a restart.
func (r *Reconciler) Reschedule(cronExpr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runFunc == nil {
		r.cronExpr = cronExpr
		return nil
	}
	if cronExpr == r.cronExpr {
		return nil
	}
	entryID, err := r.cron.AddFunc(cronExpr, r.runFunc)
	if err != nil {
		return err
	}
	r.cron.Remove(r.entryID)
	r.entryID = entryID
	r.cronExpr = cronExpr
	log.Info("Reconcile sweep rescheduled to %s", cronExpr)
	return nil
}

// Sweep force-fails stalled jobs and prunes expired artifacts. One
// sweep is a single pass; failures on individual jobs do not stop it.
func (r *Reconciler) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.opts.StaleAfter)
	stale, err := r.store.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Info("Reconcile sweep found %d stalled jobs (cutoff %s)", len(stale), cutoff.Format(time.RFC3339))

	for _, job := range stale {
		if job.Status.Terminal() {
			continue
		}
		job.Status = jobs.StatusFailed
		job.ErrorMessage = stalledMessage
		job.UpdatedAt = time.Now().UTC()

		r.tracker.SetStatus(job.ID, jobs.StatusFailed)
		if err := r.store.UpsertJob(ctx, job); err != nil {
			log.Error("Failed to force-fail stalled job %s: %v", job.ID, err)
			continue
		}
		log.Warn("Force-failed stalled job %s (last update %s)", job.ID, job.UpdatedAt.Format(time.RFC3339))
	}

	r.pruneArtifacts()
	return nil
}

func (r *Reconciler) pruneArtifacts() {
	if r.opts.ArtifactTTL <= 0 || r.opts.ArtifactDir == "" {
		return
	}
	expired, err := file.FindOlderThan(r.opts.ArtifactDir, time.Now().Add(-r.opts.ArtifactTTL))
	if err != nil {
		log.Error("Failed to scan artifact directory %s: %v", r.opts.ArtifactDir, err)
		return
	}
	for _, path := range expired {
		if err := os.Remove(path); err != nil {
			log.Error("Failed to prune artifact %s: %v", path, err)
			continue
		}
		log.Info("Pruned expired artifact %s", path)
	}
}
