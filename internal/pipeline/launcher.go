package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

// Runner executes the pipeline for one job. Satisfied by Orchestrator;
// kept narrow so tests can substitute it.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

// Launcher accepts processing requests, creates the durable job record
// and schedules a pipeline run without blocking the caller. Runs are
// tracked so the surrounding service can drain them on shutdown.
type Launcher struct {
	store            jobs.Store
	tracker          *jobs.StatusTracker
	runner           Runner
	allowedLanguages func() []string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewLauncher wires a launcher. allowedLanguages supplies the language
// allow-set on every call so runtime settings updates take effect
// without restart.
func NewLauncher(store jobs.Store, tracker *jobs.StatusTracker, runner Runner, allowedLanguages func() []string) *Launcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Launcher{
		store:            store,
		tracker:          tracker,
		runner:           runner,
		allowedLanguages: allowedLanguages,
		baseCtx:          ctx,
		cancel:           cancel,
	}
}

// CreateJob validates the request, persists a pending job and schedules
// its run. The returned snapshot already has status pending; the caller
// never blocks on pipeline completion.
func (l *Launcher) CreateJob(ctx context.Context, req jobs.ProcessRequest) (*jobs.Job, error) {
	if err := l.validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &jobs.Job{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Author:    strings.TrimSpace(req.Author),
		Year:      req.Year,
		Language:  strings.TrimSpace(req.Language),
		Status:    jobs.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := l.store.UpsertJob(ctx, job); err != nil {
		return nil, WrapError(err, ErrUnknown, "persist new job")
	}
	l.tracker.SetStatus(job.ID, jobs.StatusPending)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		// Runs detach from the request context; the launcher's own
		// context carries the shutdown cancellation signal.
		if err := l.runner.Run(l.baseCtx, job.ID); err != nil {
			if IsErrorType(err, ErrJobNotFound) {
				log.Error("Orchestration run aborted: %v", err)
			}
		}
	}()

	log.Info("Created job %s for %q by %s (%s)", job.ID, job.Title, job.Author, job.Language)
	return jobs.CloneJob(job), nil
}

func (l *Launcher) validate(req jobs.ProcessRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return NewError(ErrValidation, "title is required")
	}
	if strings.TrimSpace(req.Author) == "" {
		return NewError(ErrValidation, "author is required")
	}
	lang := strings.TrimSpace(req.Language)
	if lang == "" {
		return NewError(ErrValidation, "language is required")
	}

	allowed := l.allowedLanguages()
	for _, candidate := range allowed {
		if strings.EqualFold(candidate, lang) {
			return nil
		}
	}
	return NewError(ErrValidation,
		fmt.Sprintf("unsupported language %q, allowed: %s", lang, strings.Join(allowed, ", ")))
}

// Drain waits for in-flight pipeline runs to finish, bounded by ctx.
func (l *Launcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close raises the cooperative cancellation signal for in-flight runs.
// They observe it between stages and fail with a Cancelled error.
func (l *Launcher) Close() {
	l.cancel()
}
