package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

// Options tune one orchestrator's failure and timeout policy.
type Options struct {
	// StageTimeout bounds every stage invocation; zero disables the bound.
	// A timed-out stage fails the job like any other stage error.
	StageTimeout time.Duration
	// IndexFailureFatal controls whether an indexing failure fails the
	// whole job (default) or is only logged while the job completes.
	IndexFailureFatal bool
}

// Orchestrator drives one job through the stage sequence, recording every
// transition in the status tracker (fast) and the job store (durable)
// before the next stage begins. One run per job; runs for distinct jobs
// are independent.
type Orchestrator struct {
	store      jobs.Store
	tracker    *jobs.StatusTracker
	stages     Stages
	storageDir string
	opts       Options
}

func NewOrchestrator(store jobs.Store, tracker *jobs.StatusTracker, stages Stages, storageDir string, opts Options) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if tracker == nil {
		return nil, errors.New("tracker is nil")
	}
	if stages.Download == nil || stages.Extract == nil || stages.Segment == nil ||
		stages.Translate == nil || stages.Index == nil {
		return nil, errors.New("all five stages are required")
	}
	return &Orchestrator{
		store:      store,
		tracker:    tracker,
		stages:     stages,
		storageDir: storageDir,
		opts:       opts,
	}, nil
}

// Run executes the pipeline for jobID until a terminal status. Stage
// failures are absorbed into the job's FAILED state and returned for the
// caller's logging; a missing job is the only unattributable failure.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, ok, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return WrapError(err, ErrJobNotFound, fmt.Sprintf("load job %s", jobID))
	}
	if !ok {
		return NewError(ErrJobNotFound, fmt.Sprintf("job %s not found", jobID))
	}

	log.Info("Starting pipeline for job %s (%q by %s)", job.ID, job.Title, job.Author)

	if err := o.transition(ctx, job, jobs.StatusDownloading); err != nil {
		return o.failJob(ctx, job, err)
	}

	download, err := o.runDownload(ctx, job)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	job.Metadata = download.Metadata
	if err := o.transition(ctx, job, jobs.StatusProcessing); err != nil {
		return o.failJob(ctx, job, err)
	}

	rawText, paragraphs, err := o.runExtract(ctx, download.ArtifactPath)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	if err := o.cancelled(ctx); err != nil {
		return o.failJob(ctx, job, err)
	}

	chunks := o.stages.Segment.Segment(paragraphs)
	log.Info("Job %s segmented into %d chunks", job.ID, len(chunks))

	if err := o.runIndex(ctx, job.ID, chunks); err != nil {
		if o.opts.IndexFailureFatal {
			return o.failJob(ctx, job, err)
		}
		log.Warn("Indexing failed for job %s, continuing: %v", job.ID, err)
	}

	if err := o.cancelled(ctx); err != nil {
		return o.failJob(ctx, job, err)
	}

	translated, err := o.runTranslate(ctx, chunks, job.Language)
	if err != nil {
		return o.failJob(ctx, job, err)
	}

	work := &jobs.ProcessedWork{
		JobID:            job.ID,
		Title:            job.Title,
		Author:           job.Author,
		Year:             job.Year,
		Language:         job.Language,
		Metadata:         job.Metadata,
		OriginalText:     rawText,
		TranslatedText:   combineTranslations(translated),
		StructuredOutput: buildSections(translated),
		CreatedAt:        time.Now().UTC(),
	}
	if err := o.store.PutProcessedWork(ctx, work); err != nil {
		return o.failJob(ctx, job, persistError(ctx, err, "persist processed work"))
	}

	if err := o.transition(ctx, job, jobs.StatusCompleted); err != nil {
		return o.failJob(ctx, job, err)
	}

	log.Info("Pipeline completed for job %s", job.ID)
	return nil
}

// transition advances the job's status, writing the tracker first for
// polling freshness and completing the durable write before returning.
func (o *Orchestrator) transition(ctx context.Context, job *jobs.Job, next jobs.Status) error {
	if !job.Status.CanTransition(next) {
		return NewError(ErrUnknown, fmt.Sprintf("illegal transition %s -> %s for job %s", job.Status, next, job.ID))
	}
	job.Status = next
	job.UpdatedAt = time.Now().UTC()
	o.tracker.SetStatus(job.ID, next)
	if err := o.store.UpsertJob(ctx, job); err != nil {
		return persistError(ctx, err, fmt.Sprintf("persist status %s for job %s", next, job.ID))
	}
	return nil
}

// failJob records the terminal FAILED state with the stage error's
// message verbatim, then hands the error back for the caller to log.
// The run context may already be cancelled when a job fails; the
// terminal write must still reach the store, so it runs detached.
func (o *Orchestrator) failJob(ctx context.Context, job *jobs.Job, stageErr error) error {
	job.Status = jobs.StatusFailed
	job.ErrorMessage = stageErr.Error()
	job.UpdatedAt = time.Now().UTC()
	o.tracker.SetStatus(job.ID, jobs.StatusFailed)
	if err := o.store.UpsertJob(context.WithoutCancel(ctx), job); err != nil {
		log.Error("Failed to persist failure of job %s: %v", job.ID, err)
	}
	log.Error("Pipeline failed for job %s: %v", job.ID, stageErr)
	return stageErr
}

// persistError classifies a failed durable write, surfacing cooperative
// cancellation instead of reporting it as a storage fault.
func persistError(ctx context.Context, err error, msg string) error {
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return WrapError(err, ErrCancelled, msg)
	}
	return WrapError(err, ErrUnknown, msg)
}

func (o *Orchestrator) runDownload(ctx context.Context, job *jobs.Job) (*DownloadResult, error) {
	if err := o.cancelled(ctx); err != nil {
		return nil, err
	}
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	result, err := o.stages.Download.Download(stageCtx, DownloadRequest{
		Title:     job.Title,
		Author:    job.Author,
		Year:      job.Year,
		Language:  job.Language,
		TargetDir: o.storageDir,
	})
	if err != nil {
		return nil, o.stageError(stageCtx, err, ErrDownload, "download")
	}
	return result, nil
}

func (o *Orchestrator) runExtract(ctx context.Context, artifactPath string) (string, []jobs.Paragraph, error) {
	if err := o.cancelled(ctx); err != nil {
		return "", nil, err
	}
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	rawText, paragraphs, err := o.stages.Extract.Extract(stageCtx, artifactPath)
	if err != nil {
		return "", nil, o.stageError(stageCtx, err, ErrExtraction, "extract")
	}
	return rawText, paragraphs, nil
}

func (o *Orchestrator) runIndex(ctx context.Context, jobID string, chunks []Chunk) error {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	if err := o.stages.Index.IndexChunks(stageCtx, jobID, chunks); err != nil {
		return o.stageError(stageCtx, err, ErrIndexing, "index")
	}
	return nil
}

func (o *Orchestrator) runTranslate(ctx context.Context, chunks []Chunk, sourceLanguage string) ([]TranslatedChunk, error) {
	stageCtx, cancel := o.stageContext(ctx)
	defer cancel()

	translated, err := o.stages.Translate.TranslateChunks(stageCtx, chunks, sourceLanguage)
	if err != nil {
		return nil, o.stageError(stageCtx, err, ErrTranslation, "translate")
	}
	if len(translated) != len(chunks) {
		return nil, NewError(ErrTranslation,
			fmt.Sprintf("translator returned %d chunks for %d inputs", len(translated), len(chunks)))
	}
	return translated, nil
}

func (o *Orchestrator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.opts.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.opts.StageTimeout)
}

// stageError classifies a stage failure, distinguishing per-stage
// timeouts and cooperative cancellation from the stage's own errors.
func (o *Orchestrator) stageError(stageCtx context.Context, err error, kind ErrorType, stage string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		return WrapError(err, kind, fmt.Sprintf("%s stage timed out after %s", stage, o.opts.StageTimeout))
	}
	if errors.Is(err, context.Canceled) {
		return WrapError(err, ErrCancelled, fmt.Sprintf("%s stage cancelled", stage))
	}
	typed := ensureTyped(err, kind)
	return typed.WithContext("stage", stage)
}

func (o *Orchestrator) cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return NewErrorWithCause(ErrCancelled, "pipeline cancelled", err)
	}
	return nil
}
