package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"workflow-extractor/internal/models"
	"workflow-extractor/internal/normalize"
	"workflow-extractor/internal/store"
	"workflow-extractor/internal/telemetry"
)

// JobQueue is the slice of the store the driver needs for job lifecycle.
type JobQueue interface {
	Enqueue(ctx context.Context, doc models.SourceDocument) (models.ExtractionJob, bool, error)
	ClaimNext(ctx context.Context) (models.ExtractionJob, bool, error)
	Finalize(ctx context.Context, jobID, status string, lastError *string, delay time.Duration) error
}

// DocumentSource resolves the source document a job references.
type DocumentSource interface {
	GetDocument(ctx context.Context, id string) (models.SourceDocument, error)
}

// WorkflowSink persists accepted workflows, replacing whole records.
type WorkflowSink interface {
	UpsertWorkflow(ctx context.Context, doc models.SourceDocument, wf models.Workflow) (string, error)
}

// Extractor round-trips one document through the model.
type Extractor interface {
	Extract(ctx context.Context, doc models.SourceDocument) (normalize.Result, error)
}

// Limiter gates model spend. Allow reports whether one extraction may
// proceed right now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, float64, error)
}

// rate limiter bucket shared by every worker of this deployment
const limiterKey = "rl:extraction"

// Driver orchestrates one full job-processing cycle: claim, extract,
// normalize, persist, finalize. It is the error boundary; extraction
// failures become job transitions, never panics or returned errors.
type Driver struct {
	jobs      JobQueue
	docs      DocumentSource
	workflows WorkflowSink
	extractor Extractor
	limiter   Limiter
	log       *slog.Logger
}

func NewDriver(jobs JobQueue, docs DocumentSource, workflows WorkflowSink, extractor Extractor, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		jobs:      jobs,
		docs:      docs,
		workflows: workflows,
		extractor: extractor,
		log:       logger,
	}
}

// WithLimiter attaches a rate limiter consulted before each claim, so a
// saturated model budget leaves the queue untouched instead of burning
// attempts.
func (d *Driver) WithLimiter(limiter Limiter) *Driver {
	d.limiter = limiter
	return d
}

// Outcome is the structured result of one drain call, for observability.
type Outcome struct {
	Processed  bool   `json:"processed"`
	Status     string `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProcessNextJob claims and processes at most one job. A nil error with
// Processed=false means the queue was empty (or the limiter deferred us).
// The only errors returned are store-level failures that make the job
// impossible by definition, such as the referenced document no longer
// existing; everything extraction-related is converted into a retry or
// terminal transition.
func (d *Driver) ProcessNextJob(ctx context.Context) (Outcome, error) {
	if d.limiter != nil {
		allowed, _, err := d.limiter.Allow(ctx, limiterKey)
		if err != nil {
			// Fail open: a broken limiter should not stall the queue.
			d.log.Warn("pipeline.limiter_error", "error", err)
		} else if !allowed {
			telemetry.RateLimitRejects.Inc()
			return Outcome{Processed: false, Reason: "rate_limited"}, nil
		}
	}

	job, ok, err := d.jobs.ClaimNext(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("claim next job: %w", err)
	}
	if !ok {
		return Outcome{Processed: false}, nil
	}

	start := time.Now()
	outcome, err := d.runJob(ctx, job)
	telemetry.ExtractionDuration.Observe(time.Since(start).Seconds())
	return outcome, err
}

func (d *Driver) runJob(ctx context.Context, job models.ExtractionJob) (Outcome, error) {
	doc, err := d.docs.GetDocument(ctx, job.SourceDocumentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The job can never succeed; this is not a transient failure.
			msg := err.Error()
			if ferr := d.jobs.Finalize(ctx, job.ID, models.StatusFailed, &msg, 0); ferr != nil {
				return Outcome{}, fmt.Errorf("finalize orphaned job: %w", ferr)
			}
			telemetry.ExtractionsExhausted.Inc()
			d.log.Error("pipeline.document_missing", "job_id", job.ID, "document_id", job.SourceDocumentID)
			return Outcome{
				Processed:  true,
				Status:     models.StatusFailed,
				DocumentID: job.SourceDocumentID,
				ToolName:   job.ToolName,
				Attempts:   job.Attempts,
				Error:      msg,
			}, err
		}
		return Outcome{}, fmt.Errorf("load document for job %s: %w", job.ID, err)
	}

	result, err := d.extractor.Extract(ctx, doc)
	if err != nil {
		return d.retryOrFail(ctx, job, err)
	}

	if result.IsDiscarded() {
		if err := d.jobs.Finalize(ctx, job.ID, models.StatusDiscarded, nil, 0); err != nil {
			return Outcome{}, fmt.Errorf("finalize discarded job: %w", err)
		}
		telemetry.ExtractionsDiscarded.Inc()
		d.log.Info("pipeline.discarded",
			"job_id", job.ID,
			"document_id", doc.ID,
			"tool", job.ToolName,
			"reason", result.Discarded.Reason,
			"confidence", result.Discarded.Confidence,
		)
		return Outcome{
			Processed:  true,
			Status:     models.StatusDiscarded,
			Reason:     result.Discarded.Reason,
			DocumentID: doc.ID,
			ToolName:   job.ToolName,
			Attempts:   job.Attempts,
		}, nil
	}

	workflowID, err := d.workflows.UpsertWorkflow(ctx, doc, *result.Workflow)
	if err != nil {
		// The extraction succeeded but the write did not; retrying the whole
		// attempt is safe since the upsert replaces whole records.
		return d.retryOrFail(ctx, job, fmt.Errorf("upsert workflow: %w", err))
	}

	if err := d.jobs.Finalize(ctx, job.ID, models.StatusDone, nil, 0); err != nil {
		return Outcome{}, fmt.Errorf("finalize done job: %w", err)
	}
	telemetry.ExtractionsDone.Inc()
	d.log.Info("pipeline.done",
		"job_id", job.ID,
		"document_id", doc.ID,
		"tool", job.ToolName,
		"workflow_id", workflowID,
		"confidence", result.Workflow.Confidence,
		"steps", len(result.Workflow.Steps),
	)
	return Outcome{
		Processed:  true,
		Status:     models.StatusDone,
		DocumentID: doc.ID,
		ToolName:   job.ToolName,
		WorkflowID: workflowID,
		Attempts:   job.Attempts,
	}, nil
}

func (d *Driver) retryOrFail(ctx context.Context, job models.ExtractionJob, cause error) (Outcome, error) {
	status, delay := NextRetryState(job.Attempts)
	msg := cause.Error()
	if err := d.jobs.Finalize(ctx, job.ID, status, &msg, delay); err != nil {
		return Outcome{}, fmt.Errorf("finalize after failure: %w", err)
	}
	if status == models.StatusFailed {
		telemetry.ExtractionsExhausted.Inc()
		d.log.Error("pipeline.exhausted",
			"job_id", job.ID,
			"document_id", job.SourceDocumentID,
			"attempts", job.Attempts,
			"error", msg,
		)
	} else {
		telemetry.ExtractionRetries.Inc()
		d.log.Warn("pipeline.retry_scheduled",
			"job_id", job.ID,
			"document_id", job.SourceDocumentID,
			"attempts", job.Attempts,
			"delay", delay.String(),
			"error", msg,
		)
	}
	return Outcome{
		Processed:  true,
		Status:     status,
		DocumentID: job.SourceDocumentID,
		ToolName:   job.ToolName,
		Attempts:   job.Attempts,
		Error:      msg,
	}, nil
}

// ProcessBatch drains up to limit jobs sequentially, stopping as soon as one
// call reports nothing to do. Limit is clamped to 1..50.
func (d *Driver) ProcessBatch(ctx context.Context, limit int) ([]Outcome, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}
	outcomes := make([]Outcome, 0, limit)
	for i := 0; i < limit; i++ {
		outcome, err := d.ProcessNextJob(ctx)
		if err != nil {
			// A fatal job (missing document) was still finalized; keep its
			// outcome in the drain report.
			if outcome.Processed {
				outcomes = append(outcomes, outcome)
			}
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
		if !outcome.Processed {
			break
		}
	}
	return outcomes, nil
}

// OnNewDocument enqueues extraction for a freshly upserted document and
// immediately drains one job. The common case gets near-real-time
// processing; anything not drained now stays durably queued.
func (d *Driver) OnNewDocument(ctx context.Context, doc models.SourceDocument) (Outcome, error) {
	_, enqueued, err := d.jobs.Enqueue(ctx, doc)
	if err != nil {
		return Outcome{}, fmt.Errorf("enqueue document %s: %w", doc.ID, err)
	}
	if enqueued {
		telemetry.JobsEnqueued.Inc()
	}
	return d.ProcessNextJob(ctx)
}
