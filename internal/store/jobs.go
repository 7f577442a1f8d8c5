package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"workflow-extractor/internal/models"
)

// Enqueue creates or resets the job for a document. The unique constraint on
// source_document_id enforces one job per document; a job already in
// processing is left alone (the extraction is in flight) and Enqueue reports
// enqueued=false. Re-enqueuing any other status resets it to pending and
// immediately eligible without touching attempts, preserving retry history.
func (s *Store) Enqueue(ctx context.Context, doc models.SourceDocument) (models.ExtractionJob, bool, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO workflow_jobs (id, source_document_id, tool_name, source_url, status, attempts, run_after)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
		ON CONFLICT (source_document_id) DO UPDATE
		SET status = $5, run_after = NOW(), updated_at = NOW()
		WHERE workflow_jobs.status <> $6
		RETURNING id, source_document_id, tool_name, source_url, status, attempts, run_after, last_error, created_at, updated_at
	`, uuid.New().String(), doc.ID, doc.ToolName, doc.URL, models.StatusPending, models.StatusProcessing)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict row is processing; nothing to do.
		return models.ExtractionJob{}, false, nil
	}
	if err != nil {
		return models.ExtractionJob{}, false, fmt.Errorf("enqueue job: %w", err)
	}
	return job, true, nil
}

// ClaimNext atomically takes ownership of the oldest eligible pending job.
// FOR UPDATE SKIP LOCKED guarantees no two concurrent callers claim the same
// row. The claim increments attempts and clears last_error; ok is false when
// no job is eligible.
func (s *Store) ClaimNext(ctx context.Context) (models.ExtractionJob, bool, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE workflow_jobs
		SET status = $1, attempts = attempts + 1, last_error = NULL, updated_at = NOW()
		WHERE id = (
			SELECT id FROM workflow_jobs
			WHERE status = $2 AND run_after <= NOW()
			ORDER BY run_after
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, source_document_id, tool_name, source_url, status, attempts, run_after, last_error, created_at, updated_at
	`, models.StatusProcessing, models.StatusPending)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExtractionJob{}, false, nil
	}
	if err != nil {
		return models.ExtractionJob{}, false, fmt.Errorf("claim job: %w", err)
	}
	return job, true, nil
}

// Finalize moves a claimed job to its next state. For a retry
// (status=pending) delay pushes run_after into the future; attempts are not
// touched, the claim already counted this attempt.
func (s *Store) Finalize(ctx context.Context, jobID, status string, lastError *string, delay time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE workflow_jobs
		SET status = $2, last_error = $3, run_after = NOW() + ($4 * interval '1 millisecond'), updated_at = NOW()
		WHERE id = $1
	`, jobID, status, lastError, delay.Milliseconds())
	if err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}
	return nil
}

// GetJob fetches one job by id.
func (s *Store) GetJob(ctx context.Context, id string) (models.ExtractionJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_document_id, tool_name, source_url, status, attempts, run_after, last_error, created_at, updated_at
		FROM workflow_jobs WHERE id = $1
	`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExtractionJob{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.ExtractionJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// DeleteJob removes a job row. Administrative cleanup only, not part of the
// normal lifecycle.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM workflow_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return nil
}

// JobStats returns queue counts per status.
func (s *Store) JobStats(ctx context.Context) (models.JobStats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM workflow_jobs GROUP BY status`)
	if err != nil {
		return models.JobStats{}, fmt.Errorf("query job stats: %w", err)
	}
	defer rows.Close()

	stats := models.JobStats{Counts: map[string]int{
		models.StatusPending:    0,
		models.StatusProcessing: 0,
		models.StatusDone:       0,
		models.StatusDiscarded:  0,
		models.StatusFailed:     0,
	}}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return models.JobStats{}, fmt.Errorf("scan job stats: %w", err)
		}
		stats.Counts[status] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

// EligibleJobs counts jobs ready to claim right now. Used by telemetry.
func (s *Store) EligibleJobs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM workflow_jobs WHERE status = $1 AND run_after <= NOW()
	`, models.StatusPending).Scan(&n); err != nil {
		return 0, fmt.Errorf("count eligible jobs: %w", err)
	}
	return n, nil
}

// RequeueByTool re-enqueues extraction for up to limit documents of one
// tool. Processing jobs are skipped. Returns how many documents were scanned
// and how many jobs were actually (re)queued.
func (s *Store) RequeueByTool(ctx context.Context, toolName string, limit int) (scanned, enqueued int, err error) {
	err = s.pool.QueryRow(ctx, `
		WITH docs AS (
			SELECT id, tool_name, url FROM source_documents
			WHERE tool_name = $1 ORDER BY created_at LIMIT $2
		), queued AS (
			INSERT INTO workflow_jobs (id, source_document_id, tool_name, source_url, status, attempts, run_after)
			SELECT gen_random_uuid(), d.id, d.tool_name, d.url, $3, 0, NOW() FROM docs d
			ON CONFLICT (source_document_id) DO UPDATE
			SET status = $3, run_after = NOW(), updated_at = NOW()
			WHERE workflow_jobs.status <> $4
			RETURNING 1
		)
		SELECT (SELECT COUNT(*) FROM docs), (SELECT COUNT(*) FROM queued)
	`, toolName, limit, models.StatusPending, models.StatusProcessing).Scan(&scanned, &enqueued)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue by tool: %w", err)
	}
	return scanned, enqueued, nil
}

// RequeueRecent re-enqueues extraction for the newest limit documents across
// all tools.
func (s *Store) RequeueRecent(ctx context.Context, limit int) (scanned, enqueued int, err error) {
	err = s.pool.QueryRow(ctx, `
		WITH docs AS (
			SELECT id, tool_name, url FROM source_documents
			ORDER BY created_at DESC LIMIT $1
		), queued AS (
			INSERT INTO workflow_jobs (id, source_document_id, tool_name, source_url, status, attempts, run_after)
			SELECT gen_random_uuid(), d.id, d.tool_name, d.url, $2, 0, NOW() FROM docs d
			ON CONFLICT (source_document_id) DO UPDATE
			SET status = $2, run_after = NOW(), updated_at = NOW()
			WHERE workflow_jobs.status <> $3
			RETURNING 1
		)
		SELECT (SELECT COUNT(*) FROM docs), (SELECT COUNT(*) FROM queued)
	`, limit, models.StatusPending, models.StatusProcessing).Scan(&scanned, &enqueued)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue recent: %w", err)
	}
	return scanned, enqueued, nil
}

func scanJob(row pgx.Row) (models.ExtractionJob, error) {
	var job models.ExtractionJob
	var lastErr pgtype.Text
	if err := row.Scan(&job.ID, &job.SourceDocumentID, &job.ToolName, &job.SourceURL, &job.Status,
		&job.Attempts, &job.RunAfter, &lastErr, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return models.ExtractionJob{}, err
	}
	job.LastError = textPtr(lastErr)
	return job, nil
}
