package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"workflow-extractor/internal/models"
)

// UpsertWorkflow stores the normalized workflow for a document, replacing
// any previous extraction whole. Last writer wins; there is no merge.
func (s *Store) UpsertWorkflow(ctx context.Context, doc models.SourceDocument, wf models.Workflow) (string, error) {
	payload, err := json.Marshal(wf)
	if err != nil {
		return "", fmt.Errorf("marshal workflow: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO tool_workflows (id, source_document_id, tool_name, source_url, workflow, confidence, needs_verification)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (source_document_id) DO UPDATE
		SET tool_name = EXCLUDED.tool_name,
		    source_url = EXCLUDED.source_url,
		    workflow = EXCLUDED.workflow,
		    confidence = EXCLUDED.confidence,
		    needs_verification = EXCLUDED.needs_verification,
		    updated_at = NOW()
		RETURNING id
	`, uuid.New().String(), doc.ID, doc.ToolName, doc.URL, payload, wf.Confidence, wf.NeedsVerification).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert workflow: %w", err)
	}
	return id, nil
}

// GetWorkflowByDocument returns the latest workflow extracted from one
// document, if any.
func (s *Store) GetWorkflowByDocument(ctx context.Context, documentID string) (models.StoredWorkflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_document_id, tool_name, source_url, workflow, extracted_at, updated_at
		FROM tool_workflows WHERE source_document_id = $1
	`, documentID)
	wf, err := scanWorkflow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.StoredWorkflow{}, fmt.Errorf("workflow for document %s: %w", documentID, ErrNotFound)
	}
	return wf, err
}

// ListWorkflowsByTool returns up to limit workflows for one tool, newest
// extraction first.
func (s *Store) ListWorkflowsByTool(ctx context.Context, toolName string, limit int) ([]models.StoredWorkflow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source_document_id, tool_name, source_url, workflow, extracted_at, updated_at
		FROM tool_workflows WHERE tool_name = $1 ORDER BY extracted_at DESC LIMIT $2
	`, toolName, limit)
	if err != nil {
		return nil, fmt.Errorf("query workflows by tool: %w", err)
	}
	defer rows.Close()

	var workflows []models.StoredWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func scanWorkflow(row pgx.Row) (models.StoredWorkflow, error) {
	var wf models.StoredWorkflow
	var payload []byte
	if err := row.Scan(&wf.ID, &wf.SourceDocumentID, &wf.ToolName, &wf.SourceURL, &payload,
		&wf.ExtractedAt, &wf.UpdatedAt); err != nil {
		return models.StoredWorkflow{}, err
	}
	if err := json.Unmarshal(payload, &wf.Workflow); err != nil {
		return models.StoredWorkflow{}, fmt.Errorf("unmarshal workflow payload: %w", err)
	}
	return wf, nil
}
