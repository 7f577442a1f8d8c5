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

// UpsertDocumentParams collects inputs for an upsert by (tool_name, url).
type UpsertDocumentParams struct {
	ToolName  string
	URL       string
	Title     *string
	Content   string
	Category  *string
	CrawledAt time.Time
}

// UpsertDocument inserts or refreshes one scraped page. Re-crawls of the
// same URL replace the content and keep the original row id, so jobs and
// workflows keyed by document id stay attached.
func (s *Store) UpsertDocument(ctx context.Context, p UpsertDocumentParams) (models.SourceDocument, error) {
	if p.CrawledAt.IsZero() {
		p.CrawledAt = time.Now().UTC()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO source_documents (id, tool_name, url, title, content, category, crawled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tool_name, url) DO UPDATE
		SET title = EXCLUDED.title,
		    content = EXCLUDED.content,
		    category = EXCLUDED.category,
		    crawled_at = EXCLUDED.crawled_at,
		    updated_at = NOW()
		RETURNING id, tool_name, url, title, content, category, crawled_at, created_at, updated_at
	`, uuid.New().String(), p.ToolName, p.URL, p.Title, p.Content, p.Category, p.CrawledAt)
	return scanDocument(row)
}

// GetDocument fetches one document by id. Returns ErrNotFound when the row
// is gone; callers treat that as fatal for any job that references it.
func (s *Store) GetDocument(ctx context.Context, id string) (models.SourceDocument, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tool_name, url, title, content, category, crawled_at, created_at, updated_at
		FROM source_documents WHERE id = $1
	`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.SourceDocument{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, err
}

// ListDocumentsByTool returns up to limit pages for one tool, oldest first.
func (s *Store) ListDocumentsByTool(ctx context.Context, toolName string, limit int) ([]models.SourceDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tool_name, url, title, content, category, crawled_at, created_at, updated_at
		FROM source_documents WHERE tool_name = $1 ORDER BY created_at LIMIT $2
	`, toolName, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents by tool: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListRecentDocuments returns the newest documents across all tools.
func (s *Store) ListRecentDocuments(ctx context.Context, limit int) ([]models.SourceDocument, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tool_name, url, title, content, category, crawled_at, created_at, updated_at
		FROM source_documents ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListTools returns the distinct tool names present in the store.
func (s *Store) ListTools(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT tool_name FROM source_documents ORDER BY tool_name`)
	if err != nil {
		return nil, fmt.Errorf("query tools: %w", err)
	}
	defer rows.Close()

	var tools []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tool name: %w", err)
		}
		tools = append(tools, name)
	}
	return tools, rows.Err()
}

func scanDocument(row pgx.Row) (models.SourceDocument, error) {
	var doc models.SourceDocument
	var title, category pgtype.Text
	if err := row.Scan(&doc.ID, &doc.ToolName, &doc.URL, &title, &doc.Content, &category,
		&doc.CrawledAt, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return models.SourceDocument{}, err
	}
	doc.Title = textPtr(title)
	doc.Category = textPtr(category)
	return doc, nil
}

func collectDocuments(rows pgx.Rows) ([]models.SourceDocument, error) {
	var docs []models.SourceDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
