package models

import (
	"time"
)

// SourceDocument is one scraped product documentation page. Documents are
// upserted by (tool_name, url); the latest crawl wins.
type SourceDocument struct {
	ID        string    `json:"id"`
	ToolName  string    `json:"tool_name"`
	URL       string    `json:"url"`
	Title     *string   `json:"title,omitempty"`
	Content   string    `json:"content"`
	Category  *string   `json:"category,omitempty"`
	CrawledAt time.Time `json:"crawled_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
