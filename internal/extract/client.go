package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"workflow-extractor/internal/models"
	"workflow-extractor/internal/normalize"
)

// TranscriptSink receives raw model responses for offline inspection.
// Implementations must be safe to call best-effort; the client logs and
// drops sink failures rather than failing the extraction.
type TranscriptSink interface {
	Save(ctx context.Context, documentID string, raw []byte) error
}

// Config for the extraction client. Model identity and sampling parameters
// are deployment configuration, not part of the pipeline contract.
type Config struct {
	BaseURL     string        // default https://api.openai.com/v1
	APIKey      string
	Model       string        // e.g. "gpt-4o-mini"
	Temperature float64       // low for deterministic-leaning output
	Timeout     time.Duration // http client timeout; a timeout is a TransportError
}

// Client turns one SourceDocument into a normalized extraction result by
// round-tripping through the model.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	log         *slog.Logger
	transcripts TranscriptSink
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger,
	}
}

// WithTranscripts attaches a sink for raw model responses.
func (c *Client) WithTranscripts(sink TranscriptSink) *Client {
	c.transcripts = sink
	return c
}

type chatRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
	Messages       []chatMessage  `json:"messages"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract prompts the model with the document and normalizes its answer.
// Errors are transport- or parse-class and retryable; content-quality
// judgments come back as a Discarded result, not an error.
func (c *Client) Extract(ctx context.Context, doc models.SourceDocument) (normalize.Result, error) {
	reqID := uuid.New().String()
	start := time.Now()
	c.log.Info("extract.start",
		"req_id", reqID,
		"document_id", doc.ID,
		"tool", doc.ToolName,
		"model", c.cfg.Model,
		"content_len", len(doc.Content),
	)

	body := chatRequest{
		Model:          c.cfg.Model,
		Temperature:    c.cfg.Temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(doc)},
		},
	}

	content, err := c.complete(ctx, body)
	if err != nil {
		c.log.Error("extract.transport_error",
			"req_id", reqID,
			"document_id", doc.ID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return normalize.Result{}, err
	}

	if c.transcripts != nil {
		if err := c.transcripts.Save(ctx, doc.ID, []byte(content)); err != nil {
			c.log.Warn("extract.transcript_save_failed", "req_id", reqID, "document_id", doc.ID, "error", err)
		}
	}

	parsed, err := parseModelJSON(content)
	if err != nil {
		c.log.Error("extract.parse_error",
			"req_id", reqID,
			"document_id", doc.ID,
			"error", err,
			"raw_len", len(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return normalize.Result{}, err
	}

	result := normalize.Extraction(parsed)
	if result.IsDiscarded() {
		c.log.Info("extract.discarded",
			"req_id", reqID,
			"document_id", doc.ID,
			"reason", result.Discarded.Reason,
			"confidence", result.Discarded.Confidence,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	} else {
		c.log.Info("extract.ok",
			"req_id", reqID,
			"document_id", doc.ID,
			"intent", result.Workflow.Intent,
			"steps", len(result.Workflow.Steps),
			"confidence", result.Workflow.Confidence,
			"needs_verification", result.Workflow.NeedsVerification,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	return result, nil
}

func (c *Client) complete(ctx context.Context, body chatRequest) (string, error) {
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode/100 != 2 {
		return "", &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("non-2xx response: %s", firstLine(raw))}
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", &TransportError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(cc.Choices) == 0 || cc.Choices[0].Message.Content == "" {
		return "", &TransportError{Status: resp.StatusCode, Err: errors.New("no choices in response")}
	}
	return strings.TrimSpace(cc.Choices[0].Message.Content), nil
}

// parseModelJSON attempts a strict parse, then recovers by slicing from the
// first '{' to the last '}' to strip wrapping noise like code fences.
func parseModelJSON(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, &ParseError{Err: errors.New("no JSON object found")}
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return nil, &ParseError{Err: err}
	}
	return v, nil
}

func firstLine(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
