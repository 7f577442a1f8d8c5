package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ingestSchema guards POST /documents before any row is written. Crawlers
// are external to this service, so the payload is treated as untrusted.
const ingestSchema = `{
	"type": "object",
	"required": ["tool_name", "url", "content"],
	"properties": {
		"tool_name": {"type": "string", "minLength": 1},
		"url": {"type": "string", "minLength": 1, "format": "uri"},
		"title": {"type": ["string", "null"]},
		"content": {"type": "string", "minLength": 1},
		"category": {"type": ["string", "null"]},
		"crawled_at": {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

var compiledIngestSchema = mustCompileSchema("ingest.json", ingestSchema)

func mustCompileSchema(name, body string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(body)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 1<<20))
}

func validateIngest(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := compiledIngestSchema.Validate(v); err != nil {
		return fmt.Errorf("invalid document payload: %w", err)
	}
	return nil
}
