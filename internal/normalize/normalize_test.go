package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-extractor/internal/models"
)

func parse(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestExtraction_ValidWorkflow(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "Create a new project",
		"feature": "Projects",
		"confidence": 0.8,
		"preconditions": ["Logged in"],
		"steps": [
			{"order": 1, "action": "click", "target_ref": "New"},
			{"order": 2, "action": "fill", "target_ref": "Name", "value": "My project"}
		],
		"ui_targets": [{"target_ref": "New", "visible_text": "New"}],
		"outcome": "Project exists",
		"errors": [{"error_text": "Name required", "probable_cause": "missing title"}],
		"automation": {"ui": true, "api": null, "cli": null}
	}`))

	require.False(t, result.IsDiscarded())
	wf := result.Workflow
	assert.Equal(t, "Create a new project", wf.Intent)
	assert.Equal(t, 0.8, wf.Confidence)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, models.ActionClick, wf.Steps[0].Action)
	require.Len(t, wf.Errors, 1)
	assert.Equal(t, "Name required", wf.Errors[0].ErrorText)
	assert.Nil(t, wf.Automation.API)
	assert.Nil(t, wf.Automation.CLI)
	assert.False(t, wf.NeedsVerification)
	assert.Empty(t, wf.MissingFields)
}

func TestExtraction_NonObjectInputDiscards(t *testing.T) {
	for _, raw := range []string{`[]`, `"text"`, `42`, `null`, `true`} {
		result := Extraction(parse(t, raw))
		require.True(t, result.IsDiscarded(), "input %s", raw)
		assert.Equal(t, ReasonInsufficientActionability, result.Discarded.Reason)
		assert.Equal(t, DefaultConfidence, result.Discarded.Confidence)
	}
}

func TestExtraction_StepRenumbering(t *testing.T) {
	cases := [][]int{
		{5, 1, 3},
		{2, 2, 9},
		{0, -1, 7},
	}
	for _, orders := range cases {
		steps := make([]map[string]any, len(orders))
		for i, o := range orders {
			steps[i] = map[string]any{"order": o, "action": "click", "target_ref": "x"}
		}
		result := Extraction(map[string]any{
			"intent":     "do something",
			"confidence": 0.9,
			"steps":      toAnySlice(steps),
		})
		require.False(t, result.IsDiscarded(), "orders %v", orders)
		for i, step := range result.Workflow.Steps {
			assert.Equal(t, i+1, step.Order, "orders %v", orders)
		}
	}
}

func TestExtraction_FractionalOrdersSortBeforeRenumbering(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [
			{"order": 1.9, "action": "click", "target_ref": "second"},
			{"order": 1.2, "action": "click", "target_ref": "first"}
		]
	}`))
	require.False(t, result.IsDiscarded())
	steps := result.Workflow.Steps
	require.Len(t, steps, 2)
	assert.Equal(t, "first", *steps[0].TargetRef)
	assert.Equal(t, "second", *steps[1].TargetRef)
	assert.Equal(t, []int{1, 2}, []int{steps[0].Order, steps[1].Order})
}

func TestExtraction_MissingOrderUsesArrayIndex(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [
			{"action": "click", "target_ref": "a"},
			{"action": "click", "target_ref": "b"}
		]
	}`))
	require.False(t, result.IsDiscarded())
	targets := []string{*result.Workflow.Steps[0].TargetRef, *result.Workflow.Steps[1].TargetRef}
	assert.Equal(t, []string{"a", "b"}, targets)
}

func TestExtraction_UnknownActionCoercesToVerify(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [
			{"order": 1, "action": "frobnicate", "target_ref": "a"},
			{"order": 2, "action": "CLICK", "target_ref": "b"},
			{"order": 3, "action": 17}
		]
	}`))
	require.False(t, result.IsDiscarded())
	steps := result.Workflow.Steps
	require.Len(t, steps, 3)
	assert.Equal(t, models.ActionVerify, steps[0].Action)
	assert.Equal(t, models.ActionClick, steps[1].Action)
	assert.Equal(t, models.ActionVerify, steps[2].Action)
}

func TestExtraction_AcceptanceGateIsAbsolute(t *testing.T) {
	// Complete, well-formed payload; only confidence is below the threshold.
	result := Extraction(parse(t, `{
		"intent": "fully described task",
		"confidence": 0.49,
		"steps": [{"order": 1, "action": "click", "target_ref": "ok"}],
		"ui_targets": [{"target_ref": "ok"}],
		"outcome": "done"
	}`))
	require.True(t, result.IsDiscarded())
	assert.Equal(t, ReasonLowConfidence, result.Discarded.Reason)
	assert.Equal(t, 0.49, result.Discarded.Confidence)
}

func TestExtraction_EmptyStepsDiscards(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "task with nothing to do",
		"confidence": 0.9,
		"steps": []
	}`))
	require.True(t, result.IsDiscarded())
	assert.Equal(t, ReasonInsufficientActionability, result.Discarded.Reason)
	assert.Contains(t, result.Discarded.MissingFields, "steps")
}

func TestExtraction_ModelDiscardShortCircuits(t *testing.T) {
	result := Extraction(parse(t, `{
		"discarded": true,
		"reason": "paywalled",
		"confidence": 0.9,
		"intent": "would otherwise be complete",
		"steps": [{"order": 1, "action": "click"}]
	}`))
	require.True(t, result.IsDiscarded())
	assert.Equal(t, "paywalled", result.Discarded.Reason)
	assert.Equal(t, 0.9, result.Discarded.Confidence)
}

func TestExtraction_ModelDiscardDefaultReason(t *testing.T) {
	result := Extraction(parse(t, `{"discarded": true}`))
	require.True(t, result.IsDiscarded())
	assert.Equal(t, ReasonUnusableContent, result.Discarded.Reason)
}

func TestExtraction_ConfidenceDefaultAndClamp(t *testing.T) {
	// Absent confidence defaults to 0.55, which narrowly passes the gate.
	result := Extraction(parse(t, `{
		"intent": "x",
		"steps": [{"order": 1, "action": "click"}]
	}`))
	require.False(t, result.IsDiscarded())
	assert.Equal(t, DefaultConfidence, result.Workflow.Confidence)

	result = Extraction(parse(t, `{
		"intent": "x",
		"confidence": 3.2,
		"steps": [{"order": 1, "action": "click"}]
	}`))
	require.False(t, result.IsDiscarded())
	assert.Equal(t, 1.0, result.Workflow.Confidence)

	result = Extraction(parse(t, `{"confidence": -2}`))
	require.True(t, result.IsDiscarded())
	assert.Equal(t, 0.0, result.Discarded.Confidence)

	result = Extraction(parse(t, `{
		"intent": "x",
		"confidence": "high",
		"steps": [{"order": 1, "action": "click"}]
	}`))
	require.False(t, result.IsDiscarded())
	assert.Equal(t, DefaultConfidence, result.Workflow.Confidence)
}

func TestExtraction_MissingFieldsAccumulate(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [{"order": 1, "action": "click"}],
		"missing_fields": ["outcome", "outcome"]
	}`))
	require.False(t, result.IsDiscarded())
	wf := result.Workflow
	assert.Equal(t, []string{"outcome", "ui_targets"}, wf.MissingFields)
	assert.True(t, wf.NeedsVerification, "missing fields force verification")
}

func TestExtraction_BlankAndMistypedListEntriesDropped(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [{"order": 1, "action": "click"}],
		"preconditions": ["  ok  ", "", 7, null, "also ok"],
		"assumptions": [true, " a "]
	}`))
	require.False(t, result.IsDiscarded())
	assert.Equal(t, []string{"ok", "also ok"}, result.Workflow.Preconditions)
	assert.Equal(t, []string{"a"}, result.Workflow.Assumptions)
}

func TestExtraction_AllNullUITargetKept(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [{"order": 1, "action": "click"}],
		"ui_targets": [{}]
	}`))
	require.False(t, result.IsDiscarded())
	require.Len(t, result.Workflow.UITargets, 1)
	assert.Nil(t, result.Workflow.UITargets[0].TargetRef)
}

func TestExtraction_ErrorsWithoutTextDropped(t *testing.T) {
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [{"order": 1, "action": "click"}],
		"errors": [
			{"probable_cause": "no text"},
			{"error_text": "   "},
			{"error_text": "Name required"}
		]
	}`))
	require.False(t, result.IsDiscarded())
	require.Len(t, result.Workflow.Errors, 1)
	assert.Equal(t, "Name required", result.Workflow.Errors[0].ErrorText)
}

func TestExtraction_AutomationDefaults(t *testing.T) {
	// No automation object at all: UI defaults true, api/cli coerce to empty
	// sub-objects.
	result := Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [{"order": 1, "action": "click"}]
	}`))
	require.False(t, result.IsDiscarded())
	auto := result.Workflow.Automation
	assert.True(t, auto.UI)
	require.NotNil(t, auto.API)
	assert.Nil(t, auto.API.Endpoint)
	require.NotNil(t, auto.CLI)

	result = Extraction(parse(t, `{
		"intent": "x",
		"confidence": 0.9,
		"steps": [{"order": 1, "action": "click"}],
		"automation": {"ui": "yes", "api": {"api_endpoint": "/v1/projects", "method": "POST"}, "cli": null}
	}`))
	require.False(t, result.IsDiscarded())
	auto = result.Workflow.Automation
	assert.True(t, auto.UI, "non-boolean ui defaults to true")
	require.NotNil(t, auto.API)
	assert.Equal(t, "/v1/projects", *auto.API.Endpoint)
	assert.Nil(t, auto.CLI)
}

func toAnySlice(steps []map[string]any) []any {
	out := make([]any, len(steps))
	for i, s := range steps {
		out[i] = s
	}
	return out
}
