package normalize

import (
	"math"
	"sort"
	"strings"

	"workflow-extractor/internal/models"
)

// Discard reasons produced by the normalizer itself. The model may also
// supply its own reason via the {"discarded": true, "reason": ...} escape
// hatch.
const (
	ReasonUnusableContent           = "unusable_content"
	ReasonLowConfidence             = "low_confidence"
	ReasonInsufficientActionability = "insufficient_actionability"
)

// DefaultConfidence is assumed when the model omits the confidence field or
// returns a non-numeric value. It sits just above the 0.5 acceptance
// threshold, so an otherwise-complete response without a confidence score
// narrowly passes the gate.
const DefaultConfidence = 0.55

// MinConfidence is the acceptance gate threshold. Results below it are
// always discarded, no matter how complete the rest of the payload is.
const MinConfidence = 0.5

var validActions = func() map[string]struct{} {
	set := make(map[string]struct{}, len(models.StepActions))
	for _, a := range models.StepActions {
		set[a] = struct{}{}
	}
	return set
}()

// Result is a tagged union: exactly one of Workflow or Discarded is non-nil.
type Result struct {
	Workflow  *models.Workflow
	Discarded *models.Discarded
}

// IsDiscarded reports whether the extraction ended in a discard.
func (r Result) IsDiscarded() bool {
	return r.Discarded != nil
}

// Extraction coerces an arbitrary parsed JSON value from the model into a
// valid Workflow or a Discarded record. It is total: malformed or mistyped
// input degrades field by field instead of failing, and the acceptance gate
// at the end downgrades low-quality results to Discarded.
func Extraction(parsed any) Result {
	root := asObject(parsed)
	confidence := clampConfidence(root["confidence"])
	assumptions := asStringList(root["assumptions"])
	missingFields := asStringList(root["missing_fields"])

	// The model may declare the content unusable outright; honor that before
	// touching any other field.
	if discarded, ok := root["discarded"].(bool); ok && discarded {
		reason := ReasonUnusableContent
		if r := asString(root["reason"]); r != nil {
			reason = *r
		}
		return Result{Discarded: &models.Discarded{
			Reason:        reason,
			Confidence:    confidence,
			Assumptions:   assumptions,
			MissingFields: missingFields,
		}}
	}

	intent := asString(root["intent"])
	feature := asString(root["feature"])
	outcome := asString(root["outcome"])
	preconditions := asStringList(root["preconditions"])

	steps := normalizeSteps(root["steps"])
	uiTargets := normalizeUITargets(root["ui_targets"])
	errs := normalizeErrors(root["errors"])
	automation := normalizeAutomation(root["automation"])

	needsVerification, _ := root["needs_verification"].(bool)
	if intent == nil {
		missingFields = append(missingFields, "intent")
	}
	if len(steps) == 0 {
		missingFields = append(missingFields, "steps")
	}
	if outcome == nil {
		missingFields = append(missingFields, "outcome")
	}
	if len(uiTargets) == 0 {
		missingFields = append(missingFields, "ui_targets")
	}
	missingFields = dedupe(missingFields)

	// The gate is deliberately stricter than the model's self-assessment and
	// cannot be bypassed.
	if confidence < MinConfidence || len(steps) == 0 || intent == nil {
		reason := ReasonInsufficientActionability
		if confidence < MinConfidence {
			reason = ReasonLowConfidence
		}
		return Result{Discarded: &models.Discarded{
			Reason:        reason,
			Confidence:    confidence,
			Assumptions:   assumptions,
			MissingFields: missingFields,
		}}
	}

	return Result{Workflow: &models.Workflow{
		Intent:            *intent,
		Feature:           feature,
		Preconditions:     preconditions,
		Steps:             steps,
		UITargets:         uiTargets,
		Outcome:           outcome,
		Errors:            errs,
		Automation:        automation,
		Confidence:        confidence,
		NeedsVerification: needsVerification || len(missingFields) > 0,
		MissingFields:     missingFields,
		Assumptions:       assumptions,
	}}
}

func normalizeSteps(v any) []models.Step {
	raw := asArray(v)
	type keyedStep struct {
		key  float64
		step models.Step
	}
	keyed := make([]keyedStep, 0, len(raw))
	for i, entry := range raw {
		s := asObject(entry)
		key := float64(i + 1)
		if f, ok := asNumber(s["order"]); ok {
			key = f
		}
		keyed = append(keyed, keyedStep{key: key, step: models.Step{
			Action:    normalizeAction(s["action"]),
			TargetRef: asString(s["target_ref"]),
			Value:     asString(s["value"]),
		}})
	}
	// The model's own ordering is not trusted: sort by the reported order as
	// a raw number (fractional values keep their relative position), then
	// re-number contiguously from 1.
	sort.SliceStable(keyed, func(a, b int) bool { return keyed[a].key < keyed[b].key })
	steps := make([]models.Step, 0, len(keyed))
	for i, k := range keyed {
		k.step.Order = i + 1
		steps = append(steps, k.step)
	}
	return steps
}

func normalizeAction(v any) string {
	if s := asString(v); s != nil {
		action := strings.ToLower(*s)
		if _, ok := validActions[action]; ok {
			return action
		}
	}
	return models.ActionVerify
}

func normalizeUITargets(v any) []models.UITarget {
	raw := asArray(v)
	targets := make([]models.UITarget, 0, len(raw))
	for _, entry := range raw {
		t := asObject(entry)
		targets = append(targets, models.UITarget{
			TargetRef:   asString(t["target_ref"]),
			VisibleText: asString(t["visible_text"]),
			CSSSelector: asString(t["css_selector"]),
			AriaLabel:   asString(t["aria_label"]),
			URLPattern:  asString(t["url_pattern"]),
			ScreenName:  asString(t["screen_name"]),
		})
	}
	return targets
}

func normalizeErrors(v any) []models.ErrorEntry {
	raw := asArray(v)
	entries := make([]models.ErrorEntry, 0, len(raw))
	for _, entry := range raw {
		e := asObject(entry)
		errorText := asString(e["error_text"])
		if errorText == nil {
			continue
		}
		entries = append(entries, models.ErrorEntry{
			ErrorText:     *errorText,
			ProbableCause: asString(e["probable_cause"]),
			FixIntent:     asString(e["fix_intent"]),
		})
	}
	return entries
}

func normalizeAutomation(v any) models.Automation {
	root := asObject(v)
	ui := true
	if b, ok := root["ui"].(bool); ok {
		ui = b
	}
	automation := models.Automation{UI: ui}
	// An explicit null disables the surface; anything else, including an
	// absent key, coerces to the sub-object shape with null fields.
	if v, present := root["api"]; !present || v != nil {
		api := asObject(v)
		automation.API = &models.AutomationAPI{
			Endpoint: asString(api["api_endpoint"]),
			Method:   asString(api["method"]),
		}
	}
	if v, present := root["cli"]; !present || v != nil {
		cli := asObject(v)
		automation.CLI = &models.AutomationCLI{
			Command: asString(cli["cli_command"]),
		}
	}
	return automation
}

// asObject returns the value as a JSON object, or an empty map for anything
// else. Every field access tolerates absence this way.
func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asArray(v any) []any {
	if a, ok := v.([]any); ok {
		return a
	}
	return nil
}

// asString returns a trimmed non-empty string or nil.
func asString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func asStringList(v any) []string {
	raw := asArray(v)
	out := make([]string, 0, len(raw))
	for _, entry := range raw {
		if s := asString(entry); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// asNumber accepts the numeric types a parsed JSON value (or hand-built test
// input) may carry. Non-finite values are rejected.
func asNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampConfidence(v any) float64 {
	f, ok := asNumber(v)
	if !ok {
		return DefaultConfidence
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
