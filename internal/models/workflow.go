package models

import (
	"time"
)

// Step actions a workflow may instruct the user to perform. Unknown actions
// coming back from the model are degraded to ActionVerify, never rejected.
const (
	ActionNavigate = "navigate"
	ActionClick    = "click"
	ActionSelect   = "select"
	ActionFill     = "fill"
	ActionCopy     = "copy"
	ActionPaste    = "paste"
	ActionRunCLI   = "run_cli"
	ActionCallAPI  = "call_api"
	ActionVerify   = "verify"
	ActionWait     = "wait"
)

// StepActions lists every allowed action value.
var StepActions = []string{
	ActionNavigate,
	ActionClick,
	ActionSelect,
	ActionFill,
	ActionCopy,
	ActionPaste,
	ActionRunCLI,
	ActionCallAPI,
	ActionVerify,
	ActionWait,
}

// Step is one atomic UI instruction. Order is 1-based and contiguous after
// normalization regardless of what the model reported.
type Step struct {
	Order     int     `json:"order"`
	Action    string  `json:"action"`
	TargetRef *string `json:"target_ref"`
	Value     *string `json:"value,omitempty"`
}

// UITarget grounds a step reference in the product UI. All fields are
// nullable; an all-null target is still kept because the absence of grounding
// data is itself a signal (paired with missing_fields).
type UITarget struct {
	TargetRef   *string `json:"target_ref"`
	VisibleText *string `json:"visible_text,omitempty"`
	CSSSelector *string `json:"css_selector,omitempty"`
	AriaLabel   *string `json:"aria_label,omitempty"`
	URLPattern  *string `json:"url_pattern,omitempty"`
	ScreenName  *string `json:"screen_name,omitempty"`
}

// ErrorEntry maps a documented error message to its likely cause and the
// intent that fixes it.
type ErrorEntry struct {
	ErrorText     string  `json:"error_text"`
	ProbableCause *string `json:"probable_cause,omitempty"`
	FixIntent     *string `json:"fix_intent,omitempty"`
}

// AutomationAPI describes an API alternative to the UI path.
type AutomationAPI struct {
	Endpoint *string `json:"api_endpoint,omitempty"`
	Method   *string `json:"method,omitempty"`
}

// AutomationCLI describes a CLI alternative to the UI path.
type AutomationCLI struct {
	Command *string `json:"cli_command,omitempty"`
}

// Automation captures which surfaces can complete the task.
type Automation struct {
	UI  bool           `json:"ui"`
	API *AutomationAPI `json:"api"`
	CLI *AutomationCLI `json:"cli"`
}

// Workflow is a normalized, validated extraction result: one executable user
// task distilled from a source document. A Workflow only exists past the
// acceptance gate (non-empty intent, non-empty steps, confidence >= 0.5).
type Workflow struct {
	Intent            string       `json:"intent"`
	Feature           *string      `json:"feature"`
	Preconditions     []string     `json:"preconditions"`
	Steps             []Step       `json:"steps"`
	UITargets         []UITarget   `json:"ui_targets"`
	Outcome           *string      `json:"outcome"`
	Errors            []ErrorEntry `json:"errors"`
	Automation        Automation   `json:"automation"`
	Confidence        float64      `json:"confidence"`
	NeedsVerification bool         `json:"needs_verification"`
	MissingFields     []string     `json:"missing_fields"`
	Assumptions       []string     `json:"assumptions"`
}

// Discarded is the terminal outcome for content that could not yield a usable
// workflow. Only the job status records it; nothing is written to the
// workflow store.
type Discarded struct {
	Reason        string   `json:"reason"`
	Confidence    float64  `json:"confidence"`
	Assumptions   []string `json:"assumptions"`
	MissingFields []string `json:"missing_fields"`
}

// StoredWorkflow is the persisted row: the workflow plus its join keys.
type StoredWorkflow struct {
	ID               string    `json:"id"`
	SourceDocumentID string    `json:"source_document_id"`
	ToolName         string    `json:"tool_name"`
	SourceURL        string    `json:"source_url"`
	Workflow
	ExtractedAt time.Time `json:"extracted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
