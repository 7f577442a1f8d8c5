package extract

import (
	"fmt"
)

// TransportError covers everything between us and the model: network
// failures, timeouts, non-2xx statuses, and responses missing the expected
// completion fields. All of it is retryable.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model call failed: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("model call failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError means the model answered but the text could not be recovered as
// JSON even after brace slicing. Treated as transient model noise and
// retried, not as a content-quality discard.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("model output is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
