package pipeline

import (
	"time"

	"workflow-extractor/internal/models"
)

// MaxAttempts bounds how many times a job is claimed before it is parked as
// failed and left for manual requeue.
const MaxAttempts = 5

const (
	backoffBase = 15 * time.Second
	backoffCap  = 5 * time.Minute
)

// BackoffDelay computes the retry delay after the given attempt count:
// 2^attempts * 15s, capped at 5 minutes. Deliberately jitter-free so the
// schedule is predictable from the attempts column alone.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 10 {
		return backoffCap
	}
	delay := backoffBase * (1 << uint(attempts))
	if delay > backoffCap {
		return backoffCap
	}
	return delay
}

// NextRetryState decides the job transition after a transport- or
// parse-class failure, given the attempts already consumed (the claim that
// just failed included). Pure so the backoff schedule is testable without
// any I/O.
func NextRetryState(attempts int) (status string, delay time.Duration) {
	if attempts >= MaxAttempts {
		return models.StatusFailed, 0
	}
	return models.StatusPending, BackoffDelay(attempts)
}
