// Package metrics provides the metrics interface for the idempotency manager.
package metrics

import "time"

// Metrics defines the interface for collecting observability metrics.
// Implementations can use Prometheus, StatsD, or other metrics backends.
type Metrics interface {
	// AttemptStarted is called once per BeginAttempt.
	AttemptStarted()

	// AttemptReplayed is called when a completed record is served instead of
	// executing. Source is "cache" or "store".
	AttemptReplayed(source string)

	// AttemptConflicted is called when a live in-progress record rejects the
	// attempt.
	AttemptConflicted()

	// ValidationFailed is called when the payload fingerprint does not match
	// the stored record.
	ValidationFailed()

	// SuccessRecorded is called when a completed record is written.
	SuccessRecorded()

	// FailureRecorded is called when a record is deleted after a failed
	// execution.
	FailureRecorded()

	// ExecutionObserved reports the wall time of a wrapped execution and its
	// outcome: "completed", "failed" or "replayed".
	ExecutionObserved(duration time.Duration, outcome string)
}

// Noop is a no-op implementation of Metrics for testing or when metrics are
// disabled.
type Noop struct{}

var _ Metrics = (*Noop)(nil)

func (n *Noop) AttemptStarted()                                         {}
func (n *Noop) AttemptReplayed(source string)                           {}
func (n *Noop) AttemptConflicted()                                      {}
func (n *Noop) ValidationFailed()                                       {}
func (n *Noop) SuccessRecorded()                                        {}
func (n *Noop) FailureRecorded()                                        {}
func (n *Noop) ExecutionObserved(duration time.Duration, outcome string) {}
