package idempotency

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of an idempotency record.
type Status string

const (
	// StatusInProgress marks an execution that has started but not reported
	// an outcome.
	StatusInProgress Status = "IN_PROGRESS"

	// StatusCompleted marks an execution that finished successfully and has a
	// stored response.
	StatusCompleted Status = "COMPLETED"

	// StatusExpired marks a record whose TTL has lapsed. It is derived at
	// read time and never persisted.
	StatusExpired Status = "EXPIRED"
)

// Record is the unit of persistence: one row per idempotency key.
//
// Status holds the persisted state and is always IN_PROGRESS or COMPLETED in
// storage; use StatusAt to observe the TTL-aware effective state.
type Record struct {
	// Key is the derived idempotency key. Immutable once written.
	Key string

	// Status is the persisted lifecycle state.
	Status Status

	// ExpiresAt is the expiry moment as unix seconds. Zero means no expiry.
	ExpiresAt int64

	// PayloadHash is the fingerprint of the validation sub-payload. Empty
	// when payload validation is disabled.
	PayloadHash string

	// ResponseBody is the serialized JSON result of a completed execution.
	ResponseBody string
}

// Expired reports whether the record's TTL has lapsed at the given moment.
// A record with no expiry never expires.
func (r Record) Expired(now time.Time) bool {
	return r.ExpiresAt != 0 && now.Unix() > r.ExpiresAt
}

// StatusAt returns the effective status at the given moment: StatusExpired
// once the TTL lapsed regardless of the persisted value, otherwise the
// persisted status. A persisted status outside the two valid values returns
// ErrInvalidRecordState rather than a guess.
func (r Record) StatusAt(now time.Time) (Status, error) {
	if r.Expired(now) {
		return StatusExpired, nil
	}
	switch r.Status {
	case StatusInProgress, StatusCompleted:
		return r.Status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRecordState, r.Status)
}

// UnmarshalResponse deserializes the stored response body into v. It is a
// no-op when no response was stored.
func (r Record) UnmarshalResponse(v any) error {
	if r.ResponseBody == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(r.ResponseBody), v); err != nil {
		return fmt.Errorf("unmarshal stored response: %w", err)
	}
	return nil
}
