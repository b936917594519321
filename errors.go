package idempotency

import "errors"

// Attempt errors
var (
	// ErrAlreadyInProgress indicates another execution holds the key and has
	// not reported an outcome yet
	ErrAlreadyInProgress = errors.New("execution already in progress")

	// ErrValidationMismatch indicates the payload fingerprint differs from the
	// stored record for the same key
	ErrValidationMismatch = errors.New("payload does not match stored record")

	// ErrNoIdempotencyKey indicates the key extraction query matched nothing
	// in the payload (only raised when configured to fail on a missing key)
	ErrNoIdempotencyKey = errors.New("no idempotency key found in payload")
)

// Record errors
var (
	// ErrInvalidRecordState indicates a persisted record carries a status
	// outside the valid set, which is a storage integrity fault
	ErrInvalidRecordState = errors.New("invalid record state")
)

// Store errors
var (
	// ErrItemNotFound indicates no record exists for the key
	ErrItemNotFound = errors.New("record not found")

	// ErrItemAlreadyExists indicates a live record already holds the key
	ErrItemAlreadyExists = errors.New("record already exists")

	// ErrStoreOperationFailed indicates an opaque store failure
	ErrStoreOperationFailed = errors.New("store operation failed")
)

// Config errors
var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")
)
