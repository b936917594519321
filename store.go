package idempotency

import "context"

// Store is the persistence contract the Manager runs against. Implementations
// must be safe for concurrent use.
//
// Failures that are not part of the contract below should wrap
// ErrStoreOperationFailed so callers can branch on the semantic sentinels
// while keeping the backend cause in the chain.
type Store interface {
	// Fetch returns the record for the key, or ErrItemNotFound when no
	// record exists. Expiry is not interpreted here: an expired record is
	// still returned and classified by the caller.
	Fetch(ctx context.Context, key string) (Record, error)

	// InsertIfAbsentOrExpired writes the record only when the key is free or
	// held by an expired record, and fails with ErrItemAlreadyExists
	// otherwise. This check-and-write must be atomic at the backend: it is
	// the serialization point that closes the race between concurrent
	// attempts on the same key.
	InsertIfAbsentOrExpired(ctx context.Context, rec Record) error

	// Update overwrites the record unconditionally.
	Update(ctx context.Context, rec Record) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, rec Record) error
}
