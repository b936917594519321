// Package idempotency provides at-most-once execution guarantees for units of
// work identified by a deterministic key derived from their input.
//
// # Overview
//
// A Manager sits in front of a durable Store and an optional bounded in-process
// cache. Callers ask it to begin an attempt before doing work and report the
// outcome afterwards. The Manager persists a small record per key and enforces
// a two-state machine, IN_PROGRESS -> COMPLETED, with a third EXPIRED state
// derived from the record's TTL at read time and never written to storage.
//
// Retries of work that already completed are served the stored response
// instead of executing again. Retries of work that is still running are
// rejected with ErrAlreadyInProgress. Failed attempts delete their record,
// freeing the key for a clean retry.
//
// # Usage
//
// Basic usage with a DynamoDB-backed store:
//
//	store := dynamodb.NewStore(client, "idempotency-table")
//	mgr, err := idempotency.New(store,
//	    idempotency.WithKeyQuery("body.order_id"),
//	    idempotency.WithTTL(time.Hour),
//	)
//
//	result, err := idempotency.Do(ctx, mgr, payload, func(ctx context.Context) (Receipt, error) {
//	    return chargeCard(ctx, payload)
//	})
//
// The lower-level BeginAttempt / ReportSuccess / ReportFailure operations are
// available when the caller needs to manage the lifecycle explicitly, for
// example when the work spans an HTTP handler and a queue consumer.
//
// # Correctness Model
//
// The store's InsertIfAbsentOrExpired is the only serialization point: two
// concurrent callers may both miss the cache and the fetch, but exactly one
// conditional insert wins. The local cache is advisory. It only ever holds
// terminal (COMPLETED) records, so disabling it changes latency, never
// outcomes.
//
// Payload validation is optional: when a validation query is configured, the
// fingerprint of the selected sub-value must match across calls sharing a key,
// and a mismatch is a hard ErrValidationMismatch rather than a silent replay.
//
// # Custom Stores
//
// Implement the Store interface with your preferred backend. Adapters for
// DynamoDB, Redis, Postgres and an in-process map ship under store/. The
// store/storetest package provides a contract suite that any implementation
// should pass.
package idempotency
