// Package storetest provides a contract test suite for idempotency store
// implementations. Adapters run the suite from their own tests:
//
//	func TestContract(t *testing.T) {
//	    storetest.Run(t, func(t *testing.T) (idempotency.Store, *storetest.Clock) {
//	        clock := storetest.NewClock(time.Unix(1700000000, 0))
//	        s := NewStore()
//	        s.nowFunc = clock.Now
//	        return s, clock
//	    })
//	}
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	idempotency "github.com/imrishuroy/go-idempotency"
)

// Clock is a controllable time source for stores under test. Wiring Now into
// the store's clock seam lets the suite cross TTL boundaries without
// sleeping.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the frozen time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds a fresh store wired to the returned clock. The suite calls
// it once per subtest, so state never leaks between cases.
type Factory func(t *testing.T) (idempotency.Store, *Clock)

// Run exercises the persistence contract against stores built by the
// factory: miss signaling, atomic conditional insert, expiry takeover,
// unconditional update, and tolerant delete.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("fetch missing", func(t *testing.T) {
		store, _ := newStore(t)

		if _, err := store.Fetch(ctx, "absent"); !errors.Is(err, idempotency.ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound, got %v", err)
		}
	})

	t.Run("insert then fetch", func(t *testing.T) {
		store, clock := newStore(t)

		rec := idempotency.Record{
			Key:         "k-1",
			Status:      idempotency.StatusInProgress,
			ExpiresAt:   clock.Now().Add(time.Hour).Unix(),
			PayloadHash: "ph-1",
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}

		got, err := store.Fetch(ctx, rec.Key)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got != rec {
			t.Fatalf("fetched record mismatch: got %+v want %+v", got, rec)
		}
	})

	t.Run("duplicate insert rejected", func(t *testing.T) {
		store, clock := newStore(t)

		rec := idempotency.Record{
			Key:       "k-1",
			Status:    idempotency.StatusInProgress,
			ExpiresAt: clock.Now().Add(time.Hour).Unix(),
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("first insert: %v", err)
		}

		second := rec
		second.PayloadHash = "other"
		if err := store.InsertIfAbsentOrExpired(ctx, second); !errors.Is(err, idempotency.ErrItemAlreadyExists) {
			t.Fatalf("expected ErrItemAlreadyExists, got %v", err)
		}

		got, err := store.Fetch(ctx, rec.Key)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got != rec {
			t.Fatalf("losing insert must not change the record: got %+v", got)
		}
	})

	t.Run("insert over expired record", func(t *testing.T) {
		store, clock := newStore(t)

		old := idempotency.Record{
			Key:       "k-1",
			Status:    idempotency.StatusInProgress,
			ExpiresAt: clock.Now().Add(time.Hour).Unix(),
		}
		if err := store.InsertIfAbsentOrExpired(ctx, old); err != nil {
			t.Fatalf("insert: %v", err)
		}

		clock.Advance(2 * time.Hour)

		fresh := idempotency.Record{
			Key:         "k-1",
			Status:      idempotency.StatusInProgress,
			ExpiresAt:   clock.Now().Add(time.Hour).Unix(),
			PayloadHash: "ph-2",
		}
		if err := store.InsertIfAbsentOrExpired(ctx, fresh); err != nil {
			t.Fatalf("insert over expired: %v", err)
		}

		got, err := store.Fetch(ctx, fresh.Key)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got != fresh {
			t.Fatalf("takeover not applied: got %+v want %+v", got, fresh)
		}
	})

	t.Run("record without expiry never lapses", func(t *testing.T) {
		store, clock := newStore(t)

		rec := idempotency.Record{
			Key:    "k-1",
			Status: idempotency.StatusInProgress,
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}

		clock.Advance(1000 * time.Hour)

		if err := store.InsertIfAbsentOrExpired(ctx, rec); !errors.Is(err, idempotency.ErrItemAlreadyExists) {
			t.Fatalf("expected ErrItemAlreadyExists, got %v", err)
		}
	})

	t.Run("expired record fetchable or reaped", func(t *testing.T) {
		store, clock := newStore(t)

		rec := idempotency.Record{
			Key:       "k-1",
			Status:    idempotency.StatusCompleted,
			ExpiresAt: clock.Now().Add(time.Minute).Unix(),
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}

		clock.Advance(time.Hour)

		// Fetch does not interpret expiry, but backends with native TTL may
		// have reaped the record already. Both are within the contract.
		got, err := store.Fetch(ctx, rec.Key)
		switch {
		case errors.Is(err, idempotency.ErrItemNotFound):
		case err != nil:
			t.Fatalf("fetch: %v", err)
		default:
			if !got.Expired(clock.Now()) {
				t.Fatalf("record should derive expired: %+v", got)
			}
		}
	})

	t.Run("update overwrites", func(t *testing.T) {
		store, clock := newStore(t)

		rec := idempotency.Record{
			Key:       "k-1",
			Status:    idempotency.StatusInProgress,
			ExpiresAt: clock.Now().Add(time.Hour).Unix(),
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}

		done := idempotency.Record{
			Key:          "k-1",
			Status:       idempotency.StatusCompleted,
			ExpiresAt:    clock.Now().Add(2 * time.Hour).Unix(),
			ResponseBody: `{"ok":true}`,
		}
		if err := store.Update(ctx, done); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := store.Fetch(ctx, done.Key)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if got != done {
			t.Fatalf("update not applied: got %+v want %+v", got, done)
		}
	})

	t.Run("delete frees the key", func(t *testing.T) {
		store, clock := newStore(t)

		rec := idempotency.Record{
			Key:       "k-1",
			Status:    idempotency.StatusInProgress,
			ExpiresAt: clock.Now().Add(time.Hour).Unix(),
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := store.Delete(ctx, rec); err != nil {
			t.Fatalf("delete: %v", err)
		}

		if _, err := store.Fetch(ctx, rec.Key); !errors.Is(err, idempotency.ErrItemNotFound) {
			t.Fatalf("expected ErrItemNotFound after delete, got %v", err)
		}
		if err := store.InsertIfAbsentOrExpired(ctx, rec); err != nil {
			t.Fatalf("insert after delete: %v", err)
		}
	})

	t.Run("delete absent tolerated", func(t *testing.T) {
		store, _ := newStore(t)

		if err := store.Delete(ctx, idempotency.Record{Key: "never-seen"}); err != nil {
			t.Fatalf("delete absent: %v", err)
		}
	})
}
