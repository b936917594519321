package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type orderResult struct {
	OrderID string `json:"order_id"`
	Total   int    `json:"total"`
}

func TestDoExecutesThenReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]any{"order_id": "o-1"}

	calls := 0
	fn := func(ctx context.Context) (orderResult, error) {
		calls++
		return orderResult{OrderID: "o-1", Total: 42}, nil
	}

	first, err := Do(ctx, f.m, payload, fn)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if first.Total != 42 {
		t.Fatalf("unexpected result: %+v", first)
	}

	second, err := Do(ctx, f.m, payload, fn)
	if err != nil {
		t.Fatalf("second Do: %v", err)
	}
	if calls != 1 {
		t.Fatalf("fn should run once, ran %d times", calls)
	}
	if second != first {
		t.Fatalf("replayed result mismatch: %+v vs %+v", second, first)
	}

	if len(f.mx.observations) != 2 ||
		f.mx.observations[0] != "completed" || f.mx.observations[1] != "replayed" {
		t.Fatalf("unexpected outcome observations: %v", f.mx.observations)
	}
}

func TestDoConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]any{"order_id": "o-1"}

	if _, err := f.m.BeginAttempt(ctx, payload); err != nil {
		t.Fatalf("BeginAttempt: %v", err)
	}

	calls := 0
	_, err := Do(ctx, f.m, payload, func(ctx context.Context) (orderResult, error) {
		calls++
		return orderResult{}, nil
	})
	if !errors.Is(err, ErrAlreadyInProgress) {
		t.Fatalf("expected ErrAlreadyInProgress, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("fn must not run on conflict, ran %d times", calls)
	}
}

func TestDoFailureReleasesKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]any{"order_id": "o-1"}

	boom := errors.New("downstream unavailable")
	calls := 0
	fn := func(ctx context.Context) (orderResult, error) {
		calls++
		if calls == 1 {
			return orderResult{}, boom
		}
		return orderResult{OrderID: "o-1", Total: 7}, nil
	}

	if _, err := Do(ctx, f.m, payload, fn); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	// the key is free again, so a retry executes
	out, err := Do(ctx, f.m, payload, fn)
	if err != nil {
		t.Fatalf("retry Do: %v", err)
	}
	if calls != 2 || out.Total != 7 {
		t.Fatalf("expected a real retry, calls=%d out=%+v", calls, out)
	}
}

func TestDoFailureJoinsDeleteError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]any{"order_id": "o-1"}

	boom := errors.New("downstream unavailable")
	f.store.deleteErr = fmt.Errorf("%w: delete item: timeout", ErrStoreOperationFailed)

	_, err := Do(ctx, f.m, payload, func(ctx context.Context) (orderResult, error) {
		return orderResult{}, boom
	})
	if !errors.Is(err, boom) || !errors.Is(err, ErrStoreOperationFailed) {
		t.Fatalf("expected both fn and delete errors, got %v", err)
	}
}

func TestDoUnconfirmedOnRecordFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payload := map[string]any{"order_id": "o-1"}

	f.store.updateErr = fmt.Errorf("%w: update item: timeout", ErrStoreOperationFailed)

	_, err := Do(ctx, f.m, payload, func(ctx context.Context) (orderResult, error) {
		return orderResult{OrderID: "o-1", Total: 42}, nil
	})
	if !errors.Is(err, ErrStoreOperationFailed) {
		t.Fatalf("expected store failure surfaced, got %v", err)
	}
}
