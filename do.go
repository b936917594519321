package idempotency

import (
	"context"
	"errors"
)

// Do wraps fn with the full idempotency lifecycle for the given payload:
// completed work is served its stored result without running fn, work still
// in progress elsewhere is rejected with ErrAlreadyInProgress, and fresh work
// runs with its outcome recorded.
//
// If fn fails, the record is deleted so a retry can proceed, and any deletion
// error is joined onto fn's. If recording a success fails, that error is
// returned even though fn's effect happened: the caller must treat the
// attempt as unconfirmed.
func Do[R any](ctx context.Context, m *Manager, payload any, fn func(ctx context.Context) (R, error)) (R, error) {
	var zero R
	start := m.nowFunc()

	rec, err := m.BeginAttempt(ctx, payload)
	if err != nil {
		return zero, err
	}
	if rec != nil {
		var out R
		if err := rec.UnmarshalResponse(&out); err != nil {
			return zero, err
		}
		m.metrics.ExecutionObserved(m.nowFunc().Sub(start), "replayed")
		return out, nil
	}

	out, err := fn(ctx)
	if err != nil {
		if derr := m.ReportFailure(ctx, payload); derr != nil {
			err = errors.Join(err, derr)
		}
		m.metrics.ExecutionObserved(m.nowFunc().Sub(start), "failed")
		return zero, err
	}
	if err := m.ReportSuccess(ctx, payload, out); err != nil {
		return zero, err
	}
	m.metrics.ExecutionObserved(m.nowFunc().Sub(start), "completed")
	return out, nil
}
