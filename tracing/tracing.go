// Package tracing provides OpenTelemetry tracing for idempotency store operations.
package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	idempotency "github.com/imrishuroy/go-idempotency"
)

// Store decorates another idempotency.Store, opening one client span per
// contract operation. Semantic outcomes (not found, already exists) are
// recorded as span attributes; only opaque failures mark the span as errored.
type Store struct {
	next   idempotency.Store
	tracer trace.Tracer
}

var _ idempotency.Store = (*Store)(nil)

// Config holds configuration for the traced store.
type Config struct {
	// ServiceName is the name of the tracer. Defaults to "idempotency".
	ServiceName string
	// TracerProvider is the OpenTelemetry tracer provider. If nil, the global provider is used.
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "idempotency",
		TracerProvider: nil,
	}
}

// WrapStore wraps next with tracing using the given configuration.
func WrapStore(next idempotency.Store, cfg Config) *Store {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "idempotency"
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Store{
		next:   next,
		tracer: tp.Tracer(cfg.ServiceName),
	}
}

// Fetch traces the fetch operation. A miss is recorded as found=false, not as
// a span error.
func (s *Store) Fetch(ctx context.Context, key string) (idempotency.Record, error) {
	ctx, span := s.start(ctx, "store.fetch", key)
	defer span.End()

	rec, err := s.next.Fetch(ctx, key)
	if errors.Is(err, idempotency.ErrItemNotFound) {
		span.SetAttributes(attribute.Bool("idempotency.found", false))
		return rec, err
	}
	s.finish(span, err)
	return rec, err
}

// InsertIfAbsentOrExpired traces the conditional insert. Losing the insert
// race is recorded as conflict=true, not as a span error.
func (s *Store) InsertIfAbsentOrExpired(ctx context.Context, rec idempotency.Record) error {
	ctx, span := s.start(ctx, "store.insert", rec.Key)
	defer span.End()

	err := s.next.InsertIfAbsentOrExpired(ctx, rec)
	if errors.Is(err, idempotency.ErrItemAlreadyExists) {
		span.SetAttributes(attribute.Bool("idempotency.conflict", true))
		return err
	}
	s.finish(span, err)
	return err
}

// Update traces the unconditional overwrite.
func (s *Store) Update(ctx context.Context, rec idempotency.Record) error {
	ctx, span := s.start(ctx, "store.update", rec.Key)
	defer span.End()

	err := s.next.Update(ctx, rec)
	s.finish(span, err)
	return err
}

// Delete traces the record deletion.
func (s *Store) Delete(ctx context.Context, rec idempotency.Record) error {
	ctx, span := s.start(ctx, "store.delete", rec.Key)
	defer span.End()

	err := s.next.Delete(ctx, rec)
	s.finish(span, err)
	return err
}

func (s *Store) start(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("idempotency.key", key),
		),
	)
}

func (s *Store) finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
