package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	idempotency "github.com/imrishuroy/go-idempotency"
	"github.com/imrishuroy/go-idempotency/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) (idempotency.Store, *storetest.Clock) {
		clock := storetest.NewClock(time.Unix(1700000000, 0))
		s := NewStore(newSimpleMock(), "idempotency-table")
		s.nowFunc = clock.Now
		return s, clock
	})
}

func TestInsertWireFormat(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table")

	ctx := context.Background()
	rec := idempotency.Record{
		Key:         "wire-key",
		Status:      idempotency.StatusInProgress,
		ExpiresAt:   time.Now().Add(time.Hour).Unix(),
		PayloadHash: "abc123",
	}
	if err := s.InsertIfAbsentOrExpired(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// read raw item from mock to assert persisted shape
	item := mock.table["wire-key"]
	if item == nil {
		t.Fatalf("mock item missing")
	}
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != "IN_PROGRESS" {
		t.Fatalf("status not persisted as string, got %+v", item["status"])
	}
	if _, ok := item["expires_at"].(*types.AttributeValueMemberN); !ok {
		t.Fatalf("expires_at not persisted as number, got %+v", item["expires_at"])
	}
	if _, ok := item["response_body"]; ok {
		t.Fatalf("empty response_body should be omitted, got %+v", item["response_body"])
	}

	// duplicate insert trips the condition and maps to the sentinel
	if err := s.InsertIfAbsentOrExpired(ctx, rec); !errors.Is(err, idempotency.ErrItemAlreadyExists) {
		t.Fatalf("expected ErrItemAlreadyExists, got %v", err)
	}
	if mock.putCalls != 2 {
		t.Fatalf("expected 2 put calls, got %d", mock.putCalls)
	}
}

func TestRecordWithoutExpiryOmitsAttribute(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table")

	ctx := context.Background()
	rec := idempotency.Record{Key: "forever", Status: idempotency.StatusInProgress}
	if err := s.InsertIfAbsentOrExpired(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	item := mock.table["forever"]
	if _, ok := item["expires_at"]; ok {
		t.Fatalf("zero expiry must not be written, got %+v", item["expires_at"])
	}

	// missing attribute keeps the record out of the expired branch forever
	s.nowFunc = func() time.Time { return time.Now().Add(10000 * time.Hour) }
	if err := s.InsertIfAbsentOrExpired(ctx, rec); !errors.Is(err, idempotency.ErrItemAlreadyExists) {
		t.Fatalf("expected ErrItemAlreadyExists, got %v", err)
	}
}

func TestUpdateClearsExpiry(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table")

	ctx := context.Background()
	rec := idempotency.Record{
		Key:       "k1",
		Status:    idempotency.StatusInProgress,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	if err := s.InsertIfAbsentOrExpired(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	done := rec
	done.Status = idempotency.StatusCompleted
	done.ResponseBody = `{"ok":true}`
	done.ExpiresAt = 0
	if err := s.Update(ctx, done); err != nil {
		t.Fatalf("update: %v", err)
	}

	item := mock.table["k1"]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != "COMPLETED" {
		t.Fatalf("status not updated, got %+v", item["status"])
	}
	if _, ok := item["expires_at"]; ok {
		t.Fatalf("expires_at should have been removed, got %+v", item["expires_at"])
	}

	got, err := s.Fetch(ctx, "k1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.ResponseBody != `{"ok":true}` || got.ExpiresAt != 0 {
		t.Fatalf("fetched record mismatch: %+v", got)
	}
}
