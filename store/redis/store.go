// Package redis provides a Redis-backed idempotency store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	idempotency "github.com/imrishuroy/go-idempotency"
)

// insertScript implements the conditional insert server-side: it rejects the
// write when a live record holds the key. A stored record without expires_at
// never expires. ARGV: record JSON, current unix seconds, native TTL seconds.
var insertScript = redis.NewScript(`
	local val = redis.call("GET", KEYS[1])
	if val then
		local rec = cjson.decode(val)
		local exp = rec["expires_at"]
		if (not exp) or exp == 0 or tonumber(ARGV[2]) <= exp then
			return 0
		end
	end
	redis.call("SET", KEYS[1], ARGV[1])
	local ttl = tonumber(ARGV[3])
	if ttl > 0 then
		redis.call("EXPIRE", KEYS[1], ttl)
	end
	return 1
`)

// record is the JSON shape stored under the prefixed key.
type record struct {
	Status       string `json:"status"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	PayloadHash  string `json:"payload_hash,omitempty"`
	ResponseBody string `json:"response_body,omitempty"`
}

// Store implements the idempotency persistence contract against Redis.
type Store struct {
	client  redis.Cmdable
	prefix  string
	nowFunc func() time.Time
}

var _ idempotency.Store = (*Store)(nil)

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithPrefix sets the key prefix for records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// NewStore returns a Store bound to the given client. The client can be a
// single-node client, a cluster client, or anything else satisfying
// redis.Cmdable.
func NewStore(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:  client,
		prefix:  "idempotency:",
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch retrieves the record for key.
func (s *Store) Fetch(ctx context.Context, key string) (idempotency.Record, error) {
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return idempotency.Record{}, idempotency.ErrItemNotFound
	}
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("%w: get: %w", idempotency.ErrStoreOperationFailed, err)
	}
	var rec record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return idempotency.Record{}, fmt.Errorf("%w: unmarshal record: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return rec.toRecord(key), nil
}

// InsertIfAbsentOrExpired writes the record only when the key is free or held
// by an expired record. The check-and-write runs as one Lua script, which
// Redis executes atomically.
func (s *Store) InsertIfAbsentOrExpired(ctx context.Context, rec idempotency.Record) error {
	body, err := json.Marshal(fromRecord(rec))
	if err != nil {
		return fmt.Errorf("%w: marshal record: %w", idempotency.ErrStoreOperationFailed, err)
	}
	now := s.nowFunc().Unix()

	created, err := insertScript.Run(ctx, s.client,
		[]string{s.prefix + rec.Key},
		body, now, nativeTTL(rec.ExpiresAt, now),
	).Int()
	if err != nil {
		return fmt.Errorf("%w: insert script: %w", idempotency.ErrStoreOperationFailed, err)
	}
	if created == 0 {
		return idempotency.ErrItemAlreadyExists
	}
	return nil
}

// Update overwrites the record unconditionally, realigning the native TTL
// with the record's expiry.
func (s *Store) Update(ctx context.Context, rec idempotency.Record) error {
	body, err := json.Marshal(fromRecord(rec))
	if err != nil {
		return fmt.Errorf("%w: marshal record: %w", idempotency.ErrStoreOperationFailed, err)
	}
	expiration := time.Duration(nativeTTL(rec.ExpiresAt, s.nowFunc().Unix())) * time.Second
	if err := s.client.Set(ctx, s.prefix+rec.Key, body, expiration).Err(); err != nil {
		return fmt.Errorf("%w: set: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

// Delete removes the record. DEL on a missing key is a no-op.
func (s *Store) Delete(ctx context.Context, rec idempotency.Record) error {
	if err := s.client.Del(ctx, s.prefix+rec.Key).Err(); err != nil {
		return fmt.Errorf("%w: del: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

// nativeTTL converts the record expiry into EXPIRE seconds. Zero disables the
// native TTL: either the record never expires, or it is already past expiry
// and the derived status handles it.
func nativeTTL(expiresAt, now int64) int64 {
	if expiresAt == 0 || expiresAt <= now {
		return 0
	}
	return expiresAt - now
}

func fromRecord(rec idempotency.Record) record {
	return record{
		Status:       string(rec.Status),
		ExpiresAt:    rec.ExpiresAt,
		PayloadHash:  rec.PayloadHash,
		ResponseBody: rec.ResponseBody,
	}
}

func (r record) toRecord(key string) idempotency.Record {
	return idempotency.Record{
		Key:          key,
		Status:       idempotency.Status(r.Status),
		ExpiresAt:    r.ExpiresAt,
		PayloadHash:  r.PayloadHash,
		ResponseBody: r.ResponseBody,
	}
}
