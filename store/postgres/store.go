// Package postgres provides a Postgres-backed idempotency store on database/sql.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// registers the pgx database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"

	idempotency "github.com/imrishuroy/go-idempotency"
)

// Schema is the DDL for the records table. Run it once per database, or let a
// migration tool own it. A NULL expires_at means the record never expires.
const Schema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	idempotency_key TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	expires_at      BIGINT,
	payload_hash    TEXT NOT NULL DEFAULT '',
	response_body   TEXT NOT NULL DEFAULT ''
);
`

// Store implements the idempotency persistence contract against Postgres.
type Store struct {
	db      *sql.DB
	nowFunc func() time.Time
}

var _ idempotency.Store = (*Store)(nil)

// Open opens a database/sql handle through the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// New creates a Store over an existing database handle.
func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		nowFunc: time.Now,
	}
}

// Fetch retrieves the record for key.
func (s *Store) Fetch(ctx context.Context, key string) (idempotency.Record, error) {
	query := `
		SELECT status, expires_at, payload_hash, response_body
		FROM idempotency_records
		WHERE idempotency_key = $1
	`

	var (
		status       string
		expiresAt    sql.NullInt64
		payloadHash  string
		responseBody string
	)
	err := s.db.QueryRowContext(ctx, query, key).Scan(&status, &expiresAt, &payloadHash, &responseBody)
	if errors.Is(err, sql.ErrNoRows) {
		return idempotency.Record{}, idempotency.ErrItemNotFound
	}
	if err != nil {
		return idempotency.Record{}, fmt.Errorf("%w: select record: %w", idempotency.ErrStoreOperationFailed, err)
	}

	return idempotency.Record{
		Key:          key,
		Status:       idempotency.Status(status),
		ExpiresAt:    expiresAt.Int64,
		PayloadHash:  payloadHash,
		ResponseBody: responseBody,
	}, nil
}

// InsertIfAbsentOrExpired writes the record only when the key is free or held
// by an expired record. The conflict clause decides server-side: the DO
// UPDATE only applies over a lapsed row, so zero affected rows means a live
// record won the key.
func (s *Store) InsertIfAbsentOrExpired(ctx context.Context, rec idempotency.Record) error {
	query := `
		INSERT INTO idempotency_records (idempotency_key, status, expires_at, payload_hash, response_body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			payload_hash = EXCLUDED.payload_hash,
			response_body = EXCLUDED.response_body
		WHERE idempotency_records.expires_at IS NOT NULL
		  AND idempotency_records.expires_at < $6
	`

	result, err := s.db.ExecContext(ctx, query,
		rec.Key, string(rec.Status), nullableExpiry(rec.ExpiresAt), rec.PayloadHash, rec.ResponseBody,
		s.nowFunc().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: insert record: %w", idempotency.ErrStoreOperationFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: get rows affected: %w", idempotency.ErrStoreOperationFailed, err)
	}
	if rowsAffected == 0 {
		return idempotency.ErrItemAlreadyExists
	}
	return nil
}

// Update overwrites the record unconditionally.
func (s *Store) Update(ctx context.Context, rec idempotency.Record) error {
	query := `
		INSERT INTO idempotency_records (idempotency_key, status, expires_at, payload_hash, response_body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (idempotency_key) DO UPDATE
		SET status = EXCLUDED.status,
			expires_at = EXCLUDED.expires_at,
			payload_hash = EXCLUDED.payload_hash,
			response_body = EXCLUDED.response_body
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Key, string(rec.Status), nullableExpiry(rec.ExpiresAt), rec.PayloadHash, rec.ResponseBody,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert record: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

// Delete removes the record. Deleting an absent row affects nothing, which is
// fine by the contract.
func (s *Store) Delete(ctx context.Context, rec idempotency.Record) error {
	query := `DELETE FROM idempotency_records WHERE idempotency_key = $1`

	if _, err := s.db.ExecContext(ctx, query, rec.Key); err != nil {
		return fmt.Errorf("%w: delete record: %w", idempotency.ErrStoreOperationFailed, err)
	}
	return nil
}

// nullableExpiry maps the zero expiry onto NULL so "never expires" survives
// the round trip distinctly from any concrete timestamp.
func nullableExpiry(expiresAt int64) sql.NullInt64 {
	return sql.NullInt64{Int64: expiresAt, Valid: expiresAt != 0}
}
