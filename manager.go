package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-idempotency/internal/cache"
	"github.com/imrishuroy/go-idempotency/metrics"
)

// Manager orchestrates the idempotency state machine: it derives keys from
// payloads, consults the local cache then the store, and writes lifecycle
// transitions. It runs entirely on the caller's goroutine; all blocking
// happens inside store calls, which receive the caller's context.
type Manager struct {
	store            Store
	keyHasher        *Hasher
	validationHasher *Hasher
	ttl              time.Duration
	cache            *cache.Cache[Record]
	logger           *slog.Logger
	metrics          metrics.Metrics
	nowFunc          func() time.Time
}

// New builds a Manager on top of the given store. Queries are compiled and
// the configuration validated up front, so a misconfigured Manager fails at
// construction rather than on first use.
func New(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidConfig)
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	keyHasher, err := NewHasher(cfg.hashAlgorithm, cfg.keyQuery)
	if err != nil {
		return nil, err
	}
	keyHasher.failOnMissing = cfg.failOnMissingKey

	m := &Manager{
		store:     store,
		keyHasher: keyHasher,
		ttl:       cfg.ttl,
		logger:    cfg.logger,
		metrics:   cfg.metrics,
		nowFunc:   time.Now,
	}

	if cfg.validationQuery != "" {
		m.validationHasher, err = NewHasher(cfg.hashAlgorithm, cfg.validationQuery)
		if err != nil {
			return nil, err
		}
	}

	if cfg.useLocalCache {
		m.cache, err = cache.New[Record](cfg.localCacheCapacity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	return m, nil
}

// BeginAttempt registers the intent to execute the work identified by
// payload. Outcomes:
//
//   - (nil, nil): the key was free; an IN_PROGRESS record now holds it and
//     the caller should execute the work, then report the outcome.
//   - (*Record, nil): a completed record exists; the caller should serve the
//     stored response instead of executing.
//   - (nil, err): ErrAlreadyInProgress when a live execution holds the key,
//     ErrValidationMismatch when the payload differs from the stored record,
//     ErrInvalidRecordState on a corrupt record, or a store failure.
//
// Two concurrent callers can both reach the insert; the store's conditional
// insert is what guarantees exactly one wins.
func (m *Manager) BeginAttempt(ctx context.Context, payload any) (*Record, error) {
	m.metrics.AttemptStarted()

	key, fingerprint, err := m.derive(payload)
	if err != nil {
		return nil, err
	}
	now := m.nowFunc()

	if m.cache != nil {
		if rec, ok := m.cache.Get(key, now); ok {
			m.logger.Debug("serving completed record from local cache", "key", key)
			if err := m.validateFingerprint(rec, fingerprint); err != nil {
				return nil, err
			}
			m.metrics.AttemptReplayed("cache")
			return &rec, nil
		}
	}

	rec, err := m.store.Fetch(ctx, key)
	switch {
	case errors.Is(err, ErrItemNotFound):
		// no record holds the key; insert below
	case err != nil:
		return nil, err
	default:
		status, err := rec.StatusAt(now)
		if err != nil {
			return nil, err
		}
		if status != StatusExpired {
			if status == StatusCompleted {
				m.saveToCache(rec)
			}
			if err := m.validateFingerprint(rec, fingerprint); err != nil {
				return nil, err
			}
			if status == StatusInProgress {
				m.logger.Debug("attempt rejected, execution in progress", "key", key)
				m.metrics.AttemptConflicted()
				return nil, fmt.Errorf("%w: key %s", ErrAlreadyInProgress, key)
			}
			m.metrics.AttemptReplayed("store")
			return &rec, nil
		}
		m.logger.Debug("expired record found, taking over key", "key", key)
	}

	fresh := Record{
		Key:         key,
		Status:      StatusInProgress,
		ExpiresAt:   now.Add(m.ttl).Unix(),
		PayloadHash: fingerprint,
	}
	m.logger.Debug("saving in-progress record", "key", key)
	if err := m.store.InsertIfAbsentOrExpired(ctx, fresh); err != nil {
		if errors.Is(err, ErrItemAlreadyExists) {
			m.metrics.AttemptConflicted()
			return nil, fmt.Errorf("%w: key %s", ErrAlreadyInProgress, key)
		}
		return nil, err
	}
	return nil, nil
}

// ReportSuccess records the result of a finished execution. The record
// becomes COMPLETED with a fresh expiry and the JSON-serialized result, and
// is mirrored into the local cache for replay.
func (m *Manager) ReportSuccess(ctx context.Context, payload, result any) error {
	key, fingerprint, err := m.derive(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	rec := Record{
		Key:          key,
		Status:       StatusCompleted,
		ExpiresAt:    m.nowFunc().Add(m.ttl).Unix(),
		PayloadHash:  fingerprint,
		ResponseBody: string(body),
	}
	m.logger.Debug("saving completed record", "key", key)
	if err := m.store.Update(ctx, rec); err != nil {
		return err
	}
	m.metrics.SuccessRecorded()
	m.saveToCache(rec)
	return nil
}

// ReportFailure releases the key after a failed execution by deleting its
// record, so a clean retry can begin fresh. Reporting failure for a key with
// no record is not an error.
func (m *Manager) ReportFailure(ctx context.Context, payload any) error {
	key, _, err := m.derive(payload)
	if err != nil {
		return err
	}
	m.logger.Debug("deleting record after failed execution", "key", key)
	if err := m.store.Delete(ctx, Record{Key: key}); err != nil {
		return err
	}
	m.metrics.FailureRecorded()
	if m.cache != nil {
		m.cache.Delete(key)
	}
	return nil
}

func (m *Manager) derive(payload any) (key, fingerprint string, err error) {
	key, err = m.keyHasher.Hash(payload)
	if err != nil {
		return "", "", err
	}
	if m.validationHasher != nil {
		fingerprint, err = m.validationHasher.Hash(payload)
		if err != nil {
			return "", "", err
		}
	}
	return key, fingerprint, nil
}

// validateFingerprint enforces payload validation when enabled. A mismatch is
// a hard failure: serving a stored result for materially different input
// would be a correctness violation for the caller.
func (m *Manager) validateFingerprint(rec Record, fingerprint string) error {
	if m.validationHasher == nil {
		return nil
	}
	if rec.PayloadHash != fingerprint {
		m.metrics.ValidationFailed()
		return fmt.Errorf("%w: key %s", ErrValidationMismatch, rec.Key)
	}
	return nil
}

// saveToCache mirrors terminal records into the local cache. In-progress
// records are never cached: another process can mutate them and the cache has
// no invalidation channel to observe that.
func (m *Manager) saveToCache(rec Record) {
	if m.cache == nil || rec.Status == StatusInProgress {
		return
	}
	m.cache.Put(rec.Key, rec)
}
