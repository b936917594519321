package idempotency

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-idempotency/metrics"
)

// DefaultTTL is the record lifetime applied when none is configured.
const DefaultTTL = time.Hour

// DefaultLocalCacheCapacity bounds the local cache when enabled without an
// explicit capacity.
const DefaultLocalCacheCapacity = 256

type config struct {
	keyQuery           string
	validationQuery    string
	ttl                time.Duration
	hashAlgorithm      HashAlgorithm
	useLocalCache      bool
	localCacheCapacity int
	failOnMissingKey   bool
	logger             *slog.Logger
	metrics            metrics.Metrics
}

func defaultConfig() config {
	return config{
		ttl:                DefaultTTL,
		hashAlgorithm:      HashMD5,
		localCacheCapacity: DefaultLocalCacheCapacity,
		logger:             slog.Default(),
		metrics:            &metrics.Noop{},
	}
}

func (c *config) validate() error {
	if c.ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive", ErrInvalidConfig)
	}
	if c.localCacheCapacity <= 0 {
		return fmt.Errorf("%w: local cache capacity must be positive", ErrInvalidConfig)
	}
	return nil
}

// Option is a function that modifies the Manager configuration.
type Option func(*config)

// WithKeyQuery sets the JMESPath query that selects the key sub-value from
// the payload. Empty means the whole payload identifies the work.
func WithKeyQuery(query string) Option {
	return func(c *config) {
		c.keyQuery = query
	}
}

// WithValidationQuery enables payload validation: the fingerprint of the
// selected sub-value must match across calls sharing a key.
func WithValidationQuery(query string) Option {
	return func(c *config) {
		c.validationQuery = query
	}
}

// WithTTL sets how long a record stays live before its status derives to
// expired.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithHashAlgorithm selects the digest for keys and fingerprints.
func WithHashAlgorithm(algo HashAlgorithm) Option {
	return func(c *config) {
		c.hashAlgorithm = algo
	}
}

// WithLocalCache enables the in-process record cache at the default capacity.
func WithLocalCache() Option {
	return func(c *config) {
		c.useLocalCache = true
	}
}

// WithLocalCacheCapacity enables the in-process record cache bounded to the
// given number of entries.
func WithLocalCacheCapacity(capacity int) Option {
	return func(c *config) {
		c.useLocalCache = true
		c.localCacheCapacity = capacity
	}
}

// WithFailOnMissingKey makes BeginAttempt fail with ErrNoIdempotencyKey when
// the key query matches nothing, instead of hashing the null value.
func WithFailOnMissingKey() Option {
	return func(c *config) {
		c.failOnMissingKey = true
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics backend. Defaults to a no-op.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}
