package idempotency

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"github.com/jmespath/go-jmespath"
)

// HashAlgorithm selects the digest used for keys and fingerprints.
type HashAlgorithm string

const (
	HashMD5    HashAlgorithm = "md5"
	HashSHA1   HashAlgorithm = "sha1"
	HashSHA256 HashAlgorithm = "sha256"
	HashSHA512 HashAlgorithm = "sha512"
)

func (a HashAlgorithm) digest() (func() hash.Hash, error) {
	switch a {
	case HashMD5:
		return md5.New, nil
	case HashSHA1:
		return sha1.New, nil
	case HashSHA256:
		return sha256.New, nil
	case HashSHA512:
		return sha512.New, nil
	}
	return nil, fmt.Errorf("%w: unknown hash algorithm %q", ErrInvalidConfig, a)
}

// Hasher produces a deterministic hex digest of an arbitrary JSON-serializable
// value, optionally reduced to a sub-value by a JMESPath query first.
//
// The input is canonicalized through a JSON round-trip before hashing, so
// structurally equal values hash equally regardless of Go type or map
// iteration order: struct vs map, int vs float of the same magnitude, and any
// key ordering all collapse to the same canonical form.
type Hasher struct {
	newDigest func() hash.Hash
	query     *jmespath.JMESPath

	// failOnMissing turns an empty query match into ErrNoIdempotencyKey
	// instead of hashing the null value.
	failOnMissing bool
}

// NewHasher compiles the query and binds the digest. An empty query selects
// the whole input.
func NewHasher(algo HashAlgorithm, query string) (*Hasher, error) {
	newDigest, err := algo.digest()
	if err != nil {
		return nil, err
	}
	h := &Hasher{newDigest: newDigest}
	if query != "" {
		compiled, err := jmespath.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("%w: compile query %q: %v", ErrInvalidConfig, query, err)
		}
		h.query = compiled
	}
	return h, nil
}

// Hash returns the hex digest of the canonical form of v, or of the sub-value
// selected by the query when one is configured.
//
// A query that matches nothing hashes the JSON null value, so two payloads
// that both fail to match share a key. Set failOnMissing to reject that case.
func (h *Hasher) Hash(v any) (string, error) {
	data, err := canonicalize(v)
	if err != nil {
		return "", err
	}
	if h.query != nil {
		data, err = h.query.Search(data)
		if err != nil {
			return "", fmt.Errorf("apply extraction query: %w", err)
		}
		if h.failOnMissing && isEmptyMatch(data) {
			return "", ErrNoIdempotencyKey
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal extracted value: %w", err)
	}
	d := h.newDigest()
	d.Write(b)
	return hex.EncodeToString(d.Sum(nil)), nil
}

// canonicalize round-trips v through JSON so queries and digests operate on
// JSON field names and canonical value forms.
func canonicalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("canonicalize payload: %w", err)
	}
	return out, nil
}

// isEmptyMatch reports whether a query result carries no key material.
func isEmptyMatch(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
