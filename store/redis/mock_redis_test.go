package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// mockRedisClient is a minimal in-memory stand-in for the commands the store
// issues. Native TTLs are honored against the injected clock, so tests can
// cross expiry boundaries without sleeping.
type mockRedisClient struct {
	redis.Cmdable
	mu        sync.Mutex
	data      map[string]mockEntry
	nowFunc   func() time.Time
	evalCalls int
	setCalls  []setCall
}

type mockEntry struct {
	val      string
	expireAt time.Time // zero = no native expiry
}

type setCall struct {
	key        string
	expiration time.Duration
}

func newMockRedisClient(nowFunc func() time.Time) *mockRedisClient {
	return &mockRedisClient{
		data:    make(map[string]mockEntry),
		nowFunc: nowFunc,
	}
}

// live returns the entry for key, reaping it first if its native TTL lapsed.
// Callers must hold mu.
func (m *mockRedisClient) live(key string) (mockEntry, bool) {
	e, ok := m.data[key]
	if !ok {
		return mockEntry{}, false
	}
	if !e.expireAt.IsZero() && !e.expireAt.After(m.nowFunc()) {
		delete(m.data, key)
		return mockEntry{}, false
	}
	return e, true
}

func (m *mockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewStringCmd(ctx)
	e, ok := m.live(key)
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(e.val)
	return cmd
}

func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setCalls = append(m.setCalls, setCall{key: key, expiration: expiration})
	e := mockEntry{val: asString(value)}
	if expiration > 0 {
		e.expireAt = m.nowFunc().Add(expiration)
	}
	m.data[key] = e

	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (m *mockRedisClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewIntCmd(ctx)
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	cmd.SetVal(n)
	return cmd
}

// Eval reimplements the insert script against the in-memory map:
// reject when a live record holds the key, otherwise write with the TTL.
func (m *mockRedisClient) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evalCalls++

	cmd := redis.NewCmd(ctx)
	if len(keys) != 1 || len(args) != 3 {
		cmd.SetErr(errors.New("unexpected script call shape"))
		return cmd
	}

	body := asString(args[0])
	now, _ := strconv.ParseInt(fmt.Sprint(args[1]), 10, 64)
	ttl, _ := strconv.ParseInt(fmt.Sprint(args[2]), 10, 64)

	if e, ok := m.live(keys[0]); ok {
		var rec struct {
			ExpiresAt int64 `json:"expires_at"`
		}
		if err := json.Unmarshal([]byte(e.val), &rec); err != nil {
			cmd.SetErr(err)
			return cmd
		}
		if rec.ExpiresAt == 0 || now <= rec.ExpiresAt {
			cmd.SetVal(int64(0))
			return cmd
		}
	}

	entry := mockEntry{val: body}
	if ttl > 0 {
		entry.expireAt = m.nowFunc().Add(time.Duration(ttl) * time.Second)
	}
	m.data[keys[0]] = entry
	cmd.SetVal(int64(1))
	return cmd
}

// EvalSha delegates to Eval (scripts are cached by SHA)
func (m *mockRedisClient) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return m.Eval(ctx, sha1, keys, args...)
}

// ScriptExists reports false for all scripts to force Eval instead of EvalSha
func (m *mockRedisClient) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func asString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}
