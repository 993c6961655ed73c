// Package lease keeps scheduled and manually triggered runs from overlapping.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"UpdatesDigest/internal/ports"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a SET NX lease shared by every replica using the same server.
type Redis struct {
	rdb redis.UniversalClient

	mu     sync.Mutex
	tokens map[string]string
}

var _ ports.RunLease = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(rdb redis.UniversalClient) *Redis {
	return &Redis{rdb: rdb, tokens: make(map[string]string)}
}

// Dial connects to addr and verifies the server answers PING.
func Dial(ctx context.Context, addr, password string, db int) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb), nil
}

// Acquire claims key for ttl. It returns false when someone else holds it.
func (l *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[key] = token
		l.mu.Unlock()
	}
	return ok, nil
}

// Release drops key if this process still owns it.
func (l *Redis) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}

// Close shuts the underlying client.
func (l *Redis) Close() error {
	return l.rdb.Close()
}

// Memory is the single-process lease used when Redis is not configured.
type Memory struct {
	mu      sync.Mutex
	held    map[string]time.Time
	nowFunc func() time.Time
}

var _ ports.RunLease = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{held: make(map[string]time.Time), nowFunc: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFunc()
	if until, ok := m.held[key]; ok && now.Before(until) {
		return false, nil
	}
	m.held[key] = now.Add(ttl)
	return true, nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.held, key)
	m.mu.Unlock()
	return nil
}
