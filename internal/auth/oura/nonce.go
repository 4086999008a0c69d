package oura

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pysugar/oura-twin-sync/internal/identity"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultStateTTL bounds how long a pending authorization may take.
const DefaultStateTTL = 10 * time.Minute

// ErrStateNotFound is returned when the nonce is unknown, expired or already used.
var ErrStateNotFound = errors.New("oauth state not found or expired")

// PendingStore keeps nonce → twin entries until they are consumed once.
type PendingStore interface {
	Save(ctx context.Context, nonce string, id identity.Identity, ttl time.Duration) error
	Consume(ctx context.Context, nonce string) (identity.Identity, error)
}

// NonceStates issues a random single-use state per authorization attempt.
type NonceStates struct {
	store PendingStore
	ttl   time.Duration
}

func NewNonceStates(store PendingStore, ttl time.Duration) *NonceStates {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &NonceStates{store: store, ttl: ttl}
}

func (n *NonceStates) Issue(ctx context.Context, _ string, id identity.Identity) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	nonce := base64.RawURLEncoding.EncodeToString(b)
	if err := n.store.Save(ctx, nonce, id, n.ttl); err != nil {
		return "", fmt.Errorf("failed to store state: %w", err)
	}
	return nonce, nil
}

func (n *NonceStates) Resolve(ctx context.Context, _ string, state string) (identity.Identity, error) {
	if state == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidState)
	}
	id, err := n.store.Consume(ctx, state)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return id, nil
}

type pendingEntry struct {
	id      identity.Identity
	expires time.Time
}

// MemoryStateStore is a process-local PendingStore.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]pendingEntry
	now     func() time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{entries: make(map[string]pendingEntry), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (s *MemoryStateStore) WithClock(now func() time.Time) *MemoryStateStore {
	s.now = now
	return s
}

func (s *MemoryStateStore) Save(_ context.Context, nonce string, id identity.Identity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
	s.entries[nonce] = pendingEntry{id: id, expires: now.Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, nonce string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[nonce]
	if !ok {
		return "", ErrStateNotFound
	}
	delete(s.entries, nonce)
	if s.now().After(e.expires) {
		return "", ErrStateNotFound
	}
	return e.id, nil
}

const redisStatePrefix = "twinsync:oauth:state:"

// RedisStateStore shares pending states between processes.
type RedisStateStore struct {
	rdb goredis.UniversalClient
}

func NewRedisStateStore(rdb goredis.UniversalClient) *RedisStateStore {
	return &RedisStateStore{rdb: rdb}
}

func (s *RedisStateStore) Save(ctx context.Context, nonce string, id identity.Identity, ttl time.Duration) error {
	return s.rdb.Set(ctx, redisStatePrefix+nonce, string(id), ttl).Err()
}

// Consume reads and deletes the entry in one WATCH transaction so a nonce is honoured once.
func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (identity.Identity, error) {
	key := redisStatePrefix + nonce

	var id identity.Identity
	err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return ErrStateNotFound
			}
			return err
		}
		id = identity.Identity(val)

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return "", err
	}
	if !id.Valid() {
		return "", fmt.Errorf("stored state names unknown twin %q", id)
	}
	return id, nil
}
