package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ikkim/tabline-backend/pkg/logger"
)

// TokenStore keeps short-lived bookkeeping about issued tokens: single-use
// burns, failed attempt counters and revoked staff tokens.
type TokenStore struct {
	client *redis.Client
}

func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

// Burn marks a token id as used. It returns false if it was already burned.
func (s *TokenStore) Burn(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, "verify:burned:"+tokenID, "1", ttl).Result()
	if err != nil {
		logger.Error("Failed to burn token", err, map[string]interface{}{"jti": tokenID})
		return false, fmt.Errorf("burn token: %w", err)
	}
	return ok, nil
}

func (s *TokenStore) IsBurned(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, "verify:burned:"+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check burned token: %w", err)
	}
	return n > 0, nil
}

// IncrAttempts counts a failed attempt. The counter expires with the token.
func (s *TokenStore) IncrAttempts(ctx context.Context, tokenID string, ttl time.Duration) (int64, error) {
	key := "verify:attempts:" + tokenID
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count attempt: %w", err)
	}
	return incr.Val(), nil
}

func (s *TokenStore) Attempts(ctx context.Context, tokenID string) (int64, error) {
	n, err := s.client.Get(ctx, "verify:attempts:"+tokenID).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read attempts: %w", err)
	}
	return n, nil
}

// BlacklistToken revokes a staff token until it would have expired anyway.
func (s *TokenStore) BlacklistToken(ctx context.Context, token string, expiry time.Duration) error {
	logger.Debug("Adding token to blacklist", map[string]interface{}{
		"expiry": expiry.String(),
	})
	if err := s.client.Set(ctx, "blacklist:"+token, "revoked", expiry).Err(); err != nil {
		logger.Error("Failed to blacklist token", err)
		return err
	}
	return nil
}

func (s *TokenStore) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	val, err := s.client.Get(ctx, "blacklist:"+token).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		logger.Error("Failed to check token blacklist", err)
		return false, err
	}
	return val == "revoked", nil
}

// MemoryTokenStore is the in-process TokenStore used when Redis is not
// configured and in tests. State is lost on restart.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     int64
	expiresAt time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *MemoryTokenStore) get(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if ok && !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, ok
}

func (s *MemoryTokenStore) Burn(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "burned:" + tokenID
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: 1, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryTokenStore) IsBurned(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get("burned:" + tokenID)
	return ok, nil
}

func (s *MemoryTokenStore) IncrAttempts(_ context.Context, tokenID string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "attempts:" + tokenID
	e, _ := s.get(key)
	e.value++
	e.expiresAt = s.now().Add(ttl)
	s.entries[key] = e
	return e.value, nil
}

func (s *MemoryTokenStore) Attempts(_ context.Context, tokenID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, _ := s.get("attempts:" + tokenID)
	return e.value, nil
}

func (s *MemoryTokenStore) BlacklistToken(_ context.Context, token string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries["blacklist:"+token] = memoryEntry{value: 1, expiresAt: s.now().Add(expiry)}
	return nil
}

func (s *MemoryTokenStore) IsTokenBlacklisted(_ context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get("blacklist:" + token)
	return ok, nil
}
