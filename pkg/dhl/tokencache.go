package dhl

import (
	"context"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TokenTTL is how long an access token is reused. DHL tokens live for 3600
// seconds; the cache gives them up a little earlier.
const TokenTTL = 3500 * time.Second

// CachedToken is a bearer token together with the moment it stops being used.
type CachedToken struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the token may still be used at now.
func (t CachedToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// TokenStore persists cached tokens. Set must write the value and its expiry
// in one step so that a token is never visible without an expiry.
type TokenStore interface {
	Get(ctx context.Context, key string) (CachedToken, bool, error)
	Set(ctx context.Context, key string, token CachedToken, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryTokenStore keeps tokens in process memory.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	entries map[string]CachedToken
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: make(map[string]CachedToken)}
}

// Get returns the entry stored under key.
func (s *MemoryTokenStore) Get(_ context.Context, key string) (CachedToken, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.entries[key]
	return tok, ok, nil
}

// Set stores token under key. The expiry is carried by the token itself.
func (s *MemoryTokenStore) Set(_ context.Context, key string, token CachedToken, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = token
	return nil
}

// Delete removes key.
func (s *MemoryTokenStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)

// TokenCache memoizes a token per key for a fixed TTL. Concurrent misses on the
// same key share a single fill call.
type TokenCache struct {
	store   TokenStore
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	logger  *otelzap.Logger
	metrics MetricsRecorder
}

// NewTokenCache creates a cache over store. A nil store means an in-memory one.
func NewTokenCache(store TokenStore, ttl time.Duration, opts Options) *TokenCache {
	opts = opts.withDefaults()
	if store == nil {
		store = NewMemoryTokenStore()
	}
	if ttl <= 0 {
		ttl = TokenTTL
	}
	return &TokenCache{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// GetOrPopulate returns the cached value for key, or calls fill once for all
// concurrent callers and caches its result. A caller whose ctx ends while
// waiting gets ctx.Err(); the fill itself keeps running for the others.
func (c *TokenCache) GetOrPopulate(ctx context.Context, key string, fill func(context.Context) (string, error)) (string, error) {
	if tok, ok := c.lookup(ctx, key); ok {
		c.metrics.RecordTokenLookup("hit")
		return tok.Value, nil
	}

	fillCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		// A flight that finished after our lookup may already have stored a token.
		if tok, ok := c.lookup(fillCtx, key); ok {
			return tok.Value, nil
		}

		c.metrics.RecordTokenLookup("miss")
		value, err := fill(fillCtx)
		if err != nil {
			return "", err
		}

		token := CachedToken{Value: value, ExpiresAt: c.now().Add(c.ttl)}
		if err := c.store.Set(fillCtx, key, token, c.ttl); err != nil {
			c.logger.Ctx(fillCtx).Warn("Failed to store token in cache",
				zap.String("key", key),
				zap.Error(err),
			)
		}
		return value, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Evict removes key from the underlying store.
func (c *TokenCache) Evict(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

func (c *TokenCache) lookup(ctx context.Context, key string) (CachedToken, bool) {
	tok, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Ctx(ctx).Warn("Token cache lookup failed, treating as miss",
			zap.String("key", key),
			zap.Error(err),
		)
		return CachedToken{}, false
	}
	if !ok || !tok.Valid(c.now()) {
		return CachedToken{}, false
	}
	return tok, true
}
