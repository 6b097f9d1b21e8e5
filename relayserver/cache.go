package relayserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ResultCache provides idempotency for relay submissions by caching
// completed responses and tracking in-flight requests. A client retrying
// after a timeout gets the first outcome instead of a second submission.
type ResultCache struct {
	mu       sync.Mutex
	results  map[string]*RelayResponse
	expiry   map[string]time.Time
	inFlight map[string]chan struct{}
	ttl      time.Duration
	now      func() time.Time
}

// NewResultCache creates a cache keeping results for ttl.
func NewResultCache(ttl time.Duration) *ResultCache {
	return &ResultCache{
		results:  make(map[string]*RelayResponse),
		expiry:   make(map[string]time.Time),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
		now:      time.Now,
	}
}

// CacheKey hashes a request body. The body carries the signature and relay
// nonce, so distinct attempts get distinct keys.
func CacheKey(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}

// CacheStatus is the result of CheckAndMark.
type CacheStatus int

const (
	// StatusNotFound means the caller should proceed; the key is now in flight.
	StatusNotFound CacheStatus = iota
	// StatusCached means a cached result was found.
	StatusCached
	// StatusInFlight means another request is processing the key.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and marks key in flight when
// neither a result nor another request exists. The returned channel is the
// one to wait on (StatusInFlight) or to pass to Complete or Fail
// (StatusNotFound).
func (c *ResultCache) CheckAndMark(key string) (CacheStatus, *RelayResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expiry[key]; ok {
		if c.now().Before(expiry) {
			if result, ok := c.results[key]; ok {
				return StatusCached, result, nil
			}
		}
		delete(c.results, key)
		delete(c.expiry, key)
	}

	if done, ok := c.inFlight[key]; ok {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult waits for an in-flight request to finish. It returns nil
// when that request failed and may be retried.
func (c *ResultCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*RelayResponse, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the unexpired result for key, or nil.
func (c *ResultCache) Get(key string) *RelayResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiry, ok := c.expiry[key]
	if !ok {
		return nil
	}
	if c.now().After(expiry) {
		delete(c.results, key)
		delete(c.expiry, key)
		return nil
	}
	return c.results[key]
}

// Complete caches response for key and wakes any waiters.
func (c *ResultCache) Complete(key string, response *RelayResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results[key] = response
	c.expiry[key] = c.now().Add(c.ttl)
	delete(c.inFlight, key)
	close(done)
	c.cleanupExpiredLocked()
}

// Fail clears the in-flight marker without caching so the key may be
// retried.
func (c *ResultCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

// Len returns the number of cached results, expired or not.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// cleanupExpiredLocked must be called with mu held.
func (c *ResultCache) cleanupExpiredLocked() {
	now := c.now()
	for key, expiry := range c.expiry {
		if now.After(expiry) {
			delete(c.results, key)
			delete(c.expiry, key)
		}
	}
}
