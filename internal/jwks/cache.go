// File: internal/jwks/cache.go
package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/jan-ru/cap-oclif-keycloack-sub000/internal/domain/errors"
	"github.com/jan-ru/cap-oclif-keycloack-sub000/internal/utils/metrics"
)

const maxJWKSBody = 1 << 20 // 1 MiB

// Cache fetches and caches one realm's public key set. Reads vastly
// outnumber writes, so the current KeySet is an atomically swapped immutable
// snapshot; the mutex only serializes refreshes.
//
// Resilience contract: once a KeySet has been fetched successfully, a failed
// refresh falls back to the stale snapshot instead of failing the request,
// bounded by the optional staleness ceiling. Only when no KeySet was ever
// fetched does a failure propagate as ErrKeySourceUnavailable.
type Cache struct {
	endpoint     string
	client       *http.Client
	ttl          atomic.Int64 // nanoseconds, hot-swappable
	maxStaleness time.Duration
	logger       *zap.Logger

	refreshMu sync.Mutex
	current   atomic.Pointer[KeySet]
}

// Options tunes a Cache beyond its endpoint.
type Options struct {
	TTL          time.Duration
	FetchTimeout time.Duration
	// MaxStaleness bounds the stale fallback; zero keeps it unbounded, which
	// mirrors the provider outage behavior this cache exists for.
	MaxStaleness time.Duration
	HTTPClient   *http.Client
}

// NewCache creates a key set cache for one JWKS endpoint.
func NewCache(endpoint string, opts Options, logger *zap.Logger) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.FetchTimeout}
	}
	c := &Cache{
		endpoint:     endpoint,
		client:       client,
		maxStaleness: opts.MaxStaleness,
		logger:       logger.Named("jwks_cache").With(zap.String("endpoint", endpoint)),
	}
	c.ttl.Store(int64(opts.TTL))
	return c
}

// SetTTL hot-swaps the freshness TTL. Safe to call concurrently with Fetch.
func (c *Cache) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl.Store(int64(ttl))
	}
}

// TTL returns the current freshness TTL.
func (c *Cache) TTL() time.Duration {
	return time.Duration(c.ttl.Load())
}

// Fetch returns the current key set, refreshing from the network only when
// the cached snapshot is stale.
func (c *Cache) Fetch(ctx context.Context) (*KeySet, error) {
	now := time.Now()
	if ks := c.current.Load(); ks != nil && ks.Fresh(now) {
		return ks, nil
	}
	return c.refresh(ctx, nil)
}

// Key resolves a signing key by id. When the id is absent from the cached
// set, one forced refresh is attempted before reporting ErrKeyNotFound: the
// provider may have rotated its keys since the last fetch.
func (c *Cache) Key(ctx context.Context, kid string) (*SigningKey, error) {
	ks, err := c.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := ks.Key(kid); ok {
		return key, nil
	}

	ks, err = c.refresh(ctx, ks)
	if err != nil {
		return nil, err
	}
	if key, ok := ks.Key(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", domainErrors.ErrKeyNotFound, kid)
}

// refresh performs one network fetch, applying the stale-fallback policy on
// failure. Concurrent refreshes are collapsed: whoever holds the mutex does
// the network call, late arrivals reuse the fresh result. A non-nil seen
// pointer forces the fetch even while that snapshot is within its TTL; key
// rotation swaps kids without waiting for the TTL to run out, so a lookup
// miss against a fresh snapshot still has to hit the endpoint. When another
// goroutine already replaced the snapshot, its result is returned instead of
// fetching twice.
func (c *Cache) refresh(ctx context.Context, seen *KeySet) (*KeySet, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	now := time.Now()
	if ks := c.current.Load(); ks != nil && ks != seen && ks.Fresh(now) {
		return ks, nil
	}

	ks, err := c.fetchRemote(ctx, now)
	if err == nil {
		c.current.Store(ks)
		metrics.JWKSRefreshTotal.WithLabelValues(c.endpoint, "success").Inc()
		c.logger.Info("Key set refreshed", zap.Int("keys", len(ks.Keys)))
		return ks, nil
	}
	metrics.JWKSRefreshTotal.WithLabelValues(c.endpoint, "failure").Inc()

	stale := c.current.Load()
	if stale == nil {
		c.logger.Error("Key set refresh failed with no cache available", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domainErrors.ErrKeySourceUnavailable, err)
	}
	if c.maxStaleness > 0 && now.Sub(stale.FetchedAt) > c.maxStaleness {
		c.logger.Error("Key set refresh failed and cache exceeded staleness ceiling",
			zap.Error(err),
			zap.Time("fetched_at", stale.FetchedAt),
			zap.Duration("max_staleness", c.maxStaleness),
		)
		return nil, fmt.Errorf("%w: cached key set too stale: %v", domainErrors.ErrKeySourceUnavailable, err)
	}

	c.logger.Warn("Key set refresh failed, serving stale cache",
		zap.Error(err),
		zap.Time("fetched_at", stale.FetchedAt),
	)
	return stale, nil
}

func (c *Cache) fetchRemote(ctx context.Context, now time.Time) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch JWKS: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSBody))
	if err != nil {
		return nil, fmt.Errorf("read JWKS body: %w", err)
	}

	return ParseKeySet(body, now, c.TTL())
}

// Healthy reports whether the provider's certs endpoint is currently
// reachable. Used by the health check collaborators; it never touches the
// cached snapshot.
func (c *Cache) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxJWKSBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
