package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultFetchTimeout bounds a single JWKS fetch
	DefaultFetchTimeout = 10 * time.Second

	// maxKeySetBytes caps the JWKS response body
	maxKeySetBytes = 1 << 20
)

// RefreshRecorder receives the outcome of every JWKS refresh.
type RefreshRecorder interface {
	ObserveRefresh(result string, duration time.Duration, keys int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRefresh(string, time.Duration, int) {}

// KeyStoreConfig holds configuration for a KeyStore
type KeyStoreConfig struct {
	JWKSURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
	// SingleFlight collapses concurrent refreshes triggered by cache misses
	// into one network fetch.
	SingleFlight bool
	Logger       *zap.Logger
	Recorder     RefreshRecorder
	Now          func() time.Time
}

// KeyStore caches the provider's key set and refreshes it on demand.
// Readers take a read lock only; a refresh fetches and parses outside the
// lock and holds the write lock just long enough to swap the snapshot.
type KeyStore struct {
	url      string
	client   *http.Client
	timeout  time.Duration
	logger   *zap.Logger
	recorder RefreshRecorder
	now      func() time.Time
	group    *singleflight.Group

	mu  sync.RWMutex
	set *KeySet

	fetches atomic.Int64
}

// KeyStoreStats is a point-in-time view of the cache.
type KeyStoreStats struct {
	Cached    bool      `json:"cached"`
	Keys      int       `json:"keys"`
	KeyIDs    []string  `json:"key_ids"`
	FetchedAt time.Time `json:"fetched_at"`
	Fetches   int64     `json:"fetches"`
}

// NewKeyStore creates a key store for the given JWKS endpoint. The cache
// starts empty; the first lookup populates it.
func NewKeyStore(cfg KeyStoreConfig) *KeyStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(cfg.Timeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &KeyStore{
		url:      cfg.JWKSURL,
		client:   cfg.HTTPClient,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		recorder: cfg.Recorder,
		now:      cfg.Now,
	}
	if cfg.SingleFlight {
		s.group = &singleflight.Group{}
	}
	return s
}

// NewHTTPClient returns the traced HTTP client used for provider calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Resolve returns the key with the given id. A cache hit never touches the
// network. A miss triggers exactly one full refresh followed by a second
// lookup; if the key is still absent ErrKeyNotFound is returned.
func (s *KeyStore) Resolve(ctx context.Context, kid string) (Key, error) {
	if key, ok := s.lookup(kid); ok {
		return key, nil
	}

	s.logger.Debug("kid not in cached key set, refreshing",
		zap.String("kid", kid))

	if err := s.refreshOnMiss(ctx); err != nil {
		return Key{}, err
	}

	if key, ok := s.lookup(kid); ok {
		return key, nil
	}
	return Key{}, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Refresh fetches the JWKS document and atomically replaces the cached set.
// On failure the previous set stays in place.
func (s *KeyStore) Refresh(ctx context.Context) error {
	start := time.Now()
	set, err := s.fetch(ctx)
	elapsed := time.Since(start)
	if err != nil {
		s.recorder.ObserveRefresh("error", elapsed, 0)
		s.logger.Warn("JWKS refresh failed",
			zap.String("jwks_url", s.url),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.set = set
	s.mu.Unlock()

	s.recorder.ObserveRefresh("success", elapsed, set.Len())
	s.logger.Info("JWKS refreshed",
		zap.String("jwks_url", s.url),
		zap.Int("keys", set.Len()),
		zap.Strings("kids", set.KeyIDs()),
		zap.Duration("duration", elapsed))
	for _, reason := range set.Skipped {
		s.logger.Debug("skipped JWKS entry", zap.String("reason", reason))
	}
	return nil
}

// ForceRefresh repopulates the cache independently of any lookup miss, for
// example after the provider announces a key rotation.
func (s *KeyStore) ForceRefresh(ctx context.Context) error {
	s.logger.Info("forced JWKS refresh requested", zap.String("jwks_url", s.url))
	return s.Refresh(ctx)
}

// Snapshot returns the current key set, or nil if nothing was fetched yet.
func (s *KeyStore) Snapshot() *KeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Stats returns cache statistics
func (s *KeyStore) Stats() KeyStoreStats {
	set := s.Snapshot()
	stats := KeyStoreStats{
		Cached:  set != nil,
		Fetches: s.fetches.Load(),
	}
	if set != nil {
		stats.Keys = set.Len()
		stats.KeyIDs = set.KeyIDs()
		stats.FetchedAt = set.FetchedAt
	}
	return stats
}

// URL returns the JWKS endpoint
func (s *KeyStore) URL() string {
	return s.url
}

func (s *KeyStore) lookup(kid string) (Key, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Lookup(kid)
}

func (s *KeyStore) refreshOnMiss(ctx context.Context) error {
	if s.group == nil {
		return s.Refresh(ctx)
	}
	// The shared fetch must not depend on whichever caller started it; each
	// caller still stops waiting when its own context ends.
	ch := s.group.DoChan("jwks", func() (any, error) {
		return nil, s.Refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrKeySetFetchFailed, ctx.Err())
	}
}

func (s *KeyStore) fetch(ctx context.Context) (*KeySet, error) {
	s.fetches.Add(1)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrKeySetFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrKeySetFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySetBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrKeySetFetchFailed, err)
	}

	set, err := ParseKeySet(body, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetchFailed, err)
	}
	return set, nil
}
