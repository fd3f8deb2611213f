/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package check answers the questions validation asks of the outside world:
// whether a listing is already in the registry, whether a URL responds, and
// which adapters the store knows about.
package check

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"chainguard.dev/publishflow/internal/metrics"
	"chainguard.dev/publishflow/publish"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 10 * time.Second

	// DefaultPyPIURL is the JSON API endpoint of a PyPI project.
	DefaultPyPIURL = "https://pypi.org/pypi/%s/json"

	// DefaultStoreAdaptersURL lists the adapters published in the store.
	DefaultStoreAdaptersURL = "https://registry.nonebot.dev/adapters.json"
)

// Duplicate reports whether the record's identity is already present in the
// snapshot. A record missing either identity component never matches.
func Duplicate(kind publish.Kind, r publish.Record, snapshot []publish.Entry) bool {
	id, ok := publish.IdentityOf(kind, r)
	if !ok {
		return false
	}
	for _, e := range snapshot {
		if id.Matches(e) {
			return true
		}
	}
	return false
}

// Status is the outcome of a reachability probe. Code is -1 when the request
// failed before a response arrived, and Msg then carries the failure.
type Status struct {
	Code int
	Msg  string
}

// OK reports whether the probe returned 200.
func (s Status) OK() bool {
	return s.Code == http.StatusOK
}

// Cache remembers probe outcomes by exact URL for one run.
type Cache struct {
	mu sync.Mutex
	m  map[string]Status
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{m: map[string]Status{}}
}

// Get returns the cached status for url.
func (c *Cache) Get(url string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[url]
	return s, ok
}

// Set records the status for url.
func (c *Cache) Set(url string, s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[url] = s
}

// Reset forgets every recorded status.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
}

// Checker probes URLs and the store. It is safe for concurrent use.
type Checker struct {
	client      *http.Client
	cache       *Cache
	pypiURL     string
	adaptersURL string
	limiter     *rate.Limiter

	group singleflight.Group

	adaptersOnce sync.Once
	adapters     []string
	adaptersErr  error
}

// Option configures a Checker.
type Option func(*Checker)

// WithHTTPClient sets the client used for probes. Its timeout is replaced by
// WithTimeout when both are given.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		cl := *c.client
		cl.Timeout = d
		c.client = &cl
	}
}

// WithPyPIURL sets the project endpoint template. It must hold one %s verb
// for the project name.
func WithPyPIURL(tmpl string) Option {
	return func(c *Checker) {
		c.pypiURL = tmpl
	}
}

// WithStoreAdaptersURL sets where the adapter list is fetched from.
func WithStoreAdaptersURL(u string) Option {
	return func(c *Checker) {
		c.adaptersURL = u
	}
}

// WithRateLimit caps outbound probes at limit per second with the given
// burst. Cached and deduplicated lookups do not consume tokens.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Checker) {
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// New returns a Checker with a fresh cache.
func New(opts ...Option) *Checker {
	c := &Checker{
		client:      &http.Client{Timeout: DefaultTimeout},
		cache:       NewCache(),
		pypiURL:     DefaultPyPIURL,
		adaptersURL: DefaultStoreAdaptersURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the probe cache.
func (c *Checker) Cache() *Cache {
	return c.cache
}

// URL probes u with a GET that follows redirects. Results are cached, and
// concurrent probes of the same URL share one request.
func (c *Checker) URL(ctx context.Context, u string) Status {
	if s, ok := c.cache.Get(u); ok {
		return s
	}

	v, _, _ := c.group.Do(u, func() (any, error) {
		if s, ok := c.cache.Get(u); ok {
			return s, nil
		}
		s := c.probe(ctx, u)
		c.cache.Set(u, s)
		return s, nil
	})
	return v.(Status)
}

func (c *Checker) probe(ctx context.Context, u string) Status {
	log := clog.FromContext(ctx).With("url", u)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			metrics.RecordProbe(-1)
			return Status{Code: -1, Msg: err.Error()}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		metrics.RecordProbe(-1)
		return Status{Code: -1, Msg: err.Error()}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		log.Warnf("Probe failed: %v", err)
		metrics.RecordProbe(-1)
		return Status{Code: -1, Msg: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	log.With("status_code", resp.StatusCode).Info("Probed URL")
	metrics.RecordProbe(resp.StatusCode)
	return Status{Code: resp.StatusCode}
}

// PyPIURL returns the project endpoint probed for name.
func (c *Checker) PyPIURL(name string) string {
	return fmt.Sprintf(c.pypiURL, url.PathEscape(name))
}

// PyPI reports whether the project is published.
func (c *Checker) PyPI(ctx context.Context, name string) bool {
	return c.URL(ctx, c.PyPIURL(name)).OK()
}

// Prefetch probes the given URLs concurrently so later calls to URL are
// answered from the cache. Empty URLs are skipped.
func (c *Checker) Prefetch(ctx context.Context, urls ...string) {
	var g errgroup.Group
	for _, u := range urls {
		if u == "" {
			continue
		}
		g.Go(func() error {
			c.URL(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
}

// ErrStoreAdapters wraps failures to load the store adapter list.
var ErrStoreAdapters = errors.New("fetching store adapters")

// StoreAdapters returns the module names of every adapter in the store. The
// list is fetched once per Checker.
func (c *Checker) StoreAdapters(ctx context.Context) ([]string, error) {
	c.adaptersOnce.Do(func() {
		c.adapters, c.adaptersErr = c.fetchAdapters(ctx)
	})
	return c.adapters, c.adaptersErr
}

func (c *Checker) fetchAdapters(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.adaptersURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreAdapters, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreAdapters, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrStoreAdapters, resp.StatusCode)
	}

	var entries []struct {
		ModuleName string `json:"module_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: decoding: %w", ErrStoreAdapters, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.ModuleName)
	}
	clog.FromContext(ctx).With("count", len(names)).Info("Loaded store adapters")
	return names, nil
}
