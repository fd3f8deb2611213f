/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// DefaultAPIURL is the REST endpoint of github.com.
const DefaultAPIURL = "https://api.github.com"

const recheckInterval = time.Minute

// NewStaticTokenSource wraps a fixed token, such as the workflow's
// GITHUB_TOKEN.
func NewStaticTokenSource(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// NewAppTokenSource returns installation tokens of a GitHub App for the
// installation that covers owner/repo.
func NewAppTokenSource(ctx context.Context, apiURL string, appID int64, privateKey []byte, owner, repo string) (oauth2.TokenSource, error) {
	atr, err := ghinstallation.NewAppsTransport(http.DefaultTransport, appID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("creating app transport: %w", err)
	}
	atr.BaseURL = strings.TrimSuffix(apiURL, "/")

	apps, err := newClient(&http.Client{Transport: atr}, apiURL)
	if err != nil {
		return nil, err
	}
	inst, _, err := apps.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("finding installation for %s/%s: %w", owner, repo, err)
	}
	clog.FromContext(ctx).With("installation", inst.GetID()).Infof("Using app installation for %s/%s", owner, repo)

	itr := ghinstallation.NewFromAppsTransport(atr, inst.GetID())
	itr.BaseURL = atr.BaseURL
	return &installationTokenSource{ctx: ctx, tr: itr}, nil
}

type installationTokenSource struct {
	ctx context.Context
	tr  *ghinstallation.Transport
}

// Token implements oauth2.TokenSource. The transport caches the token until
// shortly before it expires, so the short expiry here only makes callers come
// back to it.
func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.tr.Token(s.ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching installation token: %w", err)
	}
	return &oauth2.Token{
		AccessToken: tok,
		TokenType:   "Bearer",
		Expiry:      time.Now().Add(recheckInterval),
	}, nil
}

// NewClient returns a REST client authenticated by ts against apiURL.
func NewClient(ctx context.Context, ts oauth2.TokenSource, apiURL string) (*github.Client, error) {
	return newClient(oauth2.NewClient(ctx, ts), apiURL)
}

func newClient(hc *http.Client, apiURL string) (*github.Client, error) {
	gh := github.NewClient(hc)
	if apiURL == "" || strings.TrimSuffix(apiURL, "/") == DefaultAPIURL {
		return gh, nil
	}
	u, err := url.Parse(strings.TrimSuffix(apiURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	gh.BaseURL = u
	return gh, nil
}

// GraphQL returns a GraphQL client sharing gh's transport and host.
func GraphQL(gh *github.Client) *githubv4.Client {
	return githubv4.NewEnterpriseClient(GraphQLURL(gh.BaseURL), gh.Client())
}

// GraphQLURL derives the GraphQL endpoint from a REST base URL. GitHub
// Enterprise serves REST under /api/v3 and GraphQL under /api/graphql.
func GraphQLURL(base *url.URL) string {
	u := *base
	p := strings.TrimSuffix(u.Path, "/")
	p = strings.TrimSuffix(p, "/v3")
	u.Path = p + "/graphql"
	return u.String()
}

// TokenSourceFunc resolves credentials for a repository.
type TokenSourceFunc func(ctx context.Context, owner, repo string) (oauth2.TokenSource, error)

// ClientCache hands out one client and token source per repository.
type ClientCache struct {
	tsf    TokenSourceFunc
	apiURL string

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
	clients map[string]*github.Client
}

// ClientOption configures a ClientCache.
type ClientOption func(*ClientCache)

// WithAPIURL points clients at a REST endpoint other than github.com.
func WithAPIURL(u string) ClientOption {
	return func(c *ClientCache) {
		c.apiURL = u
	}
}

// NewClientCache creates a cache resolving credentials through tsf.
func NewClientCache(tsf TokenSourceFunc, opts ...ClientOption) *ClientCache {
	c := &ClientCache{
		tsf:     tsf,
		apiURL:  DefaultAPIURL,
		sources: make(map[string]oauth2.TokenSource),
		clients: make(map[string]*github.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TokenSource returns the token source for owner/repo.
func (c *ClientCache) TokenSource(ctx context.Context, owner, repo string) (oauth2.TokenSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenSourceLocked(ctx, owner, repo)
}

func (c *ClientCache) tokenSourceLocked(ctx context.Context, owner, repo string) (oauth2.TokenSource, error) {
	key := owner + "/" + repo
	if ts, ok := c.sources[key]; ok {
		return ts, nil
	}
	ts, err := c.tsf(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("token source for %s: %w", key, err)
	}
	c.sources[key] = ts
	return ts, nil
}

// Get returns the client for owner/repo.
func (c *ClientCache) Get(ctx context.Context, owner, repo string) (*github.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := owner + "/" + repo
	if gh, ok := c.clients[key]; ok {
		return gh, nil
	}
	ts, err := c.tokenSourceLocked(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	gh, err := NewClient(ctx, ts, c.apiURL)
	if err != nil {
		return nil, err
	}
	c.clients[key] = gh
	return gh, nil
}
