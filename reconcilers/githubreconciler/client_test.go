/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package githubreconciler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestGraphQLURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.github.com/", "https://api.github.com/graphql"},
		{"https://github.example.com/api/v3/", "https://github.example.com/api/graphql"},
		{"http://127.0.0.1:8080/", "http://127.0.0.1:8080/graphql"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			u, err := url.Parse(tt.base)
			require.NoError(t, err)
			if got := GraphQLURL(u); got != tt.want {
				t.Errorf("GraphQLURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewClientAuthenticates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"login": "publishflow"}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	gh, err := NewClient(ctx, NewStaticTokenSource("secret"), srv.URL)
	require.NoError(t, err)

	u, _, err := gh.Users.Get(ctx, "")
	require.NoError(t, err)
	if u.GetLogin() != "publishflow" {
		t.Errorf("Login = %q", u.GetLogin())
	}
}

func TestClientCache(t *testing.T) {
	calls := 0
	cache := NewClientCache(func(context.Context, string, string) (oauth2.TokenSource, error) {
		calls++
		return NewStaticTokenSource("t"), nil
	}, WithAPIURL("http://127.0.0.1:1"))

	ctx := context.Background()
	a, err := cache.Get(ctx, "o", "r")
	require.NoError(t, err)
	b, err := cache.Get(ctx, "o", "r")
	require.NoError(t, err)
	if a != b {
		t.Error("Get() returned different clients for the same repository")
	}
	if _, err := cache.TokenSource(ctx, "o", "r"); err != nil {
		t.Fatalf("TokenSource() = %v", err)
	}
	if _, err := cache.Get(ctx, "o", "other"); err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if calls != 2 {
		t.Errorf("token source resolved %d times, want 2", calls)
	}
	if got := a.BaseURL.String(); got != "http://127.0.0.1:1/" {
		t.Errorf("BaseURL = %q", got)
	}
}

func TestClientCacheError(t *testing.T) {
	cache := NewClientCache(func(context.Context, string, string) (oauth2.TokenSource, error) {
		return nil, fmt.Errorf("no credentials")
	})
	if _, err := cache.Get(context.Background(), "o", "r"); err == nil {
		t.Error("Get() succeeded without credentials")
	}
}

func TestNewAppTokenSource(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/nonebot/registry/installation", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"id": 42}`)
	})
	mux.HandleFunc("POST /app/installations/42/access_tokens", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token": "ghs_installation", "expires_at": "2099-01-01T00:00:00Z"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ts, err := NewAppTokenSource(context.Background(), srv.URL, 1, pemKey, "nonebot", "registry")
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	if tok.AccessToken != "ghs_installation" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
}

func TestNewAppTokenSourceBadKey(t *testing.T) {
	if _, err := NewAppTokenSource(context.Background(), DefaultAPIURL, 1, []byte("not a key"), "o", "r"); err == nil {
		t.Error("NewAppTokenSource() accepted an invalid key")
	}
}
