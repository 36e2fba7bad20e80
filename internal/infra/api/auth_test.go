//go:build !integration

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compat-assistant/internal/infra/logging"
	"compat-assistant/internal/usecase"
)

func TestAuthenticator(t *testing.T) {
	a := NewAuthenticator("0123456789abcdef0123456789abcdef", time.Hour)

	t.Run("should accept its own tokens", func(t *testing.T) {
		tok, err := a.Mint("ops")
		if err != nil {
			t.Fatalf("mint: %v", err)
		}
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if claims.Subject != "ops" {
			t.Errorf("unexpected subject %q", claims.Subject)
		}
	})

	t.Run("should accept the query parameter for event streams", func(t *testing.T) {
		tok, _ := a.Mint("browser")
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x/events?access_token="+tok, nil)
		if _, err := a.ParseFromRequest(r); err != nil {
			t.Errorf("expected token from query, got %v", err)
		}
	})

	t.Run("should reject foreign and expired tokens", func(t *testing.T) {
		other := NewAuthenticator("another-secret-another-secret-xx", time.Hour)
		tok, _ := other.Mint("ops")
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		if _, err := a.ParseFromRequest(r); err == nil {
			t.Error("token signed with another secret must be rejected")
		}

		old := NewAuthenticator("0123456789abcdef0123456789abcdef", time.Minute)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, _ = old.Mint("ops")
		r.Header.Set("Authorization", "Bearer "+tok)
		if _, err := a.ParseFromRequest(r); err == nil {
			t.Error("expired token must be rejected")
		}
	})

	t.Run("should reject requests without a token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if _, err := a.ParseFromRequest(r); err == nil {
			t.Error("expected an error")
		}
		r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
		if _, err := a.ParseFromRequest(r); err == nil {
			t.Error("basic auth is not a bearer token")
		}
	})
}

func TestRequireToken(t *testing.T) {
	f := newFixture(t, usecase.ChatOptions{})
	a := NewAuthenticator("0123456789abcdef0123456789abcdef", time.Hour)
	srv := NewServer(f.chat, usecase.NewStatsUseCase(nil, logging.Nop()), time.Second, logging.Nop())
	srv.RequireAuth(a)
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/catalog")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}

	tok, _ := a.Mint("ops")
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 with a token, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health must stay open, got %d", resp.StatusCode)
	}
}
