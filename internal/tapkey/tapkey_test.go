package tapkey

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/lockexport/internal/config"
	"github.com/JonMunkholm/lockexport/internal/core"
	"golang.org/x/oauth2"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (r *recordingObserver) ObserveRemoteRequest(status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

// platform fakes the identity server and the API on one httptest server.
type platform struct {
	*httptest.Server
	mu            sync.Mutex
	issued        int
	refuseRefresh bool
	lastAuth      string
	lastRawQuery  string
	lastPath      string
}

func newPlatform(t *testing.T) *platform {
	p := &platform{}
	mux := http.NewServeMux()
	mux.HandleFunc("/connect/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		defer p.mu.Unlock()
		if r.Form.Get("grant_type") == "refresh_token" && p.refuseRefresh {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		p.issued++
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-" + string(rune('0'+p.issued)),
			"token_type":    "Bearer",
			"refresh_token": "refresh",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.lastAuth = r.Header.Get("Authorization")
		p.lastRawQuery = r.URL.RawQuery
		p.lastPath = r.URL.Path
		p.mu.Unlock()
		if r.Header.Get("Authorization") == "Bearer revoked" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"o1"}]`))
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *platform) config() config.TapkeyConfig {
	return config.TapkeyConfig{
		ClientID:              "client",
		ClientSecret:          "secret",
		TokenEndpoint:         p.URL + "/connect/token",
		AuthorizationEndpoint: p.URL + "/connect/authorize",
		BaseURI:               p.URL,
		Scopes:                []string{"read:logs", "offline_access"},
		RequestTimeout:        5 * time.Second,
	}
}

func TestAuthCodeURL(t *testing.T) {
	p := newPlatform(t)
	a := NewAuthorizer(p.config(), nil)

	raw := a.AuthCodeURL("state-123", "https://app.example.com/tapkey/callback")
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if u.Path != "/connect/authorize" {
		t.Errorf("path = %q", u.Path)
	}
	checks := map[string]string{
		"state":         "state-123",
		"client_id":     "client",
		"redirect_uri":  "https://app.example.com/tapkey/callback",
		"scope":         "read:logs offline_access",
		"response_type": "code",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestExchangeAndGet(t *testing.T) {
	p := newPlatform(t)
	obs := &recordingObserver{}
	a := NewAuthorizer(p.config(), obs)
	ctx := context.Background()

	tok, err := a.Exchange(ctx, "the-code", "")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if tok.AccessToken != "access-1" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}

	client, err := a.Client(ctx, tok, nil)
	if err != nil {
		t.Fatal(err)
	}
	q := core.Query{}.With(core.ParamFilter, "id eq 'a'").WithInt(core.ParamTop, 1)
	status, body, err := client.Get(ctx, "Owners/o1/Contacts", q)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if status != 200 || string(body) != `[{"id":"o1"}]` {
		t.Errorf("status=%d body=%s", status, body)
	}
	if p.lastAuth != "Bearer access-1" {
		t.Errorf("Authorization = %q", p.lastAuth)
	}
	if p.lastPath != "/api/v1/Owners/o1/Contacts" {
		t.Errorf("path = %q", p.lastPath)
	}
	if strings.Contains(p.lastRawQuery, "+") || !strings.Contains(p.lastRawQuery, "id%20eq%20%27a%27") {
		t.Errorf("raw query = %q", p.lastRawQuery)
	}
	if len(obs.statuses) != 2 || obs.statuses[1] != 200 {
		t.Errorf("observed statuses = %v", obs.statuses)
	}
}

func TestExchange_MissingCode(t *testing.T) {
	p := newPlatform(t)
	_, err := NewAuthorizer(p.config(), nil).Exchange(context.Background(), "", "")
	if err == nil || !strings.Contains(err.Error(), "oauth exchange") {
		t.Errorf("expected oauth exchange error, got %v", err)
	}
}

func TestClient_RefreshesAndPersists(t *testing.T) {
	p := newPlatform(t)
	a := NewAuthorizer(p.config(), nil)

	expired := &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	var saved []*oauth2.Token
	client, err := a.Client(context.Background(), expired, func(_ context.Context, tok *oauth2.Token) error {
		saved = append(saved, tok)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, _, err := client.Get(context.Background(), "Owners", nil); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}

	if len(saved) != 1 || saved[0].AccessToken != "access-1" {
		t.Errorf("saved tokens = %v", saved)
	}
	if p.lastAuth != "Bearer access-1" {
		t.Errorf("Authorization = %q", p.lastAuth)
	}
}

func TestClient_RefreshRefusedIsAuthError(t *testing.T) {
	p := newPlatform(t)
	p.refuseRefresh = true
	a := NewAuthorizer(p.config(), nil)

	expired := &oauth2.Token{AccessToken: "stale", RefreshToken: "refresh", Expiry: time.Now().Add(-time.Minute)}
	client, _ := a.Client(context.Background(), expired, nil)

	_, _, err := client.Get(context.Background(), "Owners", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false", err)
	}
	// Still recognised once wrapped by the export pipeline
	if !IsAuthError(&core.RetrievalError{Path: "Owners", Err: err}) {
		t.Error("IsAuthError should see through RetrievalError")
	}
}

func TestClient_UnauthorizedIsStatusNotError(t *testing.T) {
	p := newPlatform(t)
	a := NewAuthorizer(p.config(), nil)
	client, _ := a.Client(context.Background(), &oauth2.Token{AccessToken: "revoked", Expiry: time.Now().Add(time.Hour)}, nil)

	status, _, err := client.Get(context.Background(), "Owners", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", status)
	}
}

func TestAuthorizer_ClientWithoutToken(t *testing.T) {
	a := NewAuthorizer(config.TapkeyConfig{BaseURI: "https://example.com"}, nil)
	if _, err := a.Client(context.Background(), nil, nil); !errors.Is(err, ErrNoToken) {
		t.Errorf("expected ErrNoToken, got %v", err)
	}
	if !IsAuthError(ErrNoToken) {
		t.Error("ErrNoToken should be an auth error")
	}
}

func TestClient_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL)
	c.maxBody = 10
	if _, _, err := c.Get(context.Background(), "Owners", nil); !errors.Is(err, ErrResponseTooLarge) {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestClient_TransportFailureObserved(t *testing.T) {
	obs := &recordingObserver{}
	httpClient := &http.Client{Transport: newInstrumentedTransport(nil, obs)}
	c := NewClient(httpClient, "http://127.0.0.1:1/api/v1")

	if _, _, err := c.Get(context.Background(), "Owners", nil); err == nil {
		t.Fatal("expected transport error")
	}
	if len(obs.statuses) != 1 || obs.statuses[0] != 0 {
		t.Errorf("observed statuses = %v, want [0]", obs.statuses)
	}
}
