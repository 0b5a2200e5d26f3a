package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, store Store, expire func(time.Duration)) {
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load(missing) = %v, want ErrNotFound", err)
	}

	data := &Data{
		Token:      &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"},
		OAuthState: "state",
		CreatedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.Save(ctx, "s1", data, time.Minute); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the caller's copy must not change the stored value
	data.OAuthState = "changed"

	got, err := store.Load(ctx, "s1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.OAuthState != "state" || got.Token.AccessToken != "a" || got.Token.RefreshToken != "r" {
		t.Errorf("unexpected data %+v", got)
	}
	if !got.Authenticated() {
		t.Error("session with token should be authenticated")
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Errorf("Delete of missing session: %v", err)
	}

	_ = store.Save(ctx, "s2", &Data{}, time.Minute)
	expire(2 * time.Minute)
	if _, err := store.Load(ctx, "s2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after expiry = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()

	now := time.Now()
	store.now = func() time.Time { return now }
	storeContract(t, store, func(d time.Duration) { now = now.Add(d) })
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore(0)
	defer store.Close()
	now := time.Now()
	store.now = func() time.Time { return now }

	_ = store.Save(context.Background(), "old", &Data{}, time.Second)
	_ = store.Save(context.Background(), "new", &Data{}, time.Hour)
	now = now.Add(time.Minute)
	store.sweep()

	if store.Len() != 1 {
		t.Errorf("Len = %d after sweep, want 1", store.Len())
	}
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "")
	defer store.Close()

	storeContract(t, store, mr.FastForward)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "test:")
	defer store.Close()

	if err := store.Save(context.Background(), "abc", &Data{OAuthState: "x"}, 10*time.Minute); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:abc") {
		t.Fatal("expected key test:abc")
	}
	if ttl := mr.TTL("test:abc"); ttl != 10*time.Minute {
		t.Errorf("TTL = %v, want 10m", ttl)
	}

	mr.Set("test:broken", "{not json")
	if _, err := store.Load(context.Background(), "broken"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisClient(context.Background(), addr, "", 0); err == nil {
		t.Error("expected ping error")
	}
}

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(0), Options{SecretKey: "0123456789abcdef", CookieName: "sid", TTL: time.Hour})
}

// roundTrip saves s and returns a request carrying the resulting cookie.
func roundTrip(t *testing.T, m *Manager, s *Session) *http.Request {
	t.Helper()
	rr := httptest.NewRecorder()
	if err := m.Save(rr, httptest.NewRequest("GET", "/", nil), s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	req := httptest.NewRequest("GET", "/", nil)
	for _, c := range rr.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestManager_BeginSaveLoad(t *testing.T) {
	m := newTestManager()

	s, err := m.Begin(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if s.ID == "" || s.Authenticated() {
		t.Fatalf("unexpected new session %+v", s)
	}
	s.OAuthState = "xyz"

	req := roundTrip(t, m, s)
	loaded, err := m.Load(req)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != s.ID || loaded.OAuthState != "xyz" {
		t.Errorf("loaded %+v, want id %s", loaded, s.ID)
	}

	again, err := m.Begin(req)
	if err != nil || again.ID != s.ID {
		t.Errorf("Begin should reuse the existing session, got %v %v", again, err)
	}
}

func TestManager_CookieAttributes(t *testing.T) {
	m := NewManager(NewMemoryStore(0), Options{SecretKey: "k", CookieName: "sid", TTL: time.Hour, Secure: true})
	rr := httptest.NewRecorder()
	_ = m.Save(rr, httptest.NewRequest("GET", "/", nil), &Session{ID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427"})

	c := rr.Result().Cookies()[0]
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteLaxMode || c.MaxAge != 3600 {
		t.Errorf("unexpected cookie %+v", c)
	}
	if !strings.HasPrefix(c.Value, "1b4e28ba-2fa1-11d2-883f-0016d3cca427.") {
		t.Errorf("cookie value = %q", c.Value)
	}
}

func TestManager_RejectsForgedCookies(t *testing.T) {
	m := newTestManager()
	s, _ := m.Begin(httptest.NewRequest("GET", "/", nil))
	valid := roundTrip(t, m, s).Cookies()[0].Value
	id, _, _ := strings.Cut(valid, ".")

	other := NewManager(NewMemoryStore(0), Options{SecretKey: "another-secret-key", CookieName: "sid"})
	forged := other.sign(id)

	tests := []struct {
		name  string
		value string
	}{
		{name: "no signature", value: id},
		{name: "wrong key", value: forged},
		{name: "tampered id", value: "00000000-0000-0000-0000-000000000000." + strings.SplitN(valid, ".", 2)[1]},
		{name: "garbage", value: "%%%.%%%"},
		{name: "empty", value: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.AddCookie(&http.Cookie{Name: "sid", Value: tt.value})
			if _, err := m.Load(req); !errors.Is(err, ErrNotFound) {
				t.Errorf("Load = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestManager_Renew(t *testing.T) {
	m := newTestManager()
	s, _ := m.Begin(httptest.NewRequest("GET", "/", nil))
	s.OAuthState = "xyz"
	oldReq := roundTrip(t, m, s)
	oldID := s.ID

	if err := m.Renew(context.Background(), s); err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if s.ID == oldID {
		t.Fatal("Renew kept the session id")
	}
	if s.OAuthState != "xyz" {
		t.Errorf("Renew dropped session data: %+v", s.Data)
	}
	if _, err := m.Load(oldReq); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load with old cookie = %v, want ErrNotFound", err)
	}

	loaded, err := m.Load(roundTrip(t, m, s))
	if err != nil || loaded.ID != s.ID {
		t.Errorf("Load with new cookie = %+v, %v", loaded, err)
	}
}

func TestManager_Destroy(t *testing.T) {
	m := newTestManager()
	s, _ := m.Begin(httptest.NewRequest("GET", "/", nil))
	req := roundTrip(t, m, s)

	rr := httptest.NewRecorder()
	if err := m.Destroy(rr, req); err != nil {
		t.Fatal(err)
	}
	if c := rr.Result().Cookies()[0]; c.MaxAge >= 0 {
		t.Errorf("cookie not expired: %+v", c)
	}
	if _, err := m.Load(req); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Destroy = %v", err)
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Error("expected nil session")
	}
	s := &Session{ID: "x"}
	if FromContext(NewContext(context.Background(), s)) != s {
		t.Error("session not returned from context")
	}
}
