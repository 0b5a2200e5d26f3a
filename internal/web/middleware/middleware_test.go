package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/lockexport/internal/session"
	"golang.org/x/oauth2"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name       string
		trusted    []string
		remoteAddr string
		realIP     string
		forwarded  string
		want       string
	}{
		{name: "no trusted proxies", trusted: nil, remoteAddr: "10.0.0.1:1234", realIP: "1.2.3.4", want: "10.0.0.1:1234"},
		{name: "trusted cidr uses X-Real-IP", trusted: []string{"10.0.0.0/8"}, remoteAddr: "10.0.0.1:1234", realIP: "1.2.3.4", want: "1.2.3.4"},
		{name: "trusted single ip", trusted: []string{"127.0.0.1"}, remoteAddr: "127.0.0.1:80", forwarded: "5.6.7.8, 10.0.0.2", want: "5.6.7.8"},
		{name: "untrusted peer ignored", trusted: []string{"10.0.0.0/8"}, remoteAddr: "192.168.1.1:1234", realIP: "1.2.3.4", want: "192.168.1.1:1234"},
		{name: "invalid header ignored", trusted: []string{"10.0.0.0/8"}, remoteAddr: "10.0.0.1:1234", realIP: "not-an-ip", want: "10.0.0.1:1234"},
		{name: "invalid cidr skipped", trusted: []string{"garbage", "10.0.0.0/8"}, remoteAddr: "10.1.2.3:1", realIP: "9.9.9.9", want: "9.9.9.9"},
		{name: "ipv6 proxy", trusted: []string{"::1"}, remoteAddr: "[::1]:443", realIP: "2001:db8::1", want: "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Errorf("ClientIP = %q", got)
	}
	req.RemoteAddr = "1.2.3.4"
	if got := ClientIP(req); got != "1.2.3.4" {
		t.Errorf("ClientIP = %q", got)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	req := httptest.NewRequest("GET", "/download", nil)
	req.RemoteAddr = "10.0.0.1:1"
	h.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "path=/download", "status=503", "bytes=4", "ip=10.0.0.1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q: %s", want, out)
		}
	}
}

func TestRequireSession(t *testing.T) {
	mgr := session.NewManager(session.NewMemoryStore(0), session.Options{SecretKey: "0123456789abcdef", CookieName: "sid", TTL: time.Hour})

	var reached *session.Session
	h := RequireSession(mgr, "/tapkey")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = session.FromContext(r.Context())
	}))

	// Without a cookie
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/export", nil))
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "/tapkey" {
		t.Fatalf("expected redirect to /tapkey, got %d %q", rr.Code, rr.Header().Get("Location"))
	}

	// A session that has not finished login is still redirected
	s, _ := mgr.Begin(httptest.NewRequest("GET", "/", nil))
	s.OAuthState = "pending"
	save := httptest.NewRecorder()
	_ = mgr.Save(save, httptest.NewRequest("GET", "/", nil), s)
	cookie := save.Result().Cookies()[0]

	req := httptest.NewRequest("GET", "/export", nil)
	req.AddCookie(cookie)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusFound {
		t.Fatalf("pending login should redirect, got %d", rr.Code)
	}

	// Signed in
	s.Token = &oauth2.Token{AccessToken: "a"}
	_ = mgr.Save(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), s)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || reached == nil || reached.ID != s.ID {
		t.Errorf("signed-in request not passed through: code=%d session=%v", rr.Code, reached)
	}
}
