package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// errBadCookie covers missing, malformed and forged cookies alike.
var errBadCookie = errors.New("invalid session cookie")

// Session is one browser's login state.
type Session struct {
	ID string
	Data
}

// Options configures a Manager.
type Options struct {
	SecretKey  string
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager ties a signed cookie to session data in a Store.
//
// The cookie value is "<uuid>.<base64url HMAC-SHA256(uuid)>"; a cookie whose
// signature does not verify is treated as absent.
type Manager struct {
	store Store
	key   []byte
	opts  Options
	now   func() time.Time
}

// NewManager creates a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "lockexport_session"
	}
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	return &Manager{
		store: store,
		key:   []byte(opts.SecretKey),
		opts:  opts,
		now:   time.Now,
	}
}

// Load returns the session for r, or ErrNotFound when the request carries no
// valid cookie or the session expired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	id, err := m.idFromRequest(r)
	if err != nil {
		return nil, ErrNotFound
	}
	data, err := m.store.Load(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Data: *data}, nil
}

// Begin returns the existing session for r or a new, empty one with a fresh
// id. The cookie is written on Save.
func (m *Manager) Begin(r *http.Request) (*Session, error) {
	s, err := m.Load(r)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return &Session{ID: uuid.NewString(), Data: Data{CreatedAt: m.now()}}, nil
}

// Save stores s and (re)sets the cookie, extending the session lifetime.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	if err := m.store.Save(r.Context(), s.ID, &s.Data, m.opts.TTL); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    m.sign(s.ID),
		Path:     "/",
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Renew moves s to a fresh id and deletes the old entry from the store. Call
// it when the session gains privileges, then Save to issue the new cookie.
func (m *Manager) Renew(ctx context.Context, s *Session) error {
	old := s.ID
	s.ID = uuid.NewString()
	if err := m.store.Delete(ctx, old); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Update stores s without touching the cookie. Used when a token is refreshed
// in the middle of a response.
func (m *Manager) Update(ctx context.Context, s *Session) error {
	return m.store.Save(ctx, s.ID, &s.Data, m.opts.TTL)
}

// Destroy deletes the session for r, if any, and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	var err error
	if id, idErr := m.idFromRequest(r); idErr == nil {
		err = m.store.Delete(r.Context(), id)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return err
}

func (m *Manager) idFromRequest(r *http.Request) (string, error) {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		return "", errBadCookie
	}
	return m.verify(c.Value)
}

func (m *Manager) sign(id string) string {
	return id + "." + base64.RawURLEncoding.EncodeToString(m.mac(id))
}

func (m *Manager) verify(value string) (string, error) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", errBadCookie
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, m.mac(id)) {
		return "", errBadCookie
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", errBadCookie
	}
	return id, nil
}

func (m *Manager) mac(id string) []byte {
	h := hmac.New(sha256.New, m.key)
	h.Write([]byte(id))
	return h.Sum(nil)
}

type contextKey struct{}

// NewContext attaches s to ctx.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session attached by the web middleware, or nil.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}
