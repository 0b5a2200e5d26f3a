package web

// handlers_auth.go runs the OAuth authorization-code flow against the lock
// platform. The pending state and the resulting token live in the server-side
// session; the browser only holds the signed session cookie.

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/JonMunkholm/lockexport/internal/logging"
	"github.com/JonMunkholm/lockexport/internal/session"
	"github.com/JonMunkholm/lockexport/internal/tapkey"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// handleLogin starts the sign-in flow.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Begin(r)
	if err != nil {
		respondError(w, r, fmt.Errorf("begin session: %w", err), http.StatusInternalServerError)
		return
	}

	sess.OAuthState = uuid.NewString()
	if err := s.sessions.Save(w, r, sess); err != nil {
		respondError(w, r, fmt.Errorf("save session: %w", err), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, s.auth.AuthCodeURL(sess.OAuthState, s.redirectURL(r)), http.StatusFound)
}

// handleCallback finishes the sign-in flow and stores the token.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	logger := logging.FromContext(r.Context())

	if providerErr := q.Get("error"); providerErr != "" {
		respondError(w, r, fmt.Errorf("oauth exchange: provider returned %q: %s", providerErr, q.Get("error_description")), http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Load(r)
	if err != nil || sess.OAuthState == "" ||
		subtle.ConstantTimeCompare([]byte(sess.OAuthState), []byte(q.Get("state"))) != 1 {
		respondError(w, r, errStateMismatch, http.StatusBadRequest)
		return
	}

	// Exchange failures are not redirected to the login route; a code the
	// identity server refuses would loop.
	tok, err := s.auth.Exchange(r.Context(), q.Get("code"), s.redirectURL(r))
	if err != nil {
		respondError(w, r, err, http.StatusBadGateway)
		return
	}

	// A pre-login id may have been planted; the signed-in session gets its own
	if err := s.sessions.Renew(r.Context(), sess); err != nil {
		respondError(w, r, fmt.Errorf("renew session: %w", err), http.StatusInternalServerError)
		return
	}
	sess.OAuthState = ""
	sess.Token = tok
	if err := s.sessions.Save(w, r, sess); err != nil {
		respondError(w, r, fmt.Errorf("save session: %w", err), http.StatusInternalServerError)
		return
	}

	logger.Info("signed in", "session_created_at", sess.CreatedAt)
	http.Redirect(w, r, pathExport, http.StatusFound)
}

// handleLogout forgets the session and its token.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Destroy(w, r); err != nil {
		logging.FromContext(r.Context()).Warn("failed to delete session", "error", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// redirectURL returns the configured callback URL, or one derived from the
// request host when none is configured.
func (s *Server) redirectURL(r *http.Request) string {
	if s.cfg.Tapkey.RedirectURL != "" {
		return s.cfg.Tapkey.RedirectURL
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + pathCallback
}

// remoteClient builds an API client from the session in the request context.
// Refreshed tokens are written back to the session.
func (s *Server) remoteClient(r *http.Request) (*tapkey.Client, error) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return nil, tapkey.ErrNoToken
	}
	return s.auth.Client(r.Context(), sess.Token, func(ctx context.Context, tok *oauth2.Token) error {
		sess.Token = tok
		return s.sessions.Update(ctx, sess)
	})
}
