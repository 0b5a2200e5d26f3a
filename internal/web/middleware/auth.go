package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/lockexport/internal/logging"
	"github.com/JonMunkholm/lockexport/internal/session"
)

// RequireSession returns middleware that only lets signed-in browsers
// through. Requests without a valid, authenticated session are redirected to
// loginPath. The session is attached to the request context (see
// session.FromContext).
func RequireSession(sessions *session.Manager, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := sessions.Load(r)
			if err != nil && !errors.Is(err, session.ErrNotFound) {
				// Store failures look like a logged-out user; logging keeps them visible
				logging.FromContext(r.Context()).Error("session load failed",
					"path", r.URL.Path,
					"error", err,
				)
			}
			if err != nil || !s.Authenticated() {
				slog.Debug("auth: no session, redirecting to login", "path", r.URL.Path)
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), s)))
		})
	}
}
