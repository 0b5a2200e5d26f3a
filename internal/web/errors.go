package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Formatted as JSON or an HTML page depending on the request
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls handleError(w, r, err), which picks the status code
//  3. Sign-in problems redirect to the login route instead of rendering
//  4. Otherwise respondError maps the error via core.MapError, logs the
//     technical error with the request ID and renders the user message

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/lockexport/internal/core"
	"github.com/JonMunkholm/lockexport/internal/logging"
	"github.com/JonMunkholm/lockexport/internal/session"
	"github.com/JonMunkholm/lockexport/internal/tapkey"
	"github.com/JonMunkholm/lockexport/internal/web/templates"
)

// exportRetryAfter is the Retry-After value (seconds) sent when all export
// slots are busy.
const exportRetryAfter = 30

var (
	errRateLimited   = errors.New("rate limit exceeded")
	errStateMismatch = errors.New("oauth state mismatch")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// handleError picks the response for err. Errors that mean the user must
// sign in again redirect browsers to the login route.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// Client went away; nobody is reading the response
		logging.FromContext(r.Context()).Info("request cancelled by client", "path", r.URL.Path)
		return
	}

	if needsLogin(err) && !wantsJSON(r) {
		logging.FromContext(r.Context()).Info("sign-in required", "path", r.URL.Path, "error", err)
		http.Redirect(w, r, pathLogin, http.StatusFound)
		return
	}

	status := statusFor(err)
	if status == http.StatusServiceUnavailable && errors.Is(err, core.ErrTooManyExports) {
		w.Header().Set("Retry-After", strconv.Itoa(exportRetryAfter))
	}
	respondError(w, r, err, status)
}

// needsLogin reports whether err means the stored token is missing, expired
// beyond refresh, or rejected by the remote API.
func needsLogin(err error) bool {
	if tapkey.IsAuthError(err) {
		return true
	}
	re, ok := core.IsRetrieval(err)
	return ok && re.Unauthorized()
}

// statusFor maps an error to the HTTP status returned to the browser.
func statusFor(err error) int {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTooManyExports):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errStateMismatch):
		return http.StatusBadRequest
	case needsLogin(err):
		return http.StatusUnauthorized
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	if re, ok := core.IsRetrieval(err); ok {
		switch re.Status {
		case http.StatusForbidden:
			return http.StatusForbidden
		case http.StatusNotFound:
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns an appropriate response
// based on the request type (JSON or HTML).
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if wantsJSON(r) {
		respondErrorJSON(w, userMsg, statusCode)
		return
	}
	respondErrorHTML(w, r, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML renders the error page.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)

	signedIn := session.FromContext(r.Context()) != nil
	if err := templates.ErrorPage(msg, statusCode, signedIn).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render error page", "error", err)
	}
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
