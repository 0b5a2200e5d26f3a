package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/lockexport/internal/core"
	mw "github.com/JonMunkholm/lockexport/internal/web/middleware"
	"github.com/go-chi/chi/v5/middleware"
)

// withRequestMeta adds request id, IP and User-Agent to ctx for the export audit trail.
func withRequestMeta(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMeta(ctx, core.RequestMeta{
		RequestID: middleware.GetReqID(r.Context()),
		IPAddress: mw.ClientIP(r), // Already processed by TrustedRealIP
		UserAgent: r.UserAgent(),
	})
}
