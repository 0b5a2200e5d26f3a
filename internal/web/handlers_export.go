package web

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/JonMunkholm/lockexport/internal/core"
	"github.com/JonMunkholm/lockexport/internal/logging"
	"github.com/JonMunkholm/lockexport/internal/web/templates"
)

// handleExportPage renders the picker with every owner account and its locks.
func (s *Server) handleExportPage(w http.ResponseWriter, r *http.Request) {
	client, err := s.remoteClient(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	owners, err := s.service.ListOwnerAccounts(r.Context(), client)
	if err != nil {
		handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.ExportPage(owners).Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render export page", "error", err)
	}
}

// handleDownload runs one export and returns it as a CSV attachment.
//
// The report is encoded into memory first so a failure never leaves the
// browser with a truncated file and a 200 status.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orderBy, err := parseOrder(q.Get("order"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	scope := core.Scope{
		OwnerAccountID: strings.TrimSpace(q.Get("owner_account_id")),
		BoundLockID:    strings.TrimSpace(q.Get("bound_lock_id")),
	}

	client, err := s.remoteClient(r)
	if err != nil {
		handleError(w, r, err)
		return
	}

	ctx := withRequestMeta(r.Context(), r)
	report, err := s.service.Export(ctx, client, core.ExportRequest{Scope: scope, OrderBy: orderBy})
	if err != nil {
		handleError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := core.EncodeReport(&buf, report); err != nil {
		handleError(w, r, fmt.Errorf("encode report: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.FromContext(r.Context()).Warn("download write failed", "error", err, "bytes", buf.Len())
	}
}

// parseOrder maps the order parameter to a log entry $orderby. Empty keeps
// the configured default.
func parseOrder(order string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "":
		return "", nil
	case "desc":
		return "lockTimestamp desc", nil
	case "asc":
		return "lockTimestamp asc", nil
	}
	return "", &core.ValidationError{Field: "order", Reason: "must be asc or desc"}
}
