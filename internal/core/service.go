package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/lockexport/internal/logging"
)

// DefaultExportTimeout bounds a single export including all remote calls.
const DefaultExportTimeout = 5 * time.Minute

// ExportAudit describes one finished (or failed) export for the audit trail.
type ExportAudit struct {
	Scope     Scope
	Kind      ScopeKind
	Status    string
	Rows      int
	Error     string
	Duration  time.Duration
	Meta      RequestMeta
	StartedAt time.Time
}

// AuditRecorder stores export audit records. See internal/audit.
type AuditRecorder interface {
	RecordExport(ctx context.Context, a ExportAudit) error
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Export        ExportOptions
	Timeout       time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
}

// Service runs exports with concurrency limits, deadlines, auditing and metrics.
// Remote clients are per user and passed to each call; the Service itself holds
// no user state.
type Service struct {
	opts    ExportOptions
	timeout time.Duration
	limiter *ExportLimiter
	audit   AuditRecorder
	metrics Metrics
}

// NewService creates a Service. A nil audit or metrics disables that concern.
func NewService(cfg ServiceConfig, audit AuditRecorder, metrics Metrics) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExportTimeout
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		opts:    cfg.Export,
		timeout: cfg.Timeout,
		limiter: NewExportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		audit:   audit,
		metrics: metrics,
	}
}

// ExportRequest is one user's export request.
type ExportRequest struct {
	Scope Scope
	// OrderBy overrides the configured $orderby for log entries when non-empty.
	OrderBy string
}

// Export runs one export through client and returns the finished report.
func (s *Service) Export(ctx context.Context, client Client, req ExportRequest) (*Report, error) {
	if err := ValidateScope(req.Scope); err != nil {
		return nil, err
	}

	kind := req.Scope.Kind()
	logger := logging.WithFields(ctx,
		"owner_account_id", req.Scope.OwnerAccountID,
		"bound_lock_id", req.Scope.BoundLockID,
		"scope", kind,
	)

	if err := s.limiter.Acquire(ctx); err != nil {
		s.metrics.ObserveExport(kind, StatusRejected, 0, 0)
		logger.Warn("export rejected", "error", err)
		return nil, err
	}
	defer s.limiter.Release()

	exportCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := s.opts
	if req.OrderBy != "" {
		opts.OrderBy = req.OrderBy
	}

	start := time.Now()
	logger.Info("export started")

	report, err := NewExporter(client, opts, s.metrics).Export(exportCtx, req.Scope)
	duration := time.Since(start)

	record := ExportAudit{
		Scope:     req.Scope,
		Kind:      kind,
		Duration:  duration,
		Meta:      RequestMetaFromContext(ctx),
		StartedAt: start,
	}
	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()
		s.metrics.ObserveExport(kind, StatusFailed, 0, duration)
		logger.Error("export failed", "error", err, "duration_ms", duration.Milliseconds())
	} else {
		record.Status = StatusSuccess
		record.Rows = len(report.Rows)
		s.metrics.ObserveExport(kind, StatusSuccess, len(report.Rows), duration)
		logger.Info("export completed", "rows", len(report.Rows), "duration_ms", duration.Milliseconds())
	}
	s.recordAudit(ctx, record)

	if err != nil {
		return nil, err
	}
	return report, nil
}

// recordAudit stores the audit record. Failures are logged, never returned.
func (s *Service) recordAudit(ctx context.Context, a ExportAudit) {
	if s.audit == nil {
		return
	}
	// The request may already be cancelled; the audit write should still happen.
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.audit.RecordExport(auditCtx, a); err != nil {
		logging.FromContext(ctx).Error("failed to record export audit", "error", err)
	}
}

// ListOwnerAccounts returns the owner accounts visible to the user, each with
// its bound locks, for the scope picker.
func (s *Service) ListOwnerAccounts(ctx context.Context, client Client) ([]OwnerAccount, error) {
	owners, err := getArray[OwnerAccount](ctx, client, "Owners", nil)
	if err != nil {
		return nil, err
	}
	for i := range owners {
		if !ValidID(owners[i].ID) {
			return nil, &RetrievalError{Path: "Owners", Err: fmt.Errorf("%w: %q", ErrInvalidKey, owners[i].ID)}
		}
		q := Query{}.With(ParamSelect, "id,title")
		locks, err := FetchAll[BoundLock](ctx, client, ownerPath(owners[i].ID)+"/BoundLocks", q, s.pageSize())
		if err != nil {
			return nil, err
		}
		owners[i].BoundLocks = locks
	}
	return owners, nil
}

// LimiterStatus returns the export limiter state.
func (s *Service) LimiterStatus() ExportLimiterStatus {
	return s.limiter.Status()
}

// WaitForExports blocks until running exports finish or ctx is done.
func (s *Service) WaitForExports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) pageSize() int {
	if s.opts.PageSize > 0 {
		return s.opts.PageSize
	}
	return DefaultPageSize
}

// IsRetrieval reports whether err is a RetrievalError and returns it.
func IsRetrieval(err error) (*RetrievalError, bool) {
	var re *RetrievalError
	ok := errors.As(err, &re)
	return re, ok
}
