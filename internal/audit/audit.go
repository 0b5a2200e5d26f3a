// Package audit stores one record per export: who asked for what, how many
// rows it produced and whether it failed.
//
// PostgresRecorder writes to the export_audit table when a database is
// configured. LogRecorder writes the same fields to the structured log.
// Both implement core.AuditRecorder.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/JonMunkholm/lockexport/internal/config"
	"github.com/JonMunkholm/lockexport/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the audit table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS export_audit (
    id               UUID PRIMARY KEY,
    owner_account_id TEXT        NOT NULL,
    bound_lock_id    TEXT        NOT NULL DEFAULT '',
    scope            TEXT        NOT NULL,
    status           TEXT        NOT NULL,
    rows_exported    INTEGER     NOT NULL DEFAULT 0,
    error_message    TEXT        NOT NULL DEFAULT '',
    duration_ms      BIGINT      NOT NULL,
    request_id       TEXT        NOT NULL DEFAULT '',
    ip_address       TEXT        NOT NULL DEFAULT '',
    user_agent       TEXT        NOT NULL DEFAULT '',
    started_at       TIMESTAMPTZ NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS export_audit_owner_started_idx
    ON export_audit (owner_account_id, started_at DESC);`

const insertSQL = `
INSERT INTO export_audit (
    id, owner_account_id, bound_lock_id, scope, status, rows_exported,
    error_message, duration_ms, request_id, ip_address, user_agent, started_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// maxErrorLen truncates stored error messages.
const maxErrorLen = 2000

// execer is the subset of *pgxpool.Pool the recorder needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRecorder writes audit records to Postgres.
type PostgresRecorder struct {
	db    execer
	newID func() uuid.UUID
}

var _ core.AuditRecorder = (*PostgresRecorder)(nil)

// NewPostgresRecorder creates a recorder on pool. Call EnsureSchema once at
// startup.
func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: pool, newID: uuid.New}
}

// EnsureSchema creates the audit table if it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create export_audit table: %w", err)
	}
	return nil
}

// RecordExport implements core.AuditRecorder.
func (r *PostgresRecorder) RecordExport(ctx context.Context, a core.ExportAudit) error {
	_, err := r.db.Exec(ctx, insertSQL,
		r.newID(),
		a.Scope.OwnerAccountID,
		a.Scope.BoundLockID,
		string(a.Kind),
		a.Status,
		a.Rows,
		truncate(a.Error, maxErrorLen),
		a.Duration.Milliseconds(),
		a.Meta.RequestID,
		a.Meta.IPAddress,
		a.Meta.UserAgent,
		a.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert export audit: %w", err)
	}
	return nil
}

// LogRecorder writes audit records to the structured log.
type LogRecorder struct {
	logger *slog.Logger
}

var _ core.AuditRecorder = (*LogRecorder)(nil)

// NewLogRecorder creates a recorder on logger; nil uses slog.Default().
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

// RecordExport implements core.AuditRecorder. It never fails.
func (r *LogRecorder) RecordExport(ctx context.Context, a core.ExportAudit) error {
	level := slog.LevelInfo
	if a.Status != core.StatusSuccess {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "export audit",
		"owner_account_id", a.Scope.OwnerAccountID,
		"bound_lock_id", a.Scope.BoundLockID,
		"scope", a.Kind,
		"status", a.Status,
		"rows", a.Rows,
		"error", a.Error,
		"duration_ms", a.Duration.Milliseconds(),
		"request_id", a.Meta.RequestID,
		"ip", a.Meta.IPAddress,
		"user_agent", a.Meta.UserAgent,
		"started_at", a.StartedAt.UTC().Format(time.RFC3339),
	)
	return nil
}

// NewPool parses the database URL and opens a verified connection pool.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
