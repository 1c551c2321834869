package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions.
const (
	ActionRegister       = "auth.register"
	ActionLoginSuccess   = "auth.login.success"
	ActionLoginFailed    = "auth.login.failed"
	ActionLoginThrottled = "auth.login.rate_limited"
	ActionRefreshSuccess = "auth.refresh.success"
	ActionRefreshFailed  = "auth.refresh.failed"
	ActionLogout         = "auth.logout"
)

// AuditEvent is one security-relevant action. Meta never carries secrets.
type AuditEvent struct {
	Action    string
	UserID    string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Auditor records audit events. Record must not fail the request.
type Auditor interface {
	Record(ctx context.Context, ev AuditEvent)
}

// LogAuditor writes audit events to a logger.
type LogAuditor struct {
	Log *slog.Logger
}

func (a LogAuditor) Record(ctx context.Context, ev AuditEvent) {
	l := a.Log
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{"action", ev.Action}
	if ev.UserID != "" {
		attrs = append(attrs, "user_id", ev.UserID)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	for k, v := range ev.Meta {
		attrs = append(attrs, k, v)
	}
	l.InfoContext(ctx, "audit", attrs...)
}

// Auditors fans an event out to every member.
type Auditors []Auditor

func (as Auditors) Record(ctx context.Context, ev AuditEvent) {
	for _, a := range as {
		if a != nil {
			a.Record(ctx, ev)
		}
	}
}

// PostgresAuditor inserts audit events into <schema>.audit_log.
type PostgresAuditor struct {
	pool  *pgxpool.Pool
	log   *slog.Logger
	table string
}

func NewPostgresAuditor(pool *pgxpool.Pool, log *slog.Logger, schema string) (*PostgresAuditor, error) {
	if pool == nil {
		return nil, errors.New("api: nil db pool")
	}
	if log == nil {
		log = slog.Default()
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "eucl"
	}
	return &PostgresAuditor{
		pool:  pool,
		log:   log,
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
	}, nil
}

func (a *PostgresAuditor) Record(ctx context.Context, ev AuditEvent) {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}

	meta := "{}"
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			meta = string(b)
		}
	}

	_, err := a.pool.Exec(ctx, `
		INSERT INTO `+a.table+` (
			action, user_id, ip, user_agent, meta, created_at
		) VALUES ($1, $2, $3, $4, $5::jsonb, now())
	`, action, trimOrNil(ev.UserID), ipVal, trimOrNil(ev.UserAgent), meta)
	if err != nil {
		a.log.Error("auth.audit.insert.fail", "err", err, "action", action)
	}
}

// CountLoginFailures counts failed logins from ip since since.
func (a *PostgresAuditor) CountLoginFailures(ctx context.Context, ip net.IP, since time.Time) (int, error) {
	if ip == nil {
		return 0, nil
	}
	var n int
	err := a.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM `+a.table+`
		WHERE action = $1
		  AND ip = $2
		  AND created_at >= $3
	`, ActionLoginFailed, ip.String(), since).Scan(&n)
	return n, err
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
