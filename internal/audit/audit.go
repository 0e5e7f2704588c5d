// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package audit records an append-only, best-effort trail of the decisions
// the gate has already made. It is not session state: unlike the
// provenance registry, the audit log is explicitly permitted to persist
// across process restarts, and a write failure here never changes the
// decision already returned to the harness — it only degrades
// observability, logged with escalating severity the longer it persists.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	gateerr "github.com/openclaw-dev/openclaw-gate/pkg/errors"
	"github.com/openclaw-dev/openclaw-gate/pkg/provtypes"
)

// EscalationThreshold is the number of consecutive append failures after
// which log severity escalates from Warn to Error.
const EscalationThreshold = 3

// Entry is one recorded decision.
type Entry struct {
	ID         string
	Timestamp  time.Time
	SessionID  string
	ToolName   string
	ToolCallID string
	Verdict    provtypes.Verdict
	RuleID     provtypes.RuleID
	Reason     string
	Metadata   map[string]any
}

// Filter selects a subset of the audit log for Query.
type Filter struct {
	SessionID string
	ToolName  string
	Verdict   provtypes.Verdict
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// Sink is the append/query surface the gate engine depends on. Defined as
// an interface so the engine can be tested against an in-memory fake
// without touching a real database file.
type Sink interface {
	Append(ctx context.Context, entry *Entry) error
	Query(ctx context.Context, filter Filter) ([]*Entry, error)
	Close() error
}

// Store is a SQLite-backed Sink.
type Store struct {
	db        *sql.DB
	failCount atomic.Int64
}

var _ Sink = (*Store)(nil)

// Open opens (or creates) the audit database at dbPath and ensures its
// schema exists.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, gateerr.Wrap(err, gateerr.CodeAuditOpenFailure, "opening audit database")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, gateerr.Wrap(err, gateerr.CodeAuditOpenFailure, "pinging audit database")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, gateerr.Wrap(err, gateerr.CodeAuditOpenFailure, "migrating audit database")
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS decisions (
	id            TEXT PRIMARY KEY,
	timestamp     TEXT NOT NULL,
	session_id    TEXT NOT NULL DEFAULT '',
	tool_name     TEXT NOT NULL DEFAULT '',
	tool_call_id  TEXT NOT NULL DEFAULT '',
	verdict       TEXT NOT NULL DEFAULT '',
	rule_id       TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	metadata      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_decisions_timestamp  ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_session_id ON decisions(session_id);
CREATE INDEX IF NOT EXISTS idx_decisions_verdict    ON decisions(verdict);
`
	_, err := db.Exec(ddl)
	return err
}

// Append inserts entry, assigning an id via uuid if absent.
func (s *Store) Append(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	metadata := "{}"
	if entry.Metadata != nil {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return gateerr.Wrap(err, gateerr.CodeAuditAppendFailure, "marshalling decision metadata")
		}
		metadata = string(b)
	}

	const q = `INSERT INTO decisions (id, timestamp, session_id, tool_name, tool_call_id, verdict, rule_id, reason, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		entry.ID, entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.SessionID,
		entry.ToolName, entry.ToolCallID, string(entry.Verdict), string(entry.RuleID),
		entry.Reason, metadata,
	)
	if err != nil {
		return gateerr.Wrap(err, gateerr.CodeAuditAppendFailure, fmt.Sprintf("appending audit entry %s", entry.ID))
	}
	return nil
}

// Query returns entries matching filter, most recent first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]*Entry, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, session_id, tool_name, tool_call_id, verdict, rule_id, reason, metadata FROM decisions`)

	var conditions []string
	var args []any

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, filter.SessionID)
	}
	if filter.ToolName != "" {
		conditions = append(conditions, "tool_name = ?")
		args = append(args, filter.ToolName)
	}
	if filter.Verdict != "" {
		conditions = append(conditions, "verdict = ?")
		args = append(args, string(filter.Verdict))
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}
	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY timestamp DESC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, gateerr.Wrap(err, gateerr.CodeAuditAppendFailure, "querying decisions")
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ts, verdict, ruleID, metadataJSON string
		if err := rows.Scan(&e.ID, &ts, &e.SessionID, &e.ToolName, &e.ToolCallID, &verdict, &ruleID, &e.Reason, &metadataJSON); err != nil {
			return nil, gateerr.Wrap(err, gateerr.CodeAuditAppendFailure, "scanning decision row")
		}
		e.Verdict = provtypes.Verdict(verdict)
		e.RuleID = provtypes.RuleID(ruleID)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, gateerr.Wrap(err, gateerr.CodeAuditAppendFailure, "parsing decision timestamp")
		}
		if metadataJSON != "" && metadataJSON != "{}" {
			if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
				return nil, gateerr.Wrap(err, gateerr.CodeAuditAppendFailure, "parsing decision metadata")
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendBestEffort appends entry and logs (rather than propagates) any
// failure, escalating from Warn to Error once consecutive_failures reaches
// EscalationThreshold. Callers on the gate's hot path use this instead of
// Append directly — an audit outage must never change a decision already
// made.
func AppendBestEffort(ctx context.Context, sink Sink, entry *Entry) {
	if sink == nil {
		return
	}

	backing, isSQLite := sink.(*Store)
	if err := sink.Append(ctx, entry); err != nil {
		if !isSQLite {
			slog.Warn("audit append failed", "session_id", entry.SessionID, "tool", entry.ToolName, "error", err)
			return
		}
		consecutive := backing.failCount.Add(1)
		fields := []any{"session_id", entry.SessionID, "tool", entry.ToolName, "error", err, "consecutive_failures", consecutive}
		if consecutive >= EscalationThreshold {
			slog.Error("audit append failure (persistent)", fields...)
		} else {
			slog.Warn("audit append failure (best-effort, not blocking)", fields...)
		}
		return
	}

	if isSQLite {
		backing.failCount.Store(0)
	}
}
