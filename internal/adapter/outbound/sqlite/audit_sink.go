// Package sqlite provides an append-only audit sink backed by SQLite.
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// Config configures the SQLite audit sink.
type Config struct {
	// DBPath is the database file. It and its parent directories are created on first write.
	DBPath string
	// BusyTimeout is how long to wait for a lock held by another process.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// AuditSink implements judgment.AuditSink on a single SQLite table whose
// rows cannot be updated or deleted. Each row also stores the exact JSON
// line the file sink would have written, so the trail can be exported
// verbatim.
type AuditSink struct {
	cfg    Config
	mu     sync.Mutex
	db     *sql.DB
	insert *sql.Stmt
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS judgment_audit (
	seq                  INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp            TEXT NOT NULL,
	system               TEXT NOT NULL,
	platform             TEXT NOT NULL,
	plugin               TEXT NOT NULL,
	command              TEXT NOT NULL,
	decision             TEXT NOT NULL,
	policy_id            TEXT NOT NULL,
	condition_id         TEXT NOT NULL,
	irreversible         INTEGER NOT NULL,
	record               TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_judgment_audit_decision ON judgment_audit(decision);

CREATE TRIGGER IF NOT EXISTS judgment_audit_no_update
BEFORE UPDATE ON judgment_audit
BEGIN
	SELECT RAISE(ABORT, 'judgment_audit is append-only');
END;

CREATE TRIGGER IF NOT EXISTS judgment_audit_no_delete
BEFORE DELETE ON judgment_audit
BEGIN
	SELECT RAISE(ABORT, 'judgment_audit is append-only');
END;
`

// NewAuditSink returns a sink for cfg. The database is opened lazily.
// Paths containing '?' or '#' are rejected because they would be read as
// DSN query or fragment separators.
func NewAuditSink(cfg Config) (*AuditSink, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if strings.ContainsAny(cfg.DBPath, "?#") {
		return nil, fmt.Errorf("db path %q must not contain '?' or '#'", cfg.DBPath)
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	return &AuditSink{cfg: cfg}, nil
}

// openLocked opens the database and prepares the schema. Must be called with s.mu held.
func (s *AuditSink) openLocked() error {
	if s.db != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.DBPath), 0750); err != nil {
		return &judgment.LoggingError{Op: "create directory", Path: filepath.Dir(s.cfg.DBPath), Err: err}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)",
		s.cfg.DBPath, s.cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &judgment.LoggingError{Op: "open", Path: s.cfg.DBPath, Err: err}
	}
	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return &judgment.LoggingError{Op: "init schema", Path: s.cfg.DBPath, Err: err}
	}

	insert, err := db.Prepare(`
		INSERT INTO judgment_audit
			(timestamp, system, platform, plugin, command, decision, policy_id, condition_id, irreversible, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return &judgment.LoggingError{Op: "prepare", Path: s.cfg.DBPath, Err: err}
	}

	s.db = db
	s.insert = insert
	return nil
}

// Append inserts entry as one row.
func (s *AuditSink) Append(ctx context.Context, entry judgment.AuditLogEntry) error {
	record, err := marshalRecord(entry)
	if err != nil {
		return &judgment.LoggingError{Op: "marshal", Path: s.cfg.DBPath, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &judgment.LoggingError{Op: "append", Path: s.cfg.DBPath, Err: sql.ErrConnDone}
	}
	if err := s.openLocked(); err != nil {
		return err
	}

	irreversible := 0
	if entry.Irreversible {
		irreversible = 1
	}
	_, err = s.insert.ExecContext(ctx,
		entry.Timestamp,
		entry.System,
		entry.Platform,
		entry.Plugin,
		entry.Command,
		string(entry.Judgment.Decision),
		entry.Judgment.PolicyID,
		entry.Judgment.ConditionID,
		irreversible,
		record,
	)
	if err != nil {
		return &judgment.LoggingError{Op: "insert", Path: s.cfg.DBPath, Err: err}
	}
	return nil
}

// Entries returns every stored entry in insertion order. An existing
// database is opened for reading so history is visible before the first
// append of this process.
func (s *AuditSink) Entries(ctx context.Context) ([]judgment.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &judgment.LoggingError{Op: "read", Path: s.cfg.DBPath, Err: sql.ErrConnDone}
	}
	if s.db == nil {
		if _, err := os.Stat(s.cfg.DBPath); errors.Is(err, fs.ErrNotExist) {
			return []judgment.AuditLogEntry{}, nil
		}
		if err := s.openLocked(); err != nil {
			return nil, err
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT record FROM judgment_audit ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := []judgment.AuditLogEntry{}
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		var e judgment.AuditLogEntry
		dec := json.NewDecoder(strings.NewReader(record))
		dec.UseNumber()
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// marshalRecord encodes entry exactly as the JSON Lines sink does, without
// the trailing newline.
func marshalRecord(entry judgment.AuditLogEntry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// Close releases the database handle.
func (s *AuditSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db == nil {
		return nil
	}
	_ = s.insert.Close()
	return s.db.Close()
}

// Compile-time interface verification.
var _ judgment.AuditSink = (*AuditSink)(nil)
