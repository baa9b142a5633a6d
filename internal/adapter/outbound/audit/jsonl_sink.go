// Package audit provides the JSON Lines audit sink: one decision record per
// line, appended to a single file that is never rewritten.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// DefaultPath is the audit trail location used when none is configured.
const DefaultPath = "proof/decision.trace.jsonl"

// JSONLConfig holds configuration for the JSON Lines sink.
type JSONLConfig struct {
	// Path is the audit file. It and its parent directories are created on first write.
	Path string
	// CacheSize is the number of recent entries kept in memory (default 100).
	CacheSize int
}

// JSONLSink implements judgment.AuditSink. Each Append opens the file for
// append, writes one line, fsyncs and closes it, under both a process mutex
// and an exclusive OS file lock so concurrent writers never interleave.
type JSONLSink struct {
	path   string
	cache  *entryCache
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONLSink creates a sink for cfg.Path. No file is touched until the
// first Append; if the file already exists its tail seeds the cache.
func NewJSONLSink(cfg JSONLConfig, logger *slog.Logger) *JSONLSink {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 100
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &JSONLSink{
		path:   cfg.Path,
		cache:  newEntryCache(cfg.CacheSize),
		logger: logger,
	}
	s.populateCache()
	return s
}

// Path returns the audit file path.
func (s *JSONLSink) Path() string {
	return s.path
}

// Append writes entry as a single JSON line.
func (s *JSONLSink) Append(_ context.Context, entry judgment.AuditLogEntry) error {
	line, err := marshalLine(entry)
	if err != nil {
		return &judgment.LoggingError{Op: "marshal", Path: s.path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return &judgment.LoggingError{Op: "create directory", Path: filepath.Dir(s.path), Err: err}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return &judgment.LoggingError{Op: "open", Path: s.path, Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := flockLock(f.Fd()); err != nil {
		return &judgment.LoggingError{Op: "lock", Path: s.path, Err: err}
	}
	defer flockUnlock(f.Fd()) //nolint:errcheck

	if _, err := f.Write(line); err != nil {
		return &judgment.LoggingError{Op: "write", Path: s.path, Err: err}
	}
	if err := f.Sync(); err != nil {
		return &judgment.LoggingError{Op: "sync", Path: s.path, Err: err}
	}

	s.cache.Add(entry)
	return nil
}

// Recent returns up to n of the most recently appended entries, newest first.
func (s *JSONLSink) Recent(n int) []judgment.AuditLogEntry {
	return s.cache.Recent(n)
}

// marshalLine encodes entry as compact JSON terminated by a newline.
// HTML escaping is off so model output is recorded verbatim.
func marshalLine(entry judgment.AuditLogEntry) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(entry); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// populateCache loads the tail of an existing audit file into the cache.
func (s *JSONLSink) populateCache() {
	entries, err := ReadEntries(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("audit cache: failed to read existing trail", "path", s.path, "error", err)
		}
		return
	}

	start := 0
	if len(entries) > s.cache.size {
		start = len(entries) - s.cache.size
	}
	for _, e := range entries[start:] {
		s.cache.Add(e)
	}
}

// ReadEntries decodes every record in a JSON Lines audit file, in file order.
// Blank lines are skipped; a malformed line is an error naming its line number.
func ReadEntries(path string) ([]judgment.AuditLogEntry, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var entries []judgment.AuditLogEntry
	scanner := bufio.NewScanner(f)
	// Model outputs can be large.
	scanner.Buffer(make([]byte, 0, 256*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e judgment.AuditLogEntry
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&e); err != nil {
			return entries, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}

// Compile-time interface verification.
var _ judgment.AuditSink = (*JSONLSink)(nil)

// entryCache is a ring buffer of recent audit entries.
type entryCache struct {
	entries []judgment.AuditLogEntry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

func newEntryCache(size int) *entryCache {
	return &entryCache{
		entries: make([]judgment.AuditLogEntry, size),
		size:    size,
	}
}

// Add adds an entry, overwriting the oldest when full.
func (c *entryCache) Add(e judgment.AuditLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[c.head] = e
	c.head = (c.head + 1) % c.size
	if c.count < c.size {
		c.count++
	}
}

// Recent returns the last n entries, newest first.
func (c *entryCache) Recent(n int) []judgment.AuditLogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || c.count == 0 {
		return nil
	}
	if n > c.count {
		n = c.count
	}

	result := make([]judgment.AuditLogEntry, n)
	for i := 0; i < n; i++ {
		// head is the next write position, so head-1 is the newest.
		idx := (c.head - 1 - i + c.size) % c.size
		result[i] = c.entries[idx]
	}
	return result
}
