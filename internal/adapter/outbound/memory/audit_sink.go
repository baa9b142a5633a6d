// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// DefaultRetain is the number of entries a writer-backed sink keeps for Recent.
const DefaultRetain = 100

// AuditSink implements judgment.AuditSink. It keeps appended entries in
// memory and, when given a writer, also emits each entry as a JSON line.
// Writer-backed sinks retain only the newest entries; capture-only sinks
// retain everything.
type AuditSink struct {
	writer  io.Writer
	mu      sync.Mutex
	entries []judgment.AuditLogEntry
	retain  int // 0 keeps every entry
	next    int // ring write position once len(entries) == retain
	err     error
}

// NewAuditSink creates a sink that only captures entries.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// NewAuditSinkWithWriter creates a sink writing JSON lines to w and keeping
// the newest retain entries in memory. retain <= 0 uses DefaultRetain.
func NewAuditSinkWithWriter(w io.Writer, retain int) *AuditSink {
	if retain <= 0 {
		retain = DefaultRetain
	}
	return &AuditSink{writer: w, retain: retain}
}

// FailWith makes every subsequent Append return err. Pass nil to recover.
func (s *AuditSink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Append records entry and writes it to the configured writer, if any.
func (s *AuditSink) Append(_ context.Context, entry judgment.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return &judgment.LoggingError{Op: "append", Err: s.err}
	}

	if s.writer != nil {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(entry); err != nil {
			return &judgment.LoggingError{Op: "marshal", Err: err}
		}
		if _, err := s.writer.Write(buf.Bytes()); err != nil {
			return &judgment.LoggingError{Op: "write", Err: err}
		}
	}

	if s.retain > 0 && len(s.entries) == s.retain {
		s.entries[s.next] = entry
		s.next = (s.next + 1) % s.retain
		return nil
	}
	s.entries = append(s.entries, entry)
	return nil
}

// ordered returns retained entries oldest first. Must be called with s.mu held.
func (s *AuditSink) ordered() []judgment.AuditLogEntry {
	out := make([]judgment.AuditLogEntry, 0, len(s.entries))
	out = append(out, s.entries[s.next:]...)
	return append(out, s.entries[:s.next]...)
}

// Entries returns a copy of the retained entries, oldest first.
func (s *AuditSink) Entries() []judgment.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ordered()
}

// Len returns the number of retained entries.
func (s *AuditSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Recent returns up to n entries, newest first.
func (s *AuditSink) Recent(n int) []judgment.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || len(s.entries) == 0 {
		return nil
	}
	all := s.ordered()
	if n > len(all) {
		n = len(all)
	}
	out := make([]judgment.AuditLogEntry, 0, n)
	for i := len(all) - 1; i >= len(all)-n; i-- {
		out = append(out, all[i])
	}
	return out
}

// Compile-time interface verification.
var _ judgment.AuditSink = (*AuditSink)(nil)
