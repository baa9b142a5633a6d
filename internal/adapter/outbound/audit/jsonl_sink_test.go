package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/Sentinel-Gate/echo-judgment/internal/domain/judgment"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeEntry(state judgment.State, condID string) judgment.AuditLogEntry {
	return judgment.AuditLogEntry{
		Timestamp:   "2026-10-19T12:00:00Z",
		System:      judgment.DefaultSystem,
		Platform:    judgment.DefaultPlatform,
		Plugin:      "legal",
		Command:     "triage-nda",
		ModelOutput: judgment.ModelOutput{"classification": "GREEN <b>"},
		Judgment: judgment.JudgmentRecord{
			Decision:    state,
			Reason:      "reason",
			PolicyID:    "nda-triage-v1",
			ConditionID: condID,
		},
		RequiredNextAction: []string{},
		Irreversible:       state == judgment.StateStop,
	}
}

func TestJSONLSink_LazyCreate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "proof", "nested", "decision.trace.jsonl")
	sink := NewJSONLSink(JSONLConfig{Path: path}, testLogger())

	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Fatalf("directory created before first write: %v", err)
	}

	if err := sink.Append(context.Background(), makeEntry(judgment.StateHold, "c1")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("audit file not created: %v", err)
	}
}

func TestJSONLSink_WireShape(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sink := NewJSONLSink(JSONLConfig{Path: path}, testLogger())

	if err := sink.Append(context.Background(), makeEntry(judgment.StateStop, "catch-all")); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSuffix(string(data), "\n")
	if strings.Contains(line, "\n") {
		t.Fatalf("record spans multiple lines: %q", line)
	}

	wantPrefix := `{"timestamp":"2026-10-19T12:00:00Z","system":"Echo Judgment Adapter","platform":"Claude Code",` +
		`"plugin":"legal","command":"triage-nda","model_output":{"classification":"GREEN <b>"},` +
		`"judgment":{"decision":"STOP","reason":"reason","policy_id":"nda-triage-v1","condition_id":"catch-all"},` +
		`"required_next_action":[],"irreversible":true}`
	if line != wantPrefix {
		t.Errorf("line =\n%s\nwant\n%s", line, wantPrefix)
	}
}

func TestJSONLSink_AppendOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	if err := os.WriteFile(path, []byte(`{"timestamp":"earlier","judgment":{"decision":"HOLD"}}`+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	sink := NewJSONLSink(JSONLConfig{Path: path}, testLogger())
	for i := 0; i < 3; i++ {
		if err := sink.Append(context.Background(), makeEntry(judgment.StateHold, fmt.Sprintf("c%d", i))); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("ReadEntries() error: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	if entries[0].Timestamp != "earlier" {
		t.Errorf("existing record rewritten: %+v", entries[0])
	}
	for i := 1; i < 4; i++ {
		if want := fmt.Sprintf("c%d", i-1); entries[i].Judgment.ConditionID != want {
			t.Errorf("entries[%d] condition = %s, want %s", i, entries[i].Judgment.ConditionID, want)
		}
	}
}

func TestJSONLSink_ConcurrentAppendsDoNotInterleave(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sink := NewJSONLSink(JSONLConfig{Path: path, CacheSize: 10}, testLogger())

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = sink.Append(context.Background(), makeEntry(judgment.StateHold, fmt.Sprintf("w%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != writers*perWriter {
		t.Fatalf("lines = %d, want %d", len(lines), writers*perWriter)
	}
	for i, l := range lines {
		var e judgment.AuditLogEntry
		if err := json.Unmarshal([]byte(l), &e); err != nil {
			t.Fatalf("line %d is not a complete record: %v", i, err)
		}
	}
}

func TestJSONLSink_RecentAndPopulate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	sink := NewJSONLSink(JSONLConfig{Path: path, CacheSize: 2}, testLogger())
	for _, id := range []string{"a", "b", "c"} {
		if err := sink.Append(context.Background(), makeEntry(judgment.StateHold, id)); err != nil {
			t.Fatal(err)
		}
	}

	recent := sink.Recent(5)
	if len(recent) != 2 || recent[0].Judgment.ConditionID != "c" || recent[1].Judgment.ConditionID != "b" {
		t.Errorf("Recent() = %+v, want c,b", recent)
	}

	reopened := NewJSONLSink(JSONLConfig{Path: path, CacheSize: 2}, testLogger())
	recent = reopened.Recent(2)
	if len(recent) != 2 || recent[0].Judgment.ConditionID != "c" {
		t.Errorf("populated Recent() = %+v", recent)
	}
	if reopened.Recent(0) != nil {
		t.Error("Recent(0) should be nil")
	}
}

func TestJSONLSink_UnwritablePath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "proof")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0600); err != nil {
		t.Fatal(err)
	}

	sink := NewJSONLSink(JSONLConfig{Path: filepath.Join(blocker, "trace.jsonl")}, testLogger())
	err := sink.Append(context.Background(), makeEntry(judgment.StateHold, "c"))
	if !judgment.IsLoggingError(err) {
		t.Fatalf("Append() error = %v, want LoggingError", err)
	}
}

func TestReadEntries_MalformedLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trace.jsonl")
	if err := os.WriteFile(path, []byte("{}\n\n{broken\n"), 0600); err != nil {
		t.Fatal(err)
	}
	entries, err := ReadEntries(path)
	if err == nil || !strings.Contains(err.Error(), ":3:") {
		t.Errorf("ReadEntries() error = %v, want line 3", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries before error = %d, want 1", len(entries))
	}
}

func TestReadEntries_KeepsExactNumbers(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trail.jsonl")
	sink := NewJSONLSink(JSONLConfig{Path: path}, testLogger())
	e := makeEntry(judgment.StateHold, "c1")
	e.ModelOutput = judgment.ModelOutput{"account": json.Number("9007199254740993")}
	if err := sink.Append(context.Background(), e); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	entries, err := ReadEntries(path)
	if err != nil {
		t.Fatalf("ReadEntries() error: %v", err)
	}
	if n, ok := entries[0].ModelOutput["account"].(json.Number); !ok || n.String() != "9007199254740993" {
		t.Errorf("account = %#v, want exact json.Number", entries[0].ModelOutput["account"])
	}
}
