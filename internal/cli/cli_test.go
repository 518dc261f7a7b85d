package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/store"
	"github.com/lazypower/affinity/internal/transcript"
)

// execute runs the root command with args and returns everything it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

// useTempDB points the CLI at a fresh SQLite file.
func useTempDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "affinity.db")
	t.Setenv("AFFINITY_DB", path)
	t.Setenv("AFFINITY_REDIS_ADDR", "")
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "affinity dev") {
		t.Errorf("output = %q", out)
	}
}

func TestSimulate(t *testing.T) {
	opts := simOptions{BuildDays: 10, SilenceDays: 5, Seed: 7, Responsiveness: 0.8}

	opts.Archetype = "anxious_attached"
	anxious, err := simulate(t.Context(), opts)
	if err != nil {
		t.Fatalf("simulate anxious: %v", err)
	}
	opts.Archetype = "secure"
	secure, err := simulate(t.Context(), opts)
	if err != nil {
		t.Fatalf("simulate secure: %v", err)
	}

	if len(anxious.Days) != 15 {
		t.Fatalf("got %d days, want 15", len(anxious.Days))
	}
	if anxious.Days[9].Phase != "build" || anxious.Days[10].Phase != "silence" {
		t.Errorf("phases = %s, %s", anxious.Days[9].Phase, anxious.Days[10].Phase)
	}
	for _, d := range anxious.Days[:10] {
		if d.Outreach != 0 {
			t.Errorf("day %d: outreach during build phase", d.Day)
		}
	}
	if secure.PeakAnxiety >= anxious.PeakAnxiety {
		t.Errorf("secure peak = %v, anxious peak = %v; want secure smaller", secure.PeakAnxiety, anxious.PeakAnxiety)
	}

	var buf bytes.Buffer
	printSimReport(&buf, secure)
	if !strings.Contains(buf.String(), "## secure") || !strings.Contains(buf.String(), "peak anxiety") {
		t.Errorf("report = %q", buf.String())
	}
}

func TestSimulateCommandJSON(t *testing.T) {
	out, err := execute(t, "simulate", "--build-days", "2", "--silence-days", "1", "--json")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if !strings.Contains(out, `"archetype": "anxious_attached"`) || !strings.Contains(out, `"phase": "silence"`) {
		t.Errorf("output = %q", out)
	}
}

const replayLog = `{"at":"2025-01-06T09:00:00Z","type":"user","user_id":"alice","session_id":"s1","content":"morning"}
{"at":"2025-01-06T09:30:00Z","type":"agent","user_id":"alice","session_id":"s1"}
{"at":"2025-01-06T21:30:00Z","type":"tick","user_id":"alice","session_id":"s1"}
{"at":"2025-01-07T09:00:00Z","type":"agent","user_id":"alice","session_id":"s1"}
{"at":"2025-01-07T10:00:00Z","type":"user","content":"anonymous hello"}`

func TestReplay(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()

	entries, err := transcript.ParseLines(replayLog)
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	results, err := replay(t.Context(), db, transcript.Steps(entries, "anon", "default"), "secure", 1)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d relationships, want 2", len(results))
	}

	// Sorted by key: alice/s1 before anon/default.
	alice := results[0]
	if alice.Key != (engine.Key{UserID: "alice", SessionID: "s1"}) {
		t.Fatalf("results[0].Key = %v", alice.Key)
	}
	if alice.Summary.Archetype != "secure" {
		t.Errorf("Archetype = %q, want secure", alice.Summary.Archetype)
	}
	if alice.Summary.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d, want 1", alice.Summary.TotalInteractions)
	}
	if alice.Summary.UnansweredMessageCount != 2 {
		t.Errorf("UnansweredMessageCount = %d, want 2", alice.Summary.UnansweredMessageCount)
	}
	if alice.Summary.DaysInRelationship != 1 {
		t.Errorf("DaysInRelationship = %d, want 1", alice.Summary.DaysInRelationship)
	}

	data, err := db.LoadSnapshot(t.Context(), "anon", "default")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if data == nil {
		t.Error("replayed state not flushed to the store")
	}
}

func TestReplayCommand(t *testing.T) {
	useTempDB(t)
	path := writeFile(t, "events.jsonl", replayLog)

	out, err := execute(t, "replay", path, "--verbose")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	for _, want := range []string{"replayed 5 interactions (2 user, 2 agent, 1 tick)", "alice/s1", "[2025-01-06 09:00] USER"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "replay", writeFile(t, "empty.jsonl", "# nothing\n")); err == nil {
		t.Error("empty log accepted")
	}
}

const legacyState = `{
	"archetype": "secure",
	"anxiety": 55.0,
	"total_interactions": 1200,
	"last_update": "2025-01-05T21:14:03.118823"
}`

func TestImportStateReset(t *testing.T) {
	useTempDB(t)
	path := writeFile(t, "state.json", legacyState)

	out, err := execute(t, "import", "alice", "s1", path)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported alice/s1 [secure, 1200 interactions]") {
		t.Errorf("import output = %q", out)
	}
	if _, err := execute(t, "import", "alice", "s1", path); err == nil {
		t.Error("import overwrote existing state without --force")
	}

	out, err = execute(t, "state", "alice", "s1")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	for _, want := range []string{"## alice/s1", "archetype:      secure", "1,200", "anxiety"} {
		if !strings.Contains(out, want) {
			t.Errorf("state output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "state")
	if err != nil {
		t.Fatalf("state list: %v", err)
	}
	if !strings.Contains(out, "alice/s1") {
		t.Errorf("list output = %q", out)
	}

	if _, err := execute(t, "reset", "alice", "s1"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := execute(t, "state", "alice", "s1"); err == nil || !strings.Contains(err.Error(), "no state stored") {
		t.Errorf("state after reset: err = %v", err)
	}
}

func TestStateArgs(t *testing.T) {
	useTempDB(t)
	if _, err := execute(t, "state", "only-user"); err == nil {
		t.Error("single argument accepted")
	}
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("AFFINITY_REDIS_ADDR", mr.Addr())
	path := writeFile(t, "state.json", legacyState)

	if _, err := execute(t, "import", "bob", "s2", path); err != nil {
		t.Fatalf("import: %v", err)
	}
	out, err := execute(t, "state")
	if err != nil {
		t.Fatalf("state list: %v", err)
	}
	if !strings.Contains(out, "bob/s2") {
		t.Errorf("list output = %q", out)
	}
	if _, err := execute(t, "reset", "bob", "s2"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Errorf("keys left after reset: %v", mr.Keys())
	}
}
