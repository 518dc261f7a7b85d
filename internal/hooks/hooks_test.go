package hooks

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/server"
	"github.com/lazypower/affinity/internal/store"
)

// testClient runs a real affinity server and returns a client pointed at it.
func testClient(t *testing.T) (*Client, *engine.Engine) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	t0 := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	eng := engine.New(db, engine.Options{Seed: 1, Clock: func() time.Time { return t0 }})
	t.Cleanup(eng.Stop)

	ts := httptest.NewServer(server.New(eng, db, "test"))
	t.Cleanup(ts.Close)
	return &Client{http: ts.Client(), serverURL: ts.URL}, eng
}

var alice = engine.Key{UserID: "alice", SessionID: "s1"}

func TestHandleMessage(t *testing.T) {
	client, eng := testClient(t)

	input := &HookInput{
		UserID:       "alice",
		SessionID:    "s1",
		ElapsedHours: dynamics.Float(1),
		Prompt:       "hey, how was your day?",
	}
	var out bytes.Buffer
	if err := dispatch(client, "message", input, &out); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var rc ReplyContext
	if err := json.Unmarshal(out.Bytes(), &rc); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out.String(), err)
	}
	if rc.Category == "" {
		t.Error("empty category")
	}
	if rc.Tone.Assertiveness < 0.2 {
		t.Errorf("Assertiveness = %v", rc.Tone.Assertiveness)
	}
	if rc.FilterEffectiveness < 0 || rc.FilterEffectiveness > 1 {
		t.Errorf("FilterEffectiveness = %v", rc.FilterEffectiveness)
	}
	if rc.Reason != dynamics.ReasonNotResistant {
		t.Errorf("Reason = %q", rc.Reason)
	}

	sum, _ := eng.Summary(t.Context(), alice)
	if sum.TotalInteractions != 1 {
		t.Errorf("TotalInteractions = %d, want 1", sum.TotalInteractions)
	}
}

func TestHandleMessageCalmDownCue(t *testing.T) {
	client, eng := testClient(t)

	before, _ := eng.Summary(t.Context(), alice)
	input := &HookInput{UserID: "alice", SessionID: "s1", ElapsedHours: dynamics.Float(0), Prompt: "Please CALM DOWN."}
	if err := dispatch(client, "message", input, &bytes.Buffer{}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	after, _ := eng.Summary(t.Context(), alice)
	if after.Variables["shame"] <= before.Variables["shame"] {
		t.Errorf("shame %v -> %v, want a rise on calm-down", before.Variables["shame"], after.Variables["shame"])
	}
}

func TestHandleAgent(t *testing.T) {
	client, eng := testClient(t)

	input := &HookInput{UserID: "alice", SessionID: "s1"}
	for range 2 {
		if err := dispatch(client, "agent", input, &bytes.Buffer{}); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	sum, _ := eng.Summary(t.Context(), alice)
	if sum.UnansweredMessageCount != 2 {
		t.Errorf("UnansweredMessageCount = %d, want 2", sum.UnansweredMessageCount)
	}
}

func TestHandleTick(t *testing.T) {
	client, _ := testClient(t)

	input := &HookInput{UserID: "alice", SessionID: "s1", ElapsedHours: dynamics.Float(30)}
	var out bytes.Buffer
	if err := dispatch(client, "tick", input, &out); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	var d dynamics.OutreachDecision
	if err := json.Unmarshal(out.Bytes(), &d); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if d.Multipliers.Anxiety <= 1 {
		t.Errorf("anxiety multiplier = %v after 30h silence, want > 1", d.Multipliers.Anxiety)
	}
}

func TestDispatchErrors(t *testing.T) {
	client, _ := testClient(t)

	if err := dispatch(client, "message", &HookInput{UserID: "alice"}, &bytes.Buffer{}); err == nil {
		t.Error("missing session_id accepted")
	}
	err := dispatch(client, "bogus", &HookInput{UserID: "a", SessionID: "b"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unknown hook event") {
		t.Errorf("err = %v, want unknown hook event", err)
	}
}

func TestApplyCues(t *testing.T) {
	cases := []struct {
		prompt    string
		calmDown  bool
		criticize bool
	}{
		{"good morning!", false, false},
		{"ok, chill out", true, false},
		{"That's wrong and you never listen", false, true},
		{"Relax.", true, false},
		{"planning a relaxing weekend", false, false},
		{"stuck in stupid traffic again", false, false},
		{"honestly you’re stupid", false, true},
		{"", false, false},
	}
	for _, c := range cases {
		h := &HookInput{Prompt: c.prompt}
		h.applyCues()
		if h.Event.UserSaidCalmDown != c.calmDown || h.Event.UserCriticized != c.criticize {
			t.Errorf("%q: calm=%v crit=%v, want %v %v", c.prompt,
				h.Event.UserSaidCalmDown, h.Event.UserCriticized, c.calmDown, c.criticize)
		}
	}

	h := &HookInput{Prompt: "hello", Event: dynamics.Event{UserCriticized: true}}
	h.applyCues()
	if !h.Event.UserCriticized {
		t.Error("applyCues cleared a caller-set flag")
	}
}

func TestHookInputParsing(t *testing.T) {
	raw := `{
		"user_id": "u1",
		"session_id": "abc123",
		"elapsed_hours": 2.5,
		"prompt": "hi",
		"event": {"disclosure_depth": 7, "rival_mentioned": true}
	}`

	var input HookInput
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if input.SessionID != "abc123" || input.UserID != "u1" {
		t.Errorf("IDs = %q/%q", input.UserID, input.SessionID)
	}
	if input.ElapsedHours == nil || *input.ElapsedHours != 2.5 {
		t.Errorf("ElapsedHours = %v", input.ElapsedHours)
	}
	if input.Event.DisclosureDepth == nil || *input.Event.DisclosureDepth != 7 || !input.Event.RivalMentioned {
		t.Errorf("Event = %+v", input.Event)
	}
}

func TestRelationshipPathEscapes(t *testing.T) {
	got := relationshipPath("a/b", "s 1", "tone")
	if got != "/api/relationships/a%2Fb/s%201/tone" {
		t.Errorf("relationshipPath = %q", got)
	}
}

func TestClientHealthyFalseWhenDown(t *testing.T) {
	t.Setenv("AFFINITY_URL", "http://127.0.0.1:1")
	client := NewClient()
	if client.Healthy() {
		t.Error("expected Healthy() = false when server is not running")
	}
}

func TestClientErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := &Client{http: ts.Client(), serverURL: ts.URL}
	data, err := client.Get("/x")
	if err == nil {
		t.Fatal("expected error on 500")
	}
	if !strings.Contains(string(data), "nope") {
		t.Errorf("body = %q", data)
	}
}
