package dynamics

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestSnapshotRoundTrip(t *testing.T) {
	s := New("avoidant", t0)
	e := NewEngine(4)
	for i := 0; i < 40; i++ {
		ev := Event{UserMessageReceived: i%2 == 0, UserCriticized: i%7 == 0, RivalMentioned: i%5 == 0}
		e.Update(s, 0.3, ev)
	}
	s.RecordAgentMessage(s.LastUpdate)
	s.SharedMemories = 3
	s.Resistance = ResistanceActive

	data, err := MarshalSnapshot(s)
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	got, err := ParseSnapshot(data, t0.Add(1000*time.Hour))
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}

	for _, v := range Variables {
		if math.Abs(v.Get(got)-v.Get(s)) > 1e-9 {
			t.Errorf("%s = %v, want %v", v.Name, v.Get(got), v.Get(s))
		}
	}
	if got.Archetype != s.Archetype {
		t.Errorf("Archetype = %q, want %q", got.Archetype, s.Archetype)
	}
	if got.NeuroticismBaseline != s.NeuroticismBaseline || got.ProactivityBaseline != s.ProactivityBaseline {
		t.Errorf("baselines = %v/%v, want %v/%v", got.NeuroticismBaseline, got.ProactivityBaseline,
			s.NeuroticismBaseline, s.ProactivityBaseline)
	}
	if got.TotalInteractions != s.TotalInteractions || got.SharedMemories != 3 || got.UnansweredMessageCount != 1 {
		t.Errorf("counters = %d/%d/%d", got.TotalInteractions, got.SharedMemories, got.UnansweredMessageCount)
	}
	if !got.Resistant() {
		t.Error("resistance latch lost")
	}
	for name, pair := range map[string][2]time.Time{
		"relationship_start": {got.RelationshipStart, s.RelationshipStart},
		"last_update":        {got.LastUpdate, s.LastUpdate},
		"last_user_message":  {got.LastUserMessageTime, s.LastUserMessageTime},
		"last_agent_message": {*got.LastAgentMessageTime, *s.LastAgentMessageTime},
	} {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("%s = %v, want %v", name, pair[0], pair[1])
		}
	}

	wantStamps := s.Patterns.Timestamps()
	gotStamps := got.Patterns.Timestamps()
	if len(gotStamps) != len(wantStamps) {
		t.Fatalf("len(timestamps) = %d, want %d", len(gotStamps), len(wantStamps))
	}
	for i := range wantStamps {
		if !gotStamps[i].Equal(wantStamps[i]) {
			t.Errorf("timestamps[%d] = %v, want %v", i, gotStamps[i], wantStamps[i])
		}
	}
	if len(got.Patterns.Hours()) != len(s.Patterns.Hours()) {
		t.Errorf("len(hours) = %d, want %d", len(got.Patterns.Hours()), len(s.Patterns.Hours()))
	}
}

func TestSnapshotUsesOriginalKeys(t *testing.T) {
	data, err := MarshalSnapshot(New("secure", t0))
	if err != nil {
		t.Fatalf("MarshalSnapshot: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{
		"valence", "boundary_assertion", "neuroticism_baseline", "user_interaction_hours",
		"user_message_timestamps", "last_ai_message_time", "resistance_mode",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("key %q missing", key)
		}
	}
	if m["resistance_mode"] != false {
		t.Errorf("resistance_mode = %v, want false", m["resistance_mode"])
	}
	if m["last_ai_message_time"] != nil {
		t.Errorf("last_ai_message_time = %v, want null", m["last_ai_message_time"])
	}
}

func TestParseLegacySnapshotDefaults(t *testing.T) {
	legacy := `{
		"archetype": "anxious_attached",
		"last_update": "2025-01-05T21:14:03.118823",
		"last_user_message_time": "2025-01-05T20:00:00",
		"relationship_start": "2024-12-01T10:00:00.5",
		"total_interactions": 12,
		"shared_memories": 0,
		"valence": 4.2,
		"arousal": 55.0,
		"attachment": 61.5,
		"trust": 40.0,
		"intimacy": 33.0,
		"anxiety": 44.0,
		"loneliness": 51.0,
		"proactivity": 66.0,
		"shame": 2.0,
		"neuroticism": 70.0,
		"attachment_style_anxiety": 80.0,
		"attachment_style_avoidance": 20.0,
		"dependency": 12.0,
		"neuroticism_baseline": 70.0,
		"proactivity_baseline": 70.0
	}`

	s, err := ParseSnapshot([]byte(legacy), t0)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}

	if s.Attachment != 61.5 || s.TotalInteractions != 12 {
		t.Errorf("attachment = %v, total = %d", s.Attachment, s.TotalInteractions)
	}
	defaults := map[string]float64{
		"hurt":               0,
		"resentment":         0,
		"pride":              30,
		"boundary_assertion": 20,
		"emotional_distance": 10,
		"jealousy":           0,
		"vulnerability":      30,
		"passive_aggressive": 0,
	}
	for _, v := range Variables {
		want, ok := defaults[v.Name]
		if ok && v.Get(s) != want {
			t.Errorf("%s = %v, want default %v", v.Name, v.Get(s), want)
		}
	}
	if s.Resistant() || s.UnansweredMessageCount != 0 || s.LastAgentMessageTime != nil {
		t.Errorf("message tracking not defaulted: %v %d %v", s.Resistance, s.UnansweredMessageCount, s.LastAgentMessageTime)
	}
	if s.Patterns.Len() != 0 {
		t.Errorf("Patterns.Len = %d, want 0", s.Patterns.Len())
	}
	want := time.Date(2025, 1, 5, 21, 14, 3, 118823000, time.UTC)
	if !s.LastUpdate.Equal(want) {
		t.Errorf("LastUpdate = %v, want %v", s.LastUpdate, want)
	}
}

func TestParseSnapshotMissingEverything(t *testing.T) {
	s, err := ParseSnapshot([]byte(`{}`), t0)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	fresh := New(DefaultArchetype, t0)
	for _, v := range Variables {
		if v.Get(s) != v.Get(fresh) {
			t.Errorf("%s = %v, want %v", v.Name, v.Get(s), v.Get(fresh))
		}
	}
	if !s.LastUpdate.Equal(t0) || !s.RelationshipStart.Equal(t0) {
		t.Errorf("timestamps = %v/%v, want %v", s.LastUpdate, s.RelationshipStart, t0)
	}
}

func TestParseSnapshotClampsAndAcceptsNamedMode(t *testing.T) {
	s, err := ParseSnapshot([]byte(`{"anxiety": 400, "valence": -900, "resistance_mode": "resistant", "unanswered_message_count": -3}`), t0)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}
	if s.Anxiety != 100 || s.Valence != -100 {
		t.Errorf("anxiety = %v, valence = %v, want clamped", s.Anxiety, s.Valence)
	}
	if !s.Resistant() {
		t.Error("named resistance mode not restored")
	}
	if s.UnansweredMessageCount != 0 {
		t.Errorf("UnansweredMessageCount = %d, want 0", s.UnansweredMessageCount)
	}
}

func TestParseSnapshotCorrupt(t *testing.T) {
	for _, data := range []string{
		``,
		`not json`,
		`null`,
		`[1,2,3]`,
		`{"anxiety": "high"}`,
		`{"last_update": "yesterday"}`,
		`{"user_message_timestamps": ["2025-01-01T00:00:00Z", "garbage"]}`,
		`{"resistance_mode": "sulking"}`,
	} {
		if _, err := ParseSnapshot([]byte(data), t0); err == nil {
			t.Errorf("ParseSnapshot(%q) succeeded, want error", data)
		} else if !strings.Contains(err.Error(), "parse snapshot") {
			t.Errorf("error %q lacks context", err)
		}
	}
}
