package dynamics

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lazypower/affinity/internal/temporal"
)

// Snapshot keys that are not bounded variables.
const (
	keyArchetype         = "archetype"
	keyRelationshipStart = "relationship_start"
	keyLastUpdate        = "last_update"
	keyLastUserMessage   = "last_user_message_time"
	keyLastAgentMessage  = "last_ai_message_time"
	keyTotalInteractions = "total_interactions"
	keySharedMemories    = "shared_memories"
	keyUnanswered        = "unanswered_message_count"
	keyResistance        = "resistance_mode"
	keyNeuroticismBase   = "neuroticism_baseline"
	keyProactivityBase   = "proactivity_baseline"
	keyInteractionHours  = "user_interaction_hours"
	keyMessageTimestamps = "user_message_timestamps"
)

// legacyTimeLayouts are accepted on load in addition to RFC 3339. Older
// snapshots were written without a zone and are read as UTC.
var legacyTimeLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// MarshalSnapshot encodes s as a flat JSON object.
func MarshalSnapshot(s *State) ([]byte, error) {
	m := make(map[string]any, len(Variables)+16)
	for _, v := range Variables {
		m[v.Name] = v.Get(s)
	}
	m[keyArchetype] = s.Archetype
	m[keyRelationshipStart] = formatTime(s.RelationshipStart)
	m[keyLastUpdate] = formatTime(s.LastUpdate)
	m[keyLastUserMessage] = formatTime(s.LastUserMessageTime)
	if s.LastAgentMessageTime != nil {
		m[keyLastAgentMessage] = formatTime(*s.LastAgentMessageTime)
	} else {
		m[keyLastAgentMessage] = nil
	}
	m[keyTotalInteractions] = s.TotalInteractions
	m[keySharedMemories] = s.SharedMemories
	m[keyUnanswered] = s.UnansweredMessageCount
	m[keyResistance] = s.Resistant()
	m[keyNeuroticismBase] = s.NeuroticismBaseline
	m[keyProactivityBase] = s.ProactivityBaseline

	stamps := s.Patterns.Timestamps()
	encoded := make([]string, len(stamps))
	for i, t := range stamps {
		encoded[i] = formatTime(t)
	}
	m[keyInteractionHours] = s.Patterns.Hours()
	m[keyMessageTimestamps] = encoded

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// ParseSnapshot decodes a snapshot. Missing keys take the value a fresh
// relationship would have, so partial and older snapshots load cleanly.
// Timestamps that are absent default to now. An error means the data is
// not a snapshot at all; callers treat that as no prior state.
func ParseSnapshot(data []byte, now time.Time) (*State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("parse snapshot: not an object")
	}

	d := decoder{raw: raw}
	archetype := DefaultArchetype
	d.text(keyArchetype, &archetype)

	s := New(archetype, now)
	for _, v := range Variables {
		x := v.Get(s)
		d.float(v.Name, &x)
		v.Set(s, x)
	}
	d.float(keyNeuroticismBase, &s.NeuroticismBaseline)
	d.float(keyProactivityBase, &s.ProactivityBaseline)
	s.NeuroticismBaseline = clampUnit(s.NeuroticismBaseline)
	s.ProactivityBaseline = clampUnit(s.ProactivityBaseline)

	d.integer(keyTotalInteractions, &s.TotalInteractions)
	d.integer(keySharedMemories, &s.SharedMemories)
	d.integer(keyUnanswered, &s.UnansweredMessageCount)
	d.resistance(keyResistance, &s.Resistance)

	d.timestamp(keyRelationshipStart, &s.RelationshipStart)
	d.timestamp(keyLastUpdate, &s.LastUpdate)
	s.LastUserMessageTime = s.LastUpdate
	d.timestamp(keyLastUserMessage, &s.LastUserMessageTime)
	if _, ok := raw[keyLastAgentMessage]; ok {
		var t time.Time
		if d.timestamp(keyLastAgentMessage, &t) {
			s.LastAgentMessageTime = &t
		}
	}

	var hours []int
	var stampStrs []string
	d.decode(keyInteractionHours, &hours)
	d.decode(keyMessageTimestamps, &stampStrs)
	stamps := make([]time.Time, 0, len(stampStrs))
	for _, str := range stampStrs {
		t, err := parseTime(str)
		if err != nil {
			d.fail(keyMessageTimestamps, err)
			break
		}
		stamps = append(stamps, t.UTC())
	}
	s.Patterns = temporal.Restore(hours, stamps)

	if d.err != nil {
		return nil, d.err
	}
	if s.TotalInteractions < 0 {
		s.TotalInteractions = 0
	}
	if s.SharedMemories < 0 {
		s.SharedMemories = 0
	}
	if s.UnansweredMessageCount < 0 {
		s.UnansweredMessageCount = 0
	}
	return s, nil
}

// decoder reads optional keys and records the first type error.
type decoder struct {
	raw map[string]json.RawMessage
	err error
}

func (d *decoder) fail(key string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("parse snapshot %s: %w", key, err)
	}
}

// decode unmarshals key into dst when present and not null. It reports
// whether a value was written.
func (d *decoder) decode(key string, dst any) bool {
	msg, ok := d.raw[key]
	if !ok || string(msg) == "null" {
		return false
	}
	if err := json.Unmarshal(msg, dst); err != nil {
		d.fail(key, err)
		return false
	}
	return true
}

func (d *decoder) float(key string, dst *float64) { d.decode(key, dst) }
func (d *decoder) text(key string, dst *string) { d.decode(key, dst) }

// integer accepts integral JSON numbers written as floats.
func (d *decoder) integer(key string, dst *int) {
	var f float64
	if d.decode(key, &f) {
		*dst = int(f)
	}
}

func (d *decoder) timestamp(key string, dst *time.Time) bool {
	var str string
	if !d.decode(key, &str) {
		return false
	}
	t, err := parseTime(str)
	if err != nil {
		d.fail(key, err)
		return false
	}
	*dst = t.UTC()
	return true
}

// resistance accepts the boolean form and the named mode.
func (d *decoder) resistance(key string, dst *ResistanceMode) {
	msg, ok := d.raw[key]
	if !ok || string(msg) == "null" {
		return
	}
	var b bool
	if err := json.Unmarshal(msg, &b); err == nil {
		*dst = ResistanceIdle
		if b {
			*dst = ResistanceActive
		}
		return
	}
	var name string
	if err := json.Unmarshal(msg, &name); err != nil {
		d.fail(key, err)
		return
	}
	switch ResistanceMode(name) {
	case ResistanceActive:
		*dst = ResistanceActive
	case ResistanceIdle:
		*dst = ResistanceIdle
	default:
		d.fail(key, fmt.Errorf("unknown mode %q", name))
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
