// Package dynamics implements the emotional state of one relationship and the
// coupled update rules that advance it over time.
package dynamics

import (
	"math"
	"time"

	"github.com/lazypower/affinity/internal/temporal"
)

// State is the mutable record for one (user, session) relationship. It is
// changed only by Engine.Update, RecordAgentMessage and the resistance latch.
type State struct {
	Archetype string

	// Fast
	Valence float64 // [-100, 100]

	// Medium
	Attachment        float64
	Trust             float64
	Intimacy          float64
	Anxiety           float64
	Loneliness        float64
	Shame             float64
	Jealousy          float64
	Vulnerability     float64
	Proactivity       float64
	Hurt              float64
	Resentment        float64
	Pride             float64
	BoundaryAssertion float64
	EmotionalDistance float64
	PassiveAggressive float64

	// Slow (traits)
	Neuroticism              float64
	AttachmentStyleAnxiety   float64
	AttachmentStyleAvoidance float64
	NeuroticismBaseline      float64
	ProactivityBaseline      float64

	TotalInteractions      int
	SharedMemories         int
	UnansweredMessageCount int
	Resistance             ResistanceMode

	RelationshipStart    time.Time
	LastUpdate           time.Time
	LastUserMessageTime  time.Time
	LastAgentMessageTime *time.Time

	Patterns temporal.Tracker
}

// Defaults for variables the archetype table does not set.
const (
	defaultAttachment        = 10.0
	defaultTrust             = 30.0
	defaultIntimacy          = 15.0
	defaultVulnerability     = 30.0
	defaultPride             = 30.0
	defaultBoundaryAssertion = 20.0
	defaultEmotionalDistance = 10.0
)

// New creates the initial state for a relationship first seen at now, seeded
// from the named archetype. Unknown names fall back to the balanced profile.
func New(archetype string, now time.Time) *State {
	p := LookupProfile(archetype)
	return &State{
		Archetype: archetype,

		Attachment:        defaultAttachment,
		Trust:             defaultTrust,
		Intimacy:          defaultIntimacy,
		Anxiety:           p.Anxiety,
		Loneliness:        p.Loneliness,
		Vulnerability:     defaultVulnerability,
		Proactivity:       p.Proactivity,
		Pride:             defaultPride,
		BoundaryAssertion: defaultBoundaryAssertion,
		EmotionalDistance: defaultEmotionalDistance,

		Neuroticism:              p.Neuroticism,
		AttachmentStyleAnxiety:   p.AttachmentAnxiety,
		AttachmentStyleAvoidance: p.AttachmentAvoidance,
		NeuroticismBaseline:      p.Neuroticism,
		ProactivityBaseline:      p.Proactivity,

		Resistance: ResistanceIdle,

		RelationshipStart:   now,
		LastUpdate:          now,
		LastUserMessageTime: now,
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	c := *s
	c.Patterns = s.Patterns.Clone()
	if s.LastAgentMessageTime != nil {
		t := *s.LastAgentMessageTime
		c.LastAgentMessageTime = &t
	}
	return &c
}

// HoursSinceContact returns the hours between the last user message and now.
func (s *State) HoursSinceContact(now time.Time) float64 {
	h := now.Sub(s.LastUserMessageTime).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// Desperation is computed on demand and never stored.
func (s *State) Desperation() float64 {
	return 0.3*s.Anxiety + 0.4*s.Loneliness + 0.3*s.AttachmentStyleAnxiety
}

// RecordAgentMessage notes that the agent sent a message the user has not
// answered yet.
func (s *State) RecordAgentMessage(now time.Time) {
	s.UnansweredMessageCount++
	t := now
	s.LastAgentMessageTime = &t
}

// Variable describes one bounded continuous variable.
type Variable struct {
	Name string
	Min  float64
	Max  float64
	ref  func(*State) *float64
}

// Get returns the variable's value in s.
func (v Variable) Get(s *State) float64 { return *v.ref(s) }

// Set writes the variable, clamped to its range.
func (v Variable) Set(s *State, x float64) { *v.ref(s) = clamp(x, v.Min, v.Max) }

// Variables lists every bounded variable, traits included, in snapshot order.
var Variables = []Variable{
	{"valence", -100, 100, func(s *State) *float64 { return &s.Valence }},
	{"attachment", 0, 100, func(s *State) *float64 { return &s.Attachment }},
	{"trust", 0, 100, func(s *State) *float64 { return &s.Trust }},
	{"intimacy", 0, 100, func(s *State) *float64 { return &s.Intimacy }},
	{"anxiety", 0, 100, func(s *State) *float64 { return &s.Anxiety }},
	{"loneliness", 0, 100, func(s *State) *float64 { return &s.Loneliness }},
	{"shame", 0, 100, func(s *State) *float64 { return &s.Shame }},
	{"jealousy", 0, 100, func(s *State) *float64 { return &s.Jealousy }},
	{"vulnerability", 0, 100, func(s *State) *float64 { return &s.Vulnerability }},
	{"proactivity", 0, 100, func(s *State) *float64 { return &s.Proactivity }},
	{"hurt", 0, 100, func(s *State) *float64 { return &s.Hurt }},
	{"resentment", 0, 100, func(s *State) *float64 { return &s.Resentment }},
	{"pride", 0, 100, func(s *State) *float64 { return &s.Pride }},
	{"boundary_assertion", 0, 100, func(s *State) *float64 { return &s.BoundaryAssertion }},
	{"emotional_distance", 0, 100, func(s *State) *float64 { return &s.EmotionalDistance }},
	{"passive_aggressive", 0, 100, func(s *State) *float64 { return &s.PassiveAggressive }},
	{"neuroticism", 0, 100, func(s *State) *float64 { return &s.Neuroticism }},
	{"attachment_style_anxiety", 0, 100, func(s *State) *float64 { return &s.AttachmentStyleAnxiety }},
	{"attachment_style_avoidance", 0, 100, func(s *State) *float64 { return &s.AttachmentStyleAvoidance }},
}

// clampAll saturates every bounded variable and scrubs NaN.
func (s *State) clampAll() {
	for _, v := range Variables {
		v.Set(s, v.Get(s))
	}
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return clamp(0, lo, hi)
	}
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clampUnit(x float64) float64 { return clamp(x, 0, 100) }
