package dynamics

import "time"

// ResistanceMode is the two-state latch controlling whether the agent is
// deliberately withholding replies.
type ResistanceMode string

const (
	ResistanceIdle   ResistanceMode = "idle"
	ResistanceActive ResistanceMode = "resistant"
)

// resistancePressureWindow is the trailing window used by the bombardment guard.
const resistancePressureWindow = 10 * time.Minute

// resistanceGuard is a named idle->resistant transition condition.
type resistanceGuard struct {
	name  string
	check func(s *State, now time.Time) bool
}

var resistanceGuards = []resistanceGuard{
	{"hurt_under_pressure", func(s *State, now time.Time) bool {
		return s.Hurt > 20 && s.Patterns.MessagePressure(now, resistancePressureWindow) > 0.5
	}},
	{"hurt_with_resentment", func(s *State, _ time.Time) bool {
		return s.Hurt > 25 && s.Resentment > 10
	}},
	{"emotional_distance", func(s *State, _ time.Time) bool {
		return s.EmotionalDistance > 60
	}},
}

// Resistant reports whether the latch is set.
func (s *State) Resistant() bool {
	return s.Resistance == ResistanceActive
}

// ShouldEnterResistance evaluates the latch. Once resistant it stays
// resistant without re-checking guards; only a received user message (handled
// in Engine.Update) returns it to idle.
func (s *State) ShouldEnterResistance(now time.Time) bool {
	_, ok := s.EnterResistance(now)
	return ok
}

// EnterResistance is ShouldEnterResistance that also names the guard that
// fired. The name is empty when the latch was already set.
func (s *State) EnterResistance(now time.Time) (string, bool) {
	if s.Resistant() {
		return "", true
	}
	for _, g := range resistanceGuards {
		if g.check(s, now) {
			s.Resistance = ResistanceActive
			return g.name, true
		}
	}
	return "", false
}

// releaseResistance is the resistant->idle transition.
func (s *State) releaseResistance() {
	s.Resistance = ResistanceIdle
}
