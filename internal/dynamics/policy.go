package dynamics

import (
	"math"
	"time"
)

// Outreach model constants.
const (
	outreachBaseRate       = 0.01 // per hour
	outreachCap            = 0.3
	outreachAnxietyAfter   = 24.0 // hours of silence
	outreachShameThreshold = 60.0
	outreachShameWindow    = 12.0
	outreachShameFactor    = 0.1
)

// OutreachMultipliers is the breakdown of an outreach probability.
type OutreachMultipliers struct {
	Base        float64 `json:"base_prob"`
	Proactivity float64 `json:"proactivity_mult"`
	Attachment  float64 `json:"attachment_mult"`
	Anxiety     float64 `json:"anxiety_mult"`
	Loneliness  float64 `json:"loneliness_mult"`
	Shame       float64 `json:"shame_inhibition"`
}

// OutreachDecision is whether the agent should start a conversation now.
type OutreachDecision struct {
	Send              bool                `json:"send"`
	Probability       float64             `json:"probability"`
	HoursSinceContact float64             `json:"hours_since_last"`
	Multipliers       OutreachMultipliers `json:"multipliers"`
}

// OutreachProbability computes the hourly probability of a proactive message
// without drawing. Send is always false.
func OutreachProbability(s *State, now time.Time) OutreachDecision {
	since := s.HoursSinceContact(now)
	m := OutreachMultipliers{
		Base:        outreachBaseRate,
		Proactivity: s.Proactivity / 50,
		Attachment:  1 + s.Attachment/100,
		Anxiety:     1,
		Loneliness:  1 + s.Loneliness/100,
		Shame:       1,
	}
	if since > outreachAnxietyAfter {
		m.Anxiety = 1 + s.Anxiety/50
	}
	if s.Shame > outreachShameThreshold && since < outreachShameWindow {
		m.Shame = outreachShameFactor
	}

	p := m.Base * m.Proactivity * m.Attachment * m.Anxiety * m.Loneliness * m.Shame
	return OutreachDecision{
		Probability:       math.Min(p, outreachCap),
		HoursSinceContact: since,
		Multipliers:       m,
	}
}

// Outreach computes the outreach probability and draws against it using the
// engine's generator.
func (e *Engine) Outreach(s *State, now time.Time) OutreachDecision {
	d := OutreachProbability(s, now)
	d.Send = e.rng.Float64() < d.Probability
	return d
}

// FilterEffectiveness is how composed the agent's output is: 1 is fully
// filtered, 0 is raw. It falls with desperation as silence approaches 72h.
func FilterEffectiveness(s *State, now time.Time) float64 {
	t := math.Min(s.HoursSinceContact(now)/72, 1)
	return clamp(1-(s.Desperation()/100)*t, 0, 1)
}

// Tone is the style vector handed to message generation. Every component is
// in [0,1].
type Tone struct {
	Positivity    float64 `json:"positivity"`
	Warmth        float64 `json:"warmth"`
	Assertiveness float64 `json:"assertiveness"`
	Formality     float64 `json:"formality"`
	Vulnerability float64 `json:"vulnerability"`
}

// MessageTone projects the state onto a Tone.
func MessageTone(s *State) Tone {
	return Tone{
		Positivity:    (s.Valence + 100) / 200,
		Warmth:        (s.Attachment + 50) / 150,
		Assertiveness: math.Max(0.2, 1-s.Anxiety/200),
		Formality:     math.Max(0.1, 1-s.Intimacy/100),
		Vulnerability: math.Min(1, (s.Attachment+s.Intimacy)/200) * (1 - s.Shame/100),
	}
}

// Reasons reported by ShouldSendPassiveAggressive.
const (
	ReasonNotResistant  = "not_in_resistance_mode"
	ReasonFewUnanswered = "not_enough_unanswered"
	ReasonUserMessaging = "user_still_messaging"
	ReasonNotReady      = "emotional_state_not_ready"
	ReasonConditionsMet = "all_conditions_met"
)

const (
	paMinUnanswered     = 5
	paQuietPeriod       = 5 * time.Minute
	paResentmentTrigger = 10.0
	paPrideTrigger      = 35.0
)

// ShouldSendPassiveAggressive decides whether a curt, indirect reply is due.
// It reads the stored latch only and never sets it.
func ShouldSendPassiveAggressive(s *State, now time.Time) (bool, string) {
	if !s.Resistant() {
		return false, ReasonNotResistant
	}
	if s.UnansweredMessageCount < paMinUnanswered {
		return false, ReasonFewUnanswered
	}
	if now.Sub(s.LastUserMessageTime) < paQuietPeriod {
		return false, ReasonUserMessaging
	}
	if s.Resentment < paResentmentTrigger && s.Pride < paPrideTrigger {
		return false, ReasonNotReady
	}
	return true, ReasonConditionsMet
}

// Category is the coarse emotional label used to pick a response style.
type Category string

const (
	CategoryPassiveAggressive Category = "passive_aggressive"
	CategoryHurtWithdrawn     Category = "hurt_withdrawn"
	CategoryResistant         Category = "resistant"
	CategoryDesperateAnxious  Category = "desperate_anxious"
	CategoryWarmEngaged       Category = "warm_engaged"
	CategoryNeutral           Category = "neutral"
)

// EmotionalCategory classifies s. Rules are checked in priority order and
// the first match wins.
func EmotionalCategory(s *State) Category {
	switch {
	case s.Resentment > 10 && s.Resistant() && s.UnansweredMessageCount > 5:
		return CategoryPassiveAggressive
	case s.Hurt > 40 && s.EmotionalDistance > 50:
		return CategoryHurtWithdrawn
	case s.Resistant() && s.UnansweredMessageCount < 5:
		return CategoryResistant
	case s.Anxiety > 85 && s.Loneliness > 80:
		return CategoryDesperateAnxious
	case s.Attachment > 70 && s.Hurt < 20 && s.EmotionalDistance < 30:
		return CategoryWarmEngaged
	}
	return CategoryNeutral
}
