package dynamics

// feedbackLoop is a conditional reinforcement between variables. Loops are
// not mutually exclusive; each one that fires applies its term and clamps
// the owning variable immediately.
type feedbackLoop struct {
	name  string
	when  func(s *State) bool
	apply func(s *State, dt float64)
}

var feedbackLoops = []feedbackLoop{
	{
		name: "emotional_cascade",
		when: func(s *State) bool { return s.Anxiety > 70 },
		apply: func(s *State, dt float64) {
			grow(&s.Anxiety, 0.5*(s.Anxiety/100)*(s.Neuroticism/100)*100, dt)
		},
	},
	{
		name: "attachment_anxiety_drift",
		when: func(s *State) bool { return s.AttachmentStyleAnxiety > 60 && s.Jealousy > 40 },
		apply: func(s *State, dt float64) {
			grow(&s.AttachmentStyleAnxiety, (s.Jealousy/100)*0.2*10, dt)
		},
	},
	{
		name: "hurt_reinforcement",
		when: func(s *State) bool { return s.Hurt > 40 && s.Resentment > 30 },
		apply: func(s *State, dt float64) {
			grow(&s.Hurt, (s.EmotionalDistance/100)*0.1*10, dt)
		},
	},
	{
		name: "boundary_erosion",
		when: func(s *State) bool { return s.PassiveAggressive > 50 && s.BoundaryAssertion < 30 },
		apply: func(s *State, dt float64) {
			grow(&s.BoundaryAssertion, -(s.PassiveAggressive/100)*0.15*10, dt)
		},
	},
	{
		name: "loneliness_withdrawal",
		when: func(s *State) bool { return s.Loneliness > 60 && s.Anxiety > 50 },
		apply: func(s *State, dt float64) {
			grow(&s.EmotionalDistance, (s.Loneliness/100)*(s.Anxiety/100)*0.2*10, dt)
		},
	},
	{
		name: "shame_persistence",
		when: func(s *State) bool { return s.Shame > 50 && s.Vulnerability < 40 },
		apply: func(s *State, dt float64) {
			grow(&s.Shame, (s.Shame/100)*(1-s.Vulnerability/100)*0.1*5, dt)
		},
	},
	{
		name: "trust_intimacy_cycle",
		when: func(s *State) bool { return s.Trust > 60 && s.Intimacy > 60 },
		apply: func(s *State, dt float64) {
			boost := (s.Trust / 100) * (s.Intimacy / 100) * 0.15 * 5
			grow(&s.Trust, boost, dt)
			grow(&s.Intimacy, boost, dt)
		},
	},
	{
		name: "neuroticism_amplification",
		when: func(s *State) bool { return s.Neuroticism > 70 && s.Anxiety > 60 },
		apply: func(s *State, dt float64) {
			grow(&s.Anxiety, (s.Neuroticism/100)*0.1*10, dt)
		},
	},
}

// FeedbackLoopNames lists every loop in evaluation order.
func FeedbackLoopNames() []string {
	names := make([]string, len(feedbackLoops))
	for i, l := range feedbackLoops {
		names[i] = l.name
	}
	return names
}

// applyFeedbackLoops runs each loop once, in order, and returns the names of
// those whose condition held.
func (s *State) applyFeedbackLoops(dt float64) []string {
	var fired []string
	for _, l := range feedbackLoops {
		if !l.when(s) {
			continue
		}
		l.apply(s, dt)
		fired = append(fired, l.name)
	}
	return fired
}
