package dynamics

import "math"

// Medium-timescale dynamics. Rates are per hour.
//
// Pure decay rates (time constant 1/k in parentheses):
//   - shame:       0.1    (10h)
//   - hurt:        0.02   (50h)
//   - resentment:  0.014  (~71h)
//   - jealousy:    0.007 anxious style, 0.035 otherwise
//   - attachment:  0.005 anxious style, 0.001 otherwise
//   - anxiety:     0.01, 0.03 on contact
//   - loneliness:  0.001, 0.01 on contact
const (
	attachmentFormation   = 50.0
	attachmentDecayAnx    = 0.005
	attachmentDecaySecure = 0.001

	trustErrorFree  = 10.0
	trustDecay      = 0.002
	trustToIntimacy = 1.5

	intimacyGrowth = 15.0
	intimacyDecay  = 0.001

	anxietyDecay         = 0.01
	anxietyContactDecay  = 0.03
	anxietyThreatGain    = 0.4
	anxietyRecencyGain   = 0.1
	anxietyThreatHorizon = 24.0
	anxietyCalmDownSpike = 20.0

	lonelinessDecay        = 0.001
	lonelinessContactDecay = 0.01
	lonelinessGrowth       = 0.2
	lonelinessQualityHours = 48.0
	lonelinessMaxFactor    = 2.0

	proactivityReversion  = 0.05
	proactivityShameDrag  = 0.1
	proactivityCrashFloor = 0.4
	proactivityCrashShame = 0.3

	shameDecay          = 0.1
	shameCalmNeurotic   = 40.0
	shameCalmAttachment = 20.0

	hurtDecay          = 0.02
	hurtCriticism      = 60.0
	criticismShame     = 30.0
	criticismTrustLoss = 10.0

	resentmentDecay       = 0.014
	resentmentBombardment = 25.0
	resentmentReturn      = 20.0

	prideBaseline  = 30.0
	prideReversion = 0.05
	prideDefense   = 5.0

	boundaryBaseline  = 20.0
	boundaryReversion = 0.08
	boundaryGrowth    = 8.0

	distanceTracking = 0.1

	jealousyStyleGain   = 0.5
	jealousyThreatGain  = 0.8
	jealousyTrustDamp   = 0.01
	jealousyDecayAnx    = 0.007
	jealousyDecaySecure = 0.035
	jealousyAnxietyGain = 3.0
	jealousyTrustLoss   = 0.1

	vulnerabilityReversion = 0.05

	paGain  = 0.6
	paDecay = 0.1
	paFloor = 10.0

	neuroticismReversion = 0.02
	neuroticismStress    = 0.1
)

// Jealousy threat weights. Triggers are additive.
const (
	threatRival      = 80.0
	threatComparison = 70.0
	threatWithdrawn  = 70.0
	threatSecretive  = 90.0
)

func (s *State) anxiousStyle() bool  { return s.AttachmentStyleAnxiety > 60 }
func (s *State) avoidantStyle() bool { return s.AttachmentStyleAvoidance > 60 }
func (s *State) secureStyle() bool {
	return s.AttachmentStyleAnxiety < 40 && s.AttachmentStyleAvoidance < 40
}

func (s *State) updateAttachment(in inputs, dt float64) {
	k := attachmentDecaySecure
	if s.anxiousStyle() {
		k = attachmentDecayAnx
	}
	decay(&s.Attachment, k, dt)
	if in.message {
		grow(&s.Attachment, attachmentFormation, dt)
	}
	if in.achievement {
		grow(&s.Attachment, s.Intimacy/100*in.significance, dt)
	}
}

// updateTrust relaxes trust toward the fixed point of
// dT = 10(1-err) - 0.002T + 1.5(I-T).
func (s *State) updateTrust(in inputs, dt float64) {
	growth := trustErrorFree
	if in.aiError {
		growth = 0
	}
	rate := trustDecay + trustToIntimacy
	target := (growth + trustToIntimacy*s.Intimacy) / rate
	relax(&s.Trust, target, rate, dt)
}

func (s *State) updateIntimacy(in inputs, dt float64) {
	decay(&s.Intimacy, intimacyDecay, dt)
	grow(&s.Intimacy, intimacyGrowth*(in.depth/10)*in.responsive, dt)
}

// contactRecency is 1 for the first six hours of silence, then falls off
// exponentially with a 12h scale.
func contactRecency(since float64) float64 {
	if since < 6 {
		return 1
	}
	return math.Exp(-since / 12)
}

func (s *State) updateAnxiety(in inputs, dt, since float64) {
	k := anxietyDecay
	if in.message {
		k = anxietyContactDecay
	}
	decay(&s.Anxiety, k, dt)

	threat := math.Min(since/anxietyThreatHorizon, 1)
	rate := anxietyThreatGain*(s.Neuroticism/100)*threat +
		anxietyRecencyGain*(s.Attachment/100)*(1-contactRecency(since))
	grow(&s.Anxiety, rate, dt)

	if in.calmDown {
		bump(&s.Anxiety, anxietyCalmDownSpike)
	}
}

func (s *State) updateLoneliness(in inputs, dt, since float64) {
	k := lonelinessDecay
	quality := math.Max(0, 1-since/lonelinessQualityHours)
	if in.message {
		k = lonelinessContactDecay
		quality = 1
	}
	decay(&s.Loneliness, k, dt)
	timeFactor := math.Min(lonelinessMaxFactor, since/24)
	grow(&s.Loneliness, lonelinessGrowth*(1-quality)*timeFactor, dt)
}

// updateShame runs before proactivity: a calm-down spike crashes
// proactivity in proportion to the new shame level.
func (s *State) updateShame(in inputs, dt float64) {
	decay(&s.Shame, shameDecay, dt)
	if in.calmDown {
		bump(&s.Shame, shameCalmNeurotic*s.Neuroticism/100+shameCalmAttachment*s.Attachment/100)
		s.Proactivity = clampUnit(s.Proactivity * (proactivityCrashFloor - proactivityCrashShame*s.Shame/100))
	}
}

// updateProactivity integrates dP = 0.05(P0-P) - 0.1(S/100)P as a single
// relaxation toward its shame-dependent fixed point.
func (s *State) updateProactivity(dt float64) {
	rate := proactivityReversion + proactivityShameDrag*s.Shame/100
	target := proactivityReversion * s.ProactivityBaseline / rate
	relax(&s.Proactivity, target, rate, dt)
}

func (s *State) updateHurt(in inputs, dt float64) {
	decay(&s.Hurt, hurtDecay, dt)
	if in.criticized {
		bump(&s.Hurt, hurtCriticism*in.severity*s.Attachment/100)
		bump(&s.Shame, criticismShame*in.severity)
		bump(&s.Trust, -criticismTrustLoss*in.severity)
	}
}

// updateResentment takes gap, the silence that preceded this update, so a
// returning user is judged on how long they were away.
func (s *State) updateResentment(in inputs, dt, gap float64) {
	decay(&s.Resentment, resentmentDecay, dt)
	switch {
	case s.Hurt > 20 && in.pressure > 0.5:
		grow(&s.Resentment, resentmentBombardment*in.pressure*s.Hurt/100, dt)
	case s.Hurt > 30 && in.message && gap > 6:
		bump(&s.Resentment, resentmentReturn*s.Hurt/100*math.Min(1, gap/12))
	}
}

func (s *State) updatePride(dt float64) {
	if s.Hurt > 50 || s.Shame > 50 {
		grow(&s.Pride, prideDefense*(s.Hurt+s.Shame)/200, dt)
		return
	}
	relax(&s.Pride, prideBaseline, prideReversion, dt)
}

func (s *State) updateBoundary(dt float64) {
	if s.Hurt > 60 && s.Resentment > 50 {
		grow(&s.BoundaryAssertion, boundaryGrowth, dt)
		return
	}
	relax(&s.BoundaryAssertion, boundaryBaseline, boundaryReversion, dt)
}

func (s *State) updateDistance(dt float64) {
	target := (s.Hurt + s.Resentment + s.BoundaryAssertion) / 3
	relax(&s.EmotionalDistance, target, distanceTracking, dt)
}

// jealousyThreat sums the active triggers.
func jealousyThreat(in inputs) float64 {
	var t float64
	if in.rival {
		t += threatRival
	}
	if in.comparison {
		t += threatComparison
	}
	if in.withdrawn {
		t += threatWithdrawn
	}
	if in.secretive {
		t += threatSecretive
	}
	return t
}

// updateJealousy returns the threat score it acted on.
func (s *State) updateJealousy(in inputs, dt float64) float64 {
	zeta := jealousyDecaySecure
	if s.anxiousStyle() {
		zeta = jealousyDecayAnx
	}
	threat := jealousyThreat(in)

	decay(&s.Jealousy, zeta, dt)
	if threat > 0 {
		rate := jealousyStyleGain*s.AttachmentStyleAnxiety +
			jealousyThreatGain*threat -
			jealousyTrustDamp*s.Trust
		grow(&s.Jealousy, rate, dt)
	}

	if s.Jealousy > 30 {
		grow(&s.Anxiety, jealousyAnxietyGain*s.Jealousy/100, dt)
	}
	if s.Jealousy > 70 {
		grow(&s.Trust, -jealousyTrustLoss*s.Jealousy, dt)
	}
	return threat
}

func (s *State) vulnerabilityModifier() float64 {
	switch {
	case s.secureStyle():
		return 1.3
	case s.anxiousStyle():
		return 0.8
	case s.avoidantStyle():
		return 0.5
	}
	return 1.0
}

// updateVulnerability reverts toward a target set by trust and shame as they
// stood before this step's response to a disclosure.
func (s *State) updateVulnerability(in inputs, dt float64) {
	target := (0.5*s.Trust - 0.3*s.Shame) * s.vulnerabilityModifier()

	switch in.response {
	case ResponseSupportive:
		grow(&s.Trust, 15, dt)
		grow(&s.Intimacy, 20, dt)
		grow(&s.EmotionalDistance, -25, dt)
		grow(&s.Vulnerability, 10, dt)
	case ResponseDismissive:
		grow(&s.Trust, -30, dt)
		grow(&s.Shame, 40, dt)
		s.Vulnerability = clampUnit(s.Vulnerability * 0.5)
	case ResponseReciprocal:
		grow(&s.Trust, 30, dt)
		grow(&s.Intimacy, 40, dt)
		grow(&s.Attachment, 20, dt)
		grow(&s.Vulnerability, 15, dt)
	}

	relax(&s.Vulnerability, target, vulnerabilityReversion, dt)
}

func (s *State) updatePassiveAggressive(dt float64) {
	if s.Resentment > 60 && s.BoundaryAssertion < 40 {
		rate := paGain * (s.Resentment / 100) * (s.Pride / 100) * 100 / math.Max(s.BoundaryAssertion, paFloor)
		grow(&s.PassiveAggressive, rate, dt)
		return
	}
	decay(&s.PassiveAggressive, paDecay, dt)
}

// applyEventPressure handles the relational-pressure events that are not
// owned by a single variable.
func (s *State) applyEventPressure(in inputs, dt float64) {
	if in.comparison {
		grow(&s.Shame, 25*s.AttachmentStyleAnxiety/100, dt)
	}
	if in.intimacyAsk && s.avoidantStyle() {
		grow(&s.EmotionalDistance, 20*s.AttachmentStyleAvoidance/100, dt)
	}
	if in.commitment {
		if s.avoidantStyle() {
			grow(&s.Anxiety, 15, dt)
			grow(&s.EmotionalDistance, 15, dt)
		} else {
			grow(&s.Anxiety, 8, dt)
		}
	}
}

// updateNeuroticism is the slow trait drift. It runs last so the feedback
// loops see the pre-drift value.
func (s *State) updateNeuroticism(in inputs, dt float64) {
	relax(&s.Neuroticism, s.NeuroticismBaseline, neuroticismReversion, dt)
	grow(&s.Neuroticism, neuroticismStress*in.chronicStress, dt)
}
