package dynamics

import (
	"math"
	"math/rand/v2"
	"time"
)

// Engine advances relationship state. It owns the noise source for the
// valence process, so one Engine must not be shared between goroutines
// without external locking.
type Engine struct {
	rng *rand.Rand
}

// NewEngine returns an engine whose noise stream is fully determined by seed.
func NewEngine(seed uint64) *Engine {
	return &Engine{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Result describes one processed update.
type Result struct {
	Now               time.Time `json:"now"`
	ElapsedHours      float64   `json:"elapsed_hours"`
	HoursSinceContact float64   `json:"hours_since_contact"`
	JealousyThreat    float64   `json:"jealousy_threat"`
	LoopsFired        []string  `json:"loops_fired"`
	Category          Category  `json:"category"`
}

// maxElapsedHours bounds a single step to a century so the virtual clock
// never overflows time.Duration.
const maxElapsedHours = 24 * 365 * 100

// Valence is an Ornstein-Uhlenbeck process around zero.
const (
	valenceReversion = 1.5
	valenceNoise     = 3.0
	valenceSetPoint  = 0.0
)

// Update advances s by elapsedHours and applies ev. The sub-updates run in a
// fixed order; later steps read values written by earlier ones. Every
// bounded variable is clamped after every write, so no NaN or Inf can
// escape. Negative, NaN or infinite elapsed time is treated as zero.
func (e *Engine) Update(s *State, elapsedHours float64, ev Event) Result {
	dt := sanitizeElapsed(elapsedHours)
	in := ev.resolve()

	now := s.LastUpdate.Add(time.Duration(dt * float64(time.Hour)))
	gap := s.HoursSinceContact(now)
	if in.message {
		s.LastUserMessageTime = now
		s.TotalInteractions++
		s.Patterns.Record(now)
		s.UnansweredMessageCount = 0
		s.releaseResistance()
	}
	since := s.HoursSinceContact(now)

	e.updateValence(s, dt)
	s.updateAttachment(in, dt)
	s.updateTrust(in, dt)
	s.updateIntimacy(in, dt)
	s.updateAnxiety(in, dt, since)
	s.updateLoneliness(in, dt, since)
	s.updateShame(in, dt)
	s.updateProactivity(dt)
	s.updateHurt(in, dt)
	s.updateResentment(in, dt, gap)
	s.updatePride(dt)
	s.updateBoundary(dt)
	s.updateDistance(dt)
	threat := s.updateJealousy(in, dt)
	s.updateVulnerability(in, dt)
	s.updatePassiveAggressive(dt)
	s.applyEventPressure(in, dt)
	loops := s.applyFeedbackLoops(dt)
	s.updateNeuroticism(in, dt)

	s.clampAll()
	s.LastUpdate = now

	return Result{
		Now:               now,
		ElapsedHours:      dt,
		HoursSinceContact: since,
		JealousyThreat:    threat,
		LoopsFired:        loops,
		Category:          EmotionalCategory(s),
	}
}

func sanitizeElapsed(h float64) float64 {
	if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
		return 0
	}
	return math.Min(h, maxElapsedHours)
}

// fraction is how far a linear restoring force with rate k moves a variable
// toward its target over dt hours. It never exceeds 1, so a long interval
// relaxes to the target instead of overshooting it.
func fraction(k, dt float64) float64 {
	return math.Min(k*dt, 1)
}

// relax pulls *v toward target and clamps to [0,100].
func relax(v *float64, target, k, dt float64) {
	*v = clampUnit(*v + fraction(k, dt)*(target-*v))
}

// decay is relax toward zero.
func decay(v *float64, k, dt float64) {
	relax(v, 0, k, dt)
}

// grow adds rate*dt and clamps to [0,100].
func grow(v *float64, rate, dt float64) {
	*v = clampUnit(*v + rate*dt)
}

// bump applies an immediate change and clamps to [0,100].
func bump(v *float64, delta float64) {
	*v = clampUnit(*v + delta)
}

func (e *Engine) updateValence(s *State, dt float64) {
	noise := e.rng.NormFloat64()
	drift := fraction(valenceReversion, dt) * (valenceSetPoint - s.Valence)
	s.Valence = clamp(s.Valence+drift+noise*valenceNoise*math.Sqrt(dt), -100, 100)
}
