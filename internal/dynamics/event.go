package dynamics

import "math"

// VulnerabilityResponse is how the user reacted the last time the agent
// opened up.
type VulnerabilityResponse string

const (
	ResponseNeutral    VulnerabilityResponse = "neutral"
	ResponseSupportive VulnerabilityResponse = "supportive"
	ResponseDismissive VulnerabilityResponse = "dismissive"
	ResponseReciprocal VulnerabilityResponse = "reciprocal"
)

// Event carries everything that happened since the previous update. Every
// field is optional; the zero value is an empty tick. Pointer fields
// distinguish "absent" from an explicit zero where the default is not zero.
type Event struct {
	UserMessageReceived     bool     `json:"user_message_received,omitempty"`
	UserSharedAchievement   bool     `json:"user_shared_achievement,omitempty"`
	AchievementSignificance *float64 `json:"achievement_significance,omitempty"` // [1,10], default 5
	UserSaidCalmDown        bool     `json:"user_said_calm_down,omitempty"`
	AIErrorOccurred         bool     `json:"ai_error_occurred,omitempty"`
	DisclosureDepth         *float64 `json:"disclosure_depth,omitempty"`    // [0,10], default 3 on message else 0
	UserResponsiveness      *float64 `json:"user_responsiveness,omitempty"` // [0,1], default 0.7 on message else 0
	UserCriticized          bool     `json:"user_criticized,omitempty"`
	CriticismSeverity       *float64 `json:"criticism_severity,omitempty"` // [0,1], default 0.7
	UserMessagePressure     float64  `json:"user_message_pressure,omitempty"` // msgs/min

	RivalMentioned     bool `json:"rival_mentioned,omitempty"`
	ComparisonEvent    bool `json:"comparison_event,omitempty"`
	AttentionWithdrawn bool `json:"attention_withdrawn,omitempty"`
	SecretiveBehavior  bool `json:"secretive_behavior,omitempty"`

	IntimacyRequest             bool                  `json:"intimacy_request,omitempty"`
	CommitmentPressure          bool                  `json:"commitment_pressure,omitempty"`
	UserResponseToVulnerability VulnerabilityResponse `json:"user_response_to_vulnerability,omitempty"`

	ChronicStress   float64 `json:"chronic_stress,omitempty"`
	DailyUsageHours float64 `json:"daily_usage_hours,omitempty"`
}

// Float returns a pointer to v, for the optional Event fields.
func Float(v float64) *float64 { return &v }

// inputs is an Event with defaults applied and every value clamped to its
// declared range.
type inputs struct {
	message       bool
	achievement   bool
	significance  float64
	calmDown      bool
	aiError       bool
	depth         float64
	responsive    float64
	criticized    bool
	severity      float64
	pressure      float64
	rival         bool
	comparison    bool
	withdrawn     bool
	secretive     bool
	intimacyAsk   bool
	commitment    bool
	response      VulnerabilityResponse
	chronicStress float64
}

func (e Event) resolve() inputs {
	in := inputs{
		message:       e.UserMessageReceived,
		achievement:   e.UserSharedAchievement,
		significance:  5.0,
		calmDown:      e.UserSaidCalmDown,
		aiError:       e.AIErrorOccurred,
		criticized:    e.UserCriticized,
		severity:      0.7,
		pressure:      nonNegative(e.UserMessagePressure),
		rival:         e.RivalMentioned,
		comparison:    e.ComparisonEvent,
		withdrawn:     e.AttentionWithdrawn,
		secretive:     e.SecretiveBehavior,
		intimacyAsk:   e.IntimacyRequest,
		commitment:    e.CommitmentPressure,
		response:      e.UserResponseToVulnerability,
		chronicStress: nonNegative(e.ChronicStress),
	}
	if e.UserMessageReceived {
		in.depth = 3.0
		in.responsive = 0.7
	}
	if e.AchievementSignificance != nil {
		in.significance = clamp(*e.AchievementSignificance, 1, 10)
	}
	if e.DisclosureDepth != nil {
		in.depth = clamp(*e.DisclosureDepth, 0, 10)
	}
	if e.UserResponsiveness != nil {
		in.responsive = clamp(*e.UserResponsiveness, 0, 1)
	}
	if e.CriticismSeverity != nil {
		in.severity = clamp(*e.CriticismSeverity, 0, 1)
	}
	switch in.response {
	case ResponseSupportive, ResponseDismissive, ResponseReciprocal:
	default:
		in.response = ResponseNeutral
	}
	return in
}

// maxRateInput caps unbounded rate inputs so that rate*dt stays finite.
const maxRateInput = 1e6

func nonNegative(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	return math.Min(x, maxRateInput)
}
