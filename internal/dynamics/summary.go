package dynamics

import (
	"math"
	"time"
)

// Summary is a display record of the state with values rounded to one
// decimal place.
type Summary struct {
	Archetype              string             `json:"archetype"`
	DaysInRelationship     int                `json:"days_in_relationship"`
	TotalInteractions      int                `json:"total_interactions"`
	SharedMemories         int                `json:"shared_memories"`
	HoursSinceLastMessage  float64            `json:"hours_since_last_message"`
	Variables              map[string]float64 `json:"variables"`
	Desperation            float64            `json:"desperation"`
	UnansweredMessageCount int                `json:"unanswered_message_count"`
	ResistanceMode         bool               `json:"resistance_mode"`
	Category               Category           `json:"emotional_state_category"`
}

// Summarize builds a Summary as of now.
func Summarize(s *State, now time.Time) Summary {
	vars := make(map[string]float64, len(Variables))
	for _, v := range Variables {
		vars[v.Name] = round1(v.Get(s))
	}
	days := 0
	if d := now.Sub(s.RelationshipStart); d > 0 {
		days = int(d / (24 * time.Hour))
	}
	return Summary{
		Archetype:              s.Archetype,
		DaysInRelationship:     days,
		TotalInteractions:      s.TotalInteractions,
		SharedMemories:         s.SharedMemories,
		HoursSinceLastMessage:  round1(s.HoursSinceContact(now)),
		Variables:              vars,
		Desperation:            round1(s.Desperation()),
		UnansweredMessageCount: s.UnansweredMessageCount,
		ResistanceMode:         s.Resistant(),
		Category:               EmotionalCategory(s),
	}
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
