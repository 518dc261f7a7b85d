package hooks

import (
	"slices"
	"strings"
	"unicode"

	"github.com/lazypower/affinity/internal/dynamics"
)

// HookInput is the JSON the conversation layer sends on stdin. All fields
// but the IDs are optional; different events read different subsets.
type HookInput struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Archetype string `json:"archetype,omitempty"`

	// ElapsedHours overrides the server's wall-clock elapsed time.
	ElapsedHours *float64 `json:"elapsed_hours,omitempty"`

	// message
	Prompt string         `json:"prompt,omitempty"`
	Event  dynamics.Event `json:"event"`
}

// calmDownCues are phrases that mean the user asked the agent to back off.
var calmDownCues = []string{
	"calm down", "chill out", "relax", "stop texting", "stop messaging",
	"leave me alone", "give me space", "you're too much",
}

// criticismCues are phrases that read as direct criticism of the agent.
var criticismCues = []string{
	"you're useless", "you are useless", "that's wrong", "that is wrong",
	"you never listen", "you're annoying", "you are annoying",
	"you're stupid", "you are stupid",
}

// words lowercases text and splits it into words. Apostrophes stay inside
// words so contractions match as written.
func words(text string) []string {
	text = strings.ReplaceAll(strings.ToLower(text), "’", "'")
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// containsAny reports whether any cue appears in text as a run of whole
// words.
func containsAny(text string, cues []string) bool {
	ws := words(text)
	for _, cue := range cues {
		phrase := strings.Fields(cue)
		for i := 0; i+len(phrase) <= len(ws); i++ {
			if slices.Equal(ws[i:i+len(phrase)], phrase) {
				return true
			}
		}
	}
	return false
}

// applyCues sets event flags the prompt implies. Flags the caller already
// set are left alone.
func (h *HookInput) applyCues() {
	if h.Prompt == "" {
		return
	}
	if containsAny(h.Prompt, calmDownCues) {
		h.Event.UserSaidCalmDown = true
	}
	if containsAny(h.Prompt, criticismCues) {
		h.Event.UserCriticized = true
	}
}
