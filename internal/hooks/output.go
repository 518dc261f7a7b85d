package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/lazypower/affinity/internal/dynamics"
)

// ReplyContext is written to stdout after a user message so the response
// generator can shape its reply.
type ReplyContext struct {
	Category            dynamics.Category `json:"category"`
	Tone                dynamics.Tone     `json:"tone"`
	FilterEffectiveness float64           `json:"filter_effectiveness"`
	PassiveAggressive   bool              `json:"passive_aggressive"`
	Reason              string            `json:"passive_aggressive_reason"`
}

// writeJSON writes v as one line of JSON.
func writeJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// ExitError logs to stderr and exits 0 (hooks must never break the
// conversation layer).
func ExitError(err error) {
	fmt.Fprintf(os.Stderr, "affinity hook: %v\n", err)
	os.Exit(0)
}
