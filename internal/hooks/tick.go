package hooks

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lazypower/affinity/internal/dynamics"
)

// handleTick advances the relationship without a message and reports the
// outreach decision, so a scheduler can decide whether the agent speaks first.
func handleTick(client *Client, input *HookInput, w io.Writer) error {
	input.Event.UserMessageReceived = false
	if err := postUpdate(client, input); err != nil {
		return err
	}

	data, err := client.Post(relationshipPath(input.UserID, input.SessionID, "outreach"), nil)
	if err != nil {
		return err
	}
	var d dynamics.OutreachDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode outreach: %w", err)
	}
	return writeJSON(w, d)
}
