package hooks

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
)

func handleMessage(client *Client, input *HookInput, w io.Writer) error {
	input.Event.UserMessageReceived = true
	input.applyCues()

	if err := postUpdate(client, input); err != nil {
		return err
	}

	rc, err := replyContext(client, input)
	if err != nil {
		return err
	}
	return writeJSON(w, rc)
}

func postUpdate(client *Client, input *HookInput) error {
	body, err := json.Marshal(engine.UpdateRequest{
		ElapsedHours: input.ElapsedHours,
		Event:        input.Event,
		Archetype:    input.Archetype,
	})
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}
	_, err = client.Post(relationshipPath(input.UserID, input.SessionID, "update"), body)
	return err
}

// replyContext gathers what the response generator needs in four reads.
func replyContext(client *Client, input *HookInput) (ReplyContext, error) {
	var (
		rc       ReplyContext
		category struct {
			Category string `json:"category"`
		}
		filter struct {
			Value float64 `json:"filter_effectiveness"`
		}
		pa struct {
			Send   bool   `json:"send"`
			Reason string `json:"reason"`
		}
	)
	reads := []struct {
		endpoint string
		dst      any
	}{
		{"tone", &rc.Tone},
		{"category", &category},
		{"filter", &filter},
		{"passive-aggressive", &pa},
	}
	for _, r := range reads {
		data, err := client.Get(relationshipPath(input.UserID, input.SessionID, r.endpoint))
		if err != nil {
			return rc, err
		}
		if err := json.Unmarshal(data, r.dst); err != nil {
			return rc, fmt.Errorf("decode %s: %w", r.endpoint, err)
		}
	}

	rc.Category = dynamics.Category(category.Category)
	rc.FilterEffectiveness = filter.Value
	rc.PassiveAggressive = pa.Send
	rc.Reason = pa.Reason
	return rc, nil
}
