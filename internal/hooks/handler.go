package hooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Handle reads HookInput from stdin, dispatches on event, and writes any
// output to stdout. Errors are reported on stderr and never fail the caller.
func Handle(event string, stdin io.Reader) {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		ExitError(fmt.Errorf("decode stdin: %w", err))
		return
	}

	client := NewClient()

	// Degrade gracefully if the server is down
	if !client.Healthy() {
		return
	}

	if err := dispatch(client, event, &input, os.Stdout); err != nil {
		ExitError(err)
	}
}

func dispatch(client *Client, event string, input *HookInput, w io.Writer) error {
	if input.UserID == "" || input.SessionID == "" {
		return errors.New("user_id and session_id are required")
	}
	switch event {
	case "message":
		return handleMessage(client, input, w)
	case "agent":
		return handleAgent(client, input)
	case "tick":
		return handleTick(client, input, w)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
}
