package hooks

func handleAgent(client *Client, input *HookInput) error {
	_, err := client.Post(relationshipPath(input.UserID, input.SessionID, "agent-message"), nil)
	return err
}
