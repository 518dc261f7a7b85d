package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/affinity/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle conversation hook events",
	Long:  "Hook commands read a JSON event on stdin, forward it to a running affinity server, and print reply guidance on stdout. They never fail the caller.",
}

var hookMessageCmd = &cobra.Command{
	Use:   "message",
	Short: "Handle an incoming user message",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle("message", os.Stdin)
	},
}

var hookAgentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Record a message sent by the agent",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle("agent", os.Stdin)
	},
}

var hookTickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Advance time and decide on outreach",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle("tick", os.Stdin)
	},
}

func init() {
	hookCmd.AddCommand(hookMessageCmd)
	hookCmd.AddCommand(hookAgentCmd)
	hookCmd.AddCommand(hookTickCmd)
}
