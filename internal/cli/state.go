package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/affinity/internal/config"
	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/redisstore"
	"github.com/lazypower/affinity/internal/store"
)

var (
	stateUpdates int
	stateJSON    bool
	stateLimit   int
)

var stateCmd = &cobra.Command{
	Use:   "state [user-id session-id]",
	Short: "Show stored relationship state",
	Long:  "With no arguments, lists stored relationships. With a user and session, shows that relationship's stored state.",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("expected no arguments or <user-id> <session-id>, got %d", len(args))
		}
		return nil
	},
	RunE: runState,
}

func init() {
	stateCmd.Flags().IntVarP(&stateUpdates, "updates", "u", 0, "Also show the N most recent updates")
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print the summary as JSON")
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Maximum relationships to list")
}

func runState(cmd *cobra.Command, args []string) error {
	be, _, err := openBackend(config.FromEnv())
	if err != nil {
		return err
	}
	defer be.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listRelationships(ctx, out, be, stateLimit)
	}
	return showState(ctx, out, be, args[0], args[1], time.Now().UTC())
}

func listRelationships(ctx context.Context, w io.Writer, be backend, limit int) error {
	switch st := be.(type) {
	case *store.DB:
		rels, err := st.ListRelationships(ctx, limit)
		if err != nil {
			return err
		}
		if len(rels) == 0 {
			fmt.Fprintln(w, "No relationships stored yet.")
			return nil
		}
		for _, r := range rels {
			fmt.Fprintf(w, "  %s/%s  updated %s\n", r.UserID, r.SessionID, humanize.Time(time.UnixMilli(r.UpdatedAt)))
		}
	case *redisstore.Store:
		keys, err := st.ListRelationships(ctx)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintln(w, "No relationships stored yet.")
			return nil
		}
		for i, k := range keys {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Fprintf(w, "  %s/%s\n", k.UserID, k.SessionID)
		}
	default:
		return fmt.Errorf("listing is not supported by %T", be)
	}
	return nil
}

func showState(ctx context.Context, w io.Writer, be backend, userID, sessionID string, now time.Time) error {
	data, err := be.LoadSnapshot(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("no state stored for %s/%s", userID, sessionID)
	}
	s, err := dynamics.ParseSnapshot(data, now)
	if err != nil {
		return fmt.Errorf("stored state for %s/%s is corrupt: %w", userID, sessionID, err)
	}
	sum := dynamics.Summarize(s, now)

	if stateJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	fmt.Fprintf(w, "## %s/%s\n\n", userID, sessionID)
	fmt.Fprintf(w, "archetype:      %s\n", sum.Archetype)
	fmt.Fprintf(w, "category:       %s\n", sum.Category)
	fmt.Fprintf(w, "started:        %s (%d days)\n", humanize.Time(s.RelationshipStart), sum.DaysInRelationship)
	fmt.Fprintf(w, "last update:    %s\n", humanize.Time(s.LastUpdate))
	fmt.Fprintf(w, "last message:   %s\n", humanize.Time(s.LastUserMessageTime))
	fmt.Fprintf(w, "interactions:   %s\n", humanize.Comma(int64(sum.TotalInteractions)))
	fmt.Fprintf(w, "unanswered:     %d\n", sum.UnansweredMessageCount)
	fmt.Fprintf(w, "resistant:      %v\n", sum.ResistanceMode)
	fmt.Fprintf(w, "desperation:    %.1f\n\n", sum.Desperation)

	for _, v := range dynamics.Variables {
		fmt.Fprintf(w, "  %-26s %6.1f\n", v.Name, sum.Variables[v.Name])
	}

	if stateUpdates <= 0 {
		return nil
	}
	recs, err := be.GetUpdates(ctx, userID, sessionID, stateUpdates)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n## Recent updates\n\n")
	for _, r := range recs {
		fmt.Fprintf(w, "  %-14s +%.2fh  %-18s %s\n",
			humanize.Time(time.UnixMilli(r.CreatedAt)), r.ElapsedHours, r.Category, r.Event)
	}
	return nil
}
