package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/affinity/internal/config"
	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/store"
	"github.com/lazypower/affinity/internal/transcript"
)

var (
	replayArchetype string
	replayUser      string
	replaySession   string
	replaySeed      uint64
	replayVerbose   bool
	replayPersist   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay [events.jsonl]",
	Short: "Replay a recorded interaction log",
	Long: "Drives the engine with a JSONL log of timestamped interactions. Elapsed time comes from the " +
		"gaps between consecutive entries of the same relationship. With --persist the final states are " +
		"written to the configured store; otherwise they are discarded.",
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVarP(&replayArchetype, "archetype", "a", "", "Archetype for relationships created during replay")
	replayCmd.Flags().StringVar(&replayUser, "user", "replay", "User ID for entries without one")
	replayCmd.Flags().StringVar(&replaySession, "session", "default", "Session ID for entries without one")
	replayCmd.Flags().Uint64Var(&replaySeed, "seed", 0, "Noise seed")
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Print the condensed timeline before the results")
	replayCmd.Flags().BoolVar(&replayPersist, "persist", false, "Save the resulting states to the store")
}

func runReplay(cmd *cobra.Command, args []string) error {
	entries, err := transcript.ParseFile(args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no interactions in %s", args[0])
	}

	out := cmd.OutOrStdout()
	if replayVerbose {
		fmt.Fprintln(out, transcript.Condense(entries))
		fmt.Fprintln(out)
	}

	var st engine.SnapshotStore
	if replayPersist {
		be, desc, err := openBackend(config.FromEnv())
		if err != nil {
			return err
		}
		defer be.Close()
		fmt.Fprintf(cmd.ErrOrStderr(), "persisting to %s\n", desc)
		st = be
	} else {
		db, err := store.OpenMemory()
		if err != nil {
			return fmt.Errorf("open memory store: %w", err)
		}
		defer db.Close()
		st = db
	}

	steps := transcript.Steps(entries, replayUser, replaySession)
	sums, err := replay(cmd.Context(), st, steps, replayArchetype, replaySeed)
	if err != nil {
		return err
	}

	counts := transcript.CountByType(entries)
	fmt.Fprintf(out, "replayed %d interactions (%d user, %d agent, %d tick)\n\n",
		len(entries), counts[transcript.TypeUser], counts[transcript.TypeAgent], counts[transcript.TypeTick])
	printReplay(out, sums)
	return nil
}

type replayResult struct {
	Key     engine.Key
	Summary dynamics.Summary
}

// replay feeds steps to an engine whose clock follows the log, flushes the
// final states to st and returns their summaries ordered by key.
func replay(ctx context.Context, st engine.SnapshotStore, steps []transcript.Step, archetype string, seed uint64) ([]replayResult, error) {
	// New relationships start at their first entry, not at the wall clock.
	var now time.Time
	eng := engine.New(st, engine.Options{
		Archetype: archetype,
		Seed:      seed,
		Clock:     func() time.Time { return now },
	})
	defer eng.Stop()

	for _, step := range steps {
		now = step.At
		key := engine.Key{UserID: step.UserID, SessionID: step.SessionID}

		if _, err := eng.Update(ctx, key, engine.UpdateRequest{
			ElapsedHours: dynamics.Float(step.ElapsedHours),
			Event:        step.Event,
			Archetype:    archetype,
		}); err != nil {
			return nil, fmt.Errorf("replay %s: %w", key, err)
		}
		if step.Type == transcript.TypeAgent {
			if _, err := eng.RecordAgentMessage(ctx, key); err != nil {
				return nil, fmt.Errorf("replay %s: %w", key, err)
			}
		}
	}

	if _, err := eng.Flush(ctx); err != nil {
		return nil, err
	}

	keys := eng.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	results := make([]replayResult, 0, len(keys))
	for _, k := range keys {
		sum, err := eng.Summary(ctx, k)
		if err != nil {
			return nil, err
		}
		results = append(results, replayResult{Key: k, Summary: sum})
	}
	return results, nil
}

func printReplay(w io.Writer, results []replayResult) {
	for _, r := range results {
		s := r.Summary
		fmt.Fprintf(w, "%s [%s]\n", r.Key, s.Archetype)
		fmt.Fprintf(w, "  category:     %s\n", s.Category)
		fmt.Fprintf(w, "  interactions: %d (unanswered %d)\n", s.TotalInteractions, s.UnansweredMessageCount)
		fmt.Fprintf(w, "  anxiety %.1f  loneliness %.1f  attachment %.1f  trust %.1f  hurt %.1f\n",
			s.Variables["anxiety"], s.Variables["loneliness"], s.Variables["attachment"],
			s.Variables["trust"], s.Variables["hurt"])
		fmt.Fprintf(w, "  resistant:    %v\n\n", s.ResistanceMode)
	}
}
