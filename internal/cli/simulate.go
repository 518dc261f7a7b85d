package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/store"
)

var (
	simArchetypes     []string
	simBuildDays      int
	simSilenceDays    int
	simSeed           uint64
	simResponsiveness float64
	simJSON           bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a relationship that builds and then goes silent",
	Long: "Runs each archetype through a build phase of daily conversation followed by a silence phase " +
		"with no user contact, printing the daily emotional trajectory. State lives in memory only.",
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringSliceVarP(&simArchetypes, "archetype", "a", []string{dynamics.DefaultArchetype}, "Archetypes to simulate")
	simulateCmd.Flags().IntVar(&simBuildDays, "build-days", 30, "Days of daily conversation")
	simulateCmd.Flags().IntVar(&simSilenceDays, "silence-days", 7, "Days of silence after the build phase")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 42, "Noise seed")
	simulateCmd.Flags().Float64Var(&simResponsiveness, "responsiveness", 0.8, "User responsiveness during the build phase [0,1]")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "Print the trajectory as JSON")
}

// Hours of the day at which the simulated user writes during the build phase.
var simMessageHours = []int{9, 13, 20}

var simStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type simOptions struct {
	Archetype      string
	BuildDays      int
	SilenceDays    int
	Seed           uint64
	Responsiveness float64
}

// simDay is the state at the end of one simulated day.
type simDay struct {
	Day        int               `json:"day"`
	Phase      string            `json:"phase"`
	Anxiety    float64           `json:"anxiety"`
	Loneliness float64           `json:"loneliness"`
	Attachment float64           `json:"attachment"`
	Hurt       float64           `json:"hurt"`
	Filter     float64           `json:"filter_effectiveness"`
	Category   dynamics.Category `json:"category"`
	Outreach   int               `json:"outreach_messages"`
}

type simReport struct {
	Archetype   string   `json:"archetype"`
	Days        []simDay `json:"days"`
	PeakAnxiety float64  `json:"peak_anxiety"`
	// Growth is peak anxiety minus anxiety at the end of the build phase.
	Growth float64 `json:"anxiety_growth"`
}

func runSimulate(cmd *cobra.Command, args []string) error {
	var reports []simReport
	for _, a := range simArchetypes {
		rep, err := simulate(cmd.Context(), simOptions{
			Archetype:      a,
			BuildDays:      simBuildDays,
			SilenceDays:    simSilenceDays,
			Seed:           simSeed,
			Responsiveness: simResponsiveness,
		})
		if err != nil {
			return err
		}
		reports = append(reports, rep)
	}

	out := cmd.OutOrStdout()
	if simJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, r := range reports {
		printSimReport(out, r)
	}
	return nil
}

// simulate runs one archetype hour by hour on a virtual clock.
func simulate(ctx context.Context, opts simOptions) (simReport, error) {
	db, err := store.OpenMemory()
	if err != nil {
		return simReport{}, fmt.Errorf("open memory store: %w", err)
	}
	defer db.Close()

	now := simStart
	eng := engine.New(db, engine.Options{
		Archetype: opts.Archetype,
		Seed:      opts.Seed,
		Clock:     func() time.Time { return now },
	})
	defer eng.Stop()

	key := engine.Key{UserID: "simulated", SessionID: uuid.NewString()}
	if _, _, err := eng.Init(ctx, key, opts.Archetype); err != nil {
		return simReport{}, err
	}

	rep := simReport{Archetype: opts.Archetype}
	var buildEnd float64
	totalDays := opts.BuildDays + opts.SilenceDays
	for day := 1; day <= totalDays; day++ {
		building := day <= opts.BuildDays
		outreach := 0
		peak := 0.0

		for hour := range 24 {
			now = now.Add(time.Hour)
			req := engine.UpdateRequest{ElapsedHours: dynamics.Float(1)}
			if building && slices.Contains(simMessageHours, hour) {
				req.Event = dynamics.Event{
					UserMessageReceived: true,
					UserResponsiveness:  dynamics.Float(opts.Responsiveness),
					DisclosureDepth:     dynamics.Float(5),
				}
			}
			res, err := eng.Update(ctx, key, req)
			if err != nil {
				return simReport{}, err
			}
			peak = max(peak, res.Summary.Variables["anxiety"])

			if building {
				if req.Event.UserMessageReceived {
					// The agent replies to every message.
					if _, err := eng.RecordAgentMessage(ctx, key); err != nil {
						return simReport{}, err
					}
				}
				continue
			}
			d, err := eng.Outreach(ctx, key)
			if err != nil {
				return simReport{}, err
			}
			if d.Send {
				outreach++
				if _, err := eng.RecordAgentMessage(ctx, key); err != nil {
					return simReport{}, err
				}
			}
		}

		sum, err := eng.Summary(ctx, key)
		if err != nil {
			return simReport{}, err
		}
		filter, err := eng.FilterEffectiveness(ctx, key)
		if err != nil {
			return simReport{}, err
		}
		phase := "silence"
		if building {
			phase = "build"
			buildEnd = sum.Variables["anxiety"]
		}
		rep.Days = append(rep.Days, simDay{
			Day:        day,
			Phase:      phase,
			Anxiety:    sum.Variables["anxiety"],
			Loneliness: sum.Variables["loneliness"],
			Attachment: sum.Variables["attachment"],
			Hurt:       sum.Variables["hurt"],
			Filter:     filter,
			Category:   sum.Category,
			Outreach:   outreach,
		})
		if !building {
			rep.PeakAnxiety = max(rep.PeakAnxiety, peak)
		}
	}
	rep.Growth = rep.PeakAnxiety - buildEnd
	return rep, nil
}

func printSimReport(w io.Writer, r simReport) {
	fmt.Fprintf(w, "## %s\n\n", r.Archetype)
	fmt.Fprintf(w, "%4s  %-8s %8s %8s %8s %8s %7s  %-18s %s\n",
		"day", "phase", "anxiety", "lonely", "attach", "hurt", "filter", "category", "outreach")
	for _, d := range r.Days {
		fmt.Fprintf(w, "%4d  %-8s %8.1f %8.1f %8.1f %8.1f %7.2f  %-18s %d\n",
			d.Day, d.Phase, d.Anxiety, d.Loneliness, d.Attachment, d.Hurt, d.Filter, d.Category, d.Outreach)
	}
	fmt.Fprintf(w, "\npeak anxiety during silence: %.1f (growth %+.1f)\n\n", r.PeakAnxiety, r.Growth)
}
