package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/quietriver/chaff"
	"github.com/quietriver/chaff/internal/config"
)

// runFlags mirrors the config fields the CLI can override. Flags the user
// did not set fall through to env vars and defaults.
type runFlags struct {
	workers      int
	duration     time.Duration
	categories   []string
	seed         int64
	switchProb   float64
	chainProb    float64
	identityProb float64
	escalation   bool
	markovPacing bool
	dryRun       bool
	statusPort   int
	historyPath  string
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "chaff",
		Short:         "Generate human-like cover traffic",
		Long:          "chaff runs workers that browse, search and troubleshoot like frustrated humans,\nburying real traffic patterns in plausible noise.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(logger), newCategoriesCmd(logger), newVersionCmd())
	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the traffic engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := chaff.New(
				chaff.WithLogger(logger),
				chaff.WithVersion(version),
				chaff.WithConfigOverride(overrideFromFlags(cmd, &f)),
			)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context())
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.workers, "workers", "w", 3, "number of concurrent traffic workers")
	fl.DurationVarP(&f.duration, "duration", "d", 0, "run duration (0 = until interrupted)")
	fl.StringSliceVarP(&f.categories, "categories", "c", nil, "restrict to these categories (default: all troubleshooting topics)")
	fl.Int64Var(&f.seed, "seed", 0, "deterministic RNG seed (0 = random)")
	fl.Float64Var(&f.switchProb, "switch-prob", 0.3, "per-tick probability of switching category")
	fl.Float64Var(&f.chainProb, "chain-prob", 0.3, "probability a category switch follows a related-issue edge")
	fl.Float64Var(&f.identityProb, "identity-prob", 0.15, "per-tick probability of rotating the browser identity")
	fl.BoolVar(&f.escalation, "escalation", true, "mutate repeated queries with frustration vocabulary")
	fl.BoolVar(&f.markovPacing, "markov-pacing", true, "drive delay bands with the pacing Markov chain")
	fl.BoolVar(&f.dryRun, "dry-run", false, "log actions without performing HTTP requests")
	fl.IntVar(&f.statusPort, "status-port", 0, "HTTP status server port (0 = disabled)")
	fl.StringVar(&f.historyPath, "history", "", "SQLite file to persist the action log (empty = disabled)")

	return cmd
}

// overrideFromFlags applies only the flags the user actually set, so env
// vars keep working for everything else.
func overrideFromFlags(cmd *cobra.Command, f *runFlags) func(*config.Config) {
	return func(cfg *config.Config) {
		set := cmd.Flags().Changed
		if set("workers") {
			cfg.Workers = f.workers
		}
		if set("duration") {
			cfg.Duration = f.duration
		}
		if set("categories") {
			cfg.Categories = f.categories
		}
		if set("seed") {
			cfg.Seed = f.seed
		}
		if set("switch-prob") {
			cfg.SwitchProb = f.switchProb
		}
		if set("chain-prob") {
			cfg.ChainProb = f.chainProb
		}
		if set("identity-prob") {
			cfg.IdentityProb = f.identityProb
		}
		if set("escalation") {
			cfg.Escalation = f.escalation
		}
		if set("markov-pacing") {
			cfg.MarkovPacing = f.markovPacing
		}
		if set("dry-run") {
			cfg.DryRun = f.dryRun
		}
		if set("status-port") {
			cfg.StatusPort = f.statusPort
		}
		if set("history") {
			cfg.HistoryPath = f.historyPath
		}
	}
}

func newCategoriesCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List available traffic categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := chaff.New(
				chaff.WithLogger(logger),
				chaff.WithVersion(version),
				chaff.WithOutput(cmd.OutOrStdout()),
				chaff.WithConfigOverride(func(cfg *config.Config) {
					// Listing never needs network, history or a port.
					cfg.DryRun = true
					cfg.Categories = nil
					cfg.HistoryPath = ""
					cfg.StatusPort = 0
				}),
			)
			if err != nil {
				return err
			}
			app.Renderer().CategoryList(app.Catalog())
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the chaff version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "chaff", version)
		},
	}
}
