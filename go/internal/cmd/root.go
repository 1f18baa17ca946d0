package main

import (
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mcdev12/matchday/go/internal/config"
)

var validFormats = []string{"text", "json"}

// rootOptions holds the global flags and what PersistentPreRunE derives from them.
type rootOptions struct {
	ConfigPath string
	Demo       bool
	Format     string
	Verbose    bool

	cfg  *config.Config
	deps *deps
}

func newRootCommand(d *deps) *cobra.Command {
	if d == nil {
		d = defaultDeps()
	}
	opts := &rootOptions{deps: d}

	cmd := &cobra.Command{
		Use:   "matchday",
		Short: "Weekly match day: who plays, team draw and MVP vote",
		Long: `matchday follows the current match week (Thursday to Thursday) and lets
you answer whether you play, draw two teams once ten players are in and
vote for the match MVP on Friday and Saturday.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			if opts.Verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config")
	cmd.PersistentFlags().BoolVar(&opts.Demo, "demo", false, "run against an in-memory store seeded with demo players")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newStatusCommand(opts),
		newJoinCommand(opts, true),
		newJoinCommand(opts, false),
		newDrawCommand(opts),
		newVoteCommand(opts),
		newWatchCommand(opts),
		newStateCommand(opts),
		newMigrateCommand(opts),
	)
	return cmd
}
