package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mcdev12/matchday/go/internal/matchday"
	"github.com/mcdev12/matchday/go/internal/store/pgstore"
	"github.com/mcdev12/matchday/go/internal/week"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show this week's players, teams and MVP tally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := openClient(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer done()
			return render(cmd.OutOrStdout(), opts.Format, client.View())
		},
	}
}

// newJoinCommand builds "join" when attending is true and "leave" otherwise.
func newJoinCommand(opts *rootOptions, attending bool) *cobra.Command {
	use, short := "join", "Answer that you play this week"
	if !attending {
		use, short = "leave", "Answer that you do not play this week"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := openClient(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer done()

			if err := client.SetParticipation(cmd.Context(), attending); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, client.View())
		},
	}
}

func newDrawCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "draw",
		Short: "Split the present players into two random teams",
		Long: `Split the present players into two random teams. Needs at least ten
present players. Drawing again replaces the previous teams.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := openClient(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer done()

			draw, err := client.LaunchDraw(cmd.Context())
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), draw)
			}
			renderDraw(cmd.OutOrStdout(), draw)
			return nil
		},
	}
}

func newVoteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vote <player>",
		Short: "Vote for this week's MVP",
		Long: `Vote for this week's MVP. <player> is a present player's email or name.
Voting again replaces your previous vote.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, done, err := openClient(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer done()

			view := client.View()
			email, err := candidateEmail(view, args[0])
			if err != nil {
				return err
			}
			if !view.VotingOpen {
				log.Warn().Msg("MVP voting is normally held on Friday and Saturday")
			}
			if err := client.VoteMVP(cmd.Context(), email); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.Format, client.View())
		},
	}
}

// candidateEmail resolves a name or email against the present players.
func candidateEmail(view matchday.View, who string) (string, error) {
	for _, p := range view.Present {
		if strings.EqualFold(p.Email, who) || strings.EqualFold(p.Name, who) {
			return p.Email, nil
		}
	}
	return "", fmt.Errorf("%q: %w", who, matchday.ErrUnknownCandidate)
}

func newWatchCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the current week live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, done, err := openClient(ctx, opts)
			if err != nil {
				return err
			}
			defer done()

			out := cmd.OutOrStdout()
			if err := render(out, opts.Format, client.View()); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case view := <-client.Updates():
					if opts.Format == "text" {
						fmt.Fprintln(out)
					}
					if err := render(out, opts.Format, view); err != nil {
						return err
					}
				}
			}
		},
	}
}

func newStateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "state [week]",
		Short: "Show a week as the gateway derives it",
		Long: `Show a week as the gateway derives it. [week] is a Thursday in
YYYY-MM-DD form and defaults to the current week.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resolver, err := opts.resolver()
			if err != nil {
				return err
			}
			key := resolver.CurrentKey(opts.deps.clock.Now())
			if len(args) == 1 {
				if key, err = week.Parse(args[0]); err != nil {
					return err
				}
			}

			gw, err := opts.deps.openGateway(opts)
			if err != nil {
				return err
			}
			state, err := gw.FetchState(cmd.Context(), key, opts.cfg.Client.UserID)
			if err != nil {
				return err
			}
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), state)
			}
			renderText(cmd.OutOrStdout(), state.View)
			return nil
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the match day tables, change log and triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Demo {
				return errors.New("nothing to migrate in demo mode")
			}
			pg, err := pgstore.Connect(cmd.Context(), opts.cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer pg.Close()
			if err := pg.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
