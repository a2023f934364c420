package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/wfunc/codechallenge/room"
	challenge_rpc "github.com/wfunc/codechallenge/rpc"
)

// newAdminCmd groups the commands that talk to a running server over RPC.
func newAdminCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect or adjust a running server",
	}
	cmd.PersistentFlags().StringVar(&addr, "rpc", "127.0.0.1:7656", "Server RPC address")

	dial := func() (*challenge_rpc.Client, error) {
		return challenge_rpc.Dial(addr)
	}

	cmd.AddCommand(
		newRoomsCmd(dial),
		newScoresCmd(dial),
		newRoundsCmd(dial),
		newDelayCmd(dial),
		newModeCmd(dial),
	)
	return cmd
}

type dialFunc func() (*challenge_rpc.Client, error)

func newRoomsCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "Show every room with its players",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			rooms, err := c.Rooms("")
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ROOM\tCHALLENGE\tMODE\tROUND\tPHASE\tPLAYERS\tWAITING")
			for _, r := range rooms {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%v\t%v\n", r.Room, r.Challenge, r.Mode, r.Round, r.Phase, r.Players, r.Waiting)
			}
			return w.Flush()
		},
	}
}

func newScoresCmd(dial dialFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scores",
		Short: "Show the scoreboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			scores, err := c.Scores(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PLAYER\tWINS")
			for _, s := range scores {
				fmt.Fprintf(w, "%s\t%d\n", s.Username, s.Wins)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the top N players")
	return cmd
}

func newRoundsCmd(dial dialFunc) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Show recently finished rounds as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			rounds, err := c.RecentRounds(limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rounds)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of rounds")
	return cmd
}

func newDelayCmd(dial dialFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "delay <duration>",
		Short: "Set the pause before each turn in every room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return err
			}
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			rooms, err := c.Rooms("")
			if err != nil {
				return err
			}
			for _, r := range rooms {
				if err := c.SetTurnDelay(r.Room, d); err != nil {
					return fmt.Errorf("room %s: %w", r.Room, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: turn delay %s\n", r.Room, d)
			}
			return nil
		},
	}
}

func newModeCmd(dial dialFunc) *cobra.Command {
	var roomID string
	cmd := &cobra.Command{
		Use:       "mode <practice|gating|competition>",
		Short:     "Switch rooms between practice, gating and competition",
		Long:      "Gating stops running rounds, clears the scoreboard and holds players until another mode opens the gate.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{room.ModePractice, room.ModeGating, room.ModeCompetition},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			changed, err := c.SetMode(roomID, args[0])
			if err != nil {
				return err
			}
			for _, id := range changed {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: mode %s\n", id, args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "Only switch this room")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
