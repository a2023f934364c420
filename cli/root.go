package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "codechallenge",
		Short: "Turn-based coding challenge server",
		Long: `codechallenge hosts live coding challenges. Players connect over TCP,
authenticate, and take turns submitting moves computed by their own bots.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAdminCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
