package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wfunc/codechallenge/config"
	"github.com/wfunc/codechallenge/game"
	"github.com/wfunc/codechallenge/logger"
	"github.com/wfunc/codechallenge/persistence"
	"github.com/wfunc/codechallenge/server"
)

func newServeCmd() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve <challenge>",
		Short: "Run the server for one challenge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configDir)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			if err := logger.Init(cfg.Log.Level); err != nil {
				return err
			}
			defer logger.Sync()

			engine, err := NewEngine(args[0], cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, args[0], engine)
		},
	}

	cmd.Flags().StringVar(&configDir, "config", ".", "Directory containing config.yaml")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, challenge string, engine game.Engine) error {
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if db != nil {
		defer db.Close()
		logger.Log.Infof("Round records stored with the %s driver", cfg.Database.Driver)
	}

	scores, err := persistence.OpenScores(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer scores.Close()

	logger.Log.Infof("Starting %s server on %s", challenge, cfg.Server.Address)
	return server.NewGameServer(cfg, engine, db, scores).Run(ctx)
}
