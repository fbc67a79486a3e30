// Command regctl ingests spreadsheets from the local filesystem into the
// registry and lists what has been ingested. It uses the same configuration
// and storage as the server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/LandRegistry/internal/app"
	"github.com/JonMunkholm/LandRegistry/internal/config"
	"github.com/JonMunkholm/LandRegistry/internal/logging"
)

// env is what every subcommand runs against, built in PersistentPreRunE.
type env struct {
	cfg *config.Config
	app *app.App
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:   "regctl",
		Short: "Ingest and inspect land registry spreadsheets",
		Long: `regctl talks directly to the registry's storage, bypassing the HTTP server.

Configuration comes from the environment (and .env), exactly as for the server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			e.cfg, e.app = cfg, a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.app != nil {
				e.app.Close()
			}
		},
	}

	root.AddCommand(newIngestCmd(e), newListCmd(e))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Debug("regctl failed", "error", err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
