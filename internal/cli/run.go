package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vesper-voice/vesper/internal/app"
	"github.com/vesper-voice/vesper/internal/config"
)

var connectOnStart bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the voice client and its control API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		built, err := app.Build(ctx, cfg)
		if err != nil {
			return err
		}

		if connectOnStart {
			if err := built.Session.Connect(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "initial connect failed: %v\n", err)
			}
		}

		return built.Run(ctx)
	},
}

func init() {
	runCmd.Flags().BoolVar(&connectOnStart, "connect", false, "Open the voice session immediately instead of waiting for the API")
	RootCmd.AddCommand(runCmd)
}
