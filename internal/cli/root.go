// Package cli provides the command-line interface for reeltransfer.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/reelworks/reeltransfer/internal/logging"
	"github.com/reelworks/reeltransfer/internal/settings"
	"github.com/reelworks/reeltransfer/internal/version"
)

var (
	// Global flags
	settingsPath string
	toolPath     string
	verbose      bool

	// Global logger
	logger *logging.Logger

	// Settings store shared by the commands
	store settings.Store
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reeltransfer",
		Short: "ReelTransfer - offload camera media with Robocopy",
		Long: `ReelTransfer ` + version.Version + ` - Built: ` + version.BuildTime + `
Transfer orchestration for camera-card offloads: preflight checks,
duplicate handling, retries, and live progress around Robocopy.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.NewDefaultLogger()
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}

			path := settingsPath
			if path == "" {
				var err error
				if path, err = settings.DefaultPath(); err != nil {
					return fmt.Errorf("locating settings: %w", err)
				}
			}
			fileStore, err := settings.NewFileStore(path)
			if err != nil {
				return err
			}
			store = fileStore
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&settingsPath, "config", "c", "", "Settings file path")
	rootCmd.PersistentFlags().StringVar(&toolPath, "robocopy", "", "Path to the Robocopy executable")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPreviewCmd())
	rootCmd.AddCommand(newPreflightCmd())

	return rootCmd
}

// Execute runs the CLI with signal-aware cancellation: the first interrupt
// cancels the running transfer gracefully, a second one kills the process.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return err
}
