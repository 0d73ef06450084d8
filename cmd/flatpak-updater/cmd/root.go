package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/flatpak-updater/internal/config"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel selects the minimum level of log messages.
	logLevel string

	// rootCmd represents the base command; the work is done by subcommands.
	rootCmd = &cobra.Command{
		Use:   "flatpak-updater",
		Short: "Check for, install and restart into updates of a Flatpak app.",
		Long: `Talks to the Flatpak portal (org.freedesktop.portal.Flatpak) on the session bus
to install updates of the running app and to start its latest version, and
queries Flathub for the newest published release.

Settings are read from a YAML file and FLATPAK_UPDATER_* environment variables;
inside a sandbox the app ID defaults to FLATPAK_ID.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.SetLevelName(logLevel)
		},
	}
)

// Execute runs the flatpak-updater CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)

	err := rootCmd.ExecuteContext(ctx)

	stop()

	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newInfoCommand(),
		newCheckCommand(),
		newUpdateCommand(),
		newSpawnCommand(),
		newRestartCommand(),
		newWatchCommand(),
		newStatusCommand(),
	)
}
