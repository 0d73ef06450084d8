package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/flatpak-updater/internal/service/check"
	"github.com/oshokin/flatpak-updater/internal/service/info"
	"github.com/oshokin/flatpak-updater/internal/service/monitor"
	"github.com/oshokin/flatpak-updater/internal/service/restart"
	"github.com/oshokin/flatpak-updater/internal/service/spawn"
	"github.com/oshokin/flatpak-updater/internal/service/status"
	"github.com/oshokin/flatpak-updater/internal/service/watch"
)

func newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show portal availability, version and supported features.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return info.Run(cmd.Context(), &info.Options{
				ConfigPath: configPath,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
}

func newCheckCommand() *cobra.Command {
	var current string

	command := &cobra.Command{
		Use:   "check [app-id]",
		Short: "Look up the latest Flathub release of an app.",
		Long: `Queries the Flathub appstream API for the app and prints the newest release.
The app ID defaults to the configured one (or FLATPAK_ID inside a sandbox).
With --current the release is compared with the given installed version.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use app ID argument if provided, otherwise rely on config.
			var appID string
			if len(args) > 0 {
				appID = args[0]
			}

			return check.Run(cmd.Context(), &check.Options{
				ConfigPath: configPath,
				AppID:      appID,
				Current:    current,
				Out:        cmd.OutOrStdout(),
			})
		},
	}

	command.Flags().StringVar(&current, "current", "", "installed version to compare with")

	return command
}

func newUpdateCommand() *cobra.Command {
	options := new(monitor.Options)

	command := &cobra.Command{
		Use:   "update",
		Short: "Install the pending update of the running app.",
		Long: `Creates an update monitor, asks the portal to install the update and prints
progress until the installation finishes. Works only inside a Flatpak sandbox.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options.ConfigPath = configPath
			options.Out = cmd.OutOrStdout()

			return monitor.Run(cmd.Context(), options)
		},
	}

	command.Flags().StringVar(&options.ParentWindow, "parent-window", "", "window identifier for portal dialogs")
	command.Flags().BoolVar(&options.Wait, "wait", false, "wait until the portal announces an update")
	command.Flags().BoolVar(&options.Restart, "restart", false, "restart into the new version when done")

	return command
}

func newSpawnCommand() *cobra.Command {
	options := new(spawn.Options)

	command := &cobra.Command{
		Use:   "spawn [flags] -- command [args...]",
		Short: "Run a command in a new sandbox of the running app.",
		Long: `Starts the command through the portal Spawn call. Flag names are
clear-env, latest-version, sandbox, no-network, watch-bus, expose-pids,
notify-start, share-pids and empty-app.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.ConfigPath = configPath
			options.Argv = args
			options.Out = cmd.OutOrStdout()

			return spawn.Run(cmd.Context(), options)
		},
	}

	command.Flags().StringVar(&options.Cwd, "cwd", "", "working directory of the command")
	command.Flags().StringArrayVar(&options.Env, "env", nil, "environment variable KEY=VALUE (repeatable)")
	command.Flags().StringSliceVar(&options.Flags, "flag", nil, "spawn flag name (repeatable)")
	command.Flags().BoolVar(&options.Wait, "wait", false, "wait for the command to exit")

	return command
}

func newRestartCommand() *cobra.Command {
	options := new(restart.RunOptions)

	command := &cobra.Command{
		Use:   "restart [-- command [args...]]",
		Short: "Start the latest installed version of the running app.",
		Long: `Spawns the latest installed version of the app. The command defaults to
restart_argv from the configuration and the working directory to the current one.
A command that runs this updater's restart or update again is rejected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			options.ConfigPath = configPath
			options.Argv = args

			return restart.Run(cmd.Context(), options)
		},
	}

	command.Flags().StringVar(&options.Cwd, "cwd", "", "working directory of the new instance")
	command.Flags().BoolVar(&options.NotifyStart, "notify-start", true, "wait until the new instance started")
	command.Flags().BoolVar(&options.WatchBus, "watch-bus", false, "stop the new instance when this process exits")
	command.Flags().BoolVar(&options.ExposePids, "expose-pids", false, "expose and verify the new instance pid")
	command.Flags().DurationVar(&options.StartTimeout, "start-timeout", 0, "how long to wait for the start (default: config timeout)")

	return command
}

func newWatchCommand() *cobra.Command {
	options := new(watch.Options)

	command := &cobra.Command{
		Use:   "watch [listen-address]",
		Short: "Run the update watcher and serve its status over gRPC.",
		Long: `Keeps an update monitor open, checks Flathub periodically and serves the
status on the listen address. With auto_update and auto_restart set in the
configuration, updates are installed and the app restarted unattended.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use listen address argument if provided, otherwise rely on config.
			if len(args) > 0 {
				options.ListenAddress = args[0]
			}

			options.ConfigPath = configPath

			return watch.Run(cmd.Context(), options)
		},
	}

	command.Flags().StringVarP(&options.StateFile, "state-file", "s", "", "path to persist the watcher status")

	return command
}

func newStatusCommand() *cobra.Command {
	options := new(status.Options)

	command := &cobra.Command{
		Use:   "status [watcher-address]",
		Short: "Show the status of a running watcher.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use watcher address argument if provided, otherwise rely on config.
			if len(args) > 0 {
				options.Address = args[0]
			}

			options.ConfigPath = configPath
			options.Out = cmd.OutOrStdout()

			return status.Run(cmd.Context(), options)
		},
	}

	command.Flags().BoolVar(&options.RequestUpdate, "update", false, "ask the watcher to install the pending update")
	command.Flags().StringVar(&options.ParentWindow, "parent-window", "", "window identifier for portal dialogs")

	return command
}
