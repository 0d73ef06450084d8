package monitor

import (
	"context"
	"fmt"
	"io"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/service/common"
	"github.com/oshokin/flatpak-updater/internal/service/restart"
)

// Options controls the update command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ParentWindow overrides the configured parent window.
	ParentWindow string
	// Wait waits for the portal to announce an update first.
	Wait bool
	// Restart starts the new version, using the configured restart_argv, once it is installed.
	Restart bool
	// Out receives progress lines.
	Out io.Writer
}

// Run installs the pending update and optionally restarts into it.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "flatpak-update")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	var restartArgv []string
	if opts.Restart {
		// Checked before installing.
		if restartArgv, err = restart.ResolveArgv(nil, settings.RestartArgv); err != nil {
			return err
		}
	}

	parentWindow := settings.ParentWindow
	if opts.ParentWindow != "" {
		parentWindow = opts.ParentWindow
	}

	p, err := common.ConnectPortal(ctx, settings)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close D-Bus connection", "error", closeErr)
		}
	}()

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	final, err := Install(ctx, p, &InstallOptions{
		ParentWindow:  parentWindow,
		WaitForUpdate: opts.Wait,
		OnUpdateAvailable: func(info update.UpdateInfo) {
			_, _ = fmt.Fprintf(out, "update available: %s -> %s\n", info.RunningCommit, info.RemoteCommit)
		},
		OnProgress: func(progress update.Progress) {
			_, _ = fmt.Fprintln(out, FormatProgress(progress))
		},
	})
	if err != nil {
		return fmt.Errorf("install update: %w", err)
	}

	if final.Status != update.StatusDone || !opts.Restart {
		return nil
	}

	restartOptions := restart.Options{Argv: restartArgv, StartTimeout: settings.Timeout}
	if err = restart.FillDefaults(&restartOptions); err != nil {
		return err
	}

	result, err := restart.Restart(ctx, p, &restartOptions)
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	logger.InfoKV(ctx, "Restarted into the new version", "pid", result.PID)

	return nil
}

// FormatProgress renders a progress report as a single line.
func FormatProgress(progress update.Progress) string {
	line := fmt.Sprintf("[%d/%d] %3d%% %s", progress.Op, progress.Ops, progress.Percent, progress.Status)

	if progress.Status == update.StatusFailed {
		line += ": " + progress.ErrorMessage
	}

	return line
}
