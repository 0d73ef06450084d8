package status

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/service/common"
)

// Options controls the status command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// Address overrides the configured watcher address.
	Address string
	// RequestUpdate asks the watcher to install the pending update.
	RequestUpdate bool
	// ParentWindow overrides the configured parent window.
	ParentWindow string
	// Out receives the status.
	Out io.Writer
}

// Run prints the watcher status.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "flatpak-status")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	address := settings.ListenAddress
	if opts.Address != "" {
		address = opts.Address
	}

	client, err := common.Dial(ctx, address, common.WithCallTimeout(settings.Timeout))
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close gRPC connection", "error", closeErr)
		}
	}()

	if opts.RequestUpdate {
		parentWindow := settings.ParentWindow
		if opts.ParentWindow != "" {
			parentWindow = opts.ParentWindow
		}

		actor, actorErr := common.DetectActor()
		if actorErr != nil {
			logger.WarnKV(ctx, "Failed to detect actor", "error", actorErr)
		}

		if err = client.RequestUpdate(ctx, parentWindow, actor); err != nil {
			return err
		}

		logger.InfoKV(ctx, "Update requested", "address", address, "parent_window", parentWindow)
	}

	current, err := client.GetStatus(ctx)
	if err != nil {
		return err
	}

	return Write(opts.Out, current)
}

// Write renders a status snapshot.
func Write(out io.Writer, status *update.Status) error {
	checkedAt := "never"
	if !status.CheckedAt.IsZero() {
		checkedAt = status.CheckedAt.Local().Format(time.RFC3339)
	}

	_, err := fmt.Fprintf(out,
		"app id:            %s\ninstalled version: %s\nlatest version:    %s\nupdate available:  %t\nchecked at:        %s\n",
		orDash(status.AppID),
		orDash(status.InstalledVersion),
		orDash(status.LatestVersion),
		status.UpdateAvailable,
		checkedAt,
	)
	if err != nil {
		return err
	}

	if info := status.UpdateInfo; info != nil {
		if _, err = fmt.Fprintf(out, "remote commit:     %s\n", orDash(info.RemoteCommit)); err != nil {
			return err
		}
	}

	if progress := status.Progress; progress != nil {
		if _, err = fmt.Fprintf(out, "progress:          %d%% (%s)\n", progress.Percent, progress.Status); err != nil {
			return err
		}
	}

	if status.LastError != "" {
		_, err = fmt.Fprintf(out, "last error:        %s\n", status.LastError)
	}

	return err
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
