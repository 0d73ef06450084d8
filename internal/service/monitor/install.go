package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/portal"
)

var (
	// ErrUpdateFailed is returned when the portal reports a failed installation.
	ErrUpdateFailed = errors.New("update failed")
	// ErrSubscriptionClosed is returned when the signal stream ends early.
	ErrSubscriptionClosed = errors.New("signal subscription closed")
)

// Portal is the part of the portal client Install uses.
type Portal interface {
	OpenUpdateMonitor(ctx context.Context, options map[string]dbus.Variant) (*portal.Monitor, error)
	Subscribe(ctx context.Context) (*portal.Subscription, error)
}

// InstallOptions controls Install.
type InstallOptions struct {
	// ParentWindow identifies the window used for portal dialogs.
	ParentWindow string
	// WaitForUpdate waits for UpdateAvailable before requesting the update.
	WaitForUpdate bool
	// OnUpdateAvailable is called with the announced commits.
	OnUpdateAvailable func(info update.UpdateInfo)
	// OnProgress is called for every progress report.
	OnProgress func(progress update.Progress)
}

// Install creates an update monitor, requests the update and follows its
// progress until a terminal status. The monitor is closed on return.
func Install(ctx context.Context, p Portal, opts *InstallOptions) (*update.Progress, error) {
	ctx = logger.WithName(ctx, "install")

	subscription, err := p.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribe to monitor signals: %w", err)
	}

	defer func() {
		if closeErr := subscription.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close subscription", "error", closeErr)
		}
	}()

	monitor, err := p.OpenUpdateMonitor(ctx, portal.NoOptions())
	if err != nil {
		return nil, err
	}

	defer func() {
		if closeErr := monitor.Close(context.WithoutCancel(ctx)); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close update monitor", "error", closeErr)
		}
	}()

	ctx = logger.WithKV(ctx, "monitor", monitor.Path())

	if opts.WaitForUpdate {
		logger.Info(ctx, "Waiting for an update to become available")

		if err = waitAvailable(ctx, subscription, monitor.Path(), opts.OnUpdateAvailable); err != nil {
			return nil, err
		}
	}

	if err = monitor.Update(ctx, opts.ParentWindow, portal.NoOptions()); err != nil {
		return nil, err
	}

	return followProgress(ctx, subscription, monitor.Path(), opts.OnProgress)
}

func waitAvailable(
	ctx context.Context,
	subscription *portal.Subscription,
	path dbus.ObjectPath,
	onAvailable func(update.UpdateInfo),
) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-subscription.Events():
			if !ok {
				return ErrSubscriptionClosed
			}

			available, match := event.(portal.UpdateAvailable)
			if !match || available.Monitor != path {
				continue
			}

			logger.InfoKV(ctx, "Update available",
				"running_commit", available.Info.RunningCommit,
				"remote_commit", available.Info.RemoteCommit,
			)

			if onAvailable != nil {
				onAvailable(available.Info)
			}

			return nil
		}
	}
}

func followProgress(
	ctx context.Context,
	subscription *portal.Subscription,
	path dbus.ObjectPath,
	onProgress func(update.Progress),
) (*update.Progress, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event, ok := <-subscription.Events():
			if !ok {
				return nil, ErrSubscriptionClosed
			}

			progress, match := event.(portal.Progress)
			if !match || progress.Monitor != path {
				continue
			}

			current := progress.Progress

			logger.DebugKV(ctx, "Update progress",
				"op", current.Op,
				"n_ops", current.Ops,
				"progress", current.Percent,
				"status", current.Status.String(),
			)

			if onProgress != nil {
				onProgress(current)
			}

			if !current.Status.Terminal() {
				continue
			}

			if current.Status == update.StatusFailed {
				return &current, fmt.Errorf("%w: %s: %s", ErrUpdateFailed, current.Error, current.ErrorMessage)
			}

			logger.InfoKV(ctx, "Update finished", "status", current.Status.String())

			return &current, nil
		}
	}
}
