package restart

import (
	"context"
	"errors"
	"fmt"
	"time"

	ps "github.com/mitchellh/go-ps"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/portal"
)

// DefaultStartTimeout bounds the wait for SpawnStarted.
const DefaultStartTimeout = 30 * time.Second

var (
	// ErrPortalTooOld is returned when the portal predates a requested flag.
	ErrPortalTooOld = errors.New("portal version too old")
	// ErrExposePidsUnsupported is returned when the portal cannot expose pids.
	ErrExposePidsUnsupported = errors.New("portal does not support exposing pids")
	// ErrStartTimeout is returned when SpawnStarted does not arrive in time.
	ErrStartTimeout = errors.New("timed out waiting for the new instance to start")
	// ErrExitedEarly is returned when the new instance exits before it started.
	ErrExitedEarly = errors.New("new instance exited before it started")
	// ErrSubscriptionClosed is returned when the signal stream ends while waiting.
	ErrSubscriptionClosed = errors.New("signal subscription closed")
	// ErrProcessNotFound is returned when the exposed pid is not in the process table.
	ErrProcessNotFound = errors.New("new instance not found in the process table")
)

// Portal is the part of the portal client Restart uses.
type Portal interface {
	Version(ctx context.Context) (uint32, error)
	Supports(ctx context.Context) (uint32, error)
	Spawn(ctx context.Context, req *portal.SpawnRequest) (uint32, error)
	Subscribe(ctx context.Context) (*portal.Subscription, error)
}

// Options controls how the new instance is started.
type Options struct {
	// Argv is the command line of the new instance.
	Argv []string
	// Cwd is its working directory.
	Cwd string
	// Env holds extra environment variables.
	Env map[string]string
	// NotifyStart waits for the SpawnStarted signal.
	NotifyStart bool
	// WatchBus stops the new instance when this process leaves the bus.
	WatchBus bool
	// ExposePids makes the new instance visible in this sandbox and verifies
	// it is running. It implies NotifyStart.
	ExposePids bool
	// StartTimeout bounds the wait for SpawnStarted.
	StartTimeout time.Duration
	// FindProcess looks up a pid; ps.FindProcess when nil.
	FindProcess func(pid int) (ps.Process, error)
}

// Result describes the started instance.
type Result struct {
	// PID is the host pid returned by Spawn.
	PID uint32
	// RelPID is the pid inside this sandbox, set when pids are exposed.
	RelPID uint32
	// Started is set once SpawnStarted was received.
	Started bool
	// Executable is the process name found for RelPID.
	Executable string
}

// Flags returns the spawn flags for opts.
func (o *Options) Flags() update.SpawnFlag {
	flags := update.SpawnLatestVersion

	if o.NotifyStart || o.ExposePids {
		flags |= update.SpawnNotifyStart
	}

	if o.WatchBus {
		flags |= update.SpawnWatchBus
	}

	if o.ExposePids {
		flags |= update.SpawnExposePids
	}

	return flags
}

// Restart spawns the latest version of the running app.
func Restart(ctx context.Context, p Portal, opts *Options) (*Result, error) {
	ctx = logger.WithName(ctx, "restart")

	flags := opts.Flags()

	if err := checkPortal(ctx, p, flags); err != nil {
		return nil, err
	}

	var subscription *portal.Subscription

	// Subscribe before spawning so SpawnStarted cannot be missed.
	if flags.Has(update.SpawnNotifyStart) {
		var err error

		subscription, err = p.Subscribe(ctx)
		if err != nil {
			return nil, fmt.Errorf("subscribe to spawn signals: %w", err)
		}

		defer func() {
			if closeErr := subscription.Close(); closeErr != nil {
				logger.WarnKV(ctx, "Failed to close subscription", "error", closeErr)
			}
		}()
	}

	pid, err := p.Spawn(ctx, &portal.SpawnRequest{
		Cwd:     opts.Cwd,
		Argv:    opts.Argv,
		Env:     opts.Env,
		Flags:   flags,
		Options: portal.NoOptions(),
	})
	if err != nil {
		return nil, err
	}

	result := &Result{PID: pid}

	if subscription == nil {
		return result, nil
	}

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}

	started, err := waitStarted(ctx, subscription, pid, timeout)
	if err != nil {
		return result, err
	}

	result.Started = true
	result.RelPID = started.RelPID

	logger.InfoKV(ctx, "New instance started", "pid", pid, "relpid", started.RelPID)

	if !flags.Has(update.SpawnExposePids) || started.RelPID == 0 {
		return result, nil
	}

	find := opts.FindProcess
	if find == nil {
		find = ps.FindProcess
	}

	process, err := find(int(started.RelPID))
	if err != nil {
		return result, fmt.Errorf("find process %d: %w", started.RelPID, err)
	}

	if process == nil {
		return result, fmt.Errorf("%w: pid %d", ErrProcessNotFound, started.RelPID)
	}

	result.Executable = process.Executable()

	return result, nil
}

func checkPortal(ctx context.Context, p Portal, flags update.SpawnFlag) error {
	required := update.RequiredPortalVersion(flags)
	if required > 1 {
		version, err := p.Version(ctx)
		if err != nil {
			return err
		}

		if version < required {
			return fmt.Errorf("%w: %s needs version %d, portal has %d", ErrPortalTooOld, flags, required, version)
		}
	}

	if flags.Has(update.SpawnExposePids) {
		supports, err := p.Supports(ctx)
		if err != nil {
			return err
		}

		if supports&update.SupportsExposePids == 0 {
			return ErrExposePidsUnsupported
		}
	}

	return nil
}

// waitStarted blocks until the SpawnStarted signal for pid arrives.
func waitStarted(
	ctx context.Context,
	subscription *portal.Subscription,
	pid uint32,
	timeout time.Duration,
) (*portal.SpawnStarted, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: pid %d after %s", ErrStartTimeout, pid, timeout)
		case event, ok := <-subscription.Events():
			if !ok {
				return nil, ErrSubscriptionClosed
			}

			switch e := event.(type) {
			case portal.SpawnStarted:
				if e.PID == pid {
					return &e, nil
				}
			case portal.SpawnExited:
				if e.PID == pid {
					return nil, fmt.Errorf("%w: pid %d, status %d", ErrExitedEarly, pid, e.ExitStatus)
				}
			}
		}
	}
}
