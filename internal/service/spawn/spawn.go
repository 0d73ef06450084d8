package spawn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/portal"
	"github.com/oshokin/flatpak-updater/internal/service/common"
)

var (
	// ErrUnknownFlag is returned for a flag name the portal does not define.
	ErrUnknownFlag = errors.New("unknown spawn flag")
	// ErrInvalidEnv is returned for an environment entry without "=".
	ErrInvalidEnv = errors.New("environment entry must be KEY=VALUE")
	// ErrSubscriptionClosed is returned when the signal stream ends while waiting.
	ErrSubscriptionClosed = errors.New("signal subscription closed")
)

// Portal is the part of the portal client Spawn uses.
type Portal interface {
	Spawn(ctx context.Context, req *portal.SpawnRequest) (uint32, error)
	Subscribe(ctx context.Context) (*portal.Subscription, error)
	SpawnSignal(ctx context.Context, pid, signal uint32, toProcessGroup bool) error
}

// Options controls the spawn command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// Argv is the command line to start.
	Argv []string
	// Cwd is the working directory; the current one when empty.
	Cwd string
	// Env holds KEY=VALUE entries.
	Env []string
	// Flags holds spawn flag names, e.g. "latest-version".
	Flags []string
	// Wait waits for the process to exit and forwards interrupts to it.
	Wait bool
	// Out receives the pid and exit status.
	Out io.Writer
}

// ParseFlags combines flag names into a flag set.
func ParseFlags(names []string) (update.SpawnFlag, error) {
	var flags update.SpawnFlag

	for _, name := range names {
		for _, part := range strings.Split(name, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			flag, ok := update.ParseSpawnFlag(part)
			if !ok {
				return 0, fmt.Errorf("%w: %q", ErrUnknownFlag, part)
			}

			flags |= flag
		}
	}

	return flags, nil
}

// ParseEnv converts KEY=VALUE entries into a map.
func ParseEnv(entries []string) (map[string]string, error) {
	env := make(map[string]string, len(entries))

	for _, entry := range entries {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEnv, entry)
		}

		env[key] = value
	}

	return env, nil
}

// Wait blocks until the process pid exits and returns its wait status.
// When ctx ends first, SIGTERM is sent to the process.
func Wait(ctx context.Context, p Portal, subscription *portal.Subscription, pid uint32) (uint32, error) {
	for {
		select {
		case <-ctx.Done():
			//nolint:gosec // Signal numbers are small.
			if err := p.SpawnSignal(context.WithoutCancel(ctx), pid, uint32(syscall.SIGTERM), true); err != nil {
				logger.WarnKV(ctx, "Failed to signal spawned process", "pid", pid, "error", err)
			}

			return 0, ctx.Err()
		case event, ok := <-subscription.Events():
			if !ok {
				return 0, ErrSubscriptionClosed
			}

			exited, match := event.(portal.SpawnExited)
			if match && exited.PID == pid {
				return exited.ExitStatus, nil
			}
		}
	}
}

// Run starts the command and optionally waits for it.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "flatpak-spawn")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	request, err := buildRequest(opts)
	if err != nil {
		return err
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

	return spawn(ctx, p, request, opts.Wait, opts.Out)
}

func buildRequest(opts *Options) (*portal.SpawnRequest, error) {
	flags, err := ParseFlags(opts.Flags)
	if err != nil {
		return nil, err
	}

	env, err := ParseEnv(opts.Env)
	if err != nil {
		return nil, err
	}

	cwd := opts.Cwd
	if cwd == "" {
		if cwd, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
	}

	return &portal.SpawnRequest{
		Cwd:     cwd,
		Argv:    opts.Argv,
		Env:     env,
		Flags:   flags,
		Options: portal.NoOptions(),
	}, nil
}

func spawn(ctx context.Context, p Portal, request *portal.SpawnRequest, wait bool, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}

	var subscription *portal.Subscription

	if wait {
		var err error

		if subscription, err = p.Subscribe(ctx); err != nil {
			return fmt.Errorf("subscribe to spawn signals: %w", err)
		}

		defer func() {
			if closeErr := subscription.Close(); closeErr != nil {
				logger.WarnKV(ctx, "Failed to close subscription", "error", closeErr)
			}
		}()
	}

	pid, err := p.Spawn(ctx, request)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "pid: %d\n", pid)

	if subscription == nil {
		return nil
	}

	status, err := Wait(ctx, p, subscription, pid)
	if err != nil {
		return err
	}

	waitStatus := syscall.WaitStatus(status)
	_, _ = fmt.Fprintf(out, "exit status: %d\n", waitStatus.ExitStatus())

	return nil
}
