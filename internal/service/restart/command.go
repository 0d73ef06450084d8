package restart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/flatpak-updater/internal/config"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/service/common"
)

var (
	// ErrMissingArgv is returned when neither the command nor restart_argv names the app.
	ErrMissingArgv = errors.New("command of the app is missing, pass it after -- or set restart_argv")
	// ErrSelfRestart is returned when the command would run this command again.
	ErrSelfRestart = errors.New("command starts the updater's own restart or update")
)

// selfCommands are subcommands that restart the app when run.
//
//nolint:gochecknoglobals // Read-only lookup table.
var selfCommands = map[string]struct{}{
	"restart": {},
	"update":  {},
}

// RunOptions controls the restart command.
type RunOptions struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// Options are passed to Restart; an empty Argv defaults to the configured
	// restart_argv and an empty Cwd to the current directory.
	Options
}

// Run restarts the app into its latest installed version.
func Run(ctx context.Context, opts *RunOptions) error {
	ctx = logger.WithName(ctx, "flatpak-restart")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	restartOptions := opts.Options

	restartOptions.Argv, err = ResolveArgv(restartOptions.Argv, settings.RestartArgv)
	if err != nil {
		return err
	}

	if err = FillDefaults(&restartOptions); err != nil {
		return err
	}

	if restartOptions.StartTimeout <= 0 {
		restartOptions.StartTimeout = settings.Timeout
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

	result, err := Restart(ctx, p, &restartOptions)
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}

	logger.InfoKV(ctx, "Restarted into the latest version",
		"pid", result.PID,
		"relpid", result.RelPID,
		"started", result.Started,
		"executable", result.Executable,
	)

	return nil
}

// FillDefaults sets an empty Argv to the current command line and an empty
// Cwd to the current directory.
func FillDefaults(opts *Options) error {
	if len(opts.Argv) == 0 {
		opts.Argv = append([]string(nil), os.Args...)
	}

	if opts.Cwd == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}

		opts.Cwd = cwd
	}

	return nil
}

// ResolveArgv returns argv, or configured when argv is empty. A command line
// running this binary's restart or update subcommand is rejected: the new
// instance would run it again.
func ResolveArgv(argv, configured []string) ([]string, error) {
	return resolveArgv(argv, configured, os.Args[0])
}

func resolveArgv(argv, configured []string, self string) ([]string, error) {
	if len(argv) == 0 {
		argv = configured
	}

	if len(argv) == 0 || argv[0] == "" {
		return nil, ErrMissingArgv
	}

	if filepath.Base(argv[0]) != filepath.Base(self) {
		return append([]string(nil), argv...), nil
	}

	for _, arg := range argv[1:] {
		if _, ok := selfCommands[arg]; ok {
			return nil, fmt.Errorf("%w: %v", ErrSelfRestart, argv)
		}
	}

	return append([]string(nil), argv...), nil
}
