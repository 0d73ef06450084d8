package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
)

var (
	// ErrMissingCwd is returned when Spawn gets no working directory.
	ErrMissingCwd = errors.New("working directory is missing")
	// ErrMissingArgv is returned when Spawn gets no command line.
	ErrMissingArgv = errors.New("argv is missing")
	// ErrInvalidFlags is returned when Spawn gets bits the portal does not define.
	ErrInvalidFlags = errors.New("invalid spawn flags")
)

// Spawn option keys understood by the portal.
const (
	SpawnOptionSandboxExpose      = "sandbox-expose"
	SpawnOptionSandboxExposeRo    = "sandbox-expose-ro"
	SpawnOptionSandboxFlags       = "sandbox-flags"
	SpawnOptionUnsetEnv           = "unset-env"
	SpawnOptionUsrFd              = "usr-fd"
	SpawnOptionAppFd              = "app-fd"
	SpawnOptionSandboxA11yOwnName = "sandbox-a11y-own-names"
	SpawnOptionSandboxExposeFd    = "sandbox-expose-fd"
	SpawnOptionSandboxExposeFdRo  = "sandbox-expose-fd-ro"
)

// SpawnRequest holds the arguments of the portal Spawn call.
type SpawnRequest struct {
	// Cwd is the working directory of the new process.
	Cwd string
	// Argv is the command line, starting with the executable.
	Argv []string
	// Fds maps file descriptor numbers in the new process to descriptors of this one.
	Fds map[uint32]int
	// Env holds variables set in the new process environment.
	Env map[string]string
	// Flags are the spawn flags.
	Flags update.SpawnFlag
	// Options is the vardict of further options; use NoOptions for none.
	Options map[string]dbus.Variant
}

// Validate checks the request the way the portal would reject it.
func (r *SpawnRequest) Validate() error {
	if strings.TrimSpace(r.Cwd) == "" {
		return ErrMissingCwd
	}

	if len(r.Argv) == 0 || r.Argv[0] == "" {
		return ErrMissingArgv
	}

	if !update.ValidSpawnFlags(uint32(r.Flags)) {
		return fmt.Errorf("%w: %s", ErrInvalidFlags, r.Flags)
	}

	if r.Options == nil {
		return ErrMissingOptions
	}

	return nil
}

// Spawn starts a new instance of the calling app, optionally in a tighter
// sandbox, and returns the PID of the new process.
func (p *Portal) Spawn(ctx context.Context, req *SpawnRequest) (uint32, error) {
	if !p.usable() {
		return 0, ErrPortalUnavailable
	}

	if req == nil {
		return 0, ErrMissingArgv
	}

	if err := req.Validate(); err != nil {
		return 0, err
	}

	argv := make([][]byte, 0, len(req.Argv))
	for _, arg := range req.Argv {
		argv = append(argv, Bytestring(arg))
	}

	fds := make(map[uint32]dbus.UnixFD, len(req.Fds))
	for target, source := range req.Fds {
		fds[target] = dbus.UnixFD(source) //nolint:gosec // File descriptors fit into int32.
	}

	env := req.Env
	if env == nil {
		env = map[string]string{}
	}

	var pid uint32

	err := p.call(ctx, p.object, Interface+".Spawn",
		Bytestring(req.Cwd),
		argv,
		fds,
		env,
		uint32(req.Flags),
		req.Options,
	).Store(&pid)
	if err != nil {
		return 0, fmt.Errorf("spawn: %w", err)
	}

	logger.InfoKV(ctx, "Process spawned", "pid", pid, "argv", req.Argv, "flags", req.Flags.String())

	return pid, nil
}

// Bytestring encodes s as a NUL-terminated D-Bus bytestring ("ay").
func Bytestring(s string) []byte {
	b := make([]byte, 0, len(s)+1)
	b = append(b, s...)

	return append(b, 0)
}
