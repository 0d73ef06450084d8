package update

import (
	"fmt"
	"strings"
)

// SpawnFlag is a single bit of the flags argument of the portal Spawn call.
type SpawnFlag uint32

const (
	// SpawnClearEnv clears the environment.
	SpawnClearEnv SpawnFlag = 1 << iota
	// SpawnLatestVersion spawns the latest installed version of the app.
	SpawnLatestVersion
	// SpawnSandbox runs the process in a tighter sandbox.
	SpawnSandbox
	// SpawnNoNetwork runs the process without network access.
	SpawnNoNetwork
	// SpawnWatchBus kills the sandbox when the caller leaves the session bus.
	SpawnWatchBus
	// SpawnExposePids exposes the sandbox pids in the caller's sandbox.
	SpawnExposePids
	// SpawnNotifyStart emits SpawnStarted once the process has fully started.
	SpawnNotifyStart
	// SpawnSharePids shares pids in both directions between the sandboxes.
	SpawnSharePids
	// SpawnEmptyApp leaves /app empty in the new sandbox.
	SpawnEmptyApp
)

// SpawnFlagMask is the union of every flag the portal defines.
const SpawnFlagMask = SpawnClearEnv | SpawnLatestVersion | SpawnSandbox | SpawnNoNetwork |
	SpawnWatchBus | SpawnExposePids | SpawnNotifyStart | SpawnSharePids | SpawnEmptyApp

// SupportsExposePids is set in the portal "supports" property when
// SpawnExposePids can be honored.
const SupportsExposePids uint32 = 1

// spawnFlagNames is ordered by bit value.
//
//nolint:gochecknoglobals // Read-only lookup table.
var spawnFlagNames = []struct {
	flag SpawnFlag
	name string
}{
	{SpawnClearEnv, "clear-env"},
	{SpawnLatestVersion, "latest-version"},
	{SpawnSandbox, "sandbox"},
	{SpawnNoNetwork, "no-network"},
	{SpawnWatchBus, "watch-bus"},
	{SpawnExposePids, "expose-pids"},
	{SpawnNotifyStart, "notify-start"},
	{SpawnSharePids, "share-pids"},
	{SpawnEmptyApp, "empty-app"},
}

// AllSpawnFlags returns every defined flag in ascending bit order.
func AllSpawnFlags() []SpawnFlag {
	flags := make([]SpawnFlag, 0, len(spawnFlagNames))
	for _, entry := range spawnFlagNames {
		flags = append(flags, entry.flag)
	}

	return flags
}

// ValidSpawnFlags reports whether flags contains only bits the portal defines.
func ValidSpawnFlags(flags uint32) bool {
	return flags&^uint32(SpawnFlagMask) == 0
}

// ParseSpawnFlag looks a flag up by its kebab-case name.
func ParseSpawnFlag(name string) (SpawnFlag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, entry := range spawnFlagNames {
		if entry.name == name {
			return entry.flag, true
		}
	}

	return 0, false
}

// Has reports whether every bit of other is set in f.
func (f SpawnFlag) Has(other SpawnFlag) bool {
	return f&other == other
}

// String renders the set bits as "name|name"; bits outside the mask are
// rendered in hex.
func (f SpawnFlag) String() string {
	if f == 0 {
		return "none"
	}

	parts := make([]string, 0, len(spawnFlagNames))

	for _, entry := range spawnFlagNames {
		if f.Has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}

	if unknown := f &^ SpawnFlagMask; unknown != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(unknown)))
	}

	return strings.Join(parts, "|")
}

// MinPortalVersion returns the portal interface version that introduced flag.
// Flags present since the first version return 1.
func MinPortalVersion(flag SpawnFlag) uint32 {
	switch flag {
	case SpawnExposePids:
		return 3
	case SpawnNotifyStart:
		return 4
	case SpawnSharePids:
		return 5
	case SpawnEmptyApp:
		return 6
	default:
		return 1
	}
}

// RequiredPortalVersion returns the highest MinPortalVersion among the bits of flags.
func RequiredPortalVersion(flags SpawnFlag) uint32 {
	var required uint32 = 1

	for _, entry := range spawnFlagNames {
		if !flags.Has(entry.flag) {
			continue
		}

		if v := MinPortalVersion(entry.flag); v > required {
			required = v
		}
	}

	return required
}
