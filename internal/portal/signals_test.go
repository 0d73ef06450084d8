package portal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/portal/portaltest"
)

// TestDecodeSignal covers every known signal and malformed bodies.
func TestDecodeSignal(t *testing.T) {
	t.Parallel()

	const monitorPath = dbus.ObjectPath("/org/freedesktop/portal/Flatpak/update_monitor/1")

	event, ok := DecodeSignal(&dbus.Signal{
		Name: SignalSpawnStarted,
		Body: []any{uint32(10), uint32(2)},
	})
	require.True(t, ok)
	require.Equal(t, SpawnStarted{PID: 10, RelPID: 2}, event)

	event, ok = DecodeSignal(&dbus.Signal{
		Name: SignalSpawnExited,
		Body: []any{uint32(10), uint32(256)},
	})
	require.True(t, ok)
	require.Equal(t, SpawnExited{PID: 10, ExitStatus: 256}, event)

	event, ok = DecodeSignal(&dbus.Signal{
		Path: monitorPath,
		Name: SignalUpdateAvailable,
		Body: []any{map[string]dbus.Variant{
			update.KeyRunningCommit: dbus.MakeVariant("aaa"),
			update.KeyLocalCommit:   dbus.MakeVariant("aaa"),
			update.KeyRemoteCommit:  dbus.MakeVariant("bbb"),
		}},
	})
	require.True(t, ok)
	require.Equal(t, UpdateAvailable{
		Monitor: monitorPath,
		Info:    update.UpdateInfo{RunningCommit: "aaa", LocalCommit: "aaa", RemoteCommit: "bbb"},
	}, event)

	event, ok = DecodeSignal(&dbus.Signal{
		Path: monitorPath,
		Name: SignalProgress,
		Body: []any{map[string]dbus.Variant{
			update.KeyOps:      dbus.MakeVariant(uint32(2)),
			update.KeyOp:       dbus.MakeVariant(uint32(1)),
			update.KeyProgress: dbus.MakeVariant(uint32(50)),
			update.KeyStatus:   dbus.MakeVariant(uint32(update.StatusRunning)),
		}},
	})
	require.True(t, ok)
	require.Equal(t, uint32(50), event.(Progress).Progress.Percent)

	// Malformed or foreign signals.
	_, ok = DecodeSignal(nil)
	require.False(t, ok)

	_, ok = DecodeSignal(&dbus.Signal{Name: SignalSpawnStarted, Body: []any{uint32(1)}})
	require.False(t, ok)

	_, ok = DecodeSignal(&dbus.Signal{Name: SignalSpawnExited, Body: []any{"1", uint32(1)}})
	require.False(t, ok)

	_, ok = DecodeSignal(&dbus.Signal{Name: SignalProgress, Body: []any{"nope"}})
	require.False(t, ok)

	_, ok = DecodeSignal(&dbus.Signal{Name: "org.freedesktop.DBus.NameAcquired", Body: []any{":1.1"}})
	require.False(t, ok)
}

// TestSubscription_DeliversAndCloses feeds raw signals through the fake bus.
func TestSubscription_DeliversAndCloses(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	p := New(bus)

	sub, err := p.Subscribe(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, bus.Matches())

	// Foreign signals are skipped.
	require.True(t, bus.Emit(&dbus.Signal{Name: "org.example.Other"}))
	require.True(t, bus.Emit(&dbus.Signal{Name: SignalSpawnExited, Body: []any{uint32(5), uint32(0)}}))

	select {
	case event := <-sub.Events():
		require.Equal(t, SpawnExited{PID: 5}, event)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.Equal(t, 2, bus.Removed())

	_, open := <-sub.Events()
	require.False(t, open)
}

// TestSubscribe_RollsBackOnMatchError ensures no rules leak when registration fails.
func TestSubscribe_RollsBackOnMatchError(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	bus.FailMatches(errors.New("access denied"))

	_, err := New(bus).Subscribe(context.Background())
	require.ErrorContains(t, err, "access denied")
	require.Zero(t, bus.Removed())
}
