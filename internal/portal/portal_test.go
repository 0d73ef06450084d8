package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/portal/portaltest"
)

// TestPortal_Properties reads version and supports through Properties.Get.
func TestPortal_Properties(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	obj := bus.Remote(ObjectPath)
	obj.Reply(propertiesGet, dbus.MakeVariant(uint32(7)))

	p := New(bus)
	ctx := context.Background()

	version, err := p.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(7), version)

	call := obj.LastCall()
	require.Equal(t, propertiesGet, call.Method)
	require.Equal(t, []any{Interface, "version"}, call.Args)

	obj.Reply(propertiesGet, dbus.MakeVariant(uint32(update.SupportsExposePids)))

	supports, err := p.Supports(ctx)
	require.NoError(t, err)
	require.Equal(t, update.SupportsExposePids, supports)

	// Wrong property type.
	obj.Reply(propertiesGet, dbus.MakeVariant("seven"))

	_, err = p.Version(ctx)
	require.ErrorIs(t, err, ErrUnexpectedType)
}

// TestPortal_IsAvailable pings the portal object.
func TestPortal_IsAvailable(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	p := New(bus)

	// No reply configured means the ping fails.
	require.False(t, p.IsAvailable(context.Background()))

	bus.Remote(ObjectPath).Reply(peerPing)
	require.True(t, p.IsAvailable(context.Background()))

	require.False(t, New(nil).IsAvailable(context.Background()))
}

// TestPortal_Unusable verifies that a portal without a bus rejects every call.
func TestPortal_Unusable(t *testing.T) {
	t.Parallel()

	p := New(nil)
	ctx := context.Background()

	_, err := p.Version(ctx)
	require.ErrorIs(t, err, ErrPortalUnavailable)

	_, err = p.CreateUpdateMonitor(ctx, NoOptions())
	require.ErrorIs(t, err, ErrPortalUnavailable)

	_, err = p.Spawn(ctx, &SpawnRequest{Cwd: "/", Argv: []string{"app"}, Options: NoOptions()})
	require.ErrorIs(t, err, ErrPortalUnavailable)

	require.ErrorIs(t, p.SpawnSignal(ctx, 1, 15, false), ErrPortalUnavailable)

	_, err = p.Subscribe(ctx)
	require.ErrorIs(t, err, ErrPortalUnavailable)
}

// TestPortal_CreateUpdateMonitor covers success and the error returned outside a sandbox.
func TestPortal_CreateUpdateMonitor(t *testing.T) {
	t.Parallel()

	const monitorPath = dbus.ObjectPath("/org/freedesktop/portal/Flatpak/update_monitor/1_42/1")

	bus := portaltest.NewBus()
	obj := bus.Remote(ObjectPath)
	p := New(bus)
	ctx := context.Background()

	_, err := p.CreateUpdateMonitor(ctx, nil)
	require.ErrorIs(t, err, ErrMissingOptions)

	obj.Fail(Interface+".CreateUpdateMonitor", "org.freedesktop.DBus.Error.NotSupported",
		"Updates only supported by flatpak apps")

	_, err = p.CreateUpdateMonitor(ctx, NoOptions())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Updates only supported by flatpak apps")

	var dbusErr dbus.Error
	require.True(t, errors.As(err, &dbusErr))
	require.Equal(t, "org.freedesktop.DBus.Error.NotSupported", dbusErr.Name)

	obj.Reply(Interface+".CreateUpdateMonitor", monitorPath)

	monitor, err := p.OpenUpdateMonitor(ctx, NoOptions())
	require.NoError(t, err)
	require.Equal(t, monitorPath, monitor.Path())
}

// TestPortal_UpdateMonitorPath rejects empty and malformed paths.
func TestPortal_UpdateMonitorPath(t *testing.T) {
	t.Parallel()

	p := New(portaltest.NewBus())

	_, err := p.UpdateMonitor("")
	require.ErrorIs(t, err, ErrMissingPath)

	_, err = p.UpdateMonitor("not/a/path")
	require.ErrorIs(t, err, ErrMissingPath)

	m, err := p.UpdateMonitor("/org/freedesktop/portal/Flatpak/update_monitor/1")
	require.NoError(t, err)
	require.NotNil(t, m)
}

// TestMonitor_UpdateAndClose verifies argument validation and wire calls.
func TestMonitor_UpdateAndClose(t *testing.T) {
	t.Parallel()

	const monitorPath = dbus.ObjectPath("/org/freedesktop/portal/Flatpak/update_monitor/1")

	bus := portaltest.NewBus()
	p := New(bus)
	ctx := context.Background()

	m, err := p.UpdateMonitor(monitorPath)
	require.NoError(t, err)

	require.ErrorIs(t, m.Update(ctx, " ", NoOptions()), ErrMissingParentWindow)
	require.ErrorIs(t, m.Update(ctx, "x11:1", nil), ErrMissingOptions)
	require.ErrorIs(t, (*Monitor)(nil).Update(ctx, "x11:1", NoOptions()), ErrMissingMonitor)

	obj := bus.Remote(monitorPath)
	obj.Reply(MonitorInterface + ".Update")

	require.NoError(t, m.Update(ctx, "x11:1", NoOptions()))

	call := obj.LastCall()
	require.Equal(t, MonitorInterface+".Update", call.Method)
	require.Equal(t, "x11:1", call.Args[0])

	require.NoError(t, m.Close(ctx))

	call = obj.LastCall()
	require.Equal(t, MonitorInterface+".Close", call.Method)
	require.NotZero(t, call.Flags&dbus.FlagNoReplyExpected)

	require.ErrorIs(t, (*Monitor)(nil).Close(ctx), ErrMissingMonitor)
}

// TestPortal_Spawn covers validation, wire encoding and portal errors.
func TestPortal_Spawn(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	obj := bus.Remote(ObjectPath)
	p := New(bus)
	ctx := context.Background()

	valid := func() *SpawnRequest {
		return &SpawnRequest{
			Cwd:     "/home/user",
			Argv:    []string{"org.purejava.App", "--restarted"},
			Env:     map[string]string{"LANG": "C"},
			Fds:     map[uint32]int{1: 1},
			Flags:   update.SpawnLatestVersion | update.SpawnNotifyStart,
			Options: NoOptions(),
		}
	}

	req := valid()
	req.Cwd = ""
	_, err := p.Spawn(ctx, req)
	require.ErrorIs(t, err, ErrMissingCwd)

	req = valid()
	req.Argv = nil
	_, err = p.Spawn(ctx, req)
	require.ErrorIs(t, err, ErrMissingArgv)

	req = valid()
	req.Flags = update.SpawnFlag(512)
	_, err = p.Spawn(ctx, req)
	require.ErrorIs(t, err, ErrInvalidFlags)

	req = valid()
	req.Options = nil
	_, err = p.Spawn(ctx, req)
	require.ErrorIs(t, err, ErrMissingOptions)

	obj.Fail(Interface+".Spawn", "org.freedesktop.portal.Error.NotAllowed",
		"org.freedesktop.portal.Flatpak.Spawn only works in a flatpak")

	_, err = p.Spawn(ctx, valid())
	require.ErrorContains(t, err, "org.freedesktop.portal.Flatpak.Spawn only works in a flatpak")

	obj.Reply(Interface+".Spawn", uint32(4242))

	pid, err := p.Spawn(ctx, valid())
	require.NoError(t, err)
	require.Equal(t, uint32(4242), pid)

	call := obj.LastCall()
	require.Len(t, call.Args, 6)
	require.Equal(t, []byte("/home/user\x00"), call.Args[0])
	require.Equal(t, [][]byte{[]byte("org.purejava.App\x00"), []byte("--restarted\x00")}, call.Args[1])
	require.Equal(t, map[uint32]dbus.UnixFD{1: 1}, call.Args[2])
	require.Equal(t, map[string]string{"LANG": "C"}, call.Args[3])
	require.Equal(t, uint32(update.SpawnLatestVersion|update.SpawnNotifyStart), call.Args[4])
}

// TestPortal_SpawnSignal forwards pid, signal and group flag.
func TestPortal_SpawnSignal(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	obj := bus.Remote(ObjectPath)
	obj.Reply(Interface + ".SpawnSignal")

	require.NoError(t, New(bus).SpawnSignal(context.Background(), 42, 15, true))
	require.Equal(t, []any{uint32(42), uint32(15), true}, obj.LastCall().Args)
}

// TestPortal_Close closes only owned connections, once.
func TestPortal_Close(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()

	require.NoError(t, New(bus).Close())
	require.Zero(t, bus.Closed())

	owned := New(bus)
	owned.owned = true

	require.NoError(t, owned.Close())
	require.NoError(t, owned.Close())
	require.Equal(t, 1, bus.Closed())
}

// TestBytestring appends the terminating NUL.
func TestBytestring(t *testing.T) {
	t.Parallel()

	require.Equal(t, []byte{0}, Bytestring(""))
	require.Equal(t, []byte("ab\x00"), Bytestring("ab"))
}
