package watch

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/portal"
	"github.com/oshokin/flatpak-updater/internal/portal/portaltest"
	repository "github.com/oshokin/flatpak-updater/internal/repository/state"
	"github.com/oshokin/flatpak-updater/internal/service/common"
)

type staticFetcher struct {
	version string
}

func (f staticFetcher) LatestRelease(context.Context, string) (*update.Release, error) {
	return &update.Release{Version: f.version}, nil
}

// TestServe_CheckUpdateAndStatus runs the watcher against a fake portal and
// drives it through the gRPC client.
func TestServe_CheckUpdateAndStatus(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	bus.Remote(portal.ObjectPath).Reply(portal.Interface+".CreateUpdateMonitor", testMonitorPath)

	monitor := bus.Remote(testMonitorPath)
	monitor.Reply(portal.MonitorInterface + ".Update")
	monitor.OnCall(portal.MonitorInterface+".Update", func([]any) {
		bus.Emit(&dbus.Signal{
			Path: testMonitorPath,
			Name: portal.SignalProgress,
			Body: []any{map[string]dbus.Variant{
				update.KeyOps:      dbus.MakeVariant(uint32(1)),
				update.KeyOp:       dbus.MakeVariant(uint32(1)),
				update.KeyProgress: dbus.MakeVariant(uint32(100)),
				update.KeyStatus:   dbus.MakeVariant(uint32(update.StatusDone)),
			}},
		})
	})

	settings := config.Default()
	settings.AppID = "org.purejava.App"
	settings.InstalledVersion = "1.0.0"
	settings.CheckInterval = time.Hour

	lis, err := new(net.ListenConfig).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	stateFile := filepath.Join(t.TempDir(), "state.json")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- serve(ctx, &deps{
			settings: settings,
			portal:   portal.New(bus),
			fetcher:  staticFetcher{version: "1.1.0"},
			repo:     repository.NewFileRepository(stateFile),
			listener: lis,
		})
	}()

	client, err := common.Dial(ctx, lis.Addr().String(), common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := client.GetStatus(ctx)
		return err == nil && current.LatestVersion == "1.1.0" && current.UpdateAvailable
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, client.RequestUpdate(ctx, "x11:1", &update.Actor{Username: "tester"}))

	require.Eventually(t, func() bool {
		current, err := client.GetStatus(ctx)
		return err == nil && current.Progress != nil && current.Progress.Status == update.StatusDone
	}, 5*time.Second, 20*time.Millisecond)

	current, err := client.GetStatus(ctx)
	require.NoError(t, err)
	require.False(t, current.UpdateAvailable)

	require.NoError(t, client.Close())

	cancel()

	select {
	case err = <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	// The monitor was closed and the subscription released.
	require.Equal(t, portal.MonitorInterface+".Close", monitor.LastCall().Method)
	require.False(t, bus.Subscribed())

	stored, err := repository.NewFileRepository(stateFile).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.1.0", stored.LatestVersion)
	require.Equal(t, update.StatusDone, stored.Progress.Status)
}

// TestServe_WithoutMonitor keeps serving when the portal refuses a monitor.
func TestServe_WithoutMonitor(t *testing.T) {
	t.Parallel()

	bus := portaltest.NewBus()
	bus.Remote(portal.ObjectPath).Fail(portal.Interface+".CreateUpdateMonitor",
		"org.freedesktop.DBus.Error.NotSupported", "Updates only supported by flatpak apps")

	lis, err := new(net.ListenConfig).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)

	go func() {
		errCh <- serve(ctx, &deps{
			settings: config.Default(),
			portal:   portal.New(bus),
			fetcher:  staticFetcher{},
			listener: lis,
		})
	}()

	client, err := common.Dial(ctx, lis.Addr().String(), common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := client.GetStatus(ctx)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	require.ErrorContains(t, client.RequestUpdate(ctx, "", nil), "Internal")
	require.NoError(t, client.Close())

	cancel()
	require.NoError(t, <-errCh)
}
