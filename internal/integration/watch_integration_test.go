package integration

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/flatpak-updater/internal/config"
	"github.com/oshokin/flatpak-updater/internal/service/watch"
)

// TestWatch_FailsWithoutBus reports an unreachable D-Bus address.
func TestWatch_FailsWithoutBus(t *testing.T) {
	t.Parallel()

	socket := filepath.Join(t.TempDir(), "missing-bus")
	cfgPath := writeConfig(t, &config.Config{BusAddress: "unix:path=" + socket})

	err := watch.Run(context.Background(), &watch.Options{ConfigPath: cfgPath, ListenAddress: "127.0.0.1:0"})
	require.ErrorContains(t, err, "connect to D-Bus")
}
