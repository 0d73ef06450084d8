package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	api "github.com/oshokin/flatpak-updater/internal/api/grpc/status"
	"github.com/oshokin/flatpak-updater/internal/config"
	pb "github.com/oshokin/flatpak-updater/internal/pb/v1"
)

// writeConfig saves cfg into a temporary settings file and returns its path.
func writeConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(path, cfg))

	return path
}

// startGRPC serves service on a free loopback port and returns its address.
// The server is stopped when the test ends.
func startGRPC(t *testing.T, service api.Service) string {
	t.Helper()

	lis, err := new(net.ListenConfig).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	pb.RegisterStatusServiceServer(server, api.NewServer(service))

	go func() {
		_ = server.Serve(lis) //nolint:errcheck // Stopped by cleanup.
	}()

	t.Cleanup(server.Stop)

	return lis.Addr().String()
}
