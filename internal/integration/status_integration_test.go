package integration

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/service/status"
)

// recordingService answers status requests from memory.
type recordingService struct {
	mu       sync.Mutex
	status   *update.Status
	requests []string
}

func (s *recordingService) GetStatus(context.Context) *update.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status.Clone()
}

func (s *recordingService) RequestUpdate(_ context.Context, parentWindow, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, parentWindow)
	s.status.Progress = &update.Progress{Status: update.StatusRunning}

	return nil
}

// TestStatus_Roundtrip runs the status command against a live gRPC server.
func TestStatus_Roundtrip(t *testing.T) {
	t.Parallel()

	service := &recordingService{status: &update.Status{
		AppID:           "org.purejava.App",
		LatestVersion:   "1.2.0",
		UpdateAvailable: true,
		CheckedAt:       time.Now(),
	}}

	addr := startGRPC(t, service)
	cfgPath := writeConfig(t, &config.Config{ListenAddress: addr, ParentWindow: "x11:7", Timeout: 3 * time.Second})

	var out bytes.Buffer

	require.NoError(t, status.Run(context.Background(), &status.Options{ConfigPath: cfgPath, Out: &out}))
	require.Contains(t, out.String(), "latest version:    1.2.0")
	require.Contains(t, out.String(), "update available:  true")

	out.Reset()

	require.NoError(t, status.Run(context.Background(), &status.Options{
		ConfigPath:    cfgPath,
		RequestUpdate: true,
		Out:           &out,
	}))
	require.Contains(t, out.String(), "progress:          0% (running)")

	service.mu.Lock()
	defer service.mu.Unlock()

	require.Equal(t, []string{"x11:7"}, service.requests)
}
