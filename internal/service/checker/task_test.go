package checker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
)

var errTestFetch = errors.New("test fetch error")

// fakeFetcher returns a fixed release or error, optionally blocking until released.
type fakeFetcher struct {
	// release is returned on success.
	release *update.Release
	// err is returned instead of release when set.
	err error
	// gate blocks LatestRelease until closed or the context ends.
	gate chan struct{}
	// calls counts LatestRelease invocations.
	calls atomic.Int32
}

func (f *fakeFetcher) LatestRelease(ctx context.Context, _ string) (*update.Release, error) {
	f.calls.Add(1)

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return f.release, f.err
}

// TestTask_Succeeds runs a check and receives the version.
func TestTask_Succeeds(t *testing.T) {
	t.Parallel()

	var (
		running atomic.Bool
		got     atomic.Value
	)

	fetcher := &fakeFetcher{release: &update.Release{Version: "3.0.4"}}
	task := NewTask("org.gimp.GIMP", fetcher,
		OnRunning(func() { running.Store(true) }),
		OnSucceeded(func(r *update.Release) { got.Store(r.Version) }),
		OnFailed(func(error) { t.Error("unexpected failure") }),
	)

	require.Equal(t, "org.gimp.GIMP", task.AppID())
	require.False(t, task.Done())
	require.True(t, task.Start(context.Background()))
	require.NoError(t, task.Wait(context.Background()))

	require.True(t, running.Load())
	require.Equal(t, "3.0.4", got.Load())
	require.False(t, task.Running())
	require.True(t, task.Done())

	task.Reset()
	require.False(t, task.Done())
}

// TestTask_Fails reports fetch errors.
func TestTask_Fails(t *testing.T) {
	t.Parallel()

	var got atomic.Value

	task := NewTask("org.gimp.GIMP", &fakeFetcher{err: errTestFetch},
		OnFailed(func(err error) { got.Store(err) }),
	)

	require.True(t, task.Start(context.Background()))
	require.NoError(t, task.Wait(context.Background()))
	require.ErrorIs(t, got.Load().(error), errTestFetch)
}

// TestTask_SingleRunAndCancel verifies Start is ignored while running and Cancel skips callbacks.
func TestTask_SingleRunAndCancel(t *testing.T) {
	t.Parallel()

	var callbacks atomic.Int32

	fetcher := &fakeFetcher{release: &update.Release{Version: "1.0"}, gate: make(chan struct{})}
	task := NewTask("org.example.App", fetcher,
		OnSucceeded(func(*update.Release) { callbacks.Add(1) }),
		OnFailed(func(error) { callbacks.Add(1) }),
	)

	require.True(t, task.Start(context.Background()))
	require.False(t, task.Start(context.Background()))
	require.True(t, task.Running())

	task.Cancel()
	require.NoError(t, task.Wait(context.Background()))
	require.Zero(t, callbacks.Load())

	// A finished task can be started again.
	close(fetcher.gate)
	require.True(t, task.Start(context.Background()))
	require.NoError(t, task.Wait(context.Background()))
	require.Equal(t, int32(1), callbacks.Load())
}

// TestTask_DelayIsInterruptible cancels during the delay; the fetcher is never called.
func TestTask_DelayIsInterruptible(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{release: &update.Release{Version: "1.0"}}
	task := NewTask("org.example.App", fetcher, WithDelay(time.Hour))

	require.True(t, task.Start(context.Background()))
	task.Reset()

	require.False(t, task.Running())
	require.Zero(t, fetcher.calls.Load())

	// Wait on a reset task returns immediately.
	require.NoError(t, task.Wait(context.Background()))
}

// TestTask_WaitHonorsContext returns the context error while the run blocks.
func TestTask_WaitHonorsContext(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{gate: make(chan struct{})}
	task := NewTask("org.example.App", fetcher)

	require.True(t, task.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)

	task.Reset()
}
