package checker

import (
	"context"
	"sync"
	"time"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
)

// Fetcher returns the latest published release of an application.
type Fetcher interface {
	LatestRelease(ctx context.Context, appID string) (*update.Release, error)
}

// Task checks Flathub for the latest version of one application.
type Task struct {
	// appID is the application checked by this task.
	appID string
	// fetcher queries the release source.
	fetcher Fetcher
	// delay postpones the check after Start.
	delay time.Duration

	onRunning   func()
	onSucceeded func(release *update.Release)
	onFailed    func(err error)

	// mu protects the fields describing the current run.
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithDelay postpones each run by delay.
func WithDelay(delay time.Duration) TaskOption {
	return func(t *Task) {
		if delay > 0 {
			t.delay = delay
		}
	}
}

// OnRunning registers a callback invoked when a run starts.
func OnRunning(fn func()) TaskOption {
	return func(t *Task) {
		t.onRunning = fn
	}
}

// OnSucceeded registers a callback receiving the latest release.
func OnSucceeded(fn func(release *update.Release)) TaskOption {
	return func(t *Task) {
		t.onSucceeded = fn
	}
}

// OnFailed registers a callback receiving the check error.
func OnFailed(fn func(err error)) TaskOption {
	return func(t *Task) {
		t.onFailed = fn
	}
}

// NewTask creates a task for appID.
func NewTask(appID string, fetcher Fetcher, opts ...TaskOption) *Task {
	t := &Task{
		appID:   appID,
		fetcher: fetcher,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// AppID returns the application the task checks.
func (t *Task) AppID() string {
	return t.appID
}

// Start launches a run in the background. It returns false without doing
// anything while a previous run is still in progress.
func (t *Task) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runningLocked() {
		return false
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.cancel = cancel
	t.done = done

	go func() {
		defer close(done)
		defer cancel()

		t.run(logger.WithKV(runCtx, "app_id", t.appID))
	}()

	return true
}

// Running reports whether a run is in progress.
func (t *Task) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.runningLocked()
}

// Done reports whether a run was started and has finished.
func (t *Task) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.done != nil && !t.runningLocked()
}

func (t *Task) runningLocked() bool {
	if t.done == nil {
		return false
	}

	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Cancel stops the current run. Callbacks of a canceled run are not invoked
// once cancellation is observed.
func (t *Task) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current run, if any, has finished or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset cancels the current run, waits for it and forgets it.
func (t *Task) Reset() {
	t.Cancel()

	//nolint:errcheck // Background context never expires.
	_ = t.Wait(context.Background())

	t.mu.Lock()
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()
}

func (t *Task) run(ctx context.Context) {
	if t.onRunning != nil {
		t.onRunning()
	}

	if t.delay > 0 {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			logger.Debug(ctx, "Update check canceled during delay")
			return
		case <-timer.C:
		}
	}

	release, err := t.fetcher.LatestRelease(ctx, t.appID)
	if ctx.Err() != nil {
		logger.Debug(ctx, "Update check canceled")
		return
	}

	if err != nil {
		logger.WarnKV(ctx, "Update check failed", "error", err)

		if t.onFailed != nil {
			t.onFailed(err)
		}

		return
	}

	logger.InfoKV(ctx, "Update check finished", "latest_version", release.Version)

	if t.onSucceeded != nil {
		t.onSucceeded(release)
	}
}
