package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/portal"
	repo "github.com/oshokin/flatpak-updater/internal/repository/state"
)

// autoActor is recorded as the requester of automatic updates.
const autoActor = "auto-update"

// errNoMonitor is returned when an update is requested without a monitor.
var errNoMonitor = errors.New("no update monitor: not running inside a flatpak sandbox")

// updateMonitor is the part of *portal.Monitor the service uses.
type updateMonitor interface {
	Path() dbus.ObjectPath
	Update(ctx context.Context, parentWindow string, options map[string]dbus.Variant) error
}

// behaviour holds the configured automation.
type behaviour struct {
	// parentWindow is used for automatic updates.
	parentWindow string
	// autoUpdate installs announced updates.
	autoUpdate bool
	// autoRestart restarts into the new version after installation.
	autoRestart bool
}

// service encapsulates the watcher state and reactions to portal signals
// and Flathub checks. It is unexported to keep the transport decoupled from
// the implementation.
type service struct {
	// repo handles persistent storage of the status.
	repo repo.Repository
	// monitor is the open update monitor, nil outside a sandbox.
	monitor updateMonitor
	// restart starts the new version; nil disables restarting.
	restart func(ctx context.Context) error
	// behaviour is the configured automation.
	behaviour behaviour
	// now returns the current time.
	now func() time.Time

	// mu protects status and installing.
	mu         sync.RWMutex
	status     *update.Status
	installing bool

	// saveMu keeps snapshots reaching the repository in mutation order.
	saveMu sync.Mutex
}

// newService creates a service backed by the provided repository. A stored
// status is reused; configured app ID and installed version take precedence.
func newService(ctx context.Context, repository repo.Repository, appID, installedVersion string) (*service, error) {
	s := &service{
		repo: repository,
		now:  time.Now,
		status: &update.Status{
			AppID:            appID,
			InstalledVersion: installedVersion,
		},
	}

	if repository == nil {
		return s, nil
	}

	stored, err := repository.Load(ctx)
	switch {
	case err == nil:
		if stored != nil && (stored.AppID == appID || appID == "") {
			s.status = stored
		}
	case errors.Is(err, repo.ErrNotFound):
		// Keep default status.
	default:
		return nil, fmt.Errorf("load state: %w", err)
	}

	if appID != "" {
		s.status.AppID = appID
	}

	if installedVersion != "" && installedVersion != s.status.InstalledVersion {
		// A new version is running: what was pending is installed now.
		s.status.InstalledVersion = installedVersion
		s.status.UpdateAvailable = s.status.LatestVersion != "" &&
			update.CompareVersions(s.status.LatestVersion, installedVersion) > 0
		s.status.UpdateInfo = nil
		s.status.Progress = nil
	}

	return s, nil
}

// GetStatus returns a copy of the current status.
func (s *service) GetStatus(ctx context.Context) *update.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logger.DebugKV(ctx, "Status requested", "update_available", s.status.UpdateAvailable)

	return s.status.Clone()
}

// RequestUpdate asks the portal to install the pending update.
func (s *service) RequestUpdate(ctx context.Context, parentWindow, actor string) error {
	if parentWindow == "" {
		parentWindow = s.behaviour.parentWindow
	}

	s.mu.Lock()

	if s.monitor == nil {
		s.mu.Unlock()
		return errNoMonitor
	}

	if s.installing {
		s.mu.Unlock()
		return update.ErrUpdateInProgress
	}

	s.installing = true
	s.status.Progress = &update.Progress{Status: update.StatusRunning}
	monitor := s.monitor
	s.mu.Unlock()

	logger.InfoKV(ctx, "Installing update", "actor", actor, "parent_window", parentWindow)

	if err := monitor.Update(ctx, parentWindow, portal.NoOptions()); err != nil {
		s.mutate(ctx, func(status *update.Status) {
			s.installing = false
			status.Progress = nil
			status.LastError = err.Error()
		})

		return err
	}

	return nil
}

// handleEvent reacts to a portal signal.
func (s *service) handleEvent(ctx context.Context, event portal.Event) {
	switch e := event.(type) {
	case portal.UpdateAvailable:
		s.onUpdateAvailable(ctx, e)
	case portal.Progress:
		s.onProgress(ctx, e)
	}
}

func (s *service) onUpdateAvailable(ctx context.Context, event portal.UpdateAvailable) {
	if !s.ownMonitor(event.Monitor) {
		return
	}

	logger.InfoKV(ctx, "Update available",
		"running_commit", event.Info.RunningCommit,
		"remote_commit", event.Info.RemoteCommit,
	)

	info := event.Info

	s.mutate(ctx, func(status *update.Status) {
		status.UpdateAvailable = true
		status.UpdateInfo = &info
	})

	if !s.behaviour.autoUpdate {
		return
	}

	err := s.RequestUpdate(ctx, s.behaviour.parentWindow, autoActor)
	if err != nil && !errors.Is(err, update.ErrUpdateInProgress) {
		logger.ErrorKV(ctx, "Automatic update failed", "error", err)
	}
}

func (s *service) onProgress(ctx context.Context, event portal.Progress) {
	if !s.ownMonitor(event.Monitor) {
		return
	}

	progress := event.Progress

	s.mutate(ctx, func(status *update.Status) {
		status.Progress = &progress

		if !progress.Status.Terminal() {
			return
		}

		s.installing = false

		switch progress.Status {
		case update.StatusDone, update.StatusEmpty:
			status.UpdateAvailable = false
			status.LastError = ""
		case update.StatusFailed:
			status.LastError = progress.ErrorMessage
		}
	})

	if !progress.Status.Terminal() {
		return
	}

	logger.InfoKV(ctx, "Update finished", "status", progress.Status.String(), "error", progress.ErrorMessage)

	if progress.Status != update.StatusDone || !s.behaviour.autoRestart || s.restart == nil {
		return
	}

	if err := s.restart(ctx); err != nil {
		logger.ErrorKV(ctx, "Restart failed", "error", err)

		s.mutate(ctx, func(status *update.Status) {
			status.LastError = err.Error()
		})
	}
}

// onCheckSucceeded records the latest Flathub release.
func (s *service) onCheckSucceeded(ctx context.Context, release *update.Release) {
	s.mutate(ctx, func(status *update.Status) {
		status.LatestVersion = release.Version
		status.CheckedAt = s.now()
		status.LastError = ""

		if status.InstalledVersion != "" && release.NewerThan(status.InstalledVersion) {
			status.UpdateAvailable = true
		}
	})
}

// onCheckFailed records a failed Flathub check.
func (s *service) onCheckFailed(ctx context.Context, err error) {
	s.mutate(ctx, func(status *update.Status) {
		status.LastError = err.Error()
	})
}

func (s *service) ownMonitor(path dbus.ObjectPath) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.monitor != nil && s.monitor.Path() == path
}

// mutate applies fn under the lock and persists the result.
func (s *service) mutate(ctx context.Context, fn func(status *update.Status)) {
	s.mu.Lock()
	fn(s.status)
	snapshot := s.status.Clone()

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Unlock()

	if s.repo == nil {
		return
	}

	if err := s.repo.Save(ctx, snapshot); err != nil {
		logger.Errorf(ctx, "Failed to persist status: %v", err)
	}
}
