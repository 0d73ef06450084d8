package update

import "time"

// Status is a snapshot of what the watcher knows about the running app.
type Status struct {
	// AppID is the Flatpak application ID, e.g. "org.gimp.GIMP".
	AppID string
	// InstalledVersion is the version of the running instance, if known.
	InstalledVersion string
	// LatestVersion is the newest version published on Flathub.
	LatestVersion string
	// UpdateAvailable is set once the portal or Flathub reports a newer version.
	UpdateAvailable bool
	// UpdateInfo is the payload of the last UpdateAvailable signal.
	UpdateInfo *UpdateInfo
	// Progress is the last reported installation progress.
	Progress *Progress
	// CheckedAt is when Flathub was last queried successfully.
	CheckedAt time.Time
	// LastError describes the last failure, empty when the last step succeeded.
	LastError string
}

// Clone returns a deep copy of the status.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}

	return &Status{
		AppID:            s.AppID,
		InstalledVersion: s.InstalledVersion,
		LatestVersion:    s.LatestVersion,
		UpdateAvailable:  s.UpdateAvailable,
		UpdateInfo:       s.UpdateInfo.Clone(),
		Progress:         s.Progress.Clone(),
		CheckedAt:        s.CheckedAt,
		LastError:        s.LastError,
	}
}
