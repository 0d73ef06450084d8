package update

import "math"

// Vardict keys of the UpdateAvailable signal.
const (
	KeyRunningCommit = "running-commit"
	KeyLocalCommit   = "local-commit"
	KeyRemoteCommit  = "remote-commit"
)

// Vardict keys of the Progress signal.
const (
	KeyOps          = "n_ops"
	KeyOp           = "op"
	KeyProgress     = "progress"
	KeyStatus       = "status"
	KeyError        = "error"
	KeyErrorMessage = "error_message"
)

// UpdateInfo describes an available update as announced by the portal.
type UpdateInfo struct {
	// RunningCommit is the commit of the instance that is running.
	RunningCommit string
	// LocalCommit is the latest commit installed locally.
	LocalCommit string
	// RemoteCommit is the latest commit available on the remote.
	RemoteCommit string
}

// UpdateInfoFromMap decodes the UpdateAvailable vardict. Values that are
// missing or not strings are left empty.
func UpdateInfoFromMap(values map[string]any) UpdateInfo {
	return UpdateInfo{
		RunningCommit: stringValue(values, KeyRunningCommit),
		LocalCommit:   stringValue(values, KeyLocalCommit),
		RemoteCommit:  stringValue(values, KeyRemoteCommit),
	}
}

// Installed reports whether a newer commit is already deployed locally and a
// restart would pick it up.
func (u UpdateInfo) Installed() bool {
	return u.LocalCommit != "" && u.LocalCommit != u.RunningCommit && u.LocalCommit == u.RemoteCommit
}

// Clone returns a copy of the info.
func (u *UpdateInfo) Clone() *UpdateInfo {
	if u == nil {
		return nil
	}

	cloned := *u

	return &cloned
}

// ProgressStatus is the status field of the Progress signal.
type ProgressStatus uint32

const (
	// StatusRunning means the installation is in progress.
	StatusRunning ProgressStatus = iota
	// StatusEmpty means there was nothing to install.
	StatusEmpty
	// StatusDone means the update was installed.
	StatusDone
	// StatusFailed means the update failed; Error fields are set.
	StatusFailed
)

// String returns a lowercase status name.
func (s ProgressStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusEmpty:
		return "empty"
	case StatusDone:
		return "done"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further Progress signals follow.
func (s ProgressStatus) Terminal() bool {
	return s == StatusEmpty || s == StatusDone || s == StatusFailed
}

// Progress describes an installation step reported by the portal.
type Progress struct {
	// Ops is the number of operations the update consists of.
	Ops uint32
	// Op is the index of the current operation.
	Op uint32
	// Percent is the progress of the current operation.
	Percent uint32
	// Status is the overall state of the installation.
	Status ProgressStatus
	// Error is the D-Bus error name on failure.
	Error string
	// ErrorMessage is the human-readable failure description.
	ErrorMessage string
}

// ProgressFromMap decodes the Progress vardict. Missing keys keep zero values.
func ProgressFromMap(values map[string]any) Progress {
	return Progress{
		Ops:          uint32Value(values, KeyOps),
		Op:           uint32Value(values, KeyOp),
		Percent:      uint32Value(values, KeyProgress),
		Status:       ProgressStatus(uint32Value(values, KeyStatus)),
		Error:        stringValue(values, KeyError),
		ErrorMessage: stringValue(values, KeyErrorMessage),
	}
}

// Clone returns a copy of the progress.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}

	cloned := *p

	return &cloned
}

func stringValue(values map[string]any, key string) string {
	s, _ := values[key].(string)
	return s
}

func uint32Value(values map[string]any, key string) uint32 {
	switch v := values[key].(type) {
	case uint32:
		return v
	case int32:
		if v >= 0 {
			return uint32(v)
		}
	case uint64:
		if v <= math.MaxUint32 {
			return uint32(v)
		}
	case int64:
		if v >= 0 && v <= math.MaxUint32 {
			return uint32(v)
		}
	case int:
		if v >= 0 && uint64(v) <= math.MaxUint32 {
			return uint32(v)
		}
	case float64:
		// JSON numbers.
		if v >= 0 && v <= math.MaxUint32 {
			return uint32(v)
		}
	}

	return 0
}
