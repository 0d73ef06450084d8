package update

import "errors"

// ErrUpdateInProgress is returned when an installation is already running.
var ErrUpdateInProgress = errors.New("update already in progress")

// Actor identifies who requested an operation.
type Actor struct {
	// Hostname is the machine the request came from.
	Hostname string
	// Username is the account that issued the request.
	Username string
}

// String renders the actor as "user@host".
func (a *Actor) String() string {
	if a == nil {
		return ""
	}

	switch {
	case a.Username == "":
		return a.Hostname
	case a.Hostname == "":
		return a.Username
	default:
		return a.Username + "@" + a.Hostname
	}
}
