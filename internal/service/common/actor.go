//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
)

// DetectActor gathers host and user information for the watcher log.
func DetectActor() (*update.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &update.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}
