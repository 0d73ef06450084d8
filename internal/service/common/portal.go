//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"

	"github.com/oshokin/flatpak-updater/internal/config"
	"github.com/oshokin/flatpak-updater/internal/flathub"
	"github.com/oshokin/flatpak-updater/internal/portal"
)

// ConnectPortal opens the portal on the configured bus.
func ConnectPortal(ctx context.Context, cfg *config.Config) (*portal.Portal, error) {
	return portal.Connect(ctx, cfg.BusAddress, portal.WithCallTimeout(cfg.Timeout))
}

// NewFlathubClient creates a Flathub client for the configured endpoint.
func NewFlathubClient(ctx context.Context, cfg *config.Config) (*flathub.Client, error) {
	return flathub.New(ctx, cfg.FlathubURL, flathub.WithTimeout(cfg.Timeout))
}
