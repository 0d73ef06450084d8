package info

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/service/common"
)

// Options controls the info command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// Out receives the report.
	Out io.Writer
}

// Portal is the part of the portal client Collect uses.
type Portal interface {
	IsAvailable(ctx context.Context) bool
	Version(ctx context.Context) (uint32, error)
	Supports(ctx context.Context) (uint32, error)
}

// Report describes the portal.
type Report struct {
	// AppID is the configured application.
	AppID string
	// Available is set when the portal answered a ping.
	Available bool
	// Version is the portal interface version.
	Version uint32
	// Supports is the portal feature bitmask.
	Supports uint32
}

// Collect queries the portal. Properties are only read when it is available.
func Collect(ctx context.Context, p Portal, appID string) (*Report, error) {
	report := &Report{
		AppID:     appID,
		Available: p.IsAvailable(ctx),
	}

	if !report.Available {
		return report, nil
	}

	var err error

	if report.Version, err = p.Version(ctx); err != nil {
		return nil, err
	}

	if report.Supports, err = p.Supports(ctx); err != nil {
		return nil, err
	}

	return report, nil
}

// SpawnFlags lists the spawn flags the portal version accepts.
func (r *Report) SpawnFlags() []update.SpawnFlag {
	var flags []update.SpawnFlag

	for _, flag := range update.AllSpawnFlags() {
		if update.MinPortalVersion(flag) > r.Version {
			continue
		}

		if flag == update.SpawnExposePids && r.Supports&update.SupportsExposePids == 0 {
			continue
		}

		flags = append(flags, flag)
	}

	return flags
}

// Write renders the report.
func (r *Report) Write(out io.Writer) error {
	names := make([]string, 0, len(update.AllSpawnFlags()))
	for _, flag := range r.SpawnFlags() {
		names = append(names, flag.String())
	}

	appID := r.AppID
	if appID == "" {
		appID = "-"
	}

	_, err := fmt.Fprintf(out,
		"app id:      %s\navailable:   %t\nversion:     %d\nsupports:    %#x\nspawn flags: %s\n",
		appID, r.Available, r.Version, r.Supports, strings.Join(names, ", "),
	)

	return err
}

// Run prints the portal report.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "flatpak-info")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	p, err := common.ConnectPortal(ctx, settings)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close D-Bus connection", "error", closeErr)
		}
	}()

	report, err := Collect(ctx, p, settings.AppID)
	if err != nil {
		return fmt.Errorf("query portal: %w", err)
	}

	return report.Write(opts.Out)
}
