package check

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	"github.com/oshokin/flatpak-updater/internal/service/checker"
	"github.com/oshokin/flatpak-updater/internal/service/common"
)

// Options controls the check command.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// AppID overrides the configured application ID.
	AppID string
	// Current overrides the configured installed version.
	Current string
	// Out receives the result.
	Out io.Writer
}

// Result is the outcome of a check.
type Result struct {
	// AppID is the checked application.
	AppID string
	// Current is the installed version, possibly empty.
	Current string
	// Latest is the newest published release.
	Latest *update.Release
}

// UpdateAvailable reports whether Latest is newer than Current. Without a
// current version nothing can be compared and false is returned.
func (r *Result) UpdateAvailable() bool {
	if r.Current == "" || r.Latest == nil {
		return false
	}

	return r.Latest.NewerThan(r.Current)
}

// errNoResult is returned when a check ends without calling back.
var errNoResult = errors.New("check finished without result")

// Check runs a single checker task for appID and waits for it.
func Check(ctx context.Context, fetcher checker.Fetcher, appID, current string) (*Result, error) {
	if strings.TrimSpace(appID) == "" {
		return nil, checker.ErrMissingAppID
	}

	var (
		latest   *update.Release
		checkErr = errNoResult
	)

	task := checker.NewTask(appID, fetcher,
		checker.OnSucceeded(func(release *update.Release) {
			latest, checkErr = release, nil
		}),
		checker.OnFailed(func(err error) {
			checkErr = err
		}),
	)

	task.Start(ctx)

	if err := task.Wait(ctx); err != nil {
		task.Reset()

		return nil, err
	}

	if checkErr != nil {
		return nil, checkErr
	}

	return &Result{AppID: appID, Current: current, Latest: latest}, nil
}

// Write renders the result.
func (r *Result) Write(out io.Writer) error {
	if _, err := fmt.Fprintf(out, "%s latest version: %s\n", r.AppID, r.Latest.Version); err != nil {
		return err
	}

	if r.Current == "" {
		return nil
	}

	message := "up to date"
	if r.UpdateAvailable() {
		message = "update available"
	}

	_, err := fmt.Fprintf(out, "installed version: %s (%s)\n", r.Current, message)

	return err
}

// Run checks Flathub for the configured or given app.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "flatpak-check")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	appID := settings.AppID
	if opts.AppID != "" {
		appID = opts.AppID
	}

	current := settings.InstalledVersion
	if opts.Current != "" {
		current = opts.Current
	}

	client, err := common.NewFlathubClient(ctx, settings)
	if err != nil {
		return err
	}

	result, err := Check(ctx, client, appID, current)
	if err != nil {
		return fmt.Errorf("check %s: %w", appID, err)
	}

	return result.Write(opts.Out)
}
