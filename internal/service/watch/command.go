package watch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/flatpak-updater/internal/api/grpc/status"
	"github.com/oshokin/flatpak-updater/internal/config"
	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	pb "github.com/oshokin/flatpak-updater/internal/pb/v1"
	"github.com/oshokin/flatpak-updater/internal/portal"
	repository "github.com/oshokin/flatpak-updater/internal/repository/state"
	"github.com/oshokin/flatpak-updater/internal/service/checker"
	"github.com/oshokin/flatpak-updater/internal/service/common"
	"github.com/oshokin/flatpak-updater/internal/service/restart"
)

// Options controls the watcher process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// StateFile specifies the path to persist the status JSON.
	StateFile string
}

// Portal is the part of the portal client the watcher uses.
type Portal interface {
	restart.Portal
	OpenUpdateMonitor(ctx context.Context, options map[string]dbus.Variant) (*portal.Monitor, error)
}

// deps are the collaborators of serve.
type deps struct {
	settings *config.Config
	portal   Portal
	fetcher  checker.Fetcher
	repo     repository.Repository
	listener net.Listener
}

// Run starts the watcher and blocks until context is canceled, the gRPC
// server stops or the app was restarted into a new version.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "flatpak-watch")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Command line options override configuration.
	if opts.StateFile != "" {
		settings.StateFile = opts.StateFile
	}

	if opts.ListenAddress != "" {
		settings.ListenAddress = opts.ListenAddress
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

	client, err := common.NewFlathubClient(ctx, settings)
	if err != nil {
		return err
	}

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", settings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", settings.ListenAddress, err)
	}

	return serve(ctx, &deps{
		settings: settings,
		portal:   p,
		fetcher:  client,
		repo:     repository.NewFileRepository(settings.StateFile),
		listener: lis,
	})
}

// serve runs the watcher on the given collaborators. The listener is closed
// when serve returns.
func serve(ctx context.Context, d *deps) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	svc, err := newService(ctx, d.repo, d.settings.AppID, d.settings.InstalledVersion)
	if err != nil {
		//nolint:errcheck // Startup already failed.
		_ = d.listener.Close()

		return fmt.Errorf("initialise service: %w", err)
	}

	svc.behaviour = behaviour{
		parentWindow: d.settings.ParentWindow,
		autoUpdate:   d.settings.AutoUpdate,
		autoRestart:  d.settings.AutoRestart,
	}

	svc.restart = func(ctx context.Context) error {
		opts := restart.Options{StartTimeout: d.settings.Timeout}
		if err := restart.FillDefaults(&opts); err != nil {
			return err
		}

		result, err := restart.Restart(ctx, d.portal, &opts)
		if err != nil {
			return err
		}

		logger.InfoKV(ctx, "Restarted into the new version, stopping", "pid", result.PID)
		stop()

		return nil
	}

	subscription, err := d.portal.Subscribe(ctx)
	if err != nil {
		//nolint:errcheck // Startup already failed.
		_ = d.listener.Close()

		return fmt.Errorf("subscribe to portal signals: %w", err)
	}

	defer func() {
		if closeErr := subscription.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close subscription", "error", closeErr)
		}
	}()

	monitor, err := d.portal.OpenUpdateMonitor(ctx, portal.NoOptions())
	if err != nil {
		// Outside a sandbox only Flathub checks are available.
		logger.WarnKV(ctx, "Update monitor unavailable", "error", err)
	} else {
		svc.monitor = monitor

		defer func() {
			if closeErr := monitor.Close(context.WithoutCancel(ctx)); closeErr != nil {
				logger.WarnKV(ctx, "Failed to close update monitor", "error", closeErr)
			}
		}()
	}

	grpcServer := grpc.NewServer()
	pb.RegisterStatusServiceServer(grpcServer, api.NewServer(svc))

	logger.InfoKV(ctx, "Watcher listening",
		"listen_address", d.listener.Addr().String(),
		"app_id", d.settings.AppID,
		"auto_update", d.settings.AutoUpdate,
		"auto_restart", d.settings.AutoRestart,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumeEvents(gctx, svc, subscription)
	})

	g.Go(func() error {
		checkPeriodically(gctx, svc, d)
		return nil
	})

	g.Go(func() error {
		if err := grpcServer.Serve(d.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()

		return nil
	})

	err = g.Wait()

	logger.Info(ctx, "Watcher stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}

// consumeEvents feeds portal signals to the service until ctx ends.
func consumeEvents(ctx context.Context, svc *service, subscription *portal.Subscription) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-subscription.Events():
			if !ok {
				return fmt.Errorf("portal signals: %w", restart.ErrSubscriptionClosed)
			}

			svc.handleEvent(ctx, event)
		}
	}
}

// checkPeriodically runs a Flathub check at start and then every
// CheckInterval. It returns after ctx ends and the running check stopped.
func checkPeriodically(ctx context.Context, svc *service, d *deps) {
	if d.settings.AppID == "" {
		logger.Warn(ctx, "No app ID configured, Flathub checks disabled")
		return
	}

	registry := checker.NewRegistry(func(appID string) *checker.Task {
		return checker.NewTask(appID, d.fetcher,
			checker.WithDelay(d.settings.CheckDelay),
			checker.OnSucceeded(func(release *update.Release) { svc.onCheckSucceeded(ctx, release) }),
			checker.OnFailed(func(err error) { svc.onCheckFailed(ctx, err) }),
		)
	})

	task := registry.Set(d.settings.AppID)
	defer task.Reset()

	ticker := time.NewTicker(d.settings.CheckInterval)
	defer ticker.Stop()

	for {
		if !task.Start(ctx) {
			logger.Debug(ctx, "Previous Flathub check still running")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
