package portal

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/oshokin/flatpak-updater/internal/logger"
)

// Monitor is a remote org.freedesktop.portal.Flatpak.UpdateMonitor object.
type Monitor struct {
	// portal is the client the monitor was obtained from.
	portal *Portal
	// object is the remote monitor object.
	object dbus.BusObject
	// path is the object path returned by CreateUpdateMonitor.
	path dbus.ObjectPath
}

// CreateUpdateMonitor asks the portal for an update monitor. The monitor
// emits UpdateAvailable when an update for the caller appears and can be
// used to install it. Outside a sandbox the portal answers with an error
// ("Updates only supported by flatpak apps").
func (p *Portal) CreateUpdateMonitor(ctx context.Context, options map[string]dbus.Variant) (dbus.ObjectPath, error) {
	if !p.usable() {
		return "", ErrPortalUnavailable
	}

	if options == nil {
		return "", ErrMissingOptions
	}

	var path dbus.ObjectPath
	if err := p.call(ctx, p.object, Interface+".CreateUpdateMonitor", options).Store(&path); err != nil {
		return "", fmt.Errorf("create update monitor: %w", err)
	}

	logger.DebugKV(ctx, "Update monitor created", "path", path)

	return path, nil
}

// UpdateMonitor returns a handle for the monitor at path.
func (p *Portal) UpdateMonitor(path dbus.ObjectPath) (*Monitor, error) {
	if strings.TrimSpace(string(path)) == "" || !path.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrMissingPath, path)
	}

	if p == nil || p.bus == nil {
		return nil, ErrPortalUnavailable
	}

	return &Monitor{
		portal: p,
		object: p.bus.Object(BusName, path),
		path:   path,
	}, nil
}

// OpenUpdateMonitor creates a monitor and returns a handle for it.
func (p *Portal) OpenUpdateMonitor(ctx context.Context, options map[string]dbus.Variant) (*Monitor, error) {
	path, err := p.CreateUpdateMonitor(ctx, options)
	if err != nil {
		return nil, err
	}

	return p.UpdateMonitor(path)
}

// Path returns the object path of the monitor.
func (m *Monitor) Path() dbus.ObjectPath {
	if m == nil {
		return ""
	}

	return m.path
}

// Update asks the portal to install the update of the calling app. Progress
// is reported through Progress signals on the monitor.
func (m *Monitor) Update(ctx context.Context, parentWindow string, options map[string]dbus.Variant) error {
	if strings.TrimSpace(parentWindow) == "" {
		return ErrMissingParentWindow
	}

	if m == nil || m.object == nil {
		return ErrMissingMonitor
	}

	if options == nil {
		return ErrMissingOptions
	}

	if err := m.portal.call(ctx, m.object, MonitorInterface+".Update", parentWindow, options).Err; err != nil {
		return fmt.Errorf("update app: %w", err)
	}

	logger.InfoKV(ctx, "Update requested", "monitor", m.path, "parent_window", parentWindow)

	return nil
}

// Close ends monitoring and cancels any ongoing installation. The call does
// not wait for a reply.
func (m *Monitor) Close(ctx context.Context) error {
	if m == nil || m.object == nil {
		return ErrMissingMonitor
	}

	callCtx, cancel := m.portal.callContext(ctx)
	defer cancel()

	call := m.object.CallWithContext(callCtx, MonitorInterface+".Close", dbus.FlagNoReplyExpected)
	if call.Err != nil {
		return fmt.Errorf("close update monitor: %w", call.Err)
	}

	logger.DebugKV(ctx, "Update monitor closed", "path", m.path)

	return nil
}
