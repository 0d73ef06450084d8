package portal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/oshokin/flatpak-updater/internal/logger"
)

// D-Bus names of the Flatpak portal.
const (
	// BusName is the well-known name the portal owns on the session bus.
	BusName = "org.freedesktop.portal.Flatpak"
	// Interface is the main portal interface.
	Interface = "org.freedesktop.portal.Flatpak"
	// MonitorInterface is implemented by objects returned from CreateUpdateMonitor.
	MonitorInterface = "org.freedesktop.portal.Flatpak.UpdateMonitor"
	// ObjectPath is where the portal object lives.
	ObjectPath = dbus.ObjectPath("/org/freedesktop/portal/Flatpak")

	// SessionBus selects the session bus in Connect.
	SessionBus = "session"

	propertiesGet = "org.freedesktop.DBus.Properties.Get"
	peerPing      = "org.freedesktop.DBus.Peer.Ping"

	// DefaultCallTimeout bounds a single portal call when no timeout is configured.
	DefaultCallTimeout = 30 * time.Second
)

var (
	// ErrPortalUnavailable is returned when the portal object cannot be used.
	ErrPortalUnavailable = errors.New("flatpak portal not available on D-Bus")
	// ErrMissingPath is returned when an update monitor path is empty or invalid.
	ErrMissingPath = errors.New("update monitor object path is missing")
	// ErrMissingMonitor is returned when an operation needs a monitor and got nil.
	ErrMissingMonitor = errors.New("update monitor is missing")
	// ErrMissingParentWindow is returned when Update is called without a window identifier.
	ErrMissingParentWindow = errors.New("parent window is missing")
	// ErrMissingOptions is returned when a vardict argument is nil.
	ErrMissingOptions = errors.New("options are missing")
	// ErrUnexpectedType is returned when a property has an unexpected D-Bus type.
	ErrUnexpectedType = errors.New("unexpected property type")
)

// Bus is the part of *dbus.Conn the portal client uses.
type Bus interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	AddMatchSignalContext(ctx context.Context, options ...dbus.MatchOption) error
	RemoveMatchSignalContext(ctx context.Context, options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// Portal is a client of the org.freedesktop.portal.Flatpak interface.
type Portal struct {
	// bus is the connection the portal is reached through.
	bus Bus
	// object is the remote portal object.
	object dbus.BusObject
	// owned is set when Close should close the bus.
	owned bool
	// callTimeout bounds individual method calls.
	callTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

// Option configures the portal client.
type Option func(*Portal)

// WithCallTimeout sets a default timeout for portal calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(p *Portal) {
		if timeout > 0 {
			p.callTimeout = timeout
		}
	}
}

// Connect opens a private connection to the bus at address and returns a
// portal client owning it. An empty address or "session" selects the
// session bus.
func Connect(ctx context.Context, address string, opts ...Option) (*Portal, error) {
	var (
		conn *dbus.Conn
		err  error
	)

	address = strings.TrimSpace(address)
	if address == "" || address == SessionBus {
		conn, err = dbus.ConnectSessionBus(dbus.WithContext(ctx))
	} else {
		conn, err = dbus.Connect(address, dbus.WithContext(ctx))
	}

	if err != nil {
		return nil, fmt.Errorf("connect to D-Bus: %w", err)
	}

	p := New(conn, opts...)
	p.owned = true

	logger.DebugKV(ctx, "Connected to D-Bus", "address", address)

	return p, nil
}

// New wraps an existing bus. The bus is not closed by Close.
func New(bus Bus, opts ...Option) *Portal {
	p := &Portal{
		bus:         bus,
		callTimeout: DefaultCallTimeout,
	}

	if bus != nil {
		p.object = bus.Object(BusName, ObjectPath)
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Bus returns the underlying connection.
func (p *Portal) Bus() Bus {
	return p.bus
}

// usable reports whether the remote object is set.
func (p *Portal) usable() bool {
	return p != nil && p.object != nil
}

// IsAvailable pings the portal. The portal is D-Bus activatable, so the
// ping starts it when needed.
func (p *Portal) IsAvailable(ctx context.Context) bool {
	if !p.usable() {
		logger.Error(ctx, ErrPortalUnavailable.Error())
		return false
	}

	if err := p.call(ctx, p.object, peerPing).Err; err != nil {
		logger.ErrorKV(ctx, "Portal ping failed", "error", err)
		return false
	}

	return true
}

// Version returns the "version" property of the portal interface.
func (p *Portal) Version(ctx context.Context) (uint32, error) {
	return p.uint32Property(ctx, "version")
}

// Supports returns the "supports" property of the portal interface.
func (p *Portal) Supports(ctx context.Context) (uint32, error) {
	return p.uint32Property(ctx, "supports")
}

func (p *Portal) uint32Property(ctx context.Context, name string) (uint32, error) {
	if !p.usable() {
		return 0, ErrPortalUnavailable
	}

	var value dbus.Variant
	if err := p.call(ctx, p.object, propertiesGet, Interface, name).Store(&value); err != nil {
		return 0, fmt.Errorf("get property %s: %w", name, err)
	}

	number, ok := value.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s has signature %s: %w", name, value.Signature(), ErrUnexpectedType)
	}

	return number, nil
}

// SpawnSignal sends a Unix signal to a process started with Spawn.
func (p *Portal) SpawnSignal(ctx context.Context, pid, signal uint32, toProcessGroup bool) error {
	if !p.usable() {
		return ErrPortalUnavailable
	}

	if err := p.call(ctx, p.object, Interface+".SpawnSignal", pid, signal, toProcessGroup).Err; err != nil {
		return fmt.Errorf("spawn signal: %w", err)
	}

	return nil
}

// Close releases the connection when the portal owns it.
func (p *Portal) Close() error {
	if p == nil || !p.owned || p.bus == nil {
		return nil
	}

	p.closeOnce.Do(func() {
		p.closeErr = p.bus.Close()
	})

	return p.closeErr
}

// call performs a blocking method call bounded by the client timeout.
func (p *Portal) call(ctx context.Context, object dbus.BusObject, method string, args ...any) *dbus.Call {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	return object.CallWithContext(callCtx, method, 0, args...)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (p *Portal) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, p.callTimeout)
}

// NoOptions returns an empty vardict for calls that take options.
func NoOptions() map[string]dbus.Variant {
	return map[string]dbus.Variant{}
}
