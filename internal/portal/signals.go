package portal

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
)

// Signal members.
const (
	SignalSpawnStarted    = Interface + ".SpawnStarted"
	SignalSpawnExited     = Interface + ".SpawnExited"
	SignalUpdateAvailable = MonitorInterface + ".UpdateAvailable"
	SignalProgress        = MonitorInterface + ".Progress"
)

// signalBuffer is the capacity of the raw and decoded signal channels.
const signalBuffer = 32

// Event is a decoded portal signal.
type Event interface {
	// Name returns the fully qualified signal name.
	Name() string
}

// SpawnStarted is emitted once a process started with SpawnNotifyStart has
// fully started.
type SpawnStarted struct {
	// PID is the host PID of the new process.
	PID uint32
	// RelPID is the PID inside the caller's sandbox, when pids are exposed.
	RelPID uint32
}

// Name implements Event.
func (SpawnStarted) Name() string { return SignalSpawnStarted }

// SpawnExited is emitted when a spawned process exits.
type SpawnExited struct {
	// PID is the host PID of the exited process.
	PID uint32
	// ExitStatus is the raw wait status.
	ExitStatus uint32
}

// Name implements Event.
func (SpawnExited) Name() string { return SignalSpawnExited }

// UpdateAvailable is emitted by a monitor when an update becomes available.
type UpdateAvailable struct {
	// Monitor is the path of the emitting monitor.
	Monitor dbus.ObjectPath
	// Info describes the commits involved.
	Info update.UpdateInfo
}

// Name implements Event.
func (UpdateAvailable) Name() string { return SignalUpdateAvailable }

// Progress is emitted by a monitor while an update is installed.
type Progress struct {
	// Monitor is the path of the emitting monitor.
	Monitor dbus.ObjectPath
	// Progress is the reported installation state.
	Progress update.Progress
}

// Name implements Event.
func (Progress) Name() string { return SignalProgress }

// Subscription delivers portal signals as Events until closed.
type Subscription struct {
	bus     Bus
	signals chan *dbus.Signal
	events  chan Event
	rules   [][]dbus.MatchOption
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Subscribe registers match rules for the portal and update monitor signals
// and starts decoding them. Callers must Close the subscription.
func (p *Portal) Subscribe(ctx context.Context) (*Subscription, error) {
	if p == nil || p.bus == nil {
		return nil, ErrPortalUnavailable
	}

	rules := [][]dbus.MatchOption{
		{
			dbus.WithMatchObjectPath(ObjectPath),
			dbus.WithMatchInterface(Interface),
		},
		{
			dbus.WithMatchInterface(MonitorInterface),
		},
	}

	for i, rule := range rules {
		if err := p.bus.AddMatchSignalContext(ctx, rule...); err != nil {
			for _, added := range rules[:i] {
				//nolint:errcheck // Best effort rollback.
				_ = p.bus.RemoveMatchSignalContext(ctx, added...)
			}

			return nil, fmt.Errorf("add match rule: %w", err)
		}
	}

	s := &Subscription{
		bus:     p.bus,
		signals: make(chan *dbus.Signal, signalBuffer),
		events:  make(chan Event, signalBuffer),
		rules:   rules,
		done:    make(chan struct{}),
	}

	p.bus.Signal(s.signals)

	s.wg.Add(1)

	go s.loop(logger.WithName(ctx, "portal-signals"))

	return s, nil
}

// Events returns the channel decoded signals are delivered on. It is closed
// when the subscription is closed or the connection terminates.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the match rules and stops delivery.
func (s *Subscription) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.bus.RemoveSignal(s.signals)

		for _, rule := range s.rules {
			if err := s.bus.RemoveMatchSignalContext(context.Background(), rule...); err != nil && s.closeErr == nil {
				s.closeErr = fmt.Errorf("remove match rule: %w", err)
			}
		}

		s.wg.Wait()
	})

	return s.closeErr
}

func (s *Subscription) loop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		select {
		case <-s.done:
			return
		case sig, ok := <-s.signals:
			if !ok {
				return
			}

			event, decoded := DecodeSignal(sig)
			if !decoded {
				continue
			}

			logger.DebugKV(ctx, "Portal signal received", "name", event.Name(), "path", sig.Path)

			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		}
	}
}

// DecodeSignal converts a raw D-Bus signal into an Event. Signals of other
// interfaces and malformed bodies are reported as not decoded.
func DecodeSignal(sig *dbus.Signal) (Event, bool) {
	if sig == nil {
		return nil, false
	}

	switch sig.Name {
	case SignalSpawnStarted:
		pid, relPID, ok := twoUint32(sig.Body)
		if !ok {
			return nil, false
		}

		return SpawnStarted{PID: pid, RelPID: relPID}, true
	case SignalSpawnExited:
		pid, status, ok := twoUint32(sig.Body)
		if !ok {
			return nil, false
		}

		return SpawnExited{PID: pid, ExitStatus: status}, true
	case SignalUpdateAvailable:
		values, ok := vardict(sig.Body)
		if !ok {
			return nil, false
		}

		return UpdateAvailable{Monitor: sig.Path, Info: update.UpdateInfoFromMap(values)}, true
	case SignalProgress:
		values, ok := vardict(sig.Body)
		if !ok {
			return nil, false
		}

		return Progress{Monitor: sig.Path, Progress: update.ProgressFromMap(values)}, true
	default:
		return nil, false
	}
}

func twoUint32(body []any) (uint32, uint32, bool) {
	if len(body) < 2 {
		return 0, 0, false
	}

	first, ok := body[0].(uint32)
	if !ok {
		return 0, 0, false
	}

	second, ok := body[1].(uint32)
	if !ok {
		return 0, 0, false
	}

	return first, second, true
}

// vardict unwraps an a{sv} body argument into plain Go values.
func vardict(body []any) (map[string]any, bool) {
	if len(body) < 1 {
		return nil, false
	}

	raw, ok := body[0].(map[string]dbus.Variant)
	if !ok {
		return nil, false
	}

	values := make(map[string]any, len(raw))
	for key, variant := range raw {
		values[key] = variant.Value()
	}

	return values, true
}
