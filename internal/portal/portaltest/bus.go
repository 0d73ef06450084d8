// Package portaltest provides an in-memory D-Bus connection for tests of
// code built on the portal client.
package portaltest

import (
	"context"
	"errors"
	"sync"

	"github.com/godbus/dbus/v5"
)

// ErrNoReply is returned by calls without a configured reply.
var ErrNoReply = errors.New("no reply configured")

const propertiesGet = "org.freedesktop.DBus.Properties.Get"

// Call is a method call captured by Object.
type Call struct {
	// Method is the fully qualified method name.
	Method string
	// Flags are the call flags.
	Flags dbus.Flags
	// Args are the call arguments.
	Args []any
}

// Object answers method calls from a table of canned replies.
// Methods of dbus.BusObject that are not overridden panic when used.
type Object struct {
	dbus.BusObject

	dest    string
	path    dbus.ObjectPath
	mu      sync.Mutex
	calls   []Call
	replies map[string]*dbus.Call
	hooks   map[string]func(args []any)
	props   map[string]any
}

// Reply configures the body returned for method.
func (o *Object) Reply(method string, body ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.replies[method] = &dbus.Call{Body: body}
}

// Fail configures a D-Bus error returned for method.
func (o *Object) Fail(method, name, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.replies[method] = &dbus.Call{Err: dbus.Error{Name: name, Body: []any{message}}}
}

// SetProperty makes Properties.Get return value for iface and name. It takes
// precedence over a reply configured for Properties.Get.
func (o *Object) SetProperty(iface, name string, value any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.props[iface+"."+name] = value
}

// OnCall registers fn to run after method is called, e.g. to emit signals.
func (o *Object) OnCall(method string, fn func(args []any)) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.hooks[method] = fn
}

// CallWithContext implements dbus.BusObject.
func (o *Object) CallWithContext(_ context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call {
	o.mu.Lock()
	o.calls = append(o.calls, Call{Method: method, Flags: flags, Args: args})
	reply, hasReply := o.replies[method]
	hook := o.hooks[method]
	property, hasProperty := o.property(method, args)
	o.mu.Unlock()

	if hasProperty {
		return &dbus.Call{Body: []any{dbus.MakeVariant(property)}}
	}

	if hook != nil {
		hook(args)
	}

	if flags&dbus.FlagNoReplyExpected != 0 {
		return &dbus.Call{}
	}

	if hasReply {
		return reply
	}

	return &dbus.Call{Err: ErrNoReply}
}

func (o *Object) property(method string, args []any) (any, bool) {
	if method != propertiesGet || len(args) != 2 {
		return nil, false
	}

	iface, _ := args[0].(string)
	name, _ := args[1].(string)
	value, ok := o.props[iface+"."+name]

	return value, ok
}

// Path implements dbus.BusObject.
func (o *Object) Path() dbus.ObjectPath { return o.path }

// Destination implements dbus.BusObject.
func (o *Object) Destination() string { return o.dest }

// Calls returns a copy of the captured calls.
func (o *Object) Calls() []Call {
	o.mu.Lock()
	defer o.mu.Unlock()

	return append([]Call(nil), o.calls...)
}

// LastCall returns the most recent call or a zero Call.
func (o *Object) LastCall() Call {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.calls) == 0 {
		return Call{}
	}

	return o.calls[len(o.calls)-1]
}

// Bus hands out Objects and records match rules and signal channels.
type Bus struct {
	mu       sync.Mutex
	objects  map[dbus.ObjectPath]*Object
	matches  int
	removed  int
	matchErr error
	signals  []chan<- *dbus.Signal
	closed   int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{objects: make(map[dbus.ObjectPath]*Object)}
}

// Remote returns the object at path, creating it on first use.
func (b *Bus) Remote(path dbus.ObjectPath) *Object {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.remoteLocked("", path)
}

func (b *Bus) remoteLocked(dest string, path dbus.ObjectPath) *Object {
	o, ok := b.objects[path]
	if !ok {
		o = &Object{
			dest:    dest,
			path:    path,
			replies: make(map[string]*dbus.Call),
			hooks:   make(map[string]func(args []any)),
			props:   make(map[string]any),
		}
		b.objects[path] = o
	}

	if o.dest == "" {
		o.dest = dest
	}

	return o
}

// Object implements portal.Bus.
//
//nolint:ireturn // Mirrors *dbus.Conn.
func (b *Bus) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.remoteLocked(dest, path)
}

// FailMatches makes AddMatchSignalContext return err.
func (b *Bus) FailMatches(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.matchErr = err
}

// AddMatchSignalContext implements portal.Bus.
func (b *Bus) AddMatchSignalContext(context.Context, ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.matchErr != nil {
		return b.matchErr
	}

	b.matches++

	return nil
}

// RemoveMatchSignalContext implements portal.Bus.
func (b *Bus) RemoveMatchSignalContext(context.Context, ...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removed++

	return nil
}

// Signal implements portal.Bus.
func (b *Bus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.signals = append(b.signals, ch)
}

// RemoveSignal implements portal.Bus.
func (b *Bus) RemoveSignal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.signals {
		if b.signals[i] == ch {
			b.signals = append(b.signals[:i], b.signals[i+1:]...)
			return
		}
	}
}

// Close implements portal.Bus.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed++

	return nil
}

// Emit delivers sig to every registered channel and reports whether any
// channel was registered.
func (b *Bus) Emit(sig *dbus.Signal) bool {
	b.mu.Lock()
	channels := append([]chan<- *dbus.Signal(nil), b.signals...)
	b.mu.Unlock()

	for _, ch := range channels {
		ch <- sig
	}

	return len(channels) > 0
}

// Matches returns the number of added match rules.
func (b *Bus) Matches() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.matches
}

// Removed returns the number of removed match rules.
func (b *Bus) Removed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.removed
}

// Closed returns how often Close was called.
func (b *Bus) Closed() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// Subscribed reports whether a signal channel is registered.
func (b *Bus) Subscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.signals) > 0
}
