// Package messaging proxies messages between the core and its remote sender
// (generally a UI of some sort).
//
// A Messenger is bound to a pair of named bus channels derived from one base
// name: `<base>-core-in` carries requests toward the core, `<base>-core-out`
// carries responses back. Events ride a third, broadcast-only channel and are
// raised through the package-level Event function so any goroutine can emit
// one without holding a Messenger.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/notelock/core/internal/bus"
	"github.com/notelock/core/internal/config"
	"github.com/notelock/core/internal/protocol"
)

// ShutdownSignal is the reserved literal that stops the receive loop. It is
// recognized only on the in-channel and is never dispatched as a command;
// injecting it via SendRev is the sole way to preempt a blocking Recv.
const ShutdownSignal = "notelock:internal:msg:shutdown"

// Messenger is one bound endpoint of the request/response channel pair.
type Messenger struct {
	bound      bool
	channelIn  string
	channelOut string
}

// NewWithChannel creates a messenger over the given base channel name.
func NewWithChannel(base string) *Messenger {
	return &Messenger{
		bound:      true,
		channelIn:  base + "-core-in",
		channelOut: base + "-core-out",
	}
}

// New creates a messenger using the configured base channel name.
func New(cfg *config.Config) *Messenger {
	return NewWithChannel(cfg.GetString(config.KeyMessagingChannel))
}

// NewReversed creates a messenger with the in/out channels swapped. A
// reversed peer talks to a normal one symmetrically, which is how tests (and
// the gateway) drive the core without a second transport implementation.
func NewReversed(base string) *Messenger {
	m := NewWithChannel(base)
	m.channelIn, m.channelOut = m.channelOut, m.channelIn
	return m
}

// Recv blocks until the next message on the in-channel.
func (m *Messenger) Recv() ([]byte, error) {
	return bus.Recv(m.channelIn)
}

// RecvNB returns the next message on the in-channel, or protocol.ErrTryAgain
// when none is queued.
func (m *Messenger) RecvNB() ([]byte, error) {
	return bus.RecvNB(m.channelIn)
}

// RecvSuffixNB returns the next message on `<in-channel>:<suffix>`, or
// protocol.ErrTryAgain when none is queued. A reversed peer uses it to
// collect the response addressed to one request id.
func (m *Messenger) RecvSuffixNB(suffix string) ([]byte, error) {
	return bus.RecvNB(m.channelIn + ":" + suffix)
}

// Send writes a message to the out-channel.
func (m *Messenger) Send(msg []byte) error {
	return bus.Send(m.channelOut, msg)
}

// SendSuffix writes to `<out-channel>:<suffix>`, fanning traffic to a
// sub-topic without a second messenger.
func (m *Messenger) SendSuffix(suffix string, msg []byte) error {
	return bus.Send(m.channelOut+":"+suffix, msg)
}

// SendRev writes onto the in-channel. Used exclusively to inject the
// shutdown sentinel into a loop blocked in Recv.
func (m *Messenger) SendRev(msg []byte) error {
	return bus.Send(m.channelIn, msg)
}

// Shutdown marks the messenger unbound; the receive loop exits at its next
// iteration check.
func (m *Messenger) Shutdown() {
	m.bound = false
}

// IsBound reports whether the messenger is still serving.
func (m *Messenger) IsBound() bool {
	return m.bound
}

var eventChannel = struct {
	mu   sync.RWMutex
	name string
}{name: "inproc://notelock-events"}

// SetEventChannel sets the broadcast channel Event writes to. Called once at
// startup from configuration.
func SetEventChannel(name string) {
	eventChannel.mu.Lock()
	eventChannel.name = name
	eventChannel.mu.Unlock()
}

// EventChannel returns the current broadcast channel name.
func EventChannel() string {
	eventChannel.mu.RLock()
	defer eventChannel.mu.RUnlock()
	return eventChannel.name
}

// Event pushes a named payload onto the event channel. Static on purpose:
// events can originate from any thread (syncers included) without a live
// Messenger. Delivery is at-most-once, best effort.
func Event(name string, data any) error {
	msg, err := json.Marshal(protocol.Event{Name: name, D: data})
	if err != nil {
		return fmt.Errorf("failed to encode event %q: %w", name, err)
	}
	return bus.Send(EventChannel(), msg)
}
