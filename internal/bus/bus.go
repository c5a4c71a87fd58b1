// Package bus implements the in-process message channels the core and its UI
// thread communicate over.
//
// A channel is a named, unbounded FIFO queue of byte messages. Channels are
// created on first use from either end, so senders and receivers need no
// coordination beyond agreeing on a name. One process-wide registry holds all
// channels for the process lifetime.
package bus

import (
	"sync"

	"github.com/notelock/core/internal/protocol"
)

// channel is a single named queue. Unbounded: senders never block.
type channel struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue [][]byte
}

func newChannel() *channel {
	ch := &channel{}
	ch.cond = sync.NewCond(&ch.mu)
	return ch
}

func (ch *channel) push(msg []byte) {
	ch.mu.Lock()
	ch.queue = append(ch.queue, msg)
	ch.mu.Unlock()
	ch.cond.Signal()
}

// pop blocks until a message is available.
func (ch *channel) pop() []byte {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	for len(ch.queue) == 0 {
		ch.cond.Wait()
	}
	msg := ch.queue[0]
	ch.queue = ch.queue[1:]
	return msg
}

// tryPop returns (nil, false) when the queue is empty.
func (ch *channel) tryPop() ([]byte, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.queue) == 0 {
		return nil, false
	}
	msg := ch.queue[0]
	ch.queue = ch.queue[1:]
	return msg, true
}

var registry = struct {
	mu       sync.Mutex
	channels map[string]*channel
}{
	channels: make(map[string]*channel),
}

// open returns the channel for name, creating it on first use.
func open(name string) *channel {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	ch, ok := registry.channels[name]
	if !ok {
		ch = newChannel()
		registry.channels[name] = ch
	}
	return ch
}

// Send appends msg to the named channel. Never blocks.
func Send(name string, msg []byte) error {
	open(name).push(msg)
	return nil
}

// Recv blocks until the next message on the named channel.
func Recv(name string) ([]byte, error) {
	return open(name).pop(), nil
}

// RecvNB returns the next message on the named channel, or
// protocol.ErrTryAgain when none is queued.
func RecvNB(name string) ([]byte, error) {
	msg, ok := open(name).tryPop()
	if !ok {
		return nil, protocol.ErrTryAgain
	}
	return msg, nil
}

// Purge discards any queued messages on the named channel. Test helper; a
// channel name reused across tests would otherwise leak stale messages.
func Purge(name string) {
	ch := open(name)
	ch.mu.Lock()
	ch.queue = nil
	ch.mu.Unlock()
}
