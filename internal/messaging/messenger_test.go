package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notelock/core/internal/bus"
	"github.com/notelock/core/internal/protocol"
)

func TestPeersMirrorChannels(t *testing.T) {
	const base = "test:msg:mirror"
	bus.Purge(base + "-core-in")
	bus.Purge(base + "-core-out")

	core := NewWithChannel(base)
	ui := NewReversed(base)

	// What the UI sends, the core receives.
	require.NoError(t, ui.Send([]byte("ping")))
	msg, err := core.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(msg))

	// And the other way around.
	require.NoError(t, core.Send([]byte("pong")))
	msg, err = ui.Recv()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(msg))
}

func TestSendSuffixAddressing(t *testing.T) {
	const base = "test:msg:suffix"
	bus.Purge(base + "-core-out:77")

	core := NewWithChannel(base)
	ui := NewReversed(base)

	require.NoError(t, core.SendSuffix("77", []byte("for-77")))

	// Nothing lands on the plain out-channel.
	_, err := ui.RecvNB()
	assert.ErrorIs(t, err, protocol.ErrTryAgain)

	msg, err := ui.RecvSuffixNB("77")
	require.NoError(t, err)
	assert.Equal(t, "for-77", string(msg))
}

func TestSendRevReachesOwnInChannel(t *testing.T) {
	const base = "test:msg:rev"
	bus.Purge(base + "-core-in")

	core := NewWithChannel(base)
	require.NoError(t, core.SendRev([]byte(ShutdownSignal)))

	msg, err := core.RecvNB()
	require.NoError(t, err)
	assert.Equal(t, ShutdownSignal, string(msg))
}

func TestShutdownUnbinds(t *testing.T) {
	m := NewWithChannel("test:msg:bound")
	assert.True(t, m.IsBound())
	m.Shutdown()
	assert.False(t, m.IsBound())
	// Idempotent.
	m.Shutdown()
	assert.False(t, m.IsBound())
}

func TestEventBroadcast(t *testing.T) {
	const channel = "test:msg:events"
	prev := EventChannel()
	SetEventChannel(channel)
	defer SetEventChannel(prev)
	bus.Purge(channel)

	require.NoError(t, Event("sync:outgoing", map[string]any{"ids": []string{"a", "b"}}))

	raw, err := bus.RecvNB(channel)
	require.NoError(t, err)

	var ev protocol.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, "sync:outgoing", ev.Name)

	// Field order on the wire: e before d.
	assert.True(t, json.Valid(raw))
	assert.Equal(t, byte('{'), raw[0])
	assert.Contains(t, string(raw), `{"e":"sync:outgoing",`)
}
