package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notelock/core/internal/bus"
	"github.com/notelock/core/internal/messaging"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"well formed", `["42","ping"]`, "42"},
		{"with args", `["7","user:login","a","b"]`, "7"},
		{"not json", `garbage`, ""},
		{"not an array", `{"id":"1"}`, ""},
		{"empty array", `[]`, ""},
		{"non-string id", `[1,"ping"]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requestID([]byte(tt.frame)))
		})
	}
}

func TestAwaitResponse(t *testing.T) {
	const base = "test:gw:await"
	s := New("localhost:0", base, nil)
	bus.Purge(base + "-core-out:9")

	// The response lands on the suffixed channel after a short delay, as it
	// would once the dispatcher finishes.
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = bus.Send(base+"-core-out:9", []byte(`{"e":0,"d":"pong"}`))
	}()

	msg, err := s.awaitResponse(context.Background(), "9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"e":0,"d":"pong"}`, string(msg))
}

func TestAwaitResponseCanceled(t *testing.T) {
	const base = "test:gw:cancel"
	s := New("localhost:0", base, nil)
	bus.Purge(base + "-core-out:never")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.awaitResponse(ctx, "never")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRelayForwardsFrames(t *testing.T) {
	const base = "test:gw:relay"
	bus.Purge(base + "-core-in")

	s := New("localhost:0", base, nil)

	// A nil conn is fine here: the frame carries no id, so no response
	// goroutine spawns and nothing touches the connection.
	s.relay(context.Background(), nil, []byte(`not an envelope`))

	// The frame still reaches the core side untouched; the core is the one
	// that decides to drop it.
	peer := messaging.NewWithChannel(base)
	msg, err := peer.RecvNB()
	require.NoError(t, err)
	assert.Equal(t, "not an envelope", string(msg))
}
