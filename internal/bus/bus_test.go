package bus

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notelock/core/internal/protocol"
)

func TestSendRecvOrder(t *testing.T) {
	const name = "test:bus:order"
	Purge(name)

	for i := 0; i < 5; i++ {
		require.NoError(t, Send(name, []byte(fmt.Sprintf("msg-%d", i))))
	}
	for i := 0; i < 5; i++ {
		msg, err := Recv(name)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("msg-%d", i), string(msg))
	}
}

func TestRecvNBEmpty(t *testing.T) {
	const name = "test:bus:empty"
	Purge(name)

	_, err := RecvNB(name)
	require.ErrorIs(t, err, protocol.ErrTryAgain)

	require.NoError(t, Send(name, []byte("hello")))
	msg, err := RecvNB(name)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(msg))
}

func TestRecvBlocksUntilSend(t *testing.T) {
	const name = "test:bus:block"
	Purge(name)

	got := make(chan []byte)
	go func() {
		msg, _ := Recv(name)
		got <- msg
	}()

	require.NoError(t, Send(name, []byte("wake")))
	assert.Equal(t, "wake", string(<-got))
}

func TestConcurrentSenders(t *testing.T) {
	const name = "test:bus:concurrent"
	const n = 100
	Purge(name)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Send(name, []byte("x"))
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		_, err := RecvNB(name)
		require.NoError(t, err, "message %d missing", i)
	}
	_, err := RecvNB(name)
	assert.ErrorIs(t, err, protocol.ErrTryAgain)
}

func TestChannelsAreIndependent(t *testing.T) {
	Purge("test:bus:a")
	Purge("test:bus:b")

	require.NoError(t, Send("test:bus:a", []byte("for-a")))
	_, err := RecvNB("test:bus:b")
	assert.ErrorIs(t, err, protocol.ErrTryAgain)

	msg, err := RecvNB("test:bus:a")
	require.NoError(t, err)
	assert.Equal(t, "for-a", string(msg))
}
