package messaging

import (
	"bytes"
	"context"

	"go.uber.org/zap"

	"github.com/notelock/core/internal/core"
	"github.com/notelock/core/internal/dispatch"
)

// Loop owns the receive cycle: block on the in-channel, check the shutdown
// sentinel, hand everything else to the dispatcher on the executor goroutine.
//
// Responses are addressed by suffixing the out-channel with the request id,
// so a client waiting on `<out>:<id>` sees exactly the reply to its own call.
type Loop struct {
	m    *Messenger
	disp *dispatch.Dispatcher
	exec *core.Executor
	log  *zap.Logger
}

// NewLoop builds a loop over the given messenger.
func NewLoop(m *Messenger, disp *dispatch.Dispatcher, exec *core.Executor, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{m: m, disp: disp, exec: exec, log: log}
}

// Run blocks, receiving and dispatching until the shutdown sentinel arrives.
// The sentinel is consumed, never dispatched; receiving it twice is harmless
// since the unbind is idempotent.
func (l *Loop) Run() error {
	l.log.Info("messaging loop started")

	for l.m.IsBound() {
		raw, err := l.m.Recv()
		if err != nil {
			return err
		}

		if bytes.Equal(raw, []byte(ShutdownSignal)) {
			l.log.Info("shutdown signal received")
			l.m.Shutdown()
			continue
		}

		msg := raw
		if err := l.exec.Submit(func() {
			l.disp.Process(context.Background(), msg, l.send)
		}); err != nil {
			l.log.Warn("dropping request after executor stop", zap.Error(err))
		}
	}

	l.log.Info("messaging loop stopped")
	return nil
}

func (l *Loop) send(reqID string, msg []byte) error {
	return l.m.SendSuffix(reqID, msg)
}

// Stop injects the shutdown sentinel into the in-channel, preempting a
// blocked Recv. Safe from any goroutine.
func (l *Loop) Stop() error {
	return l.m.SendRev([]byte(ShutdownSignal))
}
