// Package gateway exposes the in-proc message bus to external clients over a
// websocket. A UI that cannot link the core directly connects here instead;
// frames go onto the bus untouched and responses come back to the client that
// asked, while events broadcast to every connection.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/notelock/core/internal/bus"
	"github.com/notelock/core/internal/messaging"
	"github.com/notelock/core/internal/protocol"
)

// responseTimeout bounds how long a response waiter polls before giving up.
// A request the core dropped (malformed envelope) never answers.
const responseTimeout = 30 * time.Second

// pollInterval is the response/event polling cadence. The bus has no
// cancelable blocking receive, so waiters poll non-blocking at this rate.
const pollInterval = 10 * time.Millisecond

// Server is the websocket bridge.
type Server struct {
	addr string
	peer *messaging.Messenger
	log  *zap.Logger

	httpServer *http.Server

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool
}

// New builds a gateway listening on addr, speaking to the core over the
// given messaging channel base.
func New(addr, channelBase string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		addr:    addr,
		peer:    messaging.NewReversed(channelBase),
		log:     log,
		clients: make(map[*websocket.Conn]bool),
	}
}

// Start serves until ctx is canceled, then closes every client connection.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go s.eventLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.log.Info("gateway listening", zap.String("addr", s.addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway server failed: %w", err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Info("client connected", zap.Int("clients", count))

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.log.Info("client disconnected")
	}()

	ctx := r.Context()
	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			return
		}
		s.relay(ctx, conn, frame)
	}
}

// relay forwards one client frame to the core and arranges for the response
// to come back to the same connection.
func (s *Server) relay(ctx context.Context, conn *websocket.Conn, frame []byte) {
	reqID := requestID(frame)

	if err := s.peer.Send(frame); err != nil {
		s.log.Warn("failed to forward request", zap.Error(err))
		return
	}
	if reqID == "" {
		// No id means no response channel to watch; the core logs and
		// drops such frames anyway.
		return
	}

	go func() {
		resp, err := s.awaitResponse(ctx, reqID)
		if err != nil {
			s.log.Warn("no response for request",
				zap.String("id", reqID), zap.Error(err))
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, resp); err != nil {
			s.log.Warn("failed to deliver response",
				zap.String("id", reqID), zap.Error(err))
		}
	}()
}

// awaitResponse polls the suffixed response channel for the request id.
func (s *Server) awaitResponse(ctx context.Context, reqID string) ([]byte, error) {
	deadline := time.Now().Add(responseTimeout)
	for {
		msg, err := s.peer.RecvSuffixNB(reqID)
		if err == nil {
			return msg, nil
		}
		if !errors.Is(err, protocol.ErrTryAgain) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timed out after %s", responseTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// eventLoop is the single consumer of the broadcast event channel; every
// event fans out to all connected clients.
func (s *Server) eventLoop(ctx context.Context) {
	for {
		msg, err := bus.RecvNB(messaging.EventChannel())
		if err != nil {
			if !errors.Is(err, protocol.ErrTryAgain) {
				s.log.Warn("event receive failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		s.broadcast(ctx, msg)
	}
}

func (s *Server) broadcast(ctx context.Context, msg []byte) {
	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clientsMu.RUnlock()

	for _, conn := range conns {
		if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
			s.log.Debug("failed to broadcast to client", zap.Error(err))
		}
	}
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	s.clients = make(map[*websocket.Conn]bool)
}

// requestID extracts the correlation id from a raw request frame, or ""
// when the frame is not a well-formed envelope.
func requestID(frame []byte) string {
	var elems []json.RawMessage
	if err := json.Unmarshal(frame, &elems); err != nil || len(elems) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(elems[0], &id); err != nil {
		return ""
	}
	return id
}
