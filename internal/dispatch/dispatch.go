// Package dispatch routes decoded request envelopes to their command
// handlers and turns the outcome into exactly one response per request.
//
// The table is static after construction. Handlers run on the core executor
// goroutine, so they mutate core state freely; anything long-running they
// need done concurrently belongs in a syncer, not here.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/notelock/core/internal/core"
	"github.com/notelock/core/internal/models"
	"github.com/notelock/core/internal/protocol"
	"github.com/notelock/core/internal/search"
)

// Handler executes one command against the core.
type Handler func(ctx context.Context, c *core.Core, req *protocol.Request) (any, error)

// Sender delivers one encoded response addressed by the request id it
// answers.
type Sender func(reqID string, msg []byte) error

// Dispatcher owns the command table.
type Dispatcher struct {
	core     *core.Core
	log      *zap.Logger
	handlers map[string]Handler
}

// New builds a dispatcher with the full built-in command set.
func New(c *core.Core, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		core:     c,
		log:      log,
		handlers: make(map[string]Handler),
	}
	d.registerBuiltins()
	return d
}

// Register adds a handler. Registering a command twice is a programming
// error, caught loudly rather than silently shadowed.
func (d *Dispatcher) Register(cmd string, h Handler) error {
	if _, ok := d.handlers[cmd]; ok {
		return fmt.Errorf("command %q already registered", cmd)
	}
	d.handlers[cmd] = h
	return nil
}

func (d *Dispatcher) registerBuiltins() {
	must := func(cmd string, h Handler) {
		if err := d.Register(cmd, h); err != nil {
			panic(err)
		}
	}

	must("ping", handlePing)

	must("user:login", handleLogin)
	must("user:join", handleJoin)
	must("user:logout", handleLogout)
	must("user:delete-account", handleDeleteAccount)

	must("app:wipe-local-data", handleWipeLocalData)
	must("app:start-sync", handleStartSync)
	must("app:pause-sync", handlePauseSync)
	must("app:resume-sync", handleResumeSync)
	must("app:shutdown-sync", handleShutdownSync)
	must("app:api:set-endpoint", handleSetEndpoint)
	must("app:shutdown", handleShutdown)

	must("profile:load", handleProfileLoad)
	must("profile:sync:model", handleSyncModel)
	must("profile:get-notes", handleGetNotes)
	must("profile:find-notes", handleFindNotes)
	must("profile:get-tags", handleGetTags)
}

// Process handles one raw envelope: decode, run, answer. A malformed
// envelope carries no usable request id, so it is logged and dropped; every
// decodable request gets exactly one response, success or error.
func (d *Dispatcher) Process(ctx context.Context, raw []byte, send Sender) {
	req, err := protocol.ParseRequest(raw)
	if err != nil {
		d.log.Warn("dropping undecodable request", zap.Error(err))
		return
	}

	resp := d.run(ctx, req)

	msg, err := json.Marshal(resp)
	if err != nil {
		d.log.Error("failed to encode response",
			zap.String("id", req.ID), zap.String("cmd", req.Cmd), zap.Error(err))
		msg, _ = json.Marshal(protocol.ErrResponse(fmt.Errorf("failed to encode response")))
	}

	if err := send(req.ID, msg); err != nil {
		d.log.Error("failed to send response",
			zap.String("id", req.ID), zap.String("cmd", req.Cmd), zap.Error(err))
	}
}

func (d *Dispatcher) run(ctx context.Context, req *protocol.Request) protocol.Response {
	h, ok := d.handlers[req.Cmd]
	if !ok {
		err := &protocol.MissingCommandError{Cmd: req.Cmd}
		d.log.Warn("unknown command", zap.String("cmd", req.Cmd))
		return protocol.ErrResponse(err)
	}

	result, err := h(ctx, d.core, req)
	if err != nil {
		d.log.Warn("command failed",
			zap.String("id", req.ID), zap.String("cmd", req.Cmd), zap.Error(err))
		return protocol.ErrResponse(err)
	}

	d.log.Debug("command handled", zap.String("id", req.ID), zap.String("cmd", req.Cmd))
	return protocol.OKResponse(result)
}

func handlePing(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	return "pong", nil
}

func handleLogin(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	username, err := req.StringArg(0)
	if err != nil {
		return nil, err
	}
	password, err := req.StringArg(1)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, username, password); err != nil {
		return nil, err
	}
	return protocol.EmptyObject(), nil
}

func handleJoin(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	username, err := req.StringArg(0)
	if err != nil {
		return nil, err
	}
	password, err := req.StringArg(1)
	if err != nil {
		return nil, err
	}
	if err := c.Join(ctx, username, password); err != nil {
		return nil, err
	}
	return protocol.EmptyObject(), nil
}

func handleLogout(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	if err := c.Logout(ctx); err != nil {
		return nil, err
	}
	return protocol.EmptyObject(), nil
}

func handleDeleteAccount(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	if err := c.DeleteAccount(ctx); err != nil {
		return nil, err
	}
	return protocol.EmptyObject(), nil
}

func handleWipeLocalData(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	if err := c.WipeLocalData(ctx); err != nil {
		return nil, err
	}
	return protocol.EmptyObject(), nil
}

func handleStartSync(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	c.StartSync()
	return protocol.EmptyObject(), nil
}

// syncerNames decodes the optional list-of-names argument shared by
// pause/resume. No argument means "all workers".
func syncerNames(req *protocol.Request) ([]string, error) {
	if req.NumArgs() == 0 {
		return nil, nil
	}
	var names []string
	if err := req.Arg(0, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func handlePauseSync(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	names, err := syncerNames(req)
	if err != nil {
		return nil, err
	}
	c.PauseSync(names...)
	return protocol.EmptyObject(), nil
}

func handleResumeSync(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	names, err := syncerNames(req)
	if err != nil {
		return nil, err
	}
	c.ResumeSync(names...)
	return protocol.EmptyObject(), nil
}

func handleShutdownSync(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	// Default is to wait so the caller knows the workers are gone.
	wait := true
	if req.NumArgs() > 0 {
		if err := req.Arg(0, &wait); err != nil {
			return nil, err
		}
	}
	c.ShutdownSync(wait)
	return protocol.EmptyObject(), nil
}

func handleSetEndpoint(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	endpoint, err := req.StringArg(0)
	if err != nil {
		return nil, err
	}
	if endpoint == "" {
		return nil, &protocol.BadValueError{Field: "endpoint", Value: endpoint}
	}
	if err := c.SetAPIEndpoint(endpoint); err != nil {
		return nil, err
	}
	return protocol.EmptyObject(), nil
}

func handleShutdown(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	// The success response still goes out: Shutdown stops the receive loop
	// for the NEXT message, not this one.
	c.Shutdown()
	return protocol.EmptyObject(), nil
}

func handleProfileLoad(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	spaces, boards := c.ProfileSnapshot()
	return map[string]any{
		"spaces": spaces,
		"boards": boards,
	}, nil
}

func handleSyncModel(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	action, err := req.StringArg(0)
	if err != nil {
		return nil, err
	}
	typ, err := req.StringArg(1)
	if err != nil {
		return nil, err
	}
	if !models.Type(typ).Valid() {
		return nil, &protocol.BadValueError{Field: "type", Value: typ}
	}

	switch action {
	case "create", "update":
		m := models.New(models.Type(typ))
		if err := req.Arg(2, m); err != nil {
			return nil, err
		}
		saved, err := c.SaveModel(ctx, action, m)
		if err != nil {
			return nil, err
		}
		return saved, nil

	case "delete":
		var body struct {
			ID string `json:"id"`
		}
		if err := req.Arg(2, &body); err != nil {
			return nil, err
		}
		if body.ID == "" {
			return nil, &protocol.MissingFieldError{Field: "id"}
		}
		if err := c.DeleteModel(ctx, models.Type(typ), body.ID); err != nil {
			return nil, err
		}
		return protocol.EmptyObject(), nil

	default:
		return nil, &protocol.BadValueError{Field: "action", Value: action}
	}
}

func handleGetNotes(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	var ids []string
	if err := req.Arg(0, &ids); err != nil {
		return nil, err
	}
	notes, err := c.LoadNotes(ctx, ids)
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func handleFindNotes(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	if c.Index() == nil {
		return nil, &protocol.MissingFieldError{Field: "search index (no profile loaded)"}
	}

	var q search.Query
	if err := req.Arg(0, &q); err != nil {
		return nil, err
	}
	if q.SpaceID == "" {
		return nil, &protocol.MissingFieldError{Field: "space_id"}
	}

	notes, err := c.FindNotes(ctx, &q)
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func handleGetTags(ctx context.Context, c *core.Core, req *protocol.Request) (any, error) {
	if c.Index() == nil {
		return nil, &protocol.MissingFieldError{Field: "search index (no profile loaded)"}
	}

	spaceID, boards, limit, err := tagQueryArgs(req)
	if err != nil {
		return nil, err
	}
	if spaceID == "" {
		return nil, &protocol.MissingFieldError{Field: "space_id"}
	}

	tags, err := c.NoteTags(ctx, spaceID, boards, limit)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// tagQueryArgs decodes the get-tags arguments. The wire form is positional:
// space_id, boards array, limit. A single options object is also accepted so
// clients can skip the optional fields.
func tagQueryArgs(req *protocol.Request) (string, []string, int, error) {
	if req.NumArgs() == 1 && len(req.Args[0]) > 0 && bytes.HasPrefix(bytes.TrimSpace(req.Args[0]), []byte("{")) {
		var q struct {
			SpaceID string   `json:"space_id"`
			Boards  []string `json:"boards,omitempty"`
			Limit   int      `json:"limit,omitempty"`
		}
		if err := req.Arg(0, &q); err != nil {
			return "", nil, 0, err
		}
		return q.SpaceID, q.Boards, q.Limit, nil
	}

	spaceID, err := req.StringArg(0)
	if err != nil {
		return "", nil, 0, err
	}
	var boards []string
	if err := req.Arg(1, &boards); err != nil {
		return "", nil, 0, err
	}
	var limit int
	if err := req.Arg(2, &limit); err != nil {
		return "", nil, 0, err
	}
	return spaceID, boards, limit, nil
}
