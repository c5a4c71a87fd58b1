// Package protocol defines the request/response envelope exchanged between the
// notelock core and its UI over the message channel.
//
// A request is a JSON array:
//
//	["<request id>", "<command>", arg0, arg1, ...]
//
// where the args can be any valid JSON values. The request id is echoed back in
// the response so the client can correlate replies with outstanding calls.
//
// A response is a fixed two-field object `{"e": <code>, "d": <data>}` where
// e == 0 means success and any nonzero e carries an error description in d.
// Events use the same shape with a string event name in e. Field order is part
// of the protocol: e is always serialized before d.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is a decoded inbound envelope.
type Request struct {
	// ID is the caller-assigned correlation id. Opaque to the core.
	ID string

	// Cmd names the operation to run.
	Cmd string

	// Args holds the positional arguments, still encoded. Index 0 is the
	// first argument after the command (slot 2 on the wire).
	Args []json.RawMessage
}

// ParseRequest decodes a raw envelope.
//
// The envelope must be a JSON array with at least two elements: a string id
// and a string command. A malformed envelope is unrecoverable per-message
// because no id can be extracted to address a response to; callers log and
// drop it.
func ParseRequest(raw []byte) (*Request, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	if len(elems) < 1 {
		return nil, &MissingFieldError{Field: "id (slot 0)"}
	}
	var id string
	if err := json.Unmarshal(elems[0], &id); err != nil {
		return nil, &MissingFieldError{Field: "id (slot 0)"}
	}

	if len(elems) < 2 {
		return nil, &MissingFieldError{Field: "cmd (slot 1)"}
	}
	var cmd string
	if err := json.Unmarshal(elems[1], &cmd); err != nil {
		return nil, &MissingFieldError{Field: "cmd (slot 1)"}
	}

	return &Request{ID: id, Cmd: cmd, Args: elems[2:]}, nil
}

// NumArgs returns the number of positional arguments present.
func (r *Request) NumArgs() int {
	return len(r.Args)
}

// Arg decodes positional argument i into v.
//
// Returns a MissingFieldError when the slot is absent or does not decode into
// the requested type, naming the wire slot (arguments start at slot 2).
func (r *Request) Arg(i int, v any) error {
	if i < 0 || i >= len(r.Args) {
		return &MissingFieldError{Field: fmt.Sprintf("arg (slot %d)", i+2)}
	}
	if err := json.Unmarshal(r.Args[i], v); err != nil {
		return &MissingFieldError{Field: fmt.Sprintf("arg (slot %d): %v", i+2, err)}
	}
	return nil
}

// StringArg decodes positional argument i as a string.
func (r *Request) StringArg(i int) (string, error) {
	var s string
	if err := r.Arg(i, &s); err != nil {
		return "", err
	}
	return s, nil
}

// Response is the outbound reply to a single request.
//
// Could be a plain map, but map keys serialize in unspecified order; the
// protocol requires e before d, so marshaling is done by hand.
type Response struct {
	// E is 0 on success, nonzero on error.
	E int64
	// D carries the result value, or the error description on failure.
	D any
}

// MarshalJSON serializes the response with the fixed e-then-d field order.
func (r Response) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"e":`)
	e, err := json.Marshal(r.E)
	if err != nil {
		return nil, err
	}
	buf.Write(e)
	buf.WriteString(`,"d":`)
	d, err := json.Marshal(r.D)
	if err != nil {
		return nil, err
	}
	buf.Write(d)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a response. Used by clients and tests; the core only
// ever encodes.
func (r *Response) UnmarshalJSON(data []byte) error {
	var wire struct {
		E int64 `json:"e"`
		D any   `json:"d"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.E = wire.E
	r.D = wire.D
	return nil
}

// Event is an uncorrelated notification pushed to the client. Delivery is
// at-most-once, best effort; there is no acknowledgment path.
type Event struct {
	// Name identifies the event, e.g. "app:shutdown".
	Name string
	// D is the event payload.
	D any
}

// MarshalJSON serializes the event with the fixed e-then-d field order.
func (ev Event) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"e":`)
	e, err := json.Marshal(ev.Name)
	if err != nil {
		return nil, err
	}
	buf.Write(e)
	buf.WriteString(`,"d":`)
	d, err := json.Marshal(ev.D)
	if err != nil {
		return nil, err
	}
	buf.Write(d)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an event.
func (ev *Event) UnmarshalJSON(data []byte) error {
	var wire struct {
		E string `json:"e"`
		D any    `json:"d"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	ev.Name = wire.E
	ev.D = wire.D
	return nil
}

// EmptyObject returns the canonical empty success payload.
func EmptyObject() map[string]any {
	return map[string]any{}
}
