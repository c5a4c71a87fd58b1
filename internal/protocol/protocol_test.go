package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantID  string
		wantCmd string
		wantErr bool
	}{
		{
			name:    "bare command",
			raw:     `["42","ping"]`,
			wantID:  "42",
			wantCmd: "ping",
		},
		{
			name:    "command with args",
			raw:     `["7","user:login","alice","hunter2"]`,
			wantID:  "7",
			wantCmd: "user:login",
		},
		{
			name:    "not json",
			raw:     `{{{`,
			wantErr: true,
		},
		{
			name:    "not an array",
			raw:     `{"id":"1"}`,
			wantErr: true,
		},
		{
			name:    "empty array",
			raw:     `[]`,
			wantErr: true,
		},
		{
			name:    "missing command",
			raw:     `["1"]`,
			wantErr: true,
		},
		{
			name:    "non-string id",
			raw:     `[1,"ping"]`,
			wantErr: true,
		},
		{
			name:    "non-string command",
			raw:     `["1",2]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, req.ID)
			assert.Equal(t, tt.wantCmd, req.Cmd)
		})
	}
}

func TestRequestArgs(t *testing.T) {
	req, err := ParseRequest([]byte(`["1","cmd","alice",{"x":1},[1,2]]`))
	require.NoError(t, err)
	require.Equal(t, 3, req.NumArgs())

	s, err := req.StringArg(0)
	require.NoError(t, err)
	assert.Equal(t, "alice", s)

	var obj map[string]int
	require.NoError(t, req.Arg(1, &obj))
	assert.Equal(t, 1, obj["x"])

	// Absent slot: the error names the wire position, where args start at 2.
	_, err = req.StringArg(3)
	var mf *MissingFieldError
	require.ErrorAs(t, err, &mf)
	assert.Contains(t, mf.Field, "slot 5")

	// Wrong type in a present slot is also a missing field.
	_, err = req.StringArg(1)
	require.ErrorAs(t, err, &mf)
}

func TestResponseFieldOrder(t *testing.T) {
	out, err := json.Marshal(Response{E: 0, D: "pong"})
	require.NoError(t, err)
	assert.Equal(t, `{"e":0,"d":"pong"}`, string(out))

	out, err = json.Marshal(Response{E: CodeGeneric, D: "boom"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), `{"e":1,`), "e must serialize before d: %s", out)
}

func TestResponseRoundTrip(t *testing.T) {
	orig := Response{E: 0, D: map[string]any{"spaces": []any{}}}
	out, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Response
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, orig.E, back.E)
	assert.Equal(t, map[string]any{"spaces": []any{}}, back.D)
}

func TestEventRoundTrip(t *testing.T) {
	out, err := json.Marshal(Event{Name: "sync:outgoing", D: map[string]any{"ids": []any{"a"}}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), `{"e":"sync:outgoing",`))

	var back Event
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "sync:outgoing", back.Name)
}

func TestErrCode(t *testing.T) {
	tests := []struct {
		err  error
		want int64
	}{
		{&MissingCommandError{Cmd: "nope"}, CodeMissingCommand},
		{&MissingFieldError{Field: "x"}, CodeMissingField},
		{&BadValueError{Field: "type", Value: "bogus"}, CodeBadValue},
		{ErrTryAgain, CodeTryAgain},
		{errors.New("anything else"), CodeGeneric},
		{fmt.Errorf("wrapped: %w", &BadValueError{Field: "f", Value: "v"}), CodeBadValue},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrCode(tt.err), "error: %v", tt.err)
	}
}

func TestErrResponseCarriesMessage(t *testing.T) {
	resp := ErrResponse(&BadValueError{Field: "type", Value: "bogus"})
	assert.Equal(t, CodeBadValue, resp.E)
	assert.Contains(t, resp.D.(string), "bogus")
}
