package protocol

import (
	"errors"
	"fmt"
)

// Error codes carried in the e field of an error response. Code 0 is reserved
// for success; anything a handler returns that is not one of the typed kinds
// below maps to CodeGeneric.
const (
	CodeGeneric        int64 = 1
	CodeMissingCommand int64 = 2
	CodeMissingField   int64 = 3
	CodeBadValue       int64 = 4
	CodeTryAgain       int64 = 5
)

// ErrTryAgain is returned by a non-blocking receive that found no message.
var ErrTryAgain = errors.New("try again")

// MissingCommandError reports a command string with no registered handler.
type MissingCommandError struct {
	Cmd string
}

func (e *MissingCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Cmd)
}

// MissingFieldError reports a required argument or collaborator that is
// absent or of the wrong type.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

// BadValueError reports a recognized field carrying an unsupported value,
// e.g. an unknown entity-type tag. The offending value is always named.
type BadValueError struct {
	Field string
	Value string
}

func (e *BadValueError) Error() string {
	return fmt.Sprintf("bad value for %s: %q", e.Field, e.Value)
}

// ErrCode maps an error to its wire code. Collaborator errors that are not
// one of the protocol kinds map to CodeGeneric.
func ErrCode(err error) int64 {
	var (
		mc *MissingCommandError
		mf *MissingFieldError
		bv *BadValueError
	)
	switch {
	case errors.As(err, &mc):
		return CodeMissingCommand
	case errors.As(err, &mf):
		return CodeMissingField
	case errors.As(err, &bv):
		return CodeBadValue
	case errors.Is(err, ErrTryAgain):
		return CodeTryAgain
	default:
		return CodeGeneric
	}
}

// ErrResponse builds the error response for err.
func ErrResponse(err error) Response {
	return Response{E: ErrCode(err), D: err.Error()}
}

// OKResponse builds the success response carrying d.
func OKResponse(d any) Response {
	return Response{E: 0, D: d}
}
