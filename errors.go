package pgclient

import (
	"errors"
	"fmt"

	"github.com/panoplyio/pgclient/protocol"
)

var (
	// ErrConnClosed is returned when an operation is attempted on a
	// connection that has already terminated.
	ErrConnClosed = errors.New("pgclient: connection closed")

	// ErrStreamCancelled is observed by consumers of a result stream that
	// was cancelled before its end-of-stream arrived.
	ErrStreamCancelled = errors.New("pgclient: result stream cancelled")
)

// ServerError is an error or notice reported by the backend through an
// ErrorResponse or NoticeResponse message. Unless its severity is FATAL or
// PANIC the connection remains usable after receiving one.
// see: https://www.postgresql.org/docs/current/protocol-error-fields.html
type ServerError struct {
	Severity string
	Code     string
	Message  string
	Detail   string
	Hint     string
	Position string
	Where    string
	Schema   string
	Table    string
	Column   string
	File     string
	Line     string
	Routine  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

// serverErrorFromFields converts a decoded field list into a ServerError.
func serverErrorFromFields(f *protocol.Fields) *ServerError {
	return &ServerError{
		Severity: f.Severity,
		Code:     f.Code,
		Message:  f.Message,
		Detail:   f.Detail,
		Hint:     f.Hint,
		Position: f.Position,
		Where:    f.Where,
		Schema:   f.Schema,
		Table:    f.Table,
		Column:   f.Column,
		File:     f.File,
		Line:     f.Line,
		Routine:  f.Routine,
	}
}

// ProtocolError indicates a broken assumption about wire ordering, like row
// data arriving with no registered consumer. It is fatal: the connection
// must be considered unreliable once one has surfaced.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "pgclient: protocol violation: " + e.Reason
}

func protocolErrf(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
