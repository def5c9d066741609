package protocol

import (
	"github.com/jackc/pgio"
)

// protocol version 3.0, encoded as two consecutive 2-byte integers
const protocolVersion = 196608

// special version numbers used by the startup-phase request messages
const (
	cancelRequestCode = 80877102
	sslRequestCode    = 80877103
)

// typed begins a typed message of the given tag, leaving room for the
// self-inclusive Int32 length that finish fills in.
func typed(tag byte) Message {
	return Message{tag, 0, 0, 0, 0}
}

func finish(m Message) Message {
	pgio.SetInt32(m[1:], int32(len(m)-1))
	return m
}

func appendCString(m Message, s string) Message {
	m = append(m, s...)
	return append(m, 0)
}

// StartupMessage builds the untyped message that opens every session: the
// protocol version followed by NULL-terminated key/value argument pairs
// (user, database, etc.) and a final terminator.
func StartupMessage(args map[string]string) Message {
	msg := make(Message, 4)
	msg = pgio.AppendUint32(msg, protocolVersion)

	// user goes first; the remaining arguments follow in map order
	if user, ok := args["user"]; ok {
		msg = appendCString(msg, "user")
		msg = appendCString(msg, user)
	}
	for k, v := range args {
		if k == "user" {
			continue
		}
		msg = appendCString(msg, k)
		msg = appendCString(msg, v)
	}
	msg = append(msg, 0)

	pgio.SetInt32(msg, int32(len(msg)))
	return msg
}

// SSLRequest builds the untyped message asking the backend to switch the
// connection over to TLS before startup proceeds.
func SSLRequest() Message {
	msg := make(Message, 0, 8)
	msg = pgio.AppendInt32(msg, 8)
	return pgio.AppendUint32(msg, sslRequestCode)
}

// CancelRequest builds the untyped message sent on a dedicated connection to
// cancel the query currently running on the session identified by the
// process ID and secret key previously delivered in BackendKeyData.
func CancelRequest(pid, secret uint32) Message {
	msg := make(Message, 0, 16)
	msg = pgio.AppendInt32(msg, 16)
	msg = pgio.AppendUint32(msg, cancelRequestCode)
	msg = pgio.AppendUint32(msg, pid)
	return pgio.AppendUint32(msg, secret)
}

// PasswordResponse builds the 'p' message answering an authentication
// request. The password may be cleartext or an md5 digest, depending on what
// the backend asked for.
func PasswordResponse(password string) Message {
	msg := typed(PasswordMessage)
	msg = appendCString(msg, password)
	return finish(msg)
}

// SimpleQuery builds a 'Q' message carrying a SQL string for the simple
// query flow.
func SimpleQuery(sql string) Message {
	msg := typed(Query)
	msg = appendCString(msg, sql)
	return finish(msg)
}

// ParseMessage builds a 'P' message asking the backend to parse sql into a
// prepared statement under the given name. Parameter type OIDs may be left
// empty to have the backend infer them.
func ParseMessage(name, sql string, paramOIDs []uint32) Message {
	msg := typed(Parse)
	msg = appendCString(msg, name)
	msg = appendCString(msg, sql)
	msg = pgio.AppendUint16(msg, uint16(len(paramOIDs)))
	for _, oid := range paramOIDs {
		msg = pgio.AppendUint32(msg, oid)
	}
	return finish(msg)
}

// BindMessage builds a 'B' message binding parameter values to a prepared
// statement, producing a portal. A nil value encodes SQL NULL. Format codes
// follow the protocol's shorthand: an empty slice means all-text, a single
// code applies to every column.
func BindMessage(portal, statement string, paramFormats []int16, params [][]byte, resultFormats []int16) Message {
	msg := typed(Bind)
	msg = appendCString(msg, portal)
	msg = appendCString(msg, statement)

	msg = pgio.AppendUint16(msg, uint16(len(paramFormats)))
	for _, f := range paramFormats {
		msg = pgio.AppendInt16(msg, f)
	}

	msg = pgio.AppendUint16(msg, uint16(len(params)))
	for _, p := range params {
		if p == nil {
			msg = pgio.AppendInt32(msg, -1)
			continue
		}
		msg = pgio.AppendInt32(msg, int32(len(p)))
		msg = append(msg, p...)
	}

	msg = pgio.AppendUint16(msg, uint16(len(resultFormats)))
	for _, f := range resultFormats {
		msg = pgio.AppendInt16(msg, f)
	}
	return finish(msg)
}

// DescribeMessage builds a 'D' message requesting the description of a
// prepared statement (ObjectStatement) or portal (ObjectPortal). The backend
// answers with ParameterDescription and RowDescription (or NoData).
func DescribeMessage(objectType byte, name string) Message {
	msg := typed(Describe)
	msg = append(msg, objectType)
	msg = appendCString(msg, name)
	return finish(msg)
}

// ExecuteMessage builds an 'E' message running a bound portal. maxRows zero
// means fetch all rows.
func ExecuteMessage(portal string, maxRows uint32) Message {
	msg := typed(Execute)
	msg = appendCString(msg, portal)
	msg = pgio.AppendUint32(msg, maxRows)
	return finish(msg)
}

// CloseMessage builds a 'C' message disposing of a prepared statement or
// portal on the backend.
func CloseMessage(objectType byte, name string) Message {
	msg := typed(Close)
	msg = append(msg, objectType)
	msg = appendCString(msg, name)
	return finish(msg)
}

// SyncMessage builds an 'S' message closing the current extended-query
// cycle; the backend answers with ReadyForQuery.
func SyncMessage() Message {
	return finish(typed(Sync))
}

// FlushMessage builds an 'H' message asking the backend to deliver any
// pending responses without ending the cycle.
func FlushMessage() Message {
	return finish(typed(Flush))
}

// TerminateMessage builds the 'X' message announcing an orderly shutdown.
func TerminateMessage() Message {
	return finish(typed(Terminate))
}
