// Package pgclient implements a client for the PostgreSQL frontend/backend
// wire protocol, version 3.
//
// The client reassembles the backend's byte stream into protocol messages,
// dispatches them on a single reader goroutine, and delivers decoded rows
// through per-query result streams that support both awaiting the complete
// result and iterating rows as they arrive. Multiple queries may be issued
// before earlier responses arrive; the protocol guarantees responses come
// back in request order, and the client matches them positionally.
//
// see: https://www.postgresql.org/docs/current/protocol.html
package pgclient

import "fmt"

// Logf is used to report conditions that are not errors but worth noticing,
// like unrecognized message types. Replace it to redirect the output.
var Logf = func(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}
