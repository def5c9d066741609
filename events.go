package pgclient

import "sync"

// events is the typed observer set of a connection. Each event holds at most
// one active handler: registering a new handler replaces the previous one.
// connect and end fire at most once per connection; parameter, error, notice
// and notification repeat as the backend reports them.
//
// Handlers run on the connection's reader goroutine and must not block, or
// they will stall frame dispatch.
type events struct {
	mu           sync.Mutex
	connect      func()
	end          func()
	parameter    func(name, value string)
	serverError  func(*ServerError)
	notice       func(*ServerError)
	notification func(pid uint32, channel, payload string)

	connectFired bool
	endFired     bool
}

func (e *events) fireConnect() {
	e.mu.Lock()
	fn := e.connect
	fired := e.connectFired
	e.connectFired = true
	e.mu.Unlock()
	if fn != nil && !fired {
		fn()
	}
}

func (e *events) fireEnd() {
	e.mu.Lock()
	fn := e.end
	fired := e.endFired
	e.endFired = true
	e.mu.Unlock()
	if fn != nil && !fired {
		fn()
	}
}

func (e *events) fireParameter(name, value string) {
	e.mu.Lock()
	fn := e.parameter
	e.mu.Unlock()
	if fn != nil {
		fn(name, value)
	}
}

func (e *events) fireError(err *ServerError) {
	e.mu.Lock()
	fn := e.serverError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (e *events) fireNotice(notice *ServerError) {
	e.mu.Lock()
	fn := e.notice
	e.mu.Unlock()
	if fn != nil {
		fn(notice)
	}
}

func (e *events) fireNotification(pid uint32, channel, payload string) {
	e.mu.Lock()
	fn := e.notification
	e.mu.Unlock()
	if fn != nil {
		fn(pid, channel, payload)
	}
}

// OnConnect registers the handler fired once the session has authenticated.
func (c *Conn) OnConnect(fn func()) {
	c.events.mu.Lock()
	c.events.connect = fn
	c.events.mu.Unlock()
}

// OnEnd registers the handler fired once when the session terminates, both
// on orderly shutdown and on transport failure.
func (c *Conn) OnEnd(fn func()) {
	c.events.mu.Lock()
	c.events.end = fn
	c.events.mu.Unlock()
}

// OnParameter registers the handler fired for every ParameterStatus message.
func (c *Conn) OnParameter(fn func(name, value string)) {
	c.events.mu.Lock()
	c.events.parameter = fn
	c.events.mu.Unlock()
}

// OnError registers the handler fired for every ErrorResponse. Receiving a
// server error does not terminate the connection.
func (c *Conn) OnError(fn func(*ServerError)) {
	c.events.mu.Lock()
	c.events.serverError = fn
	c.events.mu.Unlock()
}

// OnNotice registers the handler fired for every NoticeResponse.
func (c *Conn) OnNotice(fn func(*ServerError)) {
	c.events.mu.Lock()
	c.events.notice = fn
	c.events.mu.Unlock()
}

// OnNotification registers the handler fired for every asynchronous
// NotificationResponse delivered by LISTEN/NOTIFY.
func (c *Conn) OnNotification(fn func(pid uint32, channel, payload string)) {
	c.events.mu.Lock()
	c.events.notification = fn
	c.events.mu.Unlock()
}
