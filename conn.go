package pgclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/panoplyio/pgclient/protocol"
)

const (
	// initial capacity of the reassembly window; it grows to fit the largest
	// in-flight frame and is never shrunk back
	reassemblyBufSize = 8192

	// size of the scratch slice handed to each transport read
	readChunkSize = 4096
)

// Conn is a single backend session. One goroutine, started by Connect, owns
// the transport read side: it reassembles frames and dispatches them.
// Queries may be issued from any goroutine and pipelined freely; responses
// are matched to their queries positionally.
type Conn struct {
	cfg    Config
	addr   string
	events events

	sock    net.Conn
	writeMu sync.Mutex
	outbuf  []byte

	// mu guards the registries and the session state below. The registries
	// are pushed by issuing goroutines and popped by the reader goroutine.
	mu            sync.Mutex
	rowConsumers  fifo[*ResultStream]
	nameConsumers fifo[*ResultStream]
	rowDescs      fifo[descEntry]
	pendingExecs  fifo[*pendingExec]
	cache         *stmtCache
	params        map[string]string
	pid           uint32
	secret        uint32
	txStatus      byte
	ready         bool
	started       bool
	fatalErr      error
	startupErr    error

	closing   atomic.Bool
	done      chan struct{}
	readyCh   chan struct{}
	readyOnce sync.Once

	// reader goroutine state: the expected byte count before the next
	// dispatch attempt and the delivery context of the result set currently
	// streaming in
	decoder      *valueDecoder
	expect       int
	activeStream *ResultStream
	activeDesc   *protocol.RowDescriptionData
}

// New builds an unconnected session from cfg with defaults applied.
func New(cfg Config) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		cfg:     cfg,
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		cache:   newStmtCache(cfg.StatementCacheSize),
		params:  make(map[string]string),
		decoder: newValueDecoder(cfg.SilenceUnknownTypes),
		expect:  protocol.HeaderSize,
		done:    make(chan struct{}),
		readyCh: make(chan struct{}),
	}
}

// Connect dials the backend and runs the startup exchange, blocking until
// the session is ready for queries or fails.
func Connect(ctx context.Context, cfg Config) (*Conn, error) {
	c := New(cfg)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Connect establishes the session over a fresh TCP connection.
func (c *Conn) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	sock, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("pgclient: dial %s: %w", c.addr, err)
	}
	return c.Start(ctx, sock)
}

// Start runs the session over an already established transport: it sends the
// startup message, spawns the reader goroutine and blocks until the backend
// reports ready for query, authentication fails, or ctx expires.
func (c *Conn) Start(ctx context.Context, sock net.Conn) error {
	c.sock = sock
	if err := c.sendBatch(protocol.StartupMessage(c.cfg.startupArgs())); err != nil {
		sock.Close()
		return err
	}

	go c.readLoop()

	select {
	case <-c.readyCh:
		c.mu.Lock()
		serr, ferr := c.startupErr, c.fatalErr
		c.mu.Unlock()
		if serr != nil {
			sock.Close()
			return serr
		}
		if ferr != nil {
			return ferr
		}
		return nil
	case <-ctx.Done():
		sock.Close()
		return ctx.Err()
	}
}

// readLoop owns the transport read side for the lifetime of the session:
// every chunk is appended to the reassembly window and as many complete
// frames as it holds are dispatched.
func (c *Conn) readLoop() {
	defer close(c.done)

	buf := protocol.NewBuffer(reassemblyBufSize)
	chunk := make([]byte, readChunkSize)

	for {
		n, err := c.sock.Read(chunk)
		if n > 0 {
			buf.Append(chunk[:n])
			consumed, derr := c.dispatch(buf.Unread())
			if derr != nil {
				if c.activeStream != nil {
					c.activeStream.fail(derr)
					c.activeStream, c.activeDesc = nil, nil
				}
				c.fatal(derr)
				return
			}
			buf.Consume(consumed)
		}
		if err != nil {
			if c.closing.Load() {
				// orderly shutdown: the transport reset is expected
				c.fatal(ErrConnClosed)
			} else {
				c.fatal(fmt.Errorf("pgclient: connection terminated: %w", err))
			}
			return
		}
	}
}

// Query issues sql through the extended-query protocol and returns the live
// result stream immediately. Arguments substitute $1..$n placeholders; rows
// arrive on the stream as the backend produces them.
//
// Queries may be issued back to back without awaiting earlier results.
func (c *Conn) Query(sql string, args ...interface{}) (*ResultStream, error) {
	params := make([][]byte, len(args))
	for i, arg := range args {
		p, err := encodeParam(arg)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}

	c.mu.Lock()
	if c.fatalErr != nil {
		err := c.fatalErr
		c.mu.Unlock()
		return nil, err
	}
	if !c.started {
		c.mu.Unlock()
		return nil, errors.New("pgclient: connection not established")
	}

	stream := newResultStream()
	pe := &pendingExec{sql: sql, args: args, params: params, stream: stream}

	var msgs []protocol.Message
	switch {
	case !c.cache.enabled():
		pe.statement = oneShotStatementName()
		msgs = append(msgs,
			protocol.ParseMessage(pe.statement, sql, nil),
			protocol.DescribeMessage(protocol.ObjectStatement, pe.statement))
	default:
		pe.keepStatement = true
		pe.cached = true
		if name, ok := c.cache.lookup(sql); ok {
			// already prepared on the backend: skip the parse
			pe.statement = name
			msgs = append(msgs,
				protocol.DescribeMessage(protocol.ObjectStatement, name))
		} else {
			name, evicted := c.cache.put(sql)
			pe.statement = name
			for _, ev := range evicted {
				msgs = append(msgs, protocol.CloseMessage(protocol.ObjectStatement, ev))
			}
			msgs = append(msgs,
				protocol.ParseMessage(name, sql, nil),
				protocol.DescribeMessage(protocol.ObjectStatement, name))
		}
	}
	msgs = append(msgs, protocol.FlushMessage())

	c.pendingExecs.push(pe)
	c.nameConsumers.push(stream)
	c.rowConsumers.push(stream)
	// queue the outbound bytes before releasing the registry lock, so that
	// wire order and registry order cannot diverge between two issuers
	c.enqueue(msgs...)
	c.mu.Unlock()

	if err := c.flush(); err != nil {
		c.fatal(err)
		return nil, err
	}
	return stream, nil
}

// Close terminates the session: it announces the shutdown to the backend,
// waits for the reader to drain (bounded by ctx) and releases the transport.
// Closing an already closed connection is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	if c.closing.Swap(true) {
		return nil
	}

	if c.sock == nil {
		// built but never started: nothing on the wire to shut down
		c.mu.Lock()
		if c.fatalErr == nil {
			c.fatalErr = ErrConnClosed
		}
		c.mu.Unlock()
		return nil
	}

	// best effort: the transport may already be gone
	_ = c.sendBatch(protocol.TerminateMessage())

	select {
	case <-c.done:
	case <-ctx.Done():
	}

	c.sock.Close()
	c.events.fireEnd()
	c.mu.Lock()
	if c.fatalErr == nil {
		c.fatalErr = ErrConnClosed
	}
	c.mu.Unlock()
	return nil
}

// CancelRequest asks the backend to abort whatever this session is currently
// executing. Per protocol it travels over a separate short-lived connection
// carrying the session's key data.
func (c *Conn) CancelRequest(ctx context.Context) error {
	c.mu.Lock()
	pid, secret := c.pid, c.secret
	c.mu.Unlock()

	var d net.Dialer
	sock, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("pgclient: dial %s: %w", c.addr, err)
	}
	defer sock.Close()

	if _, err := sock.Write(protocol.CancelRequest(pid, secret)); err != nil {
		return fmt.Errorf("pgclient: cancel request: %w", err)
	}
	return nil
}

// fatal tears the session down: the first error wins, every outstanding
// stream observes it, and the end event fires once.
func (c *Conn) fatal(err error) {
	c.mu.Lock()
	if c.fatalErr == nil {
		c.fatalErr = err
	} else {
		err = c.fatalErr
	}
	streams := c.rowConsumers.drain()
	c.nameConsumers.drain()
	c.rowDescs.drain()
	pending := c.pendingExecs.drain()
	c.mu.Unlock()

	for _, s := range streams {
		s.fail(err)
	}
	for _, pe := range pending {
		pe.stream.fail(err)
	}

	c.signalReady()
	c.sock.Close()
	c.events.fireEnd()
}

func (c *Conn) signalReady() {
	c.readyOnce.Do(func() {
		close(c.readyCh)
	})
}

// enqueue appends encoded messages to the outbound queue without writing.
func (c *Conn) enqueue(msgs ...protocol.Message) {
	c.writeMu.Lock()
	for _, m := range msgs {
		c.outbuf = append(c.outbuf, m...)
	}
	c.writeMu.Unlock()
}

// flush drains the outbound queue to the transport in a single write.
func (c *Conn) flush() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if len(c.outbuf) == 0 {
		return nil
	}
	_, err := c.sock.Write(c.outbuf)
	c.outbuf = c.outbuf[:0]
	if err != nil {
		return fmt.Errorf("pgclient: write: %w", err)
	}
	return nil
}

func (c *Conn) sendBatch(msgs ...protocol.Message) error {
	c.enqueue(msgs...)
	return c.flush()
}

// ProcessID returns the backend process id announced during startup.
func (c *Conn) ProcessID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid
}

// SecretKey returns the cancellation key announced during startup.
func (c *Conn) SecretKey() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secret
}

// TransactionStatus returns the status byte of the most recent ready-for-
// query message: 'I' idle, 'T' in a transaction, 'E' in a failed one.
func (c *Conn) TransactionStatus() byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txStatus
}

// Parameter returns the backend's most recently reported value for a runtime
// parameter such as server_version, or "" if it was never reported.
func (c *Conn) Parameter(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params[name]
}
