package pgclient

import (
	"encoding/binary"

	"github.com/lib/pq/oid"
	"github.com/panoplyio/pgclient/protocol"
)

// descEntry is a row description queued in its FIFO registry, remembering
// which stream's name-consumer it already served so that error handling can
// tell whether the entry still belongs to a failed query.
type descEntry struct {
	desc  *protocol.RowDescriptionData
	owner *ResultStream
}

// pendingExec is the context of a parameterized query between sending
// Parse/Describe and receiving the backend's ParameterDescription, at which
// point it is consumed exactly once to drive bind and execution.
type pendingExec struct {
	statement     string
	sql           string
	args          []interface{}
	params        [][]byte
	keepStatement bool
	cached        bool
	stream        *ResultStream
}

// dispatch consumes the reassembled byte window, identifying complete frames
// and routing each one. It returns how many bytes it consumed; the caller
// owns the reassembly bookkeeping. When a frame is still incomplete,
// c.expect records how many bytes must be buffered before the next attempt,
// so that the read loop does not retry decoding on every arriving sliver.
//
// Any returned error is a fatal protocol violation or transport fault: the
// current chunk is abandoned and the connection is no longer reliable.
func (c *Conn) dispatch(data []byte) (int, error) {
	consumed := 0

	for len(data)-consumed >= c.expect {
		// Fast path: DataRow and NoData frames dominate volume in real
		// workloads, so consecutive ones bypass the general per-type
		// branching below.
		for len(data)-consumed >= protocol.HeaderSize {
			tag := data[consumed]
			if tag != protocol.DataRow && tag != protocol.NoData {
				break
			}

			if tag == protocol.NoData {
				// a NoData frame is header-only: the statement produces no
				// rows and no row description will follow
				if err := c.handleNoData(); err != nil {
					return consumed, err
				}
				c.expect = protocol.HeaderSize
				consumed += protocol.HeaderSize
				continue
			}

			if c.activeStream == nil {
				stream, ok := c.popRowConsumer()
				if !ok {
					return consumed, protocolErrf("row data arrived with no pending query")
				}
				entry, ok := c.popRowDesc()
				if !ok {
					return consumed, protocolErrf("row data arrived with no row description")
				}
				if stream.names == nil {
					stream.setNames(entry.desc.Names())
				}
				c.activeStream = stream
				c.activeDesc = entry.desc
			}

			total := int(binary.BigEndian.Uint32(data[consumed+1:])) + 1
			if len(data)-consumed < total {
				// wait for the rest of this frame before trying again
				c.expect = total
				return consumed, nil
			}

			if err := c.deliverRow(data[consumed+protocol.HeaderSize : consumed+total]); err != nil {
				return consumed, err
			}
			c.expect = protocol.HeaderSize
			consumed += total
		}

		if len(data)-consumed < protocol.HeaderSize {
			// a header is split across reads
			c.expect = protocol.HeaderSize
			return consumed, nil
		}

		// general path: low-frequency control frames
		tag := data[consumed]
		total := int(binary.BigEndian.Uint32(data[consumed+1:])) + 1
		if len(data)-consumed < total {
			c.expect = total
			return consumed, nil
		}

		if err := c.handleControlFrame(tag, data[consumed+protocol.HeaderSize:consumed+total]); err != nil {
			return consumed, err
		}
		c.expect = protocol.HeaderSize
		consumed += total
	}

	return consumed, nil
}

// deliverRow decodes one DataRow payload against the active row description
// and hands the row to the active consumer.
func (c *Conn) deliverRow(payload []byte) error {
	values, err := protocol.ParseDataRow(payload)
	if err != nil {
		return err
	}
	if len(values) != len(c.activeDesc.Fields) {
		return protocolErrf("row carries %d values, description has %d fields",
			len(values), len(c.activeDesc.Fields))
	}

	row := make([]interface{}, len(values))
	for i := range values {
		v, err := c.decoder.decode(&c.activeDesc.Fields[i], values[i])
		if err != nil {
			return err
		}
		row[i] = v
	}

	c.activeStream.push(row)
	return nil
}

// handleNoData completes the oldest pending query with zero rows: the
// statement produces no result set, so its consumer gets the end-of-stream
// sentinel right away.
//
// The consumer stays queued until its CommandComplete arrives. Terminal
// frames come back in query order, so leaving it at the head keeps every
// later completion matched to its own query even when the following query's
// row description has already been received.
func (c *Conn) handleNoData() error {
	c.mu.Lock()
	stream, ok := c.rowConsumers.peek()
	if !ok {
		c.mu.Unlock()
		return protocolErrf("no-data arrived with no pending query")
	}
	if !stream.nameDone {
		c.nameConsumers.pop()
		stream.nameDone = true
	}
	c.mu.Unlock()

	stream.complete()
	return nil
}

// handleControlFrame routes one complete non-row frame.
func (c *Conn) handleControlFrame(tag byte, payload []byte) error {
	switch tag {
	case protocol.AuthenticationRequest:
		return c.handleAuthentication(payload)

	case protocol.BackendKeyData:
		pid, secret, err := protocol.ParseBackendKeyData(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.pid, c.secret = pid, secret
		c.mu.Unlock()

	case protocol.BindComplete, protocol.ParseComplete, protocol.CloseComplete:
		// acknowledgements carry no information the client needs

	case protocol.CommandComplete:
		if _, err := protocol.ParseCommandComplete(payload); err != nil {
			return err
		}
		c.finishActive()

	case protocol.EmptyQueryResponse:
		c.finishActive()

	case protocol.ErrorResponse:
		return c.handleErrorResponse(payload)

	case protocol.NoticeResponse:
		fields, err := protocol.ParseFields(payload)
		if err != nil {
			return err
		}
		c.events.fireNotice(serverErrorFromFields(fields))

	case protocol.ParameterDescription:
		return c.handleParameterDescription(payload)

	case protocol.ParameterStatus:
		name, value, err := protocol.ParseParameterStatus(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.params[name] = value
		c.mu.Unlock()
		c.events.fireParameter(name, value)

	case protocol.ReadyForQuery:
		status, err := protocol.ParseReadyForQuery(payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.txStatus = status
		c.ready = true
		c.started = true
		c.mu.Unlock()
		c.signalReady()
		return c.flush()

	case protocol.RowDescription:
		return c.handleRowDescription(payload)

	case protocol.NotificationResponse:
		pid, channel, message, err := protocol.ParseNotification(payload)
		if err != nil {
			return err
		}
		c.events.fireNotification(pid, channel, message)

	case protocol.PortalSuspended:
		// not reachable: every Execute is sent with no row limit

	default:
		// unrecognized frames are skipped for forward compatibility
		Logf("pgclient: ignoring unrecognized message type %q", tag)
	}

	return nil
}

// finishActive handles a terminal CommandComplete or EmptyQueryResponse:
// it delivers the end-of-stream sentinel to the active delivery context and
// clears it, if one is active.
//
// With no active context the frame still terminates exactly one query, the
// oldest one still queued: either a statement whose description arrived but
// whose execution produced zero rows, or one already completed at its
// no-data frame and left queued until now. Its consumer is popped along
// with its unclaimed description entry, if any.
func (c *Conn) finishActive() {
	if c.activeStream != nil {
		stream := c.activeStream
		c.activeStream = nil
		c.activeDesc = nil
		stream.complete()
		return
	}

	c.mu.Lock()
	stream, ok := c.rowConsumers.pop()
	if !ok {
		c.mu.Unlock()
		return
	}
	if stream.descPending {
		c.rowDescs.pop()
		stream.descPending = false
	}
	c.mu.Unlock()
	stream.complete()
}

func (c *Conn) handleAuthentication(payload []byte) error {
	code, salt, err := protocol.ParseAuthentication(payload)
	if err != nil {
		return err
	}

	switch code {
	case protocol.AuthOK:
		c.events.fireConnect()
		return nil
	case protocol.AuthCleartextPassword:
		return c.sendBatch(protocol.PasswordResponse(c.cfg.Password))
	case protocol.AuthMD5Password:
		return c.sendBatch(protocol.PasswordResponse(md5Password(c.cfg.User, c.cfg.Password, salt)))
	default:
		return protocolErrf("unsupported authentication scheme %d", code)
	}
}

// handleRowDescription queues the decoded description for pairing with the
// query's first row, and delivers the column names to the waiting
// name-consumer right away.
func (c *Conn) handleRowDescription(payload []byte) error {
	rd, err := protocol.ParseRowDescription(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	owner, ok := c.nameConsumers.pop()
	if ok {
		owner.nameDone = true
		owner.descPending = true
	}
	c.rowDescs.push(descEntry{desc: rd, owner: owner})
	c.mu.Unlock()

	if ok {
		owner.setNames(rd.Names())
	}
	return nil
}

// handleParameterDescription consumes the pending request context of the
// oldest parameterized query and drives the rest of its extended-query
// cycle: bind the arguments, execute, dispose of the portal (and statement,
// unless it is kept for reuse) and synchronize.
func (c *Conn) handleParameterDescription(payload []byte) error {
	c.mu.Lock()
	pe, ok := c.pendingExecs.pop()
	c.mu.Unlock()
	if !ok {
		return protocolErrf("parameter description arrived with no pending statement")
	}

	oids, err := protocol.ParseParameterDescription(payload)
	if err != nil {
		return err
	}

	// arguments travel in text format except bytea, which the backend
	// accepts raw when flagged binary
	formats := make([]int16, len(pe.params))
	for i := range pe.params {
		if i < len(oids) && oid.Oid(oids[i]) == oid.T_bytea {
			if b, isRaw := pe.args[i].([]byte); isRaw {
				pe.params[i] = b
				formats[i] = formatBinary
			}
		}
	}

	msgs := []protocol.Message{
		protocol.BindMessage("", pe.statement, formats, pe.params, nil),
		protocol.ExecuteMessage("", 0),
		protocol.CloseMessage(protocol.ObjectPortal, ""),
	}
	if !pe.keepStatement {
		msgs = append(msgs, protocol.CloseMessage(protocol.ObjectStatement, pe.statement))
	}
	msgs = append(msgs, protocol.SyncMessage())
	return c.sendBatch(msgs...)
}

// handleErrorResponse parses a server-reported error, emits the error event
// and fails the query the error belongs to. The connection itself remains
// usable: the next frame is processed normally.
func (c *Conn) handleErrorResponse(payload []byte) error {
	fields, err := protocol.ParseFields(payload)
	if err != nil {
		return err
	}
	serr := serverErrorFromFields(fields)

	if c.activeStream != nil {
		stream := c.activeStream
		c.activeStream = nil
		c.activeDesc = nil
		stream.fail(serr)
		c.events.fireError(serr)
		return nil
	}

	var failed *ResultStream
	needSync := false

	c.mu.Lock()
	if stream, ok := c.rowConsumers.pop(); ok {
		failed = stream
		if !stream.nameDone {
			c.nameConsumers.pop()
			stream.nameDone = true
		}
		if stream.descPending {
			c.rowDescs.pop()
			stream.descPending = false
		}
		if pe, ok := c.pendingExecs.peek(); ok && pe.stream == stream {
			c.pendingExecs.pop()
			if pe.cached {
				c.cache.remove(pe.sql)
			}
			// the failed cycle never reached its Sync; send one so the
			// backend resumes processing
			needSync = true
		}
	} else if !c.started {
		c.startupErr = serr
	}
	c.mu.Unlock()

	if failed != nil {
		failed.fail(serr)
	}
	if !c.startedNow() {
		c.signalReady()
	}
	c.events.fireError(serr)

	if needSync {
		return c.sendBatch(protocol.SyncMessage())
	}
	return nil
}

func (c *Conn) startedNow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Conn) popRowConsumer() (*ResultStream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rowConsumers.pop()
}

func (c *Conn) popRowDesc() (descEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.rowDescs.pop()
	if ok && entry.owner != nil {
		entry.owner.descPending = false
	}
	return entry, ok
}
