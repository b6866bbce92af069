package websocket

import (
	"bufio"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ConnState is the lifecycle state of a Conn.
type ConnState int32

// The states a Conn moves through, in order. No state is ever revisited.
const (
	StateAwaitingHandshake ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is a server side WebSocket connection.
//
// A Conn is driven by a single goroutine started by the Server that
// performs the handshake, reads frames and invokes the Handler.
// Write and Close may be called from any goroutine.
type Conn struct {
	s       *Server
	nc      net.Conn
	br      *bufio.Reader
	log     *logrus.Entry
	opened  time.Time
	handler Handler

	// id is assigned by the registry before the connection is
	// published, it never changes afterwards.
	id  uint64
	req *HandshakeRequest

	state atomic.Int32

	writeMu    sync.Mutex
	wroteClose bool

	// deadlineMu makes the read deadline computed by the connection
	// goroutine and the one set by Close agree.
	deadlineMu    sync.Mutex
	closeDeadline time.Time

	// Owned by the connection goroutine.
	readBuf    [8]byte
	fragActive bool
	fragOp     opcode
	fragBuf    []byte
}

func newConn(s *Server, nc net.Conn) *Conn {
	c := &Conn{
		s:       s,
		nc:      nc,
		br:      bufio.NewReaderSize(nc, s.opts.ReadBufferSize),
		handler: s.handler,
		log:     s.log.WithField("peer", nc.RemoteAddr().String()),
	}
	c.state.Store(int32(StateAwaitingHandshake))
	return c
}

// ID returns the id assigned when the handshake completed.
// It is zero before that.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the address of the peer.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Request returns the client's handshake request.
// It is nil until the handshake completes.
func (c *Conn) Request() *HandshakeRequest {
	return c.req
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Conn) setState(s ConnState) {
	c.state.Store(int32(s))
}

// serve runs the connection to completion.
func (c *Conn) serve() {
	err := c.handshake()
	if err != nil {
		c.log.WithError(err).Debug("websocket handshake failed")
		c.setState(StateClosed)
		if errors.Is(err, ErrHandshake) {
			c.lingerClose()
		}
		c.nc.Close()
		return
	}

	// Open before it becomes visible to Send and Broadcast.
	c.opened = time.Now()
	c.setState(StateOpen)
	c.s.reg.Insert(c)
	c.log = c.log.WithField("conn", c.id)
	c.s.metrics.connOpened()
	c.log.Info("client connected")

	c.handler.OnConnect(c.id)

	if c.s.isClosing() {
		c.Close(StatusGoingAway, "server shutting down")
	}

	err = c.readLoop()
	c.teardown(err)
}

func (c *Conn) handshake() error {
	if c.s.opts.HandshakeTimeout > 0 {
		c.nc.SetDeadline(time.Now().Add(c.s.opts.HandshakeTimeout))
		defer c.nc.SetDeadline(time.Time{})
	}

	var key string
	req, err := readHandshakeRequest(c.br)
	if err == nil {
		key, err = verifyClientRequest(req)
	}
	c.s.metrics.handshake(err)
	if err != nil {
		if errors.Is(err, ErrHandshake) {
			writeHandshakeError(c.nc, err)
		}
		return err
	}

	c.req = req
	return writeHandshakeResponse(c.nc, acceptKey(key))
}

// Close starts the close handshake with the given status code and reason.
//
// The close frame is written immediately. The connection then waits up
// to Options.CloseTimeout for the peer's close frame before the stream is
// torn down. Data messages received in the meantime are discarded.
//
// Only the first call has any effect.
func (c *Conn) Close(code StatusCode, reason string) error {
	p, err := CloseError{Code: code, Reason: reason}.bytes()
	if err != nil {
		return err
	}

	if !c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		return nil
	}

	c.deadlineMu.Lock()
	c.closeDeadline = time.Now().Add(c.s.opts.CloseTimeout)
	c.nc.SetReadDeadline(c.closeDeadline)
	c.deadlineMu.Unlock()

	return c.writeFrame(opClose, p)
}

// fail closes the connection for a protocol violation. The close frame
// is best effort; the stream is torn down right after.
func (c *Conn) fail(pe *ProtocolError) {
	reason := pe.Err.Error()
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	p, err := CloseError{Code: pe.Code, Reason: reason}.bytes()
	if err != nil {
		return
	}
	c.setState(StateClosing)
	c.writeFrame(opClose, p)
}

// lingerClose half closes the stream and discards input until the peer
// closes it or CloseTimeout passes. Closing with unread input would reset
// the stream and could destroy the last frame or response we wrote.
func (c *Conn) lingerClose() {
	if cw, ok := c.nc.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	c.nc.SetReadDeadline(time.Now().Add(c.s.opts.CloseTimeout))
	io.Copy(io.Discard, c.br)
}

// teardown moves the connection to StateClosed. cause is whatever ended
// the read loop.
func (c *Conn) teardown(cause error) {
	closing := c.State() == StateClosing

	var pe *ProtocolError
	switch {
	case errors.As(cause, &pe):
		c.s.metrics.protocolError(pe.Code)
		c.log.WithError(cause).Info("closing connection for protocol violation")
		c.fail(pe)
		c.lingerClose()
	case CloseStatus(cause) != -1:
		c.log.WithField("code", CloseStatus(cause)).Debug("close handshake complete")
	case closing && errors.Is(cause, os.ErrDeadlineExceeded):
		c.log.Debug("close handshake timed out")
	default:
		c.log.WithError(cause).Debug("connection lost")
	}

	c.setState(StateClosed)
	c.fragActive = false
	c.fragBuf = nil

	c.s.reg.Remove(c.id)
	c.nc.Close()
	c.s.metrics.connClosed(c.opened)
	c.log.Info("client disconnected")

	c.handler.OnDisconnect(c.id)
}
