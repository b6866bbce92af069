package websocket

import (
	"fmt"
	"time"

	"github.com/coder/wsengine/internal/bpool"
	"github.com/coder/wsengine/internal/errd"
)

// Write sends p as a single unfragmented message of the given type.
// It returns ErrClosed once the connection is closing. ErrPayloadTooLarge
// is reserved for payloads a frame header cannot describe, which no Go
// slice can reach.
func (c *Conn) Write(typ MessageType, p []byte) error {
	op, ok := typ.opcode()
	if !ok {
		return fmt.Errorf("websocket: unknown message type %v", typ)
	}
	if c.State() != StateOpen {
		return ErrClosed
	}
	return c.writeFrame(op, p)
}

// Ping sends a ping frame with payload p. The pong is not awaited.
func (c *Conn) Ping(p []byte) error {
	if len(p) > maxControlPayload {
		return fmt.Errorf("websocket: ping payload of %v bytes exceeds %v", len(p), maxControlPayload)
	}
	if c.State() != StateOpen {
		return ErrClosed
	}
	return c.writeFrame(opPing, p)
}

// writeFrame encodes and writes one frame. Header and payload go out in a
// single Write with the write lock held so frames from concurrent
// writers never interleave. Nothing is written after a close frame.
func (c *Conn) writeFrame(op opcode, p []byte) (err error) {
	defer errd.Wrap(&err, "failed to write %v frame", op)

	b := bpool.Get(maxHeaderSize + len(p))
	defer bpool.Put(b)

	*b, err = appendFrame(*b, op, p)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.wroteClose {
		return ErrClosed
	}
	if op == opClose {
		c.wroteClose = true
	}

	if c.s.opts.WriteTimeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.s.opts.WriteTimeout))
	}
	_, err = c.nc.Write(*b)
	if err != nil {
		// Unblock the connection goroutine so it tears the stream down.
		c.nc.Close()
		return err
	}
	c.s.metrics.frameWritten(op, len(p))
	return nil
}
