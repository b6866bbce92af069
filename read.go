package websocket

import (
	"time"
)

// readLoop reads frames until the connection ends and returns the cause.
// A CloseError cause means the close handshake completed.
func (c *Conn) readLoop() error {
	for {
		f, err := c.readFrame()
		if err != nil {
			return err
		}

		err = c.handleFrame(f)
		if err != nil {
			return err
		}
	}
}

// readFrame reads the next frame and validates it against the server role
// before its payload is read.
func (c *Conn) readFrame() (frame, error) {
	c.setReadDeadline()

	h, err := readFrameHeader(c.br, c.readBuf[:])
	if err != nil {
		return frame{}, err
	}

	if !h.opcode.valid() {
		return frame{}, newProtocolError(StatusProtocolError, ErrInvalidOpcode)
	}

	if !h.masked {
		return frame{}, newProtocolError(StatusProtocolError, ErrUnmaskedFrame)
	}

	if h.opcode.controlOp() {
		if !h.fin || h.payloadLength > maxControlPayload {
			return frame{}, newProtocolError(StatusProtocolError, ErrControlFrame)
		}
	} else if h.payloadLength > c.s.opts.MaxMessageSize-int64(len(c.fragBuf)) {
		return frame{}, newProtocolError(StatusMessageTooBig, ErrMessageTooBig)
	}

	p, err := readFramePayload(c.br, h)
	if err != nil {
		return frame{}, err
	}
	c.s.metrics.frameRead(h.opcode, len(p))

	return frame{header: h, payload: p}, nil
}

func (c *Conn) setReadDeadline() {
	c.deadlineMu.Lock()
	defer c.deadlineMu.Unlock()

	var d time.Time
	if c.s.opts.ReadTimeout > 0 {
		d = time.Now().Add(c.s.opts.ReadTimeout)
	}
	if !c.closeDeadline.IsZero() && (d.IsZero() || c.closeDeadline.Before(d)) {
		d = c.closeDeadline
	}
	c.nc.SetReadDeadline(d)
}

// handleFrame applies f to the fragmentation state and dispatches
// complete messages. Control frames are handled as they arrive, even in
// the middle of a fragmented message.
func (c *Conn) handleFrame(f frame) error {
	if f.opcode.controlOp() {
		return c.dispatch(f.opcode, f.payload)
	}

	// Data received after a close frame was sent is discarded.
	discard := c.State() == StateClosing

	switch f.opcode {
	case opContinuation:
		if !c.fragActive {
			return newProtocolError(StatusProtocolError, ErrUnexpectedContinuation)
		}
		c.fragBuf = append(c.fragBuf, f.payload...)
		if !f.fin {
			return nil
		}

		op, p := c.fragOp, c.fragBuf
		c.fragActive = false
		c.fragOp = 0
		c.fragBuf = nil
		if discard {
			return nil
		}
		return c.dispatch(op, p)
	case opText, opBinary:
		if c.fragActive {
			return newProtocolError(StatusProtocolError, ErrUnexpectedDataFrame)
		}
		if !f.fin {
			c.fragActive = true
			c.fragOp = f.opcode
			c.fragBuf = f.payload
			return nil
		}
		if discard {
			return nil
		}
		return c.dispatch(f.opcode, f.payload)
	default:
		return newProtocolError(StatusProtocolError, ErrInvalidOpcode)
	}
}
