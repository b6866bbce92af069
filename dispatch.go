package websocket

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// dispatch routes a complete message or a control frame.
func (c *Conn) dispatch(op opcode, p []byte) error {
	switch op {
	case opText:
		typ := MessageText
		if !utf8.Valid(p) {
			c.log.Debug("text message is not valid UTF-8, delivering as binary")
			typ = MessageBinary
		}
		c.deliver(typ, p)
		return nil
	case opBinary:
		c.deliver(MessageBinary, p)
		return nil
	case opPing:
		err := c.writeFrame(opPong, p)
		if errors.Is(err, ErrClosed) {
			// Nothing may follow our close frame.
			return nil
		}
		return err
	case opPong:
		return nil
	case opClose:
		return c.handleClose(p)
	case opContinuation:
		return newProtocolError(StatusProtocolError, ErrUnexpectedContinuation)
	default:
		return newProtocolError(StatusProtocolError, ErrInvalidOpcode)
	}
}

func (c *Conn) deliver(typ MessageType, p []byte) {
	c.s.metrics.messageRead(typ)
	c.handler.OnMessage(c.id, typ, p)
}

// handleClose handles a received close frame. It returns the received
// CloseError which ends the read loop.
func (c *Conn) handleClose(p []byte) error {
	ce, err := parseClosePayload(p)
	if err != nil {
		return newProtocolError(StatusProtocolError, fmt.Errorf("%w: %v", ErrInvalidClosePayload, err))
	}

	if c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) {
		// Echo the status code back to complete the handshake.
		echo, _ := CloseError{Code: ce.Code}.bytes()
		err = c.writeFrame(opClose, echo)
		if err != nil && !errors.Is(err, ErrClosed) {
			c.log.WithError(err).Debug("failed to echo close frame")
		}
	}
	return ce
}
