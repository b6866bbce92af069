package websocket

import (
	"errors"
	"fmt"
)

// ErrHandshake is matched by every error returned when the opening
// handshake is rejected. See ErrMalformedRequest, ErrNotWebSocketUpgrade
// and ErrMissingHandshakeKey for the specific causes.
var ErrHandshake = errors.New("websocket: handshake failed")

type handshakeError struct {
	msg string
}

func (e *handshakeError) Error() string { return "websocket: " + e.msg }

func (e *handshakeError) Is(target error) bool { return target == ErrHandshake }

// Handshake errors.
var (
	// ErrMalformedRequest means the request line is not a GET or a
	// header line could not be parsed.
	ErrMalformedRequest error = &handshakeError{"malformed handshake request"}
	// ErrNotWebSocketUpgrade means the Upgrade header is missing or is not websocket.
	ErrNotWebSocketUpgrade error = &handshakeError{"not a websocket upgrade request"}
	// ErrMissingHandshakeKey means Sec-WebSocket-Key is missing.
	ErrMissingHandshakeKey error = &handshakeError{"missing Sec-WebSocket-Key"}
)

// ErrProtocolViolation is matched by every *ProtocolError.
var ErrProtocolViolation = errors.New("websocket: protocol violation")

// Causes of a *ProtocolError.
var (
	ErrUnmaskedFrame          = errors.New("client frame is not masked")
	ErrInvalidOpcode          = errors.New("invalid opcode")
	ErrUnexpectedContinuation = errors.New("continuation frame without a fragmented message in progress")
	ErrUnexpectedDataFrame    = errors.New("data frame while a fragmented message is in progress")
	ErrControlFrame           = errors.New("control frame is fragmented or longer than 125 bytes")
	ErrInvalidLength          = errors.New("payload length has the most significant bit set")
	ErrInvalidClosePayload    = errors.New("invalid close frame payload")
	ErrMessageTooBig          = errors.New("message exceeds the read limit")
)

// ProtocolError is a violation of RFC 6455 by the peer. It is always
// fatal to the connection; the connection is closed with Code.
type ProtocolError struct {
	Code StatusCode
	Err  error
}

func newProtocolError(code StatusCode, err error) *ProtocolError {
	return &ProtocolError{Code: code, Err: err}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("websocket: protocol violation (%v): %v", e.Code, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocolViolation }

var (
	// ErrPayloadTooLarge is returned when a payload length cannot be
	// represented in a frame header. The connection stays usable.
	ErrPayloadTooLarge = errors.New("websocket: payload too large")

	// ErrNotFound is returned by Server methods addressing a connection
	// id that is not registered.
	ErrNotFound = errors.New("websocket: connection not found")

	// ErrClosed is returned when writing to a connection that is
	// closing or closed.
	ErrClosed = errors.New("websocket: connection closed")

	// ErrServerClosed is returned by Serve after Shutdown.
	ErrServerClosed = errors.New("websocket: server closed")
)
