package websocket

import "fmt"

// opcode represents a WebSocket opcode.
// See https://tools.ietf.org/html/rfc6455#section-11.8
type opcode byte

// opcode constants.
const (
	opContinuation opcode = 0x0
	opText         opcode = 0x1
	opBinary       opcode = 0x2
	// 0x3 - 0x7 are reserved for further non-control frames.
	opClose opcode = 0x8
	opPing  opcode = 0x9
	opPong  opcode = 0xA
	// 0xB - 0xF are reserved for further control frames.
)

func (o opcode) String() string {
	switch o {
	case opContinuation:
		return "continuation"
	case opText:
		return "text"
	case opBinary:
		return "binary"
	case opClose:
		return "close"
	case opPing:
		return "ping"
	case opPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(%#x)", byte(o))
	}
}

// valid reports whether o is one of the six opcodes defined by RFC 6455.
func (o opcode) valid() bool {
	switch o {
	case opContinuation, opText, opBinary, opClose, opPing, opPong:
		return true
	default:
		return false
	}
}

func (o opcode) controlOp() bool {
	switch o {
	case opClose, opPing, opPong:
		return true
	default:
		return false
	}
}

// MessageType represents the type of a WebSocket message.
// See https://tools.ietf.org/html/rfc6455#section-5.6
type MessageType int

// MessageType constants.
const (
	// MessageText is for UTF-8 encoded text messages like JSON.
	MessageText MessageType = iota + 1
	// MessageBinary is for binary messages like Protobufs.
	MessageBinary
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

func (t MessageType) opcode() (opcode, bool) {
	switch t {
	case MessageText:
		return opText, true
	case MessageBinary:
		return opBinary, true
	default:
		return 0, false
	}
}
