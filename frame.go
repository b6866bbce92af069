package websocket

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/coder/wsengine/internal/errd"
)

// maxControlPayload is the maximum length of a control frame payload.
// See https://tools.ietf.org/html/rfc6455#section-5.5.
const maxControlPayload = 125

// First byte contains fin, rsv1, rsv2, rsv3 and the opcode.
// Second byte contains the mask flag and the 7 bit payload length.
// Next 8 bytes are the maximum extended payload length.
// Last 4 bytes are the mask key.
// See https://tools.ietf.org/html/rfc6455#section-5.2
const maxHeaderSize = 1 + 1 + 8 + 4

// header represents a WebSocket frame header.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
type header struct {
	fin bool
	// The rsv bits are decoded but never acted upon as no
	// extensions are negotiated.
	rsv1   bool
	rsv2   bool
	rsv3   bool
	opcode opcode

	payloadLength int64

	masked  bool
	maskKey uint32
}

// frame is a decoded frame with its payload unmasked.
type frame struct {
	header
	payload []byte
}

// readFrameHeader reads a header from r.
// readBuf must be at least 8 bytes long and is used to avoid allocations.
// See https://tools.ietf.org/html/rfc6455#section-5.2.
func readFrameHeader(r *bufio.Reader, readBuf []byte) (h header, err error) {
	defer errd.Wrap(&err, "failed to read frame header")

	b, err := r.ReadByte()
	if err != nil {
		return header{}, err
	}

	h.fin = b&(1<<7) != 0
	h.rsv1 = b&(1<<6) != 0
	h.rsv2 = b&(1<<5) != 0
	h.rsv3 = b&(1<<4) != 0

	h.opcode = opcode(b & 0xf)

	b, err = r.ReadByte()
	if err != nil {
		return header{}, err
	}

	h.masked = b&(1<<7) != 0

	payloadLength := b &^ (1 << 7)
	switch {
	case payloadLength < 126:
		h.payloadLength = int64(payloadLength)
	case payloadLength == 126:
		_, err = io.ReadFull(r, readBuf[:2])
		h.payloadLength = int64(binary.BigEndian.Uint16(readBuf))
	case payloadLength == 127:
		_, err = io.ReadFull(r, readBuf[:8])
		h.payloadLength = int64(binary.BigEndian.Uint64(readBuf))
	}
	if err != nil {
		return header{}, err
	}

	if h.payloadLength < 0 {
		return header{}, newProtocolError(StatusProtocolError, ErrInvalidLength)
	}

	if h.masked {
		_, err = io.ReadFull(r, readBuf[:4])
		if err != nil {
			return header{}, err
		}
		h.maskKey = maskKey([4]byte(readBuf[:4]))
	}

	return h, nil
}

// readFramePayload reads the payload described by h and unmasks it.
func readFramePayload(r io.Reader, h header) (_ []byte, err error) {
	defer errd.Wrap(&err, "failed to read frame payload")

	p := make([]byte, h.payloadLength)
	_, err = io.ReadFull(r, p)
	if err != nil {
		return nil, err
	}

	if h.masked {
		mask(h.maskKey, p)
	}
	return p, nil
}

// readFrame decodes a single frame from r regardless of role.
// Validation of the frame against the connection state is left to the caller.
func readFrame(r *bufio.Reader) (frame, error) {
	var buf [8]byte
	h, err := readFrameHeader(r, buf[:])
	if err != nil {
		return frame{}, err
	}
	p, err := readFramePayload(r, h)
	if err != nil {
		return frame{}, err
	}
	return frame{header: h, payload: p}, nil
}

// checkPayloadLength reports whether a payload of n bytes can be described
// by a frame header. RFC 6455 requires the most significant bit of the 64 bit
// length to be zero.
//
// The length of a Go slice never exceeds math.MaxInt64, so appendFrame
// cannot fail today; the check keeps the encoder's contract explicit.
func checkPayloadLength(n uint64) error {
	if n > math.MaxInt64 {
		return ErrPayloadTooLarge
	}
	return nil
}

// appendFrameHeader appends the wire form of h to b.
func appendFrameHeader(b []byte, h header) []byte {
	var b0 byte
	if h.fin {
		b0 |= 1 << 7
	}
	if h.rsv1 {
		b0 |= 1 << 6
	}
	if h.rsv2 {
		b0 |= 1 << 5
	}
	if h.rsv3 {
		b0 |= 1 << 4
	}
	b0 |= byte(h.opcode)

	var b1 byte
	if h.masked {
		b1 |= 1 << 7
	}

	switch {
	case h.payloadLength > math.MaxUint16:
		b = append(b, b0, b1|127)
		b = binary.BigEndian.AppendUint64(b, uint64(h.payloadLength))
	case h.payloadLength > maxControlPayload:
		b = append(b, b0, b1|126)
		b = binary.BigEndian.AppendUint16(b, uint16(h.payloadLength))
	default:
		b = append(b, b0, b1|byte(h.payloadLength))
	}

	if h.masked {
		b = binary.LittleEndian.AppendUint32(b, h.maskKey)
	}
	return b
}

// appendFrame appends a complete unmasked server frame with fin set.
// Server frames are never masked.
// See https://tools.ietf.org/html/rfc6455#section-5.1
func appendFrame(b []byte, op opcode, p []byte) ([]byte, error) {
	err := checkPayloadLength(uint64(len(p)))
	if err != nil {
		return b, err
	}

	b = appendFrameHeader(b, header{
		fin:           true,
		opcode:        op,
		payloadLength: int64(len(p)),
	})
	return append(b, p...), nil
}
