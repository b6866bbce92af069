package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/coder/wsengine/internal/errd"
)

// maxHandshakeHeaders bounds the number of header lines read during
// the opening handshake.
const maxHandshakeHeaders = 100

// HandshakeRequest is the parsed opening handshake of a client.
type HandshakeRequest struct {
	Method string
	Target string
	Proto  string
	// Header maps lower cased header names to their value.
	// When a header is repeated, the last occurrence wins.
	Header map[string]string
}

// readHandshakeRequest reads the request line and header lines up to
// and including the terminating blank line.
func readHandshakeRequest(br *bufio.Reader) (_ *HandshakeRequest, err error) {
	defer errd.Wrap(&err, "failed to read handshake request")

	line, err := readLine(br)
	if err != nil {
		return nil, err
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 || parts[0] != "GET" {
		return nil, fmt.Errorf("request line %q does not begin with GET: %w", line, ErrMalformedRequest)
	}

	req := &HandshakeRequest{
		Method: parts[0],
		Target: parts[1],
		Proto:  parts[2],
		Header: make(map[string]string),
	}

	for n := 0; ; n++ {
		line, err = readLine(br)
		if err != nil {
			return nil, err
		}
		if line == "" {
			return req, nil
		}
		if n == maxHandshakeHeaders {
			return nil, fmt.Errorf("more than %v header lines: %w", maxHandshakeHeaders, ErrMalformedRequest)
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok || !httpguts.ValidHeaderFieldName(name) {
			return nil, fmt.Errorf("invalid header line %q: %w", line, ErrMalformedRequest)
		}
		value = textproto.TrimString(value)
		if !httpguts.ValidHeaderFieldValue(value) {
			return nil, fmt.Errorf("invalid value for header %q: %w", name, ErrMalformedRequest)
		}
		req.Header[strings.ToLower(name)] = value
	}
}

// readLine reads a CRLF or LF terminated line. Lines longer than the
// buffer of br are rejected instead of grown.
func readLine(br *bufio.Reader) (string, error) {
	b, err := br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return "", fmt.Errorf("line exceeds %v bytes: %w", br.Size(), ErrMalformedRequest)
	}
	if err != nil {
		return "", err
	}
	b = b[:len(b)-1]
	if len(b) > 0 && b[len(b)-1] == '\r' {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

// verifyClientRequest checks req is a WebSocket upgrade and returns
// its Sec-WebSocket-Key.
func verifyClientRequest(req *HandshakeRequest) (string, error) {
	upgrade, ok := req.Header["upgrade"]
	if !ok || !httpguts.HeaderValuesContainsToken([]string{upgrade}, "websocket") {
		return "", fmt.Errorf("upgrade header %q does not contain websocket: %w", upgrade, ErrNotWebSocketUpgrade)
	}

	key := req.Header["sec-websocket-key"]
	if key == "" {
		return "", ErrMissingHandshakeKey
	}
	return key, nil
}

var keyGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// acceptKey computes the Sec-WebSocket-Accept value for key.
// See https://tools.ietf.org/html/rfc6455#section-4.2.2
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write(keyGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func writeHandshakeResponse(w io.Writer, accept string) error {
	_, err := io.WriteString(w, "HTTP/1.1 101 Switching Protocols\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Accept: "+accept+"\r\n"+
		"\r\n")
	return err
}

// writeHandshakeError writes a 400 response describing err. The
// connection is torn down right after so any write error is irrelevant.
func writeHandshakeError(w io.Writer, err error) {
	body := err.Error() + "\n"
	io.WriteString(w, "HTTP/1.1 400 Bad Request\r\n"+
		"Connection: close\r\n"+
		"Content-Type: text/plain; charset=utf-8\r\n"+
		"Content-Length: "+strconv.Itoa(len(body))+"\r\n"+
		"\r\n"+
		body)
}
