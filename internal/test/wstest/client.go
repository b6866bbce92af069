// Package wstest drives a websocket.Server from the client side with
// hand written frames.
package wstest

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"

	"github.com/coder/wsengine/internal/errd"
	"github.com/coder/wsengine/internal/test/xrand"
)

// Client is a raw WebSocket client. It writes masked frames exactly as
// asked, including invalid ones, so server behaviour can be tested at the
// byte level.
type Client struct {
	nc net.Conn
	br *bufio.Reader
}

// Dial connects to addr and completes the opening handshake.
func Dial(ctx context.Context, addr string) (_ *Client, err error) {
	defer errd.Wrap(&err, "failed to dial %v", addr)

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	}

	c := &Client{
		nc: nc,
		br: bufio.NewReader(nc),
	}

	key := base64.StdEncoding.EncodeToString(xrand.Bytes(16))
	resp, err := c.Handshake(addr, key)
	if err != nil {
		nc.Close()
		return nil, err
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		nc.Close()
		return nil, fmt.Errorf("unexpected handshake status %v", resp.Status)
	}
	if got, exp := resp.Header.Get("Sec-WebSocket-Accept"), accept(key); got != exp {
		nc.Close()
		return nil, fmt.Errorf("unexpected Sec-WebSocket-Accept %q, expected %q", got, exp)
	}
	return c, nil
}

// DialRaw connects to addr without performing the handshake.
func DialRaw(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		nc.SetDeadline(deadline)
	}
	return &Client{
		nc: nc,
		br: bufio.NewReader(nc),
	}, nil
}

// Handshake writes an upgrade request with the given key and reads the response.
func (c *Client) Handshake(host, key string) (*http.Response, error) {
	_, err := fmt.Fprintf(c.nc, "GET / HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n"+
		"\r\n", host, key)
	if err != nil {
		return nil, err
	}
	return c.ReadResponse()
}

// ReadResponse reads an HTTP response from the connection.
func (c *Client) ReadResponse() (*http.Response, error) {
	return http.ReadResponse(c.br, nil)
}

func accept(key string) string {
	h := sha1.New()
	io.WriteString(h, key+"258EAFA5-E914-47DA-95CA-C5AB0DC85B11")
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// WriteFrame writes a single frame masked with a random key.
func (c *Client) WriteFrame(fin bool, op ws.OpCode, p []byte) error {
	h := ws.Header{
		Fin:    fin,
		OpCode: op,
		Masked: true,
		Mask:   ws.NewMask(),
		Length: int64(len(p)),
	}
	payload := append([]byte(nil), p...)
	ws.Cipher(payload, h.Mask, 0)
	return ws.WriteFrame(c.nc, ws.Frame{Header: h, Payload: payload})
}

// WriteUnmaskedFrame writes a frame without masking it, which clients
// must never do.
func (c *Client) WriteUnmaskedFrame(fin bool, op ws.OpCode, p []byte) error {
	return ws.WriteFrame(c.nc, ws.NewFrame(op, fin, p))
}

// WriteClose writes a masked close frame with the given code and reason.
func (c *Client) WriteClose(code ws.StatusCode, reason string) error {
	return c.WriteFrame(true, ws.OpClose, ws.NewCloseFrameBody(code, reason))
}

// Write writes b to the connection as is.
func (c *Client) Write(b []byte) error {
	_, err := c.nc.Write(b)
	return err
}

// ReadFrame reads the next frame sent by the server.
func (c *Client) ReadFrame() (ws.Frame, error) {
	return ws.ReadFrame(c.br)
}

// ReadClose reads frames until a close frame and returns its status.
// Data and pong frames before it are returned in skipped.
func (c *Client) ReadClose() (code ws.StatusCode, reason string, skipped []ws.Frame, err error) {
	for {
		f, err := c.ReadFrame()
		if err != nil {
			return 0, "", skipped, err
		}
		if f.Header.OpCode == ws.OpClose {
			code, reason = ws.ParseCloseFrameData(f.Payload)
			return code, reason, skipped, nil
		}
		skipped = append(skipped, f)
	}
}

// WaitEOF reads until the server closes the stream.
func (c *Client) WaitEOF(timeout time.Duration) error {
	c.nc.SetReadDeadline(time.Now().Add(timeout))
	_, err := io.Copy(io.Discard, c.br)
	return err
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.nc.Close()
}
