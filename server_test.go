package websocket_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	wsengine "github.com/coder/wsengine"
	"github.com/coder/wsengine/internal/test/assert"
	"github.com/coder/wsengine/internal/test/wstest"
	"github.com/coder/wsengine/internal/test/xrand"
)

func TestServer(t *testing.T) {
	t.Parallel()

	t.Run("sendNotFound", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)

		err := tt.s.Send(7, wsengine.MessageText, []byte("x"))
		assert.ErrorIs(t, wsengine.ErrNotFound, err)

		err = tt.s.CloseConn(7, wsengine.StatusNormalClosure, "")
		assert.ErrorIs(t, wsengine.ErrNotFound, err)
	})

	t.Run("badMessageType", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)
		_, id := tt.dial()

		err := tt.s.Send(id, wsengine.MessageType(9), []byte("x"))
		assert.Contains(t, err, "unknown message type")
	})

	t.Run("send", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)
		c1, id1 := tt.dial()
		c2, id2 := tt.dial()
		assert.Equal(t, "ids", id1+1, id2)
		assert.Equal(t, "len", 2, tt.s.Len())

		err := tt.s.Send(id2, wsengine.MessageBinary, []byte("for c2"))
		assert.Success(t, err)
		err = tt.s.Send(id1, wsengine.MessageText, []byte("for c1"))
		assert.Success(t, err)

		f, err := c1.ReadFrame()
		assert.Success(t, err)
		assert.Equal(t, "opcode", ws.OpText, f.Header.OpCode)
		assert.Equal(t, "payload", "for c1", string(f.Payload))

		f, err = c2.ReadFrame()
		assert.Success(t, err)
		assert.Equal(t, "opcode", ws.OpBinary, f.Header.OpCode)
		assert.Equal(t, "payload", "for c2", string(f.Payload))
	})

	t.Run("broadcast", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)

		var clients []*wstest.Client
		for i := 0; i < 3; i++ {
			c, _ := tt.dial()
			clients = append(clients, c)
		}

		err := tt.s.Broadcast(wsengine.MessageText, []byte("hi all"))
		assert.Success(t, err)

		for _, c := range clients {
			f, err := c.ReadFrame()
			assert.Success(t, err)
			assert.Equal(t, "payload", "hi all", string(f.Payload))
		}
	})

	t.Run("broadcastSkipsClosing", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)
		c1, id1 := tt.dial()
		c2, _ := tt.dial()

		err := tt.s.CloseConn(id1, wsengine.StatusNormalClosure, "")
		assert.Success(t, err)

		err = tt.s.Broadcast(wsengine.MessageText, []byte("hi"))
		assert.Success(t, err)

		f, err := c2.ReadFrame()
		assert.Success(t, err)
		assert.Equal(t, "payload", "hi", string(f.Payload))

		_, _, skipped, err := c1.ReadClose()
		assert.Success(t, err)
		assert.Equal(t, "frames before close", 0, len(skipped))
	})

	t.Run("uniqueIDs", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)

		const n = 20
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				c, err := wstest.Dial(tt.ctx, tt.addr)
				if err != nil {
					return err
				}
				t.Cleanup(func() {
					c.Close()
				})
				return nil
			})
		}
		assert.Success(t, g.Wait())

		seen := make(map[uint64]bool)
		for i := 0; i < n; i++ {
			id := tt.rec.Expect(t, wstest.Connect).ID
			if seen[id] {
				t.Fatalf("id %v assigned twice", id)
			}
			if id < 1 || id > n {
				t.Fatalf("unexpected id %v", id)
			}
			seen[id] = true
		}
	})

	t.Run("registeredConnsAreOpen", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)

		done := make(chan struct{})
		var g errgroup.Group
		g.Go(func() error {
			for {
				select {
				case <-done:
					return nil
				default:
				}
				var bad []wsengine.ConnState
				tt.s.Registry().ForEach(func(c *wsengine.Conn) {
					if st := c.State(); st != wsengine.StateOpen {
						bad = append(bad, st)
					}
				})
				if len(bad) > 0 {
					return fmt.Errorf("registered connections in states %v", bad)
				}
			}
		})

		for i := 0; i < 20; i++ {
			tt.dial()
		}
		close(done)
		assert.Success(t, g.Wait())
	})

	t.Run("idsNotReused", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)

		c, id1 := tt.dial()
		c.Close()
		tt.rec.Expect(t, wstest.Disconnect)

		_, id2 := tt.dial()
		assert.Equal(t, "id", id1+1, id2)
	})

	t.Run("acceptRate", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, &wsengine.Options{
			AcceptRate:  rate.Every(time.Hour),
			AcceptBurst: 1,
		})
		tt.dial()

		ctx, cancel := context.WithTimeout(tt.ctx, 200*time.Millisecond)
		defer cancel()
		_, err := wstest.Dial(ctx, tt.addr)
		assert.Error(t, err)
	})
}

func TestServerShutdown(t *testing.T) {
	t.Parallel()

	t.Run("graceful", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)
		c1, _ := tt.dial()
		c2, _ := tt.dial()

		errc := make(chan error, 1)
		go func() {
			errc <- tt.s.Shutdown(tt.ctx)
		}()

		var wg sync.WaitGroup
		for _, c := range []*wstest.Client{c1, c2} {
			c := c
			wg.Add(1)
			go func() {
				defer wg.Done()

				code, _, _, err := c.ReadClose()
				if err != nil {
					t.Errorf("failed to read close frame: %v", err)
					return
				}
				if code != ws.StatusGoingAway {
					t.Errorf("expected %v but got %v", ws.StatusGoingAway, code)
				}
				c.WriteClose(code, "")
			}()
		}
		wg.Wait()

		select {
		case err := <-errc:
			assert.Success(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Shutdown did not return")
		}
		assert.Equal(t, "len", 0, tt.s.Len())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		assert.Success(t, err)
		err = tt.s.Serve(context.Background(), ln)
		assert.ErrorIs(t, wsengine.ErrServerClosed, err)
	})

	t.Run("deadline", func(t *testing.T) {
		t.Parallel()
		tt := newConnTest(t, nil)
		c, _ := tt.dial()

		ctx, cancel := context.WithTimeout(tt.ctx, 100*time.Millisecond)
		defer cancel()

		err := tt.s.Shutdown(ctx)
		assert.ErrorIs(t, context.DeadlineExceeded, err)

		_, _, _, err = c.ReadClose()
		assert.Success(t, err)
		err = c.WaitEOF(5 * time.Second)
		assert.Success(t, err)
		tt.rec.Expect(t, wstest.Disconnect)
	})

	t.Run("cancelServe", func(t *testing.T) {
		t.Parallel()

		s := wsengine.NewServer(wsengine.HandlerFuncs{}, &wsengine.Options{Logger: nullLogger()})
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		assert.Success(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		errc := make(chan error, 1)
		go func() {
			errc <- s.Serve(ctx, ln)
		}()
		cancel()

		select {
		case err := <-errc:
			assert.ErrorIs(t, context.Canceled, err)
		case <-time.After(5 * time.Second):
			t.Fatal("Serve did not return")
		}
	})

	t.Run("listenError", func(t *testing.T) {
		t.Parallel()

		s := wsengine.NewServer(wsengine.HandlerFuncs{}, &wsengine.Options{Logger: nullLogger()})
		err := s.ListenAndServe(context.Background(), "256.0.0.1:0")
		assert.Error(t, err)
	})
}

func TestServerMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	tt := newConnTest(t, &wsengine.Options{
		Metrics: wsengine.NewMetrics(reg),
	})

	c, _ := tt.dial()
	err := c.WriteFrame(true, ws.OpText, []byte("hello"))
	assert.Success(t, err)
	tt.rec.Expect(t, wstest.Message)

	err = c.WriteUnmaskedFrame(true, ws.OpText, nil)
	assert.Success(t, err)
	_, _, _, err = c.ReadClose()
	assert.Success(t, err)
	err = c.WaitEOF(5 * time.Second)
	assert.Success(t, err)
	c.Close()
	tt.rec.Expect(t, wstest.Disconnect)

	bad, err := wstest.DialRaw(tt.ctx, tt.addr)
	assert.Success(t, err)
	defer bad.Close()
	err = bad.Write([]byte("GET / HTTP/1.1\r\n\r\n"))
	assert.Success(t, err)
	resp, err := bad.ReadResponse()
	assert.Success(t, err)
	resp.Body.Close()

	exp := `
# HELP websocket_connections_active Connections currently open or closing
# TYPE websocket_connections_active gauge
websocket_connections_active 0
# HELP websocket_handshakes_total Opening handshake requests by result
# TYPE websocket_handshakes_total counter
websocket_handshakes_total{result="failed"} 1
websocket_handshakes_total{result="ok"} 1
# HELP websocket_messages_read_total Complete data messages delivered to the handler by type
# TYPE websocket_messages_read_total counter
websocket_messages_read_total{type="text"} 1
# HELP websocket_protocol_errors_total Connections failed for violating the protocol by close code
# TYPE websocket_protocol_errors_total counter
websocket_protocol_errors_total{code="1002"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(exp),
		"websocket_connections_active",
		"websocket_handshakes_total",
		"websocket_messages_read_total",
		"websocket_protocol_errors_total",
	)
	assert.Success(t, err)

	n, err := testutil.GatherAndCount(reg, "websocket_frames_read_total")
	assert.Success(t, err)
	assert.Equal(t, "frame opcodes seen", 1, n)
}

func TestGorillaClient(t *testing.T) {
	t.Parallel()

	var s *wsengine.Server
	s = wsengine.NewServer(wsengine.HandlerFuncs{
		Message: func(id uint64, typ wsengine.MessageType, p []byte) {
			err := s.Send(id, typ, p)
			if err != nil && !errors.Is(err, wsengine.ErrClosed) {
				t.Errorf("failed to echo: %v", err)
			}
		},
	}, &wsengine.Options{
		Logger: nullLogger(),
	})
	addr := wstest.Serve(t, s)

	c, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/echo", nil)
	assert.Success(t, err)
	defer c.Close()
	assert.Equal(t, "status", 101, resp.StatusCode)

	for _, typ := range []int{websocket.TextMessage, websocket.BinaryMessage} {
		for _, n := range []int{0, 10, 70000} {
			exp := []byte(xrand.String(n))
			err = c.WriteMessage(typ, exp)
			assert.Success(t, err)

			gotTyp, got, err := c.ReadMessage()
			assert.Success(t, err)
			assert.Equal(t, "message type", typ, gotTyp)
			assert.Equal(t, "message", exp, got)
		}
	}

	err = c.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
	assert.Success(t, err)

	_, _, err = c.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("expected close error but got %v", err)
	}
	assert.Equal(t, "close code", websocket.CloseNormalClosure, ce.Code)
}
