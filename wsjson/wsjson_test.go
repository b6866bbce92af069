package wsjson_test

import (
	"context"
	"encoding/json"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/gobwas/ws"

	"github.com/coder/wsengine"
	"github.com/coder/wsengine/internal/test/assert"
	"github.com/coder/wsengine/internal/test/wstest"
	"github.com/coder/wsengine/internal/test/xrand"
	"github.com/coder/wsengine/wsjson"
)

type point struct {
	X, Y int
	Tag  string
}

func TestJSON(t *testing.T) {
	t.Parallel()

	rec := wstest.NewRecorder()
	s := websocket.NewServer(rec, nil)
	addr := wstest.Serve(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := wstest.Dial(ctx, addr)
	assert.Success(t, err)
	defer c.Close()

	id := rec.Expect(t, wstest.Connect).ID

	exp := point{X: 1, Y: 2, Tag: xrand.String(16)}
	err = wsjson.Send(s, id, exp)
	assert.Success(t, err)

	f, err := c.ReadFrame()
	assert.Success(t, err)
	assert.Equal(t, "opcode", ws.OpText, f.Header.OpCode)

	var act point
	err = wsjson.Decode(websocket.MessageText, f.Payload, &act)
	assert.Success(t, err)
	assert.Equal(t, "point", exp, act)

	err = c.WriteFrame(true, ws.OpText, f.Payload)
	assert.Success(t, err)
	ev := rec.Expect(t, wstest.Message)

	act = point{}
	err = wsjson.Decode(ev.Type, ev.Payload, &act)
	assert.Success(t, err)
	assert.Equal(t, "point", exp, act)

	err = wsjson.Decode(websocket.MessageBinary, f.Payload, &act)
	assert.Contains(t, err, "unexpected frame type for json")

	err = wsjson.Send(s, id+1, exp)
	assert.ErrorIs(t, websocket.ErrNotFound, err)
}

func BenchmarkJSON(b *testing.B) {
	sizes := []int{
		8,
		16,
		32,
		128,
		256,
		512,
		1024,
		2048,
		4096,
		8192,
		16384,
	}

	b.Run("json.Encoder", func(b *testing.B) {
		for _, size := range sizes {
			b.Run(strconv.Itoa(size), func(b *testing.B) {
				msg := xrand.String(size)
				b.SetBytes(int64(size))
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					json.NewEncoder(io.Discard).Encode(msg)
				}
			})
		}
	})
	b.Run("json.Marshal", func(b *testing.B) {
		for _, size := range sizes {
			b.Run(strconv.Itoa(size), func(b *testing.B) {
				msg := xrand.String(size)
				b.SetBytes(int64(size))
				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					json.Marshal(msg)
				}
			})
		}
	})
}
