package wstest

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/coder/wsengine"
)

// Serve runs s on a loopback listener until the test ends and returns
// the listener's address.
func Serve(tb testing.TB, s *websocket.Server) string {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- s.Serve(ctx, ln)
	}()

	tb.Cleanup(func() {
		cancel()
		s.Close()
		select {
		case err := <-errc:
			if err != nil && !errors.Is(err, websocket.ErrServerClosed) && !errors.Is(err, context.Canceled) {
				tb.Errorf("serve failed: %v", err)
			}
		case <-time.After(5 * time.Second):
			tb.Error("serve did not return")
		}
	})
	return ln.Addr().String()
}

// EventKind identifies the Handler callback an Event came from.
type EventKind int

const (
	Connect EventKind = iota
	Message
	Disconnect
)

func (k EventKind) String() string {
	switch k {
	case Connect:
		return "connect"
	case Message:
		return "message"
	case Disconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Event is a single recorded Handler callback.
type Event struct {
	Kind    EventKind
	ID      uint64
	Type    websocket.MessageType
	Payload []byte
}

// Recorder is a websocket.Handler that records every callback.
type Recorder struct {
	events chan Event
}

var _ websocket.Handler = (*Recorder)(nil)

// NewRecorder returns a Recorder buffering up to 1024 events.
func NewRecorder() *Recorder {
	return &Recorder{
		events: make(chan Event, 1024),
	}
}

func (r *Recorder) OnConnect(id uint64) {
	r.events <- Event{Kind: Connect, ID: id}
}

func (r *Recorder) OnMessage(id uint64, typ websocket.MessageType, p []byte) {
	r.events <- Event{Kind: Message, ID: id, Type: typ, Payload: p}
}

func (r *Recorder) OnDisconnect(id uint64) {
	r.events <- Event{Kind: Disconnect, ID: id}
}

// Next returns the next recorded event. It fails the test if none
// arrives within timeout.
func (r *Recorder) Next(tb testing.TB, timeout time.Duration) Event {
	tb.Helper()

	select {
	case ev := <-r.events:
		return ev
	case <-time.After(timeout):
		tb.Fatalf("no handler event after %v", timeout)
		return Event{}
	}
}

// Expect returns the next event and fails the test unless it is of kind k.
func (r *Recorder) Expect(tb testing.TB, k EventKind) Event {
	tb.Helper()

	ev := r.Next(tb, 5*time.Second)
	if ev.Kind != k {
		tb.Fatalf("expected %v event but got %v: %+v", k, ev.Kind, ev)
	}
	return ev
}

// None fails the test if an event is recorded within d.
func (r *Recorder) None(tb testing.TB, d time.Duration) {
	tb.Helper()

	select {
	case ev := <-r.events:
		tb.Fatalf("unexpected handler event: %+v", ev)
	case <-time.After(d):
	}
}
