package websocket

// Handler receives the events of every connection of a Server.
//
// All three methods for a given connection are called from that
// connection's goroutine, in order, so no further frame is read from
// the connection until OnMessage returns. Different connections call
// in concurrently.
type Handler interface {
	// OnConnect is called once the handshake completed and the
	// connection is registered.
	OnConnect(id uint64)
	// OnMessage is called with every complete data message. Text
	// messages that are not valid UTF-8 are delivered as MessageBinary.
	// p is owned by the handler.
	OnMessage(id uint64, typ MessageType, p []byte)
	// OnDisconnect is called once the connection is closed and
	// removed from the registry.
	OnDisconnect(id uint64)
}

// HandlerFuncs adapts plain functions to a Handler. Nil fields are no-ops.
type HandlerFuncs struct {
	Connect    func(id uint64)
	Message    func(id uint64, typ MessageType, p []byte)
	Disconnect func(id uint64)
}

var _ Handler = HandlerFuncs{}

// OnConnect calls h.Connect.
func (h HandlerFuncs) OnConnect(id uint64) {
	if h.Connect != nil {
		h.Connect(id)
	}
}

// OnMessage calls h.Message.
func (h HandlerFuncs) OnMessage(id uint64, typ MessageType, p []byte) {
	if h.Message != nil {
		h.Message(id, typ, p)
	}
}

// OnDisconnect calls h.Disconnect.
func (h HandlerFuncs) OnDisconnect(id uint64) {
	if h.Disconnect != nil {
		h.Disconnect(id)
	}
}
