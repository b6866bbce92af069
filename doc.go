// Package websocket is a server side implementation of the WebSocket
// protocol on top of raw stream connections.
//
// A Server accepts connections from a net.Listener, performs the opening
// handshake itself, and then reads frames, reassembles fragmented
// messages and answers ping and close frames. Complete text and binary
// messages are handed to a Handler. Replies go through Server.Send or
// Conn.Write.
//
//	h := websocket.HandlerFuncs{
//		Message: func(id uint64, typ websocket.MessageType, p []byte) {
//			s.Send(id, typ, p)
//		},
//	}
//	s = websocket.NewServer(h, nil)
//	err := s.ListenAndServe(ctx, "localhost:9001")
//
// Extensions, subprotocols, TLS and the client role are not supported.
//
// See https://tools.ietf.org/html/rfc6455
package websocket
