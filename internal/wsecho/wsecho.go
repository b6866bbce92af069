// Package wsecho implements the echo application served by cmd/wsecho.
package wsecho

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coder/wsengine"
)

// Sender is the part of *websocket.Server a Handler writes through.
type Sender interface {
	Send(id uint64, typ websocket.MessageType, p []byte) error
	Broadcast(typ websocket.MessageType, p []byte) error
}

const echoCommand = "!echo"

// Handler echoes every message back to the connection that sent it.
//
// A text message of the form "!echo a b c" is answered with "a b c".
// Every other message is echoed unchanged.
type Handler struct {
	Sender Sender
	// Broadcast sends echoes to every open connection instead of
	// only the sender.
	Broadcast bool
	Log       *logrus.Entry
}

var _ websocket.Handler = (*Handler)(nil)

func (h *Handler) OnConnect(id uint64) {
	h.Log.WithField("conn", id).Debug("echo client joined")
}

func (h *Handler) OnMessage(id uint64, typ websocket.MessageType, p []byte) {
	if typ == websocket.MessageText {
		p = reply(p)
	}

	var err error
	if h.Broadcast {
		err = h.Sender.Broadcast(typ, p)
	} else {
		err = h.Sender.Send(id, typ, p)
	}
	if err != nil {
		h.Log.WithError(err).WithField("conn", id).Warn("failed to echo message")
	}
}

func (h *Handler) OnDisconnect(id uint64) {
	h.Log.WithField("conn", id).Debug("echo client left")
}

// reply strips a leading echo command from a text message.
func reply(p []byte) []byte {
	s := string(p)
	if s == echoCommand {
		return nil
	}
	if rest, ok := strings.CutPrefix(s, echoCommand+" "); ok {
		return []byte(rest)
	}
	return p
}
