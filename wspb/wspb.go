// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"github.com/golang/protobuf/proto"
	"golang.org/x/xerrors"

	"github.com/coder/wsengine"
)

// Send writes the protobuf message v as a binary message to the connection id of s.
func Send(s *websocket.Server, id uint64, v proto.Message) error {
	b, err := proto.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal protobuf: %w", err)
	}

	err = s.Send(id, websocket.MessageBinary, b)
	if err != nil {
		return xerrors.Errorf("failed to write protobuf: %w", err)
	}
	return nil
}

// Unmarshal decodes a message delivered to Handler.OnMessage into v.
// Only binary messages hold protobuf.
func Unmarshal(typ websocket.MessageType, p []byte, v proto.Message) error {
	if typ != websocket.MessageBinary {
		return xerrors.Errorf("unexpected frame type for protobuf (expected %v): %v", websocket.MessageBinary, typ)
	}

	err := proto.Unmarshal(p, v)
	if err != nil {
		return xerrors.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return nil
}
