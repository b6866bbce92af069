// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"encoding/json"

	"golang.org/x/xerrors"

	"github.com/coder/wsengine"
)

// Send writes the JSON encoding of v as a text message to the connection id of s.
func Send(s *websocket.Server, id uint64, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal json: %w", err)
	}

	err = s.Send(id, websocket.MessageText, b)
	if err != nil {
		return xerrors.Errorf("failed to write json: %w", err)
	}
	return nil
}

// Broadcast writes the JSON encoding of v as a text message to every open
// connection of s.
func Broadcast(s *websocket.Server, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return xerrors.Errorf("failed to marshal json: %w", err)
	}

	err = s.Broadcast(websocket.MessageText, b)
	if err != nil {
		return xerrors.Errorf("failed to broadcast json: %w", err)
	}
	return nil
}

// Decode decodes a message delivered to Handler.OnMessage into v.
// Only text messages hold JSON.
func Decode(typ websocket.MessageType, p []byte, v interface{}) error {
	if typ != websocket.MessageText {
		return xerrors.Errorf("unexpected frame type for json (expected %v): %v", websocket.MessageText, typ)
	}

	err := json.Unmarshal(p, v)
	if err != nil {
		return xerrors.Errorf("failed to decode json: %w", err)
	}
	return nil
}
