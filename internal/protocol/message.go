package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame types.
const (
	TypeSnapshot = "SNAPSHOT"
	TypePing     = "PING"
	TypePong     = "PONG"
	TypeResync   = "RESYNC"
	TypeError    = "ERROR"
)

// Message is the envelope of every frame in either direction.
type Message struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

type ErrorData struct {
	Error string `json:"error"`
}

func Snapshot(data any) Message {
	return Message{Type: TypeSnapshot, Data: data}
}

func Error(id, msg string) Message {
	return Message{Type: TypeError, ID: id, Data: ErrorData{Error: msg}}
}

// DecodeMessage reads a client frame. Type is matched case-insensitively
// and upper-cased in the result.
func DecodeMessage(data []byte) (Message, error) {
	var msg struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return Message{Type: strings.ToUpper(msg.Type), ID: msg.ID}, nil
}
