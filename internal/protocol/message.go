package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Version is the envelope version this node produces.
const Version = "0.3.0"

// Message is the envelope exchanged between market participants.
type Message struct {
	Version string `json:"version"`
	Action  Action `json:"action"`
	RawTx   string `json:"_rawtx,omitempty"`
}

type rawMessage struct {
	Version string          `json:"version"`
	Action  json.RawMessage `json:"action"`
	RawTx   string          `json:"_rawtx,omitempty"`
}

// NewMessage wraps an action in an envelope of the current version.
func NewMessage(action Action) *Message {
	return &Message{Version: Version, Action: action}
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Action) == 0 || string(raw.Action) == "null" {
		return fmt.Errorf("action is required")
	}
	action, err := DecodeAction(raw.Action)
	if err != nil {
		return err
	}
	m.Version = raw.Version
	m.Action = action
	m.RawTx = raw.RawTx
	return nil
}

// Type returns the action tag, or "" for an empty envelope.
func (m *Message) Type() ActionType {
	if m == nil || m.Action == nil {
		return ""
	}
	return m.Action.Header().Type
}

// Hash returns the content hash carried by the action.
func (m *Message) Hash() string {
	if m == nil || m.Action == nil {
		return ""
	}
	return m.Action.Header().Hash
}

// Decode parses a serialized envelope.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return &msg, nil
}

// ValidateBasic checks the envelope fields shared by every action.
func (m *Message) ValidateBasic() error {
	if m == nil || m.Action == nil {
		return fmt.Errorf("action is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("version is required")
	}
	h := m.Action.Header()
	if h.Type == "" {
		return fmt.Errorf("action type is required")
	}
	if h.Generated <= 0 {
		return fmt.Errorf("generated timestamp is required")
	}
	if strings.TrimSpace(h.Hash) == "" {
		return fmt.Errorf("hash is required")
	}
	return nil
}
