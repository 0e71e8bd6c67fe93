package relay

import (
	"encoding/json"
	"fmt"
)

// Inbound message types on the session transport.
const (
	MessageTypeSetup     = "setup"
	MessageTypePrompt    = "prompt"
	MessageTypeInterrupt = "interrupt"
)

// Message is one decoded inbound session frame.
type Message struct {
	Type                    string `json:"type"`
	CallSid                 string `json:"callSid,omitempty"`
	VoicePrompt             string `json:"voicePrompt,omitempty"`
	UtteranceUntilInterrupt string `json:"utteranceUntilInterrupt,omitempty"`
}

// ParseMessage decodes a raw inbound frame. Malformed frames are an error;
// the caller logs and drops them without touching session state.
func ParseMessage(raw string) (*Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("relay: decode frame: %w", err)
	}
	return &msg, nil
}

// TextFrame is the outbound frame shape: zero or more non-terminal token
// frames followed by exactly one empty terminal frame per assistant turn.
type TextFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
	Last  bool   `json:"last"`
}

// NewTextFrame builds an outbound text frame.
func NewTextFrame(token string, last bool) TextFrame {
	return TextFrame{Type: "text", Token: token, Last: last}
}

// Sender delivers outbound frames to one session connection.
type Sender interface {
	SendText(token string, last bool) error
}
