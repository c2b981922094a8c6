package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

const (
	MessageSchema = "SCHEMA"
	MessageRecord = "RECORD"
	MessageState  = "STATE"
)

var ErrMalformedMessage = errors.New("malformed message")

// Message is the Singer envelope. Payloads stay raw so that key order survives until flattening.
type Message struct {
	Type               string          `json:"type"`
	Record             json.RawMessage `json:"record,omitempty"`
	Stream             string          `json:"stream,omitempty"`
	TimeExtracted      string          `json:"time_extracted,omitempty"`
	Schema             json.RawMessage `json:"schema,omitempty"`
	Value              json.RawMessage `json:"value,omitempty"`
	KeyProperties      []string        `json:"key_properties,omitempty"`
	BookmarkProperties []string        `json:"bookmark_properties,omitempty"`
}

// ParseMessage decodes one input line. Unknown types are returned without error, check Known.
func ParseMessage(line []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(line, &message); err != nil {
		return message, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch message.Type {
	case "":
		return message, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	case MessageRecord:
		if message.Stream == "" {
			return message, fmt.Errorf("%w: RECORD without stream", ErrMalformedMessage)
		}
		if !isObject(message.Record) {
			return message, fmt.Errorf("%w: RECORD for %s without record object", ErrMalformedMessage, message.Stream)
		}
	case MessageSchema:
		if message.Stream == "" {
			return message, fmt.Errorf("%w: SCHEMA without stream", ErrMalformedMessage)
		}
		if !isObject(message.Schema) {
			return message, fmt.Errorf("%w: SCHEMA for %s without schema object", ErrMalformedMessage, message.Stream)
		}
	case MessageState:
		if len(message.Value) == 0 || bytes.Equal(bytes.TrimSpace(message.Value), []byte("null")) {
			return message, fmt.Errorf("%w: STATE without value", ErrMalformedMessage)
		}
	}

	return message, nil
}

func (m Message) Known() bool {
	switch m.Type {
	case MessageSchema, MessageRecord, MessageState:
		return true
	}
	return false
}

// StateStream returns value.stream of a STATE message, or "" when absent
func (m Message) StateStream() string {
	stream, err := jsonparser.GetString(m.Value, "stream")
	if err != nil {
		return ""
	}
	return stream
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
