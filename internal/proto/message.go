package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	ProtocolVersion = 1
	// Subprotocol is negotiated during the websocket handshake.
	Subprotocol = "chatrelay.v1"

	// EventChatMessage is the single application event, used in both directions.
	EventChatMessage = "chat message"
	// EventError carries a relay-side rejection back to the peer.
	EventError = "error"
)

// Error codes carried in error frames.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnknownEvent = "unknown_event"
	ErrCodeRateLimited  = "rate_limited"
)

var (
	// ErrNotString is returned when a chat message payload is not a JSON string.
	ErrNotString = errors.New("payload is not a string")
	// ErrInvalidUTF8 is returned for payloads that cannot travel as JSON text
	// unchanged.
	ErrInvalidUTF8 = errors.New("payload is not valid UTF-8")
)

// maxEscapeLen is the longest encoding of one payload byte: a control
// character becomes \u00XX.
const maxEscapeLen = 6

// frameOverhead covers the envelope around an encoded chat payload and the
// largest error frame the relay sends.
const frameOverhead = 1 << 10

// FrameLimit is the largest encoded frame carrying a chat message of at most
// maxText bytes. Readers use it as their websocket read limit so that no text
// the relay accepts can exceed it after re-encoding.
func FrameLimit(maxText int64) int64 {
	return maxEscapeLen*maxText + frameOverhead
}

// Frame is the envelope for every message on the wire in either direction.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Msg
}

// NewFrame encodes a string payload for the given event. The payload must be
// valid UTF-8; anything else would be altered on the wire.
func NewFrame(event, payload string) (Frame, error) {
	if !utf8.ValidString(payload) {
		return Frame{}, ErrInvalidUTF8
	}
	data, err := marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Frame{Event: event, Data: data}, nil
}

// Encode renders a frame for the wire. HTML characters are not escaped, so
// markup costs the same number of bytes as plain text.
func Encode(frame Frame) ([]byte, error) {
	return marshal(frame)
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ErrorFrame builds an error frame with the given code.
func ErrorFrame(code, msg string) Frame {
	return Frame{Event: EventError, Error: &Error{Code: code, Msg: msg}}
}

// DecodeText extracts a string payload. Anything other than a JSON string,
// including null and a missing payload, is rejected.
func DecodeText(data json.RawMessage) (string, error) {
	if len(data) == 0 || data[0] != '"' {
		return "", ErrNotString
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotString, err)
	}
	return text, nil
}
