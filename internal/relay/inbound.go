package relay

import (
	"fmt"
	"strconv"

	"github.com/vovakirdan/chatrelay/internal/proto"
)

// ParseInbound validates a frame received from a peer and returns the chat
// text it carries. Texts longer than maxText bytes are rejected; a
// non-positive maxText disables the check.
func ParseInbound(frame proto.Frame, maxText int64) (string, *RelayError) {
	if frame.Event != proto.EventChatMessage {
		return "", relayError(proto.ErrCodeUnknownEvent, "unknown event "+strconv.Quote(truncate(frame.Event, 64)))
	}
	text, err := proto.DecodeText(frame.Data)
	if err != nil {
		return "", relayError(proto.ErrCodeBadRequest, "chat message payload must be a string")
	}
	if maxText > 0 && int64(len(text)) > maxText {
		return "", relayError(proto.ErrCodeBadRequest, fmt.Sprintf("chat message exceeds %d bytes", maxText))
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
