// Package term binds the chat client to a terminal: stdin lines act as the
// form, stdout is the message list.
package term

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/gookit/color"
)

// Placeholder is the static block drawn into the root writer on start.
const Placeholder = "chatrelay: type a message and press Enter to send, Ctrl+D to quit"

// Styler colours system lines. The zero value renders plain text.
type Styler struct {
	enabled bool
	banner  color.Style
	system  color.Style
}

// NewStyler returns a styler; colour is applied only when enabled is true.
func NewStyler(enabled bool) Styler {
	return Styler{
		enabled: enabled,
		banner:  color.New(color.FgCyan, color.OpBold),
		system:  color.New(color.FgGray),
	}
}

func (s Styler) render(style color.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

// RenderPlaceholder draws the static placeholder block. It carries no
// dynamic state and is unrelated to the message list.
func RenderPlaceholder(w io.Writer, s Styler) error {
	rule := strings.Repeat("-", utf8.RuneCountInString(Placeholder))
	_, err := fmt.Fprintf(w, "%s\n%s\n%s\n", rule, s.render(s.banner, Placeholder), rule)
	return err
}

// Sanitize renders text for a terminal as plain text. Control characters
// (C0, DEL, C1) are shown in escaped form so payloads cannot move the cursor,
// change colours or split one entry over several lines. Everything else,
// including markup, is kept verbatim.
func Sanitize(text string) string {
	if !needsEscape(text) {
		return text
	}

	var b strings.Builder
	b.Grow(len(text) + 8)
	for _, r := range text {
		switch {
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case isControl(r):
			fmt.Fprintf(&b, `\x%02x`, r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func needsEscape(text string) bool {
	for _, r := range text {
		if isControl(r) {
			return true
		}
	}
	return false
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f)
}
