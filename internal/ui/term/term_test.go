package term

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"hello":                   "hello",
		"":                        "",
		"<script>x</script>":      "<script>x</script>",
		"café ☕":                  "café ☕",
		"\x1b[31mred\x1b[0m":      `\x1b[31mred\x1b[0m`,
		"two\nlines":              `two\nlines`,
		"tab\there":               `tab\there`,
		"bell\a":                  `bell\x07`,
		"del\x7f":                 `del\x7f`,
		"csi\u009b2J":             `csi\x9b2J`,
		"carriage\rreturn":        `carriage\rreturn`,
		`already \n escaped text`: `already \n escaped text`,
	}
	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), "input %q", in)
	}
}

func TestListViewAppendsPlainLines(t *testing.T) {
	var buf bytes.Buffer
	view := NewListView(&buf, NewStyler(false))

	view.Append("a")
	view.Append("<script>x</script>")
	view.Append("")
	view.Append("\x1b[2J")

	assert.Equal(t, "a\n<script>x</script>\n\n\\x1b[2J\n", buf.String())
}

func TestListViewReset(t *testing.T) {
	var buf bytes.Buffer
	view := NewListView(&buf, Styler{})
	view.Reset()
	assert.Equal(t, "-- cleared --\n", buf.String())
}

func TestRenderPlaceholderIsStatic(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, RenderPlaceholder(&first, NewStyler(false)))
	require.NoError(t, RenderPlaceholder(&second, NewStyler(false)))

	assert.Equal(t, first.String(), second.String())
	assert.Contains(t, first.String(), Placeholder)
}

func TestFormSubmitsEveryLine(t *testing.T) {
	input := &LineInput{}
	form := NewForm(strings.NewReader("hello\n\nworld\n"), input)

	var got []string
	err := form.Run(context.Background(), func(context.Context) error {
		got = append(got, input.Value())
		input.Clear()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "", "world"}, got)
	assert.Equal(t, "", input.Value())
}

func TestFormAcceptsLongLinesAndMissingNewline(t *testing.T) {
	long := strings.Repeat("x", 200<<10)
	input := &LineInput{}
	form := NewForm(strings.NewReader(long+"\r\nlast"), input)

	var got []string
	err := form.Run(context.Background(), func(context.Context) error {
		got = append(got, input.Value())
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, long, got[0])
	assert.Equal(t, "last", got[1])
}

func TestFormStopsOnSubmitError(t *testing.T) {
	boom := errors.New("boom")
	form := NewForm(strings.NewReader("a\nb\n"), &LineInput{})

	calls := 0
	err := form.Run(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestFormHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	form := NewForm(blockingReader{}, &LineInput{})
	require.ErrorIs(t, form.Run(ctx, func(context.Context) error { return nil }), context.Canceled)
}

type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}
