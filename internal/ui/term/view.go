package term

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ListView writes each appended message as one plain-text line.
type ListView struct {
	mu     sync.Mutex
	w      io.Writer
	styler Styler
}

// NewListView returns a list writing to w.
func NewListView(w io.Writer, s Styler) *ListView {
	return &ListView{w: w, styler: s}
}

func (v *ListView) Append(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = fmt.Fprintln(v.w, Sanitize(text))
}

// Reset marks the list as cleared. Terminal scrollback cannot be rewritten.
func (v *ListView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = fmt.Fprintln(v.w, v.styler.render(v.styler.system, "-- cleared --"))
}

// LineInput holds the text of the line currently being submitted.
type LineInput struct {
	mu    sync.Mutex
	value string
}

func (in *LineInput) Set(v string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.value = v
}

func (in *LineInput) Value() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.value
}

func (in *LineInput) Clear() {
	in.Set("")
}

// Form turns lines read from r into submit events. Every line, empty ones
// included, is one submission.
type Form struct {
	r     io.Reader
	input *LineInput
}

// NewForm binds r to input.
func NewForm(r io.Reader, input *LineInput) *Form {
	return &Form{r: r, input: input}
}

// Run calls submit once per line until r is exhausted or ctx is done.
// Lines may be of any length. It returns nil on EOF.
func (f *Form) Run(ctx context.Context, submit func(context.Context) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(f.r)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && (!errors.Is(err, io.EOF) || line == "") {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
			select {
			case lines <- trimEOL(line):
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return fmt.Errorf("read input: %w", err)
				default:
				}
				return nil
			}
			f.input.Set(line)
			if err := submit(ctx); err != nil {
				return err
			}
		}
	}
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
