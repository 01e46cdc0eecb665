package terminal

import (
	"io"
	"strings"
	"sync"
)

// CRLF converts bare line feeds to the carriage return + line feed pairs a
// terminal in raw mode needs to return the cursor to column zero.
func CRLF(text string) string {
	if !strings.Contains(text, "\n") {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\n", "\r\n")
}

// WriterSink renders to an io.Writer such as a raw-mode stdout.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink wraps w as a render sink.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) WriteRaw(text string) {
	s.write(CRLF(text))
}

func (s *WriterSink) WriteLine(text string) {
	s.write(CRLF(text) + "\r\n")
}

func (s *WriterSink) write(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Terminal output is best effort; a closed writer ends the session elsewhere.
	_, _ = io.WriteString(s.w, text)
}
