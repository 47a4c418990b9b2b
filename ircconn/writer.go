package ircconn

import (
	"fmt"
	"io"
	"sync"
	"time"

	"drastik.org/drastikbot/ircmsg"
)

// Writer serializes writes to the socket behind a mutex (§4.3, §5): at
// most one task writes at a time, and the msg_delay sleep between
// continuation parts of an oversized message runs while holding the
// mutex, so other senders queue up rather than interleave.
type Writer struct {
	mu       sync.Mutex
	w        io.Writer
	MsgLen   int
	MsgDelay time.Duration
}

func newWriter(w io.Writer) *Writer {
	return NewWriter(w)
}

// NewWriter wraps w as a serialized Wire writer with the documented
// defaults (MsgLen 400, MsgDelay 1s). Exposed for tests and for callers
// that already have a raw io.Writer (e.g. a module test harness).
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, MsgLen: 400, MsgDelay: time.Second}
}

// Send builds and transmits cmds/text per §4.3: strip CR/LF, assemble
// the line, split it if it exceeds MsgLen, and write each resulting
// line with a trailing CRLF, pacing multi-line sends by MsgDelay.
func (w *Writer) Send(cmds []string, text string, hasText bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !hasText {
		line := ircmsg.Build(cmds, "", false)
		return w.writeLine(line)
	}

	full := ircmsg.Build(cmds, text, true)
	if len(full) <= w.MsgLen {
		return w.writeLine(full)
	}

	cleanText := full[len(ircmsg.Build(cmds, "", false))+2:]
	lines := ircmsg.Split(cmds, cleanText, w.MsgLen)
	for i, line := range lines {
		if err := w.writeLine(line); err != nil {
			return err
		}
		if i < len(lines)-1 {
			time.Sleep(w.MsgDelay)
		}
	}
	return nil
}

// SendRaw writes a single pre-assembled wire line (no further
// splitting), for callers that already batch multiple commands worth
// of content into one line themselves (e.g. a multi-channel JOIN built
// by ircmsg.BuildJoins).
func (w *Writer) SendRaw(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLine(line)
}

func (w *Writer) writeLine(line string) error {
	if _, err := io.WriteString(w.w, line+"\r\n"); err != nil {
		return fmt.Errorf("ircconn: write: %w", err)
	}
	return nil
}
