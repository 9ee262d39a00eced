// Package diag provides the diagnostic text channel that answering services
// write free-form progress and similarity lines to, and a scoped capture of
// that channel for the duration of one call.
package diag

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrCaptureActive is returned when a capture is requested while another
// capture on the same channel has not been released yet.
var ErrCaptureActive = errors.New("diagnostic capture already active")

// Channel is an io.Writer whose destination can be temporarily redirected.
// It is safe for concurrent writers.
type Channel struct {
	mu        sync.Mutex
	dst       io.Writer
	capturing bool
}

// NewChannel returns a channel writing to dst. A nil dst discards output.
func NewChannel(dst io.Writer) *Channel {
	if dst == nil {
		dst = io.Discard
	}
	return &Channel{dst: dst}
}

func (c *Channel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dst.Write(p)
}

// Printf writes a formatted line to the channel, appending a newline when
// the format lacks one. Write errors are dropped.
func (c *Channel) Printf(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	if len(s) == 0 || s[len(s)-1] != '\n' {
		s += "\n"
	}
	_, _ = io.WriteString(c, s)
}

// Capturing reports whether a capture is currently open.
func (c *Channel) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Capture redirects the channel into a buffer while fn runs and returns
// everything written in that window together with fn's error. The previous
// destination is restored on every exit path, including a panic in fn,
// which is re-raised after restoration.
//
// Captures do not nest: if one is already open, Capture returns
// ErrCaptureActive without calling fn.
func (c *Channel) Capture(fn func() error) (string, error) {
	var buf bytes.Buffer

	c.mu.Lock()
	if c.capturing {
		c.mu.Unlock()
		return "", ErrCaptureActive
	}
	prev := c.dst
	c.dst = &buf
	c.capturing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.dst = prev
		c.capturing = false
		c.mu.Unlock()
	}()

	err := fn()

	c.mu.Lock()
	out := buf.String()
	c.mu.Unlock()
	return out, err
}
