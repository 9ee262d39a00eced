package collab

import (
	"context"
	"fmt"

	"github.com/kalambet/secureguard/internal/diag"
	"github.com/kalambet/secureguard/internal/similarity"
)

// Capturing wraps a backend that reports similarity only by printing
// "Score: ... | Content Preview: ..." lines to a diagnostic channel. The
// channel is captured for the duration of each call and parsed into
// Result.Diagnostics when the backend did not return typed ones.
//
// Calls are serialized: a second caller waits for the channel until the
// first capture is released or ctx is done.
type Capturing struct {
	inner Collaborator
	ch    *diag.Channel
	slot  chan struct{}
}

// NewCapturing returns a Capturing adapter around inner listening on ch.
func NewCapturing(inner Collaborator, ch *diag.Channel) *Capturing {
	return &Capturing{inner: inner, ch: ch, slot: make(chan struct{}, 1)}
}

func (c *Capturing) Answer(ctx context.Context, query string) (Result, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-c.slot }()

	var res Result
	captured, err := c.ch.Capture(func() error {
		var err error
		res, err = c.inner.Answer(ctx, query)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if len(res.Diagnostics) == 0 && captured != "" {
		res.Diagnostics = similarity.Parse(captured)
	}
	return res, nil
}

// PanicError is returned by Guarded when the backend panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("answering service panicked: %v", e.Value)
}

// Guarded converts a panic inside the wrapped backend into a *PanicError so
// a faulty backend fails one turn instead of the session.
func Guarded(inner Collaborator) Collaborator {
	return guarded{inner: inner}
}

type guarded struct {
	inner Collaborator
}

func (g guarded) Answer(ctx context.Context, query string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, &PanicError{Value: r}
		}
	}()
	return g.inner.Answer(ctx, query)
}
