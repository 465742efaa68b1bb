package stream

import (
	"context"
	"io"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// Reader turns a provider frame stream into deltas. It is Open until the
// first terminal frame, the close of the frame channel, an upstream error or
// Close. Once Closed every Next call returns io.EOF, or the error that closed
// it, and no further frame is read. Only a terminal frame ends the stream
// cleanly: a frame channel that closes before one yields an error wrapping
// core.ErrUpstream.
//
// A Reader is not safe for concurrent use. Cancel the context passed to Next
// to abort a stream from another goroutine.
type Reader struct {
	frames <-chan core.Frame
	errs   <-chan error

	cancelOnce sync.Once
	cancel     context.CancelFunc

	closed bool
	err    error
}

// NewReader creates a Reader over the given channels. cancel aborts the
// upstream request and may be nil.
func NewReader(frames <-chan core.Frame, errs <-chan error, cancel context.CancelFunc) *Reader {
	return &Reader{frames: frames, errs: errs, cancel: cancel}
}

// Next returns the next delta. It returns io.EOF after a terminal frame and
// the upstream or normalization error otherwise.
func (r *Reader) Next(ctx context.Context) (Delta, error) {
	for {
		if r.closed {
			if r.err != nil {
				return Delta{}, r.err
			}
			return Delta{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			r.fail(err)
			continue
		}

		select {
		case <-ctx.Done():
			r.fail(ctx.Err())
		case err, ok := <-r.errs:
			if !ok {
				r.errs = nil // frames may still be pending
				continue
			}
			if err != nil {
				r.fail(err)
			}
		case frame, ok := <-r.frames:
			if !ok {
				r.drainErr(ctx)
				if r.err == nil {
					r.err = core.NewError("stream.Reader.Next", core.ErrUpstream, "stream ended without finish")
				}
				r.finish()
				continue
			}
			d, terminal, err := normalize(frame)
			if err != nil {
				r.fail(err)
				continue
			}
			if terminal {
				r.finish()
			}
			if d != nil {
				return *d, nil
			}
		}
	}
}

// Close stops the stream and cancels the upstream request. It is idempotent.
func (r *Reader) Close() {
	r.closed = true
	r.doCancel()
}

// Err returns the error that closed the reader, if any.
func (r *Reader) Err() error { return r.err }

// drainErr picks up an error sent just before the frame channel closed.
func (r *Reader) drainErr(ctx context.Context) {
	if r.errs == nil {
		return
	}
	select {
	case err, ok := <-r.errs:
		if ok && err != nil {
			r.err = err
		}
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	r.errs = nil
}

func (r *Reader) finish() {
	r.closed = true
	r.doCancel()
}

func (r *Reader) fail(err error) {
	r.err = err
	r.finish()
}

func (r *Reader) doCancel() {
	r.cancelOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}
