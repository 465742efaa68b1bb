package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/hupe1980/agentrelay/core"
)

const maxLineSize = 1024 * 1024

// ScanNDJSON reads newline-delimited frames from body in a goroutine. Blank
// lines are skipped. Both returned channels are closed when the body is
// exhausted, fails or ctx is cancelled; body is always closed. A cancelled
// ctx is not reported as an error.
func ScanNDJSON(ctx context.Context, body io.ReadCloser, format core.FrameFormat) (<-chan core.Frame, <-chan error) {
	frames := make(chan core.Frame)
	errs := make(chan error, 1)

	// Close the body on cancellation to unblock the scanner.
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })

	go func() {
		defer close(errs)
		defer close(frames)
		defer func() {
			stop()
			_ = body.Close()
		}()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			frame := core.Frame{Format: format, Data: bytes.Clone(line)}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- core.Upstream("stream.ScanNDJSON", fmt.Errorf("read stream: %w", err))
		}
	}()

	return frames, errs
}
