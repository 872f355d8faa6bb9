package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"uiagent/internal/domain"
)

// maxStreamLine bounds a single SSE or NDJSON line.
const maxStreamLine = 1024 * 1024

// streamDecoder turns provider frames into normalized deltas for one turn.
type streamDecoder interface {
	// decode handles one payload. A nil delta means "nothing to emit yet".
	// A delta with Done or Err set ends the turn.
	decode(data []byte) (*domain.StreamDelta, error)
	// finish is called when the body ends without a done frame. terminated is
	// true when the transport carried an explicit end marker ([DONE]).
	// ok is false when the turn was cut short.
	finish(terminated bool) (delta *domain.StreamDelta, ok bool)
}

// frameFunc extracts a payload from one raw line. terminal reports an
// end-of-stream marker; ok is false for lines that carry nothing.
type frameFunc func(line []byte) (payload []byte, terminal, ok bool)

// sseFrame reads "data: ..." lines and treats "data: [DONE]" as the terminator.
func sseFrame(line []byte) ([]byte, bool, bool) {
	if len(line) == 0 || line[0] == ':' {
		return nil, false, false
	}
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false, false
	}
	data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if len(data) == 0 {
		return nil, false, false
	}
	if bytes.Equal(data, []byte("[DONE]")) {
		return nil, true, true
	}
	return data, false, true
}

// ndjsonFrame treats every non-blank line as one JSON document.
func ndjsonFrame(line []byte) ([]byte, bool, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, false, false
	}
	return line, false, true
}

// parseSSEStream pumps an SSE body through dec.
func parseSSEStream(ctx context.Context, body io.ReadCloser, dec streamDecoder, logger *slog.Logger, provider string) <-chan domain.StreamDelta {
	return pumpStream(ctx, body, sseFrame, dec, logger, provider)
}

// parseNDJSONStream pumps a newline-delimited JSON body through dec.
func parseNDJSONStream(ctx context.Context, body io.ReadCloser, dec streamDecoder, logger *slog.Logger, provider string) <-chan domain.StreamDelta {
	return pumpStream(ctx, body, ndjsonFrame, dec, logger, provider)
}

// pumpStream reads body line by line and forwards decoded deltas. The
// channel carries exactly one terminal delta (Done or Err) unless ctx is
// cancelled first, in which case it closes quietly. Malformed lines are
// logged and skipped. The body is always closed.
func pumpStream(ctx context.Context, body io.ReadCloser, frame frameFunc, dec streamDecoder, logger *slog.Logger, provider string) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		send := func(d domain.StreamDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			payload, terminal, ok := frame(scanner.Bytes())
			if !ok {
				continue
			}
			if terminal {
				if d, ok := dec.finish(true); ok {
					send(*d)
				}
				return
			}

			delta, err := dec.decode(payload)
			if err != nil {
				logger.Debug("skipping malformed stream line",
					"provider", provider,
					"error", err,
				)
				continue
			}
			if delta == nil {
				continue
			}
			if !send(*delta) {
				return
			}
			if delta.Done || delta.Err != nil {
				return
			}
		}

		if ctx.Err() != nil {
			return
		}
		if err := scanner.Err(); err != nil {
			send(domain.StreamDelta{Err: fmt.Errorf("%w: read stream: %v", domain.ErrProviderError, err)})
			return
		}
		if d, ok := dec.finish(false); ok {
			send(*d)
			return
		}
		send(domain.StreamDelta{Err: fmt.Errorf("%w: stream ended before done", domain.ErrProviderError)})
	}()
	return ch
}
