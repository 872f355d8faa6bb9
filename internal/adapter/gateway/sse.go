package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const doneFrame = `{"ResponseDone":true}`

// sseWriter owns the response body of one stream. It is used from the
// handler goroutine only.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	pacing  time.Duration
	frames  int
}

// newSSEWriter writes the event-stream headers and the 200 status.
func newSSEWriter(w http.ResponseWriter, pacing time.Duration) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher, pacing: pacing}, nil
}

// WriteEvent frames v as JSON. Between frames it waits for the pacing
// delay, returning early when ctx ends.
func (s *sseWriter) WriteEvent(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if s.frames > 0 && s.pacing > 0 {
		t := time.NewTimer(s.pacing)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	return s.write(data)
}

// WriteDone writes the stream terminator.
func (s *sseWriter) WriteDone() error {
	return s.write([]byte(doneFrame))
}

func (s *sseWriter) write(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.frames++
	s.flusher.Flush()
	return nil
}
