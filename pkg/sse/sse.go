// Package sse streams hub frames to browsers that cannot hold a websocket,
// as Server-Sent Events.
//
//	frames, cancel := hub.Subscribe(userID)
//	defer cancel()
//	sse.Pipe(w, r, frames, 25*time.Second)
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnsupported means the ResponseWriter cannot flush.
var ErrUnsupported = errors.New("sse: streaming not supported")

// Stream is one open event stream.
type Stream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
	closed  bool
}

// New sets the event-stream headers. It answers 500 and returns nil when the
// ResponseWriter cannot flush.
func New(w http.ResponseWriter, r *http.Request) *Stream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, ErrUnsupported.Error(), http.StatusInternalServerError)
		return nil
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, r: r, flusher: flusher}
}

// Send writes a named event with a JSON payload.
func (s *Stream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	return s.write(event, payload)
}

func (s *Stream) write(event string, payload []byte) error {
	if s == nil || s.IsClosed() {
		return nil
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		s.closed = true
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment writes a comment line, used as a keepalive.
func (s *Stream) Comment(msg string) {
	if s == nil || s.IsClosed() {
		return
	}
	fmt.Fprintf(s.w, ": %s\n\n", msg)
	s.flusher.Flush()
}

// IsClosed reports whether the client has gone away.
func (s *Stream) IsClosed() bool {
	if s == nil {
		return true
	}
	select {
	case <-s.r.Context().Done():
		s.closed = true
	default:
	}
	return s.closed
}

// Pipe relays JSON frames from frames until the client disconnects or frames
// is closed. The event name is taken from the frame's "type" field. A
// comment is sent every heartbeat to keep proxies from timing out.
func Pipe(w http.ResponseWriter, r *http.Request, frames <-chan []byte, heartbeat time.Duration) error {
	s := New(w, r)
	if s == nil {
		return ErrUnsupported
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.write(eventName(frame), frame); err != nil {
				return err
			}
		case <-ticker.C:
			s.Comment("ping")
		}
	}
}

func eventName(frame []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(frame, &head) != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}
