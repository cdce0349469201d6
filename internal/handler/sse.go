package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// eventStream writes server-sent events. All writes must come from the
// handler goroutine.
type eventStream struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func startEventStream(w http.ResponseWriter) (*eventStream, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &eventStream{w: w, rc: http.NewResponseController(w)}
	if err := s.rc.Flush(); err != nil {
		return nil, fmt.Errorf("handler: streaming unsupported: %w", err)
	}
	return s, nil
}

// send writes one event with a JSON payload.
func (s *eventStream) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("handler: encoding %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	return s.rc.Flush()
}

// EndOnShutdown cancels the request context once stop is done. Event streams
// only return when their context ends.
func EndOnShutdown(stop context.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithCancel(r.Context())
			defer cancel()
			detach := context.AfterFunc(stop, cancel)
			defer detach()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
