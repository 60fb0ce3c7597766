package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ledger/internal/cache"
)

// heartbeatInterval keeps idle event streams open through proxies.
var heartbeatInterval = 15 * time.Second

func writeEvent(w io.Writer, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// startStream writes the event-stream headers. It fails when the writer
// cannot flush.
func startStream(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		InternalError("streaming unsupported").Send(w)
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

// streamView sends every value of sub as a Server-Sent Event until the client
// goes away, the subscription closes or done is closed.
func streamView[T any](w http.ResponseWriter, r *http.Request, done <-chan struct{}, event string, sub *cache.Subscription[T]) {
	defer sub.Close()
	flusher, ok := startStream(w)
	if !ok {
		return
	}

	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(w, event, v); err != nil {
				return
			}
			flusher.Flush()
		case <-ping.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
