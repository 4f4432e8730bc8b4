package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/openevals/benchforge/internal/collect"
)

// eventStream fans pipeline stage transitions out to the SSE clients on
// /api/events. A client that cannot keep up is dropped instead of stalling
// the pipeline's notify callback.
type eventStream struct {
	mu      sync.Mutex
	clients map[chan collect.Event]struct{}
}

func newEventStream() *eventStream {
	return &eventStream{clients: make(map[chan collect.Event]struct{})}
}

func (es *eventStream) subscribe() chan collect.Event {
	ch := make(chan collect.Event, 16)
	es.mu.Lock()
	es.clients[ch] = struct{}{}
	es.mu.Unlock()
	return ch
}

func (es *eventStream) unsubscribe(ch chan collect.Event) {
	es.mu.Lock()
	if _, ok := es.clients[ch]; ok {
		delete(es.clients, ch)
		close(ch)
	}
	es.mu.Unlock()
}

func (es *eventStream) publish(ev collect.Event) {
	es.mu.Lock()
	for ch := range es.clients {
		select {
		case ch <- ev:
		default:
			delete(es.clients, ch)
			close(ch)
		}
	}
	es.mu.Unlock()
}

// eventsHandler streams stage transitions as "stage" server-sent events
// until the client disconnects.
func (s *Server) eventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		ch := s.events.subscribe()
		defer s.events.unsubscribe(ch)

		for {
			select {
			case <-r.Context().Done():
				return
			case ev, open := <-ch:
				if !open {
					return
				}
				data, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: stage\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
