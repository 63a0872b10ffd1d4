// Package events fans a single run's ProgressEvent stream out to any
// number of subscribers (an SSE/WebSocket handler, an audit sink, a test
// assertion) without coupling pkg/pipeline to a transport.
//
// Grounded on the teacher's events/manager.go connection-manager shape,
// simplified from a cross-pod Postgres LISTEN/NOTIFY fanout to a single-
// process in-memory one: this system's progress stream is scoped to one
// orchestrator process handling one run end to end (spec §2), so the
// cross-pod bus the teacher needed for multi-replica alert sessions has
// no job here.
package events

import (
	"sync"

	"github.com/albarami/qnwis/pkg/models"
)

// Hub attaches a run's upstream event channel and republishes every event
// to each currently-subscribed reader.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan models.ProgressEvent]struct{}
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan models.ProgressEvent]struct{})}
}

// Subscribe returns a channel that receives every event published for
// requestID from this point on, and an unsubscribe func the caller must
// call when done reading (typically via defer).
func (h *Hub) Subscribe(requestID string) (<-chan models.ProgressEvent, func()) {
	ch := make(chan models.ProgressEvent, 8)

	h.mu.Lock()
	if h.subs[requestID] == nil {
		h.subs[requestID] = make(map[chan models.ProgressEvent]struct{})
	}
	h.subs[requestID][ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[requestID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, requestID)
			}
		}
	}
	return ch, unsubscribe
}

// Attach drains upstream (typically a pipeline.Driver.Run result) until
// it closes, republishing every event to every current subscriber of
// requestID, then closes every subscriber channel and forgets requestID.
// Intended to be run in its own goroutine by the caller that started the
// run.
func (h *Hub) Attach(requestID string, upstream <-chan models.ProgressEvent) {
	for ev := range upstream {
		h.publish(requestID, ev)
	}
	h.closeAll(requestID)
}

func (h *Hub) publish(requestID string, ev models.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[requestID] {
		select {
		case ch <- ev:
		default:
			// A stalled subscriber does not block the run or its siblings;
			// it simply misses events until it catches up.
		}
	}
}

func (h *Hub) closeAll(requestID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[requestID] {
		close(ch)
	}
	delete(h.subs, requestID)
}
