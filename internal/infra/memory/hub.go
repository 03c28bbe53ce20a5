package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

const subscriberBuffer = 8

// Hub is an in-process app.Notifier.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Snapshot]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Snapshot]struct{})}
}

// Subscribe registers a buffered channel for a quiz's snapshots.
func (h *Hub) Subscribe(_ context.Context, quizID string) (<-chan domain.Snapshot, func(), error) {
	ch := make(chan domain.Snapshot, subscriberBuffer)

	h.mu.Lock()
	subs, ok := h.subscribers[quizID]
	if !ok {
		subs = make(map[chan domain.Snapshot]struct{})
		h.subscribers[quizID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[quizID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, quizID)
		}
	}
	return ch, cancel, nil
}

// Publish delivers a snapshot to every subscriber of its quiz. A full buffer
// loses its oldest snapshot.
func (h *Hub) Publish(_ context.Context, snapshot domain.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[snapshot.QuizID] {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}

// Subscribers counts live subscriptions for a quiz.
func (h *Hub) Subscribers(quizID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[quizID])
}
