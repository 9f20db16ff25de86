// Package updates fans out per-user change notifications to server-sent
// event streams, in process and optionally across instances through Redis.
package updates

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"coinfolio/internal/logger"
)

// EventProfileUpdate tells a client its balance, holdings or transactions
// changed and it should refetch its profile.
const EventProfileUpdate = "profile_update"

// Event is one notification for one user.
type Event struct {
	UserID string `json:"user_id"`
	Name   string `json:"event"`
}

// Publisher sends events to a user's subscribers.
type Publisher interface {
	Publish(ctx context.Context, userID, event string) error
}

const subscriberBuffer = 8

// Hub delivers events to subscribers in this process. Sends never block: a
// subscriber whose buffer is full misses the event, which is harmless because
// every event means "refetch".
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
	log  *zap.SugaredLogger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan Event]struct{}),
		log:  logger.Named("updates"),
	}
}

// Subscribe registers a subscriber for userID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish implements Publisher for local delivery.
func (h *Hub) Publish(_ context.Context, userID, event string) error {
	h.deliver(Event{UserID: userID, Name: event})
	return nil
}

func (h *Hub) deliver(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[e.UserID] {
		select {
		case ch <- e:
		default:
			h.log.Debugw("dropping event for slow subscriber", "user_id", e.UserID, "event", e.Name)
		}
	}
}

// Subscribers returns the number of live subscribers for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
