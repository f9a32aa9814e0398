package feed

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"chat-sync/internal/models"
)

// MemoryFeed is an in-process Feed used by tests and local runs. It
// replays the full per-conversation backlog to every new subscriber and
// then delivers live appends in arrival order.
type MemoryFeed struct {
	mu   sync.Mutex
	logs map[string][]models.Message
	subs map[string]map[*Subscription]struct{}
}

// NewMemoryFeed creates an empty in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{
		logs: make(map[string][]models.Message),
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe replays the current backlog, signals settle, then streams
// live appends until the subscription is closed.
func (f *MemoryFeed) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var sub *Subscription
	sub = newSubscription(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if set, ok := f.subs[conversationID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(f.subs, conversationID)
			}
		}
	})

	for _, msg := range f.logs[conversationID] {
		sub.enqueue(Event{Key: msg.Key, Message: msg})
	}
	sub.markSettled()

	if _, ok := f.subs[conversationID]; !ok {
		f.subs[conversationID] = make(map[*Subscription]struct{})
	}
	f.subs[conversationID][sub] = struct{}{}
	return sub, nil
}

// Append assigns a key, stores the message, and fans it out to live
// subscribers.
func (f *MemoryFeed) Append(ctx context.Context, conversationID string, msg models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg.Key = uuid.NewString()
	f.logs[conversationID] = append(f.logs[conversationID], msg)
	for sub := range f.subs[conversationID] {
		sub.enqueue(Event{Key: msg.Key, Message: msg})
	}
	return msg.Key, nil
}

// MarkRead flips the read flag on a stored message.
func (f *MemoryFeed) MarkRead(ctx context.Context, conversationID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	log, ok := f.logs[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	for i := range log {
		if log[i].Key == key {
			log[i].Read = true
			return nil
		}
	}
	return ErrMessageNotFound
}

var _ Feed = (*MemoryFeed)(nil)
