// Package feed adapts the append-only per-conversation message log. The
// feed delivers events in best-effort arrival order, at least once per
// subscriber; consumers own ordering and deduplication.
package feed

import (
	"context"
	"errors"

	"chat-sync/internal/models"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// Event is one raw append observed on a conversation's feed. A Settle
// event carries no message; it marks the end of the backlog that existed
// at subscribe time and is delivered after every backlog event.
type Event struct {
	Key     string
	Message models.Message
	Settle  bool
}

// Feed is the stream backend: push subscription per conversation, point
// append, and a point patch that only ever flips the read flag. Appends
// and patches are atomic per key; there is no cross-key transaction.
type Feed interface {
	// Subscribe opens a live subscription on a conversation. The caller
	// must Close it on every exit path or the underlying listener leaks.
	Subscribe(ctx context.Context, conversationID string) (*Subscription, error)

	// Append stores a message and returns its server-assigned key.
	Append(ctx context.Context, conversationID string, msg models.Message) (string, error)

	// MarkRead flips the read flag on a single message.
	MarkRead(ctx context.Context, conversationID, key string) error
}
