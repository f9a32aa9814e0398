// Package composer handles outbound messages and conversation-summary
// sync.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/auth"
	"chat-sync/internal/feed"
	"chat-sync/internal/logging"
	"chat-sync/internal/metadata"
	"chat-sync/internal/models"
	"chat-sync/internal/view"
)

var ErrEmptyBody = errors.New("message body is empty")

// Composer appends user-authored messages to the feed. There is no local
// echo: the sender's own view observes the message through the same feed
// subscription as the receiver's.
type Composer struct {
	feed feed.Feed
	meta metadata.Service
	log  zerolog.Logger

	now func() time.Time
}

// New builds a composer.
func New(f feed.Feed, meta metadata.Service) *Composer {
	return &Composer{
		feed: f,
		meta: meta,
		log:  logging.Component("composer"),
		now:  time.Now,
	}
}

// Send validates and appends a message, returning its feed-assigned key.
// A body that trims to empty is rejected before any network call.
func (c *Composer) Send(ctx context.Context, session auth.Session, conversationID, receiverID, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", ErrEmptyBody
	}

	msg := models.Message{
		SenderID:   session.UserID,
		ReceiverID: receiverID,
		Body:       body,
		Timestamp:  c.now().UnixMilli(),
		Read:       false,
	}
	key, err := c.feed.Append(ctx, conversationID, msg)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}
	return key, nil
}

// FinalizeOnExit pushes the conversation's last-message summary to the
// metadata service. Summaries sync on screen exit rather than per
// message to bound metadata write volume; callers treat failures as
// best-effort.
func (c *Composer) FinalizeOnExit(ctx context.Context, session auth.Session, v *view.View) error {
	last, ok := v.LastMessage()
	if !ok {
		return nil
	}
	if err := c.meta.PutSummary(ctx, session, v.ConversationID(), last.Body, last.Timestamp); err != nil {
		c.log.Warn().Err(err).Str("conversation_id", v.ConversationID()).Msg("summary sync failed")
		return fmt.Errorf("put summary: %w", err)
	}
	return nil
}
