// Package readstate derives per-conversation and aggregate unread counts.
package readstate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/feed"
	"chat-sync/internal/logging"
	"chat-sync/internal/observability"
	"chat-sync/internal/view"
)

// ConversationUnread is one conversation's unread tally for the local user.
type ConversationUnread struct {
	ConversationID string `json:"conversation_id"`
	Unread         int    `json:"unread"`
}

// Tracker computes unread counts by replaying conversation feeds through
// transient views.
type Tracker struct {
	feed          feed.Feed
	workers       int
	settleTimeout time.Duration
	log           zerolog.Logger
}

// NewTracker builds a tracker with a bounded fan-out width.
func NewTracker(f feed.Feed, workers int, settleTimeout time.Duration) *Tracker {
	if workers <= 0 {
		workers = 8
	}
	if settleTimeout <= 0 {
		settleTimeout = 10 * time.Second
	}
	return &Tracker{
		feed:          f,
		workers:       workers,
		settleTimeout: settleTimeout,
		log:           logging.Component("readstate"),
	}
}

// CountUnread recomputes the view's unread count. No caching across
// mutations.
func (t *Tracker) CountUnread(v *view.View) int {
	return v.UnreadCount()
}

// Aggregate opens a transient view per conversation, waits for each feed
// to settle, and collects unread counts. Fan-out is bounded by the
// tracker's worker limit. A failing conversation is logged, counted, and
// omitted; it never aborts the pass. Results keep the input order of the
// conversations that succeeded.
func (t *Tracker) Aggregate(ctx context.Context, selfID string, conversationIDs []string) ([]ConversationUnread, error) {
	ctx, span := otel.Tracer("chat-sync/readstate").Start(ctx, "readstate.aggregate")
	defer span.End()

	sem := make(chan struct{}, t.workers)
	results := make([]*ConversationUnread, len(conversationIDs))
	done := make(chan int, len(conversationIDs))

	for i, id := range conversationIDs {
		go func(i int, id string) {
			defer func() { done <- i }()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			count, err := t.countOne(ctx, selfID, id)
			if err != nil {
				observability.IncAggregateFailure()
				t.log.Warn().Err(err).Str("conversation_id", id).Msg("unread check failed, skipping conversation")
				return
			}
			results[i] = &ConversationUnread{ConversationID: id, Unread: count}
		}(i, id)
	}

	for range conversationIDs {
		<-done
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]ConversationUnread, 0, len(conversationIDs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// countOne replays a single conversation without auto-read so existing
// unread messages stay unread.
func (t *Tracker) countOne(ctx context.Context, selfID, conversationID string) (int, error) {
	v, err := view.Open(ctx, t.feed, view.Config{
		ConversationID: conversationID,
		SelfID:         selfID,
	})
	if err != nil {
		return 0, fmt.Errorf("open view: %w", err)
	}
	defer v.Close()

	select {
	case <-v.Settled():
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(t.settleTimeout):
		return 0, fmt.Errorf("feed did not settle within %s", t.settleTimeout)
	}

	return v.UnreadCount(), nil
}

// Badge is the number of conversations holding at least one unread
// message, not the sum of unread counts.
func Badge(counts []ConversationUnread) int {
	badge := 0
	for _, c := range counts {
		if c.Unread > 0 {
			badge++
		}
	}
	return badge
}
