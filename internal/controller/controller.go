// Package controller owns the conversation list and per-conversation
// view lifecycle for one user session.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"chat-sync/internal/auth"
	"chat-sync/internal/feed"
	"chat-sync/internal/logging"
	"chat-sync/internal/metadata"
	"chat-sync/internal/models"
	"chat-sync/internal/readstate"
	"chat-sync/internal/view"
)

var ErrClosed = errors.New("controller closed")

// Controller enumerates the user's conversations, opens live views for
// active screens, and aggregates unread state into the badge count.
type Controller struct {
	session auth.Session
	meta    metadata.Service
	feed    feed.Feed
	tracker *readstate.Tracker
	log     zerolog.Logger

	mu     sync.Mutex
	open   map[string]*view.View
	closed bool
}

// New binds a controller to one authenticated session.
func New(session auth.Session, meta metadata.Service, f feed.Feed, tracker *readstate.Tracker) *Controller {
	return &Controller{
		session: session,
		meta:    meta,
		feed:    f,
		tracker: tracker,
		log:     logging.Component("controller").With().Str("user_id", session.UserID).Logger(),
		open:    make(map[string]*view.View),
	}
}

// List fetches the user's conversations ordered by last activity,
// newest first.
func (c *Controller) List(ctx context.Context) ([]models.Conversation, error) {
	conversations, err := c.meta.Conversations(ctx, c.session)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageTimestamp > conversations[j].LastMessageTimestamp
	})
	return conversations, nil
}

// OpenView returns the live view for a conversation, creating it with
// seen-on-delivery semantics on first open. At most one live view exists
// per conversation per controller.
func (c *Controller) OpenView(ctx context.Context, conversationID string) (*view.View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if v, ok := c.open[conversationID]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := view.Open(ctx, c.feed, view.Config{
		ConversationID: conversationID,
		SelfID:         c.session.UserID,
		AutoRead:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("open conversation %s: %w", conversationID, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		v.Close()
		return nil, ErrClosed
	}
	if existing, ok := c.open[conversationID]; ok {
		// Lost the race with a concurrent open.
		c.mu.Unlock()
		v.Close()
		return existing, nil
	}
	c.open[conversationID] = v
	c.mu.Unlock()
	return v, nil
}

// View returns the live view for a conversation without opening one.
func (c *Controller) View(conversationID string) (*view.View, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.open[conversationID]
	return v, ok
}

// CloseView tears down the live view for a conversation, if any.
func (c *Controller) CloseView(conversationID string) {
	c.mu.Lock()
	v, ok := c.open[conversationID]
	delete(c.open, conversationID)
	c.mu.Unlock()
	if ok {
		v.Close()
	}
}

// Badge runs an aggregation pass over the user's conversation list and
// returns the badge count with the per-conversation tallies behind it.
func (c *Controller) Badge(ctx context.Context) (int, []readstate.ConversationUnread, error) {
	conversations, err := c.List(ctx)
	if err != nil {
		return 0, nil, err
	}
	ids := make([]string, 0, len(conversations))
	for _, conv := range conversations {
		ids = append(ids, conv.ID)
	}

	counts, err := c.tracker.Aggregate(ctx, c.session.UserID, ids)
	if err != nil {
		return 0, nil, err
	}
	return readstate.Badge(counts), counts, nil
}

// Session exposes the bound session for collaborators acting on the
// controller's behalf.
func (c *Controller) Session() auth.Session { return c.session }

// Close tears down every live view.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	views := make([]*view.View, 0, len(c.open))
	for _, v := range c.open {
		views = append(views, v)
	}
	c.open = map[string]*view.View{}
	c.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}
