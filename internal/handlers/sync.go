package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/composer"
	"chat-sync/internal/controller"
	"chat-sync/internal/metadata"
	"chat-sync/internal/middleware"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/telemetry"
	"chat-sync/internal/view"
)

// SyncHandler exposes the conversation list, message snapshots, sends,
// and the unread badge over HTTP.
type SyncHandler struct {
	registry      *controller.Registry
	composer      *composer.Composer
	meta          metadata.Service
	emitter       *telemetry.AuditEmitter
	settleTimeout time.Duration
}

// NewSyncHandler builds a SyncHandler.
func NewSyncHandler(registry *controller.Registry, cp *composer.Composer, meta metadata.Service, emitter *telemetry.AuditEmitter, settleTimeout time.Duration) *SyncHandler {
	if settleTimeout <= 0 {
		settleTimeout = 10 * time.Second
	}
	return &SyncHandler{
		registry:      registry,
		composer:      cp,
		meta:          meta,
		emitter:       emitter,
		settleTimeout: settleTimeout,
	}
}

// ListConversations returns the user's conversations, newest activity
// first.
func (h *SyncHandler) ListConversations(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	conversations, err := h.registry.For(session).List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load conversations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

type messageEntry struct {
	models.Message
	StartsGroup bool   `json:"starts_group"`
	DateLabel   string `json:"date_label,omitempty"`
}

// GetMessages opens (or reuses) the live view for a conversation, waits
// for the feed backlog to settle, and returns the ordered snapshot with
// date-break group markers. The view stays open until ExitConversation.
func (h *SyncHandler) GetMessages(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	conversationID := c.Param("conversation_id")

	ctl := h.registry.For(session)
	v, err := ctl.OpenView(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "feed unavailable"})
		return
	}

	select {
	case <-v.Settled():
	case <-c.Request.Context().Done():
		return
	case <-time.After(h.settleTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "feed did not settle"})
		return
	}

	participant, err := h.meta.Participant(c.Request.Context(), session, conversationID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load participant"})
		return
	}

	msgs := v.Messages()
	entries := make([]messageEntry, 0, len(msgs))
	for i, msg := range msgs {
		entry := messageEntry{Message: msg, StartsGroup: view.StartsNewGroup(msgs, i)}
		if entry.StartsGroup {
			entry.DateLabel = view.DateLabel(msg.Timestamp)
		}
		entries = append(entries, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"participant": participant,
		"messages":    entries,
		"unread":      v.UnreadCount(),
	})
}

// PostMessage appends a user-authored message to the conversation feed.
func (h *SyncHandler) PostMessage(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	conversationID := c.Param("conversation_id")

	var req struct {
		ReceiverID string `json:"receiver_id" binding:"required"`
		Body       string `json:"body"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := h.composer.Send(c.Request.Context(), session, conversationID, req.ReceiverID, req.Body)
	if errors.Is(err, composer.ErrEmptyBody) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message body is empty"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to send message"})
		return
	}

	requestID := requestIDFromContext(c)
	h.emitter.Emit(c.Request.Context(), "INFO", "message sent", requestID, session.UserID)
	_ = observability.PublishEvent(c.Request.Context(), observability.RoutingKeyMessages, observability.EventEnvelope{
		EventType: "message_events",
		EventName: "message_sent",
		Payload: map[string]interface{}{
			"conversation_id": conversationID,
			"key":             key,
			"sender_id":       session.UserID,
		},
	}, observability.BuildHeaders(requestID, ""))
	c.JSON(http.StatusCreated, gin.H{"key": key})
}

// ExitConversation finalizes the conversation summary and closes its
// live view. Exiting a conversation with no open view is a no-op.
func (h *SyncHandler) ExitConversation(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}
	conversationID := c.Param("conversation_id")

	ctl := h.registry.For(session)
	v, open := ctl.View(conversationID)
	if open {
		// Best effort: a failed summary sync self-corrects on the
		// next exit.
		_ = h.composer.FinalizeOnExit(c.Request.Context(), session, v)
		ctl.CloseView(conversationID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Badge returns the number of conversations with unread messages.
func (h *SyncHandler) Badge(c *gin.Context) {
	session, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return
	}

	badge, counts, err := h.registry.For(session).Badge(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to compute badge"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"badge": badge, "conversations": counts})
}
