package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-sync/internal/feed"
	"chat-sync/internal/metadata"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/view"
)

// StreamHandler serves the live conversation stream: every mutation of
// the conversation's materialized view is pushed to the socket as an
// ordered snapshot.
type StreamHandler struct {
	hub  *Hub
	feed feed.Feed
	meta metadata.Service
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(hub *Hub, f feed.Feed, meta metadata.Service) *StreamHandler {
	return &StreamHandler{hub: hub, feed: f, meta: meta}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, opens a view over the conversation feed, and
// streams snapshots until the socket closes. Closing the socket tears
// the view and its feed subscription down.
func (h *StreamHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	ctx, span := otel.Tracer("chat-sync/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	session, err := resolveSession(c, h.meta, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	v, err := view.Open(ctx, h.feed, view.Config{
		ConversationID: conversationID,
		SelfID:         session.UserID,
		AutoRead:       true,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "feed unavailable"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		v.Close()
		return
	}

	traceID := span.SpanContext().TraceID().String()
	reqID := requestID(c.Request)
	info := ConnInfo{
		ConnID:         newConnID(),
		UserID:         session.UserID,
		ConversationID: conversationID,
		DeviceID:       deviceID(c.Request),
		IP:             clientIP(c.Request),
		RequestID:      reqID,
		TraceID:        traceID,
		ConnectedAt:    time.Now(),
	}
	h.hub.AddClient(conversationID, conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, observability.RoutingKeyWS, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   lifecyclePayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(reqID, traceID))

	done := make(chan struct{})

	// Snapshot writer: one send per coalesced mutation.
	go func() {
		select {
		case <-v.Settled():
		case <-done:
			return
		}
		if h.hub.WriteSync(conversationID, conn, snapshot(v, conversationID)) != nil {
			return
		}
		for {
			select {
			case <-v.Updates():
				if h.hub.WriteSync(conversationID, conn, snapshot(v, conversationID)) != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Reader: drains the socket until close, then cleans up.
	go func() {
		var closeReason string
		defer func() {
			close(done)
			v.Close()
			h.hub.RemoveClient(conversationID, conn)
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			_ = observability.PublishEvent(ctx, observability.RoutingKeyWS, observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload:   lifecyclePayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
			}, observability.BuildHeaders(reqID, traceID))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("ws_error")
				}
				return
			}
		}
	}()
}

func snapshot(v *view.View, conversationID string) models.SyncEvent {
	return models.SyncEvent{
		Type:           "sync",
		ConversationID: conversationID,
		Messages:       v.Messages(),
		Unread:         v.UnreadCount(),
	}
}

func lifecyclePayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"conversation_id": info.ConversationID,
			"event":           event,
			"conn_id":         info.ConnID,
			"duration_ms":     durationMS,
			"reason":          reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
