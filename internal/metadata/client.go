// Package metadata is the request/response client for the external
// conversation-metadata service.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/auth"
	"chat-sync/internal/logging"
	"chat-sync/internal/models"
)

var (
	ErrUnauthorized = errors.New("metadata: unauthorized")
	ErrNotFound     = errors.New("metadata: not found")
)

// Service is the metadata surface the sync engine consumes.
type Service interface {
	// Me resolves a bearer token to the local user's summary.
	Me(ctx context.Context, token string) (models.Participant, error)

	// Conversations lists the user's conversations.
	Conversations(ctx context.Context, session auth.Session) ([]models.Conversation, error)

	// Participant returns the peer participant of a conversation.
	Participant(ctx context.Context, session auth.Session, conversationID string) (models.Participant, error)

	// PutSummary updates a conversation's last-message preview fields.
	PutSummary(ctx context.Context, session auth.Session, conversationID, preview string, timestamp int64) error
}

// Client talks JSON over HTTP with bearer auth taken from the explicit
// session.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     zerolog.Logger
}

// NewClient builds a metadata client. timeout bounds each call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		log:     logging.Component("metadata"),
	}
}

func (c *Client) Me(ctx context.Context, token string) (models.Participant, error) {
	var me models.Participant
	err := c.do(ctx, http.MethodGet, "/me", token, nil, nil, &me)
	return me, err
}

func (c *Client) Conversations(ctx context.Context, session auth.Session) ([]models.Conversation, error) {
	var conversations []models.Conversation
	query := url.Values{"userID": {session.UserID}}
	err := c.do(ctx, http.MethodGet, "/chats", session.Token, query, nil, &conversations)
	return conversations, err
}

func (c *Client) Participant(ctx context.Context, session auth.Session, conversationID string) (models.Participant, error) {
	var participant models.Participant
	query := url.Values{"chatID": {conversationID}}
	err := c.do(ctx, http.MethodGet, "/chat/room", session.Token, query, nil, &participant)
	return participant, err
}

func (c *Client) PutSummary(ctx context.Context, session auth.Session, conversationID, preview string, timestamp int64) error {
	body := map[string]any{
		"chatID":      conversationID,
		"lastMessage": preview,
		"timestamp":   timestamp,
	}
	return c.do(ctx, http.MethodPut, "/chat", session.Token, nil, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("metadata: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("metadata: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("metadata: %s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("metadata: decode %s %s: %w", method, path, err)
	}
	return nil
}

var _ Service = (*Client)(nil)
