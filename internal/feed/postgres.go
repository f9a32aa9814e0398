package feed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"chat-sync/internal/logging"
	"chat-sync/internal/models"
)

const notifyChannel = "chat_sync_feed"

// PostgresFeed stores the append-only log in Postgres and tails live
// appends through LISTEN/NOTIFY. Reconnects trigger a backlog re-read,
// so subscribers may see duplicates; dedup is the consumer's job.
type PostgresFeed struct {
	db  *sqlx.DB
	dsn string
	log zerolog.Logger
}

// NewPostgresFeed wraps an open database handle. The DSN is needed
// separately because pq listeners dial their own connection.
func NewPostgresFeed(database *sqlx.DB, dsn string) *PostgresFeed {
	return &PostgresFeed{db: database, dsn: dsn, log: logging.Component("feed")}
}

type notifyPayload struct {
	ConversationID string `json:"conversation_id"`
	Key            string `json:"key"`
}

// Append inserts the message under a server-assigned key and notifies
// listeners.
func (f *PostgresFeed) Append(ctx context.Context, conversationID string, msg models.Message) (string, error) {
	msg.Key = uuid.NewString()
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO feed_messages (key, conversation_id, sender_id, receiver_id, body, ts, read)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.Key, conversationID, msg.SenderID, msg.ReceiverID, msg.Body, msg.Timestamp, msg.Read)
	if err != nil {
		return "", fmt.Errorf("append message: %w", err)
	}

	payload, _ := json.Marshal(notifyPayload{ConversationID: conversationID, Key: msg.Key})
	if _, err := f.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		// The row is durable; subscribers pick it up on their next
		// backlog re-read.
		f.log.Warn().Err(err).Str("key", msg.Key).Msg("notify failed")
	}
	return msg.Key, nil
}

// MarkRead flips the read flag on one message.
func (f *PostgresFeed) MarkRead(ctx context.Context, conversationID, key string) error {
	res, err := f.db.ExecContext(ctx,
		`UPDATE feed_messages SET read = TRUE WHERE conversation_id = $1 AND key = $2`,
		conversationID, key)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// Subscribe opens a LISTEN connection, replays the backlog, signals
// settle, and then streams notified appends until Close.
func (f *PostgresFeed) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	listener := pq.NewListener(f.dsn, 2*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			f.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("listener event")
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	sub := newSubscription(func() { _ = listener.Close() })
	go f.tail(conversationID, listener, sub)
	return sub, nil
}

func (f *PostgresFeed) tail(conversationID string, listener *pq.Listener, sub *Subscription) {
	if err := f.replayBacklog(conversationID, sub); err != nil {
		f.log.Error().Err(err).Str("conversation_id", conversationID).Msg("backlog replay failed")
	}
	sub.markSettled()

	for {
		select {
		case <-sub.done:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				// Connection was re-established; re-read to cover the gap.
				if err := f.replayBacklog(conversationID, sub); err != nil {
					f.log.Error().Err(err).Str("conversation_id", conversationID).Msg("backlog re-read failed")
				}
				continue
			}
			var payload notifyPayload
			if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil || payload.ConversationID != conversationID {
				continue
			}
			msg, err := f.fetch(payload.Key)
			if err != nil {
				f.log.Warn().Err(err).Str("key", payload.Key).Msg("notified message fetch failed")
				continue
			}
			sub.enqueue(Event{Key: msg.Key, Message: msg})
		}
	}
}

func (f *PostgresFeed) replayBacklog(conversationID string, sub *Subscription) error {
	var msgs []models.Message
	err := f.db.Select(&msgs,
		`SELECT key, sender_id, receiver_id, body, ts, read
         FROM feed_messages WHERE conversation_id = $1 ORDER BY ts, key`,
		conversationID)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		sub.enqueue(Event{Key: msg.Key, Message: msg})
	}
	return nil
}

func (f *PostgresFeed) fetch(key string) (models.Message, error) {
	var msg models.Message
	err := f.db.Get(&msg,
		`SELECT key, sender_id, receiver_id, body, ts, read FROM feed_messages WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

var _ Feed = (*PostgresFeed)(nil)
