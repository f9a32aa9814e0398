package models

import "time"

// Message is one entry in a conversation's append-only feed. The Key is
// assigned by the feed backend on append and is the sole deduplication
// identity within a conversation. Everything except Read is immutable;
// Read transitions false->true exactly once, by the receiver.
type Message struct {
	Key        string `db:"key" json:"key"`
	SenderID   string `db:"sender_id" json:"sender_id"`
	ReceiverID string `db:"receiver_id" json:"receiver_id"`
	Body       string `db:"body" json:"body"`
	// Timestamp is epoch milliseconds stamped by the sender.
	Timestamp int64 `db:"ts" json:"timestamp"`
	Read      bool  `db:"read" json:"read"`
}

// Time returns the message timestamp as a time.Time in the local zone.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Before reports whether m precedes other in the canonical (timestamp, key)
// order, keys compared lexicographically on equal timestamps.
func (m Message) Before(other Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	return m.Key < other.Key
}

// SyncEvent is broadcast to websocket clients on every view mutation.
type SyncEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Messages       []Message `json:"messages,omitempty"`
	Unread         int       `json:"unread"`
}
