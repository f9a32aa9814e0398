// Package view materializes one conversation's ordered, deduplicated
// message state from the feed's arrival-ordered event stream.
package view

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chat-sync/internal/feed"
	"chat-sync/internal/logging"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

const patchTimeout = 5 * time.Second

// Config describes one view session.
type Config struct {
	ConversationID string
	SelfID         string

	// AutoRead enables seen-on-delivery semantics: unread messages
	// addressed to SelfID are patched to read as they arrive. Enabled
	// for actively-opened conversations, disabled for the transient
	// views used by unread aggregation.
	AutoRead bool
}

// View holds the canonical state of one conversation for one session.
// The exposed sequence is totally ordered by (timestamp, key) at every
// observable instant; re-delivery of a known key is a no-op.
type View struct {
	cfg  Config
	feed feed.Feed
	sub  *feed.Subscription
	log  zerolog.Logger

	mu       sync.Mutex
	messages []models.Message
	index    map[string]int
	patched  map[string]struct{}
	inflight map[string]struct{}
	closed   bool

	updates    chan struct{}
	settled    chan struct{}
	settleOnce sync.Once
}

// New builds a detached view; the caller delivers events through Apply.
// Used by tests and by Open.
func New(f feed.Feed, cfg Config) *View {
	v := &View{
		cfg:      cfg,
		feed:     f,
		log:      logging.Component("view").With().Str("conversation_id", cfg.ConversationID).Logger(),
		index:    make(map[string]int),
		patched:  make(map[string]struct{}),
		inflight: make(map[string]struct{}),
		updates:  make(chan struct{}, 1),
		settled:  make(chan struct{}),
	}
	close(v.settled)
	return v
}

// Open subscribes to the conversation's feed and consumes its events
// until Close. The subscription is released on every exit path.
func Open(ctx context.Context, f feed.Feed, cfg Config) (*View, error) {
	sub, err := f.Subscribe(ctx, cfg.ConversationID)
	if err != nil {
		return nil, err
	}
	v := New(f, cfg)
	v.sub = sub
	v.settled = make(chan struct{})

	go v.consume(sub)
	return v, nil
}

// consume folds the subscription's events into the view. The settle
// marker arrives in-band behind the backlog, so by the time Settled
// fires every backlog event has already been applied.
func (v *View) consume(sub *feed.Subscription) {
	for ev := range sub.Events() {
		if ev.Settle {
			v.settleOnce.Do(func() { close(v.settled) })
			continue
		}
		v.Apply(ev)
	}
}

// Apply folds one raw feed event into the ordered state. A duplicate key
// leaves the sequence unchanged; anything else is inserted at its
// (timestamp, key) position. A no-op on a closed view.
func (v *View) Apply(ev feed.Event) {
	msg := ev.Message
	msg.Key = ev.Key

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	_, duplicate := v.index[msg.Key]
	if !duplicate {
		pos := sort.Search(len(v.messages), func(i int) bool {
			return msg.Before(v.messages[i])
		})
		v.messages = append(v.messages, models.Message{})
		copy(v.messages[pos+1:], v.messages[pos:])
		v.messages[pos] = msg
		v.reindexFrom(pos)
	}

	// Patch collection runs on duplicates too, so a failed patch is
	// retried on whatever event arrives next.
	var candidates []string
	if v.cfg.AutoRead {
		candidates = v.collectUnpatchedLocked()
	}
	v.mu.Unlock()

	if duplicate {
		observability.IncFeedEvent("duplicate")
	} else {
		observability.IncFeedEvent("merged")
		v.notify()
	}

	for _, key := range candidates {
		v.markRead(key)
	}
}

// collectUnpatchedLocked marks and returns every unread incoming message
// that has no patch issued or in flight. Failed patches are retried here
// on the next arrival.
func (v *View) collectUnpatchedLocked() []string {
	var keys []string
	for _, m := range v.messages {
		if m.ReceiverID != v.cfg.SelfID || m.Read {
			continue
		}
		if _, done := v.patched[m.Key]; done {
			continue
		}
		if _, busy := v.inflight[m.Key]; busy {
			continue
		}
		v.inflight[m.Key] = struct{}{}
		keys = append(keys, m.Key)
	}
	return keys
}

func (v *View) markRead(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), patchTimeout)
	defer cancel()

	err := v.feed.MarkRead(ctx, v.cfg.ConversationID, key)

	v.mu.Lock()
	delete(v.inflight, key)
	if v.closed {
		v.mu.Unlock()
		return
	}
	if err != nil {
		v.mu.Unlock()
		observability.IncReadPatch("error")
		v.log.Warn().Err(err).Str("key", key).Msg("read patch failed, will retry on next event")
		return
	}
	v.patched[key] = struct{}{}
	if pos, ok := v.index[key]; ok {
		v.messages[pos].Read = true
	}
	v.mu.Unlock()

	observability.IncReadPatch("ok")
	v.notify()
}

func (v *View) reindexFrom(pos int) {
	for i := pos; i < len(v.messages); i++ {
		v.index[v.messages[i].Key] = i
	}
}

func (v *View) notify() {
	select {
	case v.updates <- struct{}{}:
	default:
	}
}

// Messages returns a snapshot of the ordered sequence.
func (v *View) Messages() []models.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]models.Message, len(v.messages))
	copy(out, v.messages)
	return out
}

// LastMessage returns the newest message, if any.
func (v *View) LastMessage() (models.Message, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.messages) == 0 {
		return models.Message{}, false
	}
	return v.messages[len(v.messages)-1], true
}

// UnreadCount counts messages addressed to self that are still unread.
// Recomputed per call; never cached across mutations.
func (v *View) UnreadCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, m := range v.messages {
		if m.ReceiverID == v.cfg.SelfID && !m.Read {
			count++
		}
	}
	return count
}

// ConversationID identifies the conversation this view materializes.
func (v *View) ConversationID() string { return v.cfg.ConversationID }

// Updates is a coalescing signal fired on every mutation.
func (v *View) Updates() <-chan struct{} { return v.updates }

// Settled is closed once the feed's initial backlog has been applied,
// so a snapshot taken afterwards contains every backlog message.
func (v *View) Settled() <-chan struct{} { return v.settled }

// Close detaches the subscription. Events or patch completions landing
// after Close do not mutate the view.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	sub := v.sub
	v.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}
