package readstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/feed"
	"chat-sync/internal/models"
)

func seed(t *testing.T, f feed.Feed, conversationID string, unread, read int) {
	t.Helper()
	ctx := context.Background()
	ts := int64(1000)
	for i := 0; i < unread; i++ {
		_, err := f.Append(ctx, conversationID, models.Message{
			SenderID: "bob", ReceiverID: "alice", Body: "unread", Timestamp: ts, Read: false,
		})
		require.NoError(t, err)
		ts++
	}
	for i := 0; i < read; i++ {
		_, err := f.Append(ctx, conversationID, models.Message{
			SenderID: "bob", ReceiverID: "alice", Body: "read", Timestamp: ts, Read: true,
		})
		require.NoError(t, err)
		ts++
	}
}

// failingFeed delegates to an inner feed but refuses to subscribe to one
// conversation.
type failingFeed struct {
	inner  feed.Feed
	broken string
}

func (f *failingFeed) Subscribe(ctx context.Context, conversationID string) (*feed.Subscription, error) {
	if conversationID == f.broken {
		return nil, errors.New("backend unavailable")
	}
	return f.inner.Subscribe(ctx, conversationID)
}

func (f *failingFeed) Append(ctx context.Context, conversationID string, msg models.Message) (string, error) {
	return f.inner.Append(ctx, conversationID, msg)
}

func (f *failingFeed) MarkRead(ctx context.Context, conversationID, key string) error {
	return f.inner.MarkRead(ctx, conversationID, key)
}

func TestAggregateCountsUnreadPerConversation(t *testing.T) {
	f := feed.NewMemoryFeed()
	seed(t, f, "a", 5, 1)
	seed(t, f, "b", 1, 0)
	seed(t, f, "c", 0, 3)

	tr := NewTracker(f, 4, 2*time.Second)
	counts, err := tr.Aggregate(context.Background(), "alice", []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Equal(t, []ConversationUnread{
		{ConversationID: "a", Unread: 5},
		{ConversationID: "b", Unread: 1},
		{ConversationID: "c", Unread: 0},
	}, counts)
}

func TestAggregateDoesNotMutateReadState(t *testing.T) {
	f := feed.NewMemoryFeed()
	seed(t, f, "a", 2, 0)

	tr := NewTracker(f, 4, 2*time.Second)

	// Two passes must report the same counts: counting never patches.
	for i := 0; i < 2; i++ {
		counts, err := tr.Aggregate(context.Background(), "alice", []string{"a"})
		require.NoError(t, err)
		require.Len(t, counts, 1)
		assert.Equal(t, 2, counts[0].Unread)
	}
}

func TestAggregateSkipsFailingConversation(t *testing.T) {
	inner := feed.NewMemoryFeed()
	seed(t, inner, "a", 2, 0)
	seed(t, inner, "c", 1, 0)
	f := &failingFeed{inner: inner, broken: "b"}

	tr := NewTracker(f, 4, 2*time.Second)
	counts, err := tr.Aggregate(context.Background(), "alice", []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Equal(t, []ConversationUnread{
		{ConversationID: "a", Unread: 2},
		{ConversationID: "c", Unread: 1},
	}, counts)
}

func TestAggregateHonorsContextCancellation(t *testing.T) {
	f := feed.NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := NewTracker(f, 4, 2*time.Second)
	_, err := tr.Aggregate(ctx, "alice", []string{"a", "b"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateBoundsConcurrencyDefaults(t *testing.T) {
	tr := NewTracker(feed.NewMemoryFeed(), 0, 0)
	assert.Equal(t, 8, tr.workers)
	assert.Equal(t, 10*time.Second, tr.settleTimeout)
}

func TestBadgeCountsConversationsNotMessages(t *testing.T) {
	counts := []ConversationUnread{
		{ConversationID: "a", Unread: 5},
		{ConversationID: "b", Unread: 1},
		{ConversationID: "c", Unread: 0},
	}
	assert.Equal(t, 2, Badge(counts))
	assert.Equal(t, 0, Badge(nil))
}
