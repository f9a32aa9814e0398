package composer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/auth"
	"chat-sync/internal/feed"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/view"
)

// recordingFeed counts appends so tests can assert nothing was written.
type recordingFeed struct {
	feed.Feed
	mu      sync.Mutex
	appends []models.Message
}

func newRecordingFeed() *recordingFeed {
	return &recordingFeed{Feed: feed.NewMemoryFeed()}
}

func (r *recordingFeed) Append(ctx context.Context, conversationID string, msg models.Message) (string, error) {
	r.mu.Lock()
	r.appends = append(r.appends, msg)
	r.mu.Unlock()
	return r.Feed.Append(ctx, conversationID, msg)
}

func (r *recordingFeed) appended() []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Message, len(r.appends))
	copy(out, r.appends)
	return out
}

var session = auth.Session{UserID: "alice", Token: "token"}

func TestSendRejectsEmptyBodyBeforeAnyWrite(t *testing.T) {
	f := newRecordingFeed()
	c := New(f, &mocks.MetadataServiceMock{})

	for _, body := range []string{"", "   ", "\n\t "} {
		_, err := c.Send(context.Background(), session, "conv", "bob", body)
		assert.ErrorIs(t, err, ErrEmptyBody)
	}
	assert.Empty(t, f.appended())
}

func TestSendStampsOutboundFields(t *testing.T) {
	f := newRecordingFeed()
	c := New(f, &mocks.MetadataServiceMock{})
	fixed := time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	key, err := c.Send(context.Background(), session, "conv", "bob", "hello there")
	require.NoError(t, err)
	assert.NotEmpty(t, key)

	appends := f.appended()
	require.Len(t, appends, 1)
	msg := appends[0]
	assert.Equal(t, "alice", msg.SenderID)
	assert.Equal(t, "bob", msg.ReceiverID)
	assert.Equal(t, "hello there", msg.Body)
	assert.Equal(t, fixed.UnixMilli(), msg.Timestamp)
	assert.False(t, msg.Read)
}

func TestSenderObservesOwnMessageThroughFeed(t *testing.T) {
	f := feed.NewMemoryFeed()
	c := New(f, &mocks.MetadataServiceMock{})

	v, err := view.Open(context.Background(), f, view.Config{ConversationID: "conv", SelfID: "alice"})
	require.NoError(t, err)
	defer v.Close()

	key, err := c.Send(context.Background(), session, "conv", "bob", "hi")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msgs := v.Messages()
		return len(msgs) == 1 && msgs[0].Key == key
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFinalizeOnExitSyncsLastMessage(t *testing.T) {
	f := feed.NewMemoryFeed()
	ctx := context.Background()

	_, err := f.Append(ctx, "conv", models.Message{SenderID: "bob", ReceiverID: "alice", Body: "first", Timestamp: 100, Read: true})
	require.NoError(t, err)
	_, err = f.Append(ctx, "conv", models.Message{SenderID: "alice", ReceiverID: "bob", Body: "latest", Timestamp: 200, Read: true})
	require.NoError(t, err)

	v, err := view.Open(ctx, f, view.Config{ConversationID: "conv", SelfID: "alice"})
	require.NoError(t, err)
	defer v.Close()
	<-v.Settled()
	require.Eventually(t, func() bool { return len(v.Messages()) == 2 }, 2*time.Second, 10*time.Millisecond)

	meta := &mocks.MetadataServiceMock{}
	meta.On("PutSummary", mock.Anything, session, "conv", "latest", int64(200)).Return(nil)

	c := New(f, meta)
	require.NoError(t, c.FinalizeOnExit(ctx, session, v))
	meta.AssertExpectations(t)
}

func TestFinalizeOnExitSkipsEmptyConversation(t *testing.T) {
	f := feed.NewMemoryFeed()
	v := view.New(f, view.Config{ConversationID: "conv", SelfID: "alice"})
	defer v.Close()

	meta := &mocks.MetadataServiceMock{}
	c := New(f, meta)

	require.NoError(t, c.FinalizeOnExit(context.Background(), session, v))
	meta.AssertNotCalled(t, "PutSummary", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalizeOnExitReportsMetadataFailure(t *testing.T) {
	f := feed.NewMemoryFeed()
	v := view.New(f, view.Config{ConversationID: "conv", SelfID: "alice"})
	defer v.Close()
	v.Apply(feed.Event{Key: "k", Message: models.Message{Key: "k", SenderID: "bob", ReceiverID: "alice", Body: "hi", Timestamp: 100, Read: true}})

	meta := &mocks.MetadataServiceMock{}
	meta.On("PutSummary", mock.Anything, session, "conv", "hi", int64(100)).Return(errors.New("metadata down"))

	c := New(f, meta)
	err := c.FinalizeOnExit(context.Background(), session, v)
	assert.Error(t, err)
}
