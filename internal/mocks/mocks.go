package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
)

type MetadataServiceMock struct {
	mock.Mock
}

func (m *MetadataServiceMock) Me(ctx context.Context, token string) (models.Participant, error) {
	args := m.Called(ctx, token)
	var me models.Participant
	if val := args.Get(0); val != nil {
		me = val.(models.Participant)
	}
	return me, args.Error(1)
}

func (m *MetadataServiceMock) Conversations(ctx context.Context, session auth.Session) ([]models.Conversation, error) {
	args := m.Called(ctx, session)
	var conversations []models.Conversation
	if val := args.Get(0); val != nil {
		conversations = val.([]models.Conversation)
	}
	return conversations, args.Error(1)
}

func (m *MetadataServiceMock) Participant(ctx context.Context, session auth.Session, conversationID string) (models.Participant, error) {
	args := m.Called(ctx, session, conversationID)
	var participant models.Participant
	if val := args.Get(0); val != nil {
		participant = val.(models.Participant)
	}
	return participant, args.Error(1)
}

func (m *MetadataServiceMock) PutSummary(ctx context.Context, session auth.Session, conversationID, preview string, timestamp int64) error {
	args := m.Called(ctx, session, conversationID, preview, timestamp)
	return args.Error(0)
}
