package chathub_test

import (
	"context"

	"shelterchat/backend/internal/auth"
	"shelterchat/backend/internal/chat"
	"shelterchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(auth.Identity), args.Error(1)
}

type MockMembership struct {
	mock.Mock
}

func (m *MockMembership) IsRoomMember(ctx context.Context, roomID, memberID int64) (bool, error) {
	args := m.Called(ctx, roomID, memberID)
	return args.Bool(0), args.Error(1)
}

type MockSender struct {
	mock.Mock
}

func (m *MockSender) SendMessage(ctx context.Context, roomID, senderID int64, d chat.Draft) (models.MessagePayload, error) {
	args := m.Called(ctx, roomID, senderID, d)
	return args.Get(0).(models.MessagePayload), args.Error(1)
}
