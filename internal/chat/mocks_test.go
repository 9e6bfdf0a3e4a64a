package chat_test

import (
	"context"
	"sync"

	"shelterchat/backend/internal/events"
	"shelterchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockBroadcaster is a testify mock of chat.Broadcaster.
type MockBroadcaster struct {
	mock.Mock
}

func (m *MockBroadcaster) PublishToRoom(ctx context.Context, roomID int64, msg models.MessagePayload) error {
	args := m.Called(ctx, roomID, msg)
	return args.Error(0)
}

func (m *MockBroadcaster) PublishToMember(ctx context.Context, memberID int64, summary models.RoomSummary) error {
	args := m.Called(ctx, memberID, summary)
	return args.Error(0)
}

// MockRoomPublisher is a testify mock of events.RoomPublisher.
type MockRoomPublisher struct {
	mock.Mock
}

func (m *MockRoomPublisher) PublishRoomEvent(ctx context.Context, ev events.RoomEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// recordingBroadcaster keeps everything published, in order.
type recordingBroadcaster struct {
	mu        sync.Mutex
	room      []models.MessagePayload
	summaries map[int64][]models.RoomSummary
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{summaries: make(map[int64][]models.RoomSummary)}
}

func (b *recordingBroadcaster) PublishToRoom(_ context.Context, _ int64, msg models.MessagePayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.room = append(b.room, msg)
	return nil
}

func (b *recordingBroadcaster) PublishToMember(_ context.Context, memberID int64, summary models.RoomSummary) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summaries[memberID] = append(b.summaries[memberID], summary)
	return nil
}

func (b *recordingBroadcaster) roomMessages() []models.MessagePayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.MessagePayload(nil), b.room...)
}

func (b *recordingBroadcaster) lastSummary(memberID int64) (models.RoomSummary, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.summaries[memberID]
	if len(s) == 0 {
		return models.RoomSummary{}, false
	}
	return s[len(s)-1], true
}
