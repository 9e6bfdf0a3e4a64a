package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"
	"shelterchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textMessage(roomID, seq int64, content string) *models.Message {
	return &models.Message{
		RoomID:    roomID,
		Seq:       seq,
		SenderID:  1,
		Type:      models.MessageText,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

func TestMemoryRoomStore_PrivateRoomLifecycle(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryRoomStore()
	now := time.Now()

	room := models.NewPrivateRoom(1, 2, now)
	require.NoError(t, s.CreateRoom(ctx, room))
	assert.NotZero(t, room.ID)

	found, err := s.FindPrivateRoom(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)
	assert.Equal(t, []int64{1, 2}, found.MemberIDs())

	err = s.CreateRoom(ctx, models.NewPrivateRoom(2, 1, now))
	assert.True(t, errors.Is(err, apperr.ErrPrivateRoomRace))

	remaining, err := s.RemoveMember(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)

	_, err = s.FindPrivateRoom(ctx, 1, 2)
	assert.True(t, errors.Is(err, apperr.ErrRoomNotFound), "leaving frees the pair")
	require.NoError(t, s.CreateRoom(ctx, models.NewPrivateRoom(1, 2, now)))

	remaining, err = s.RemoveMember(ctx, room.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	_, err = s.FindRoom(ctx, room.ID)
	assert.True(t, errors.Is(err, apperr.ErrRoomNotFound), "empty room is deleted")
}

func TestMemoryRoomStore_Members(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryRoomStore()
	room := models.NewGroupRoom([]int64{1, 2, 3}, time.Now())
	require.NoError(t, s.CreateRoom(ctx, room))

	err := s.AddMember(ctx, room.ID, 2, time.Now(), 0)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyMember))

	require.NoError(t, s.AddMember(ctx, room.ID, 4, time.Now(), 0))
	members, err := s.ListMemberships(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, members, 4)

	_, err = s.RemoveMember(ctx, room.ID, 99)
	assert.True(t, errors.Is(err, apperr.ErrNotRoomMember))

	err = s.AddMember(ctx, room.ID, 5, time.Now(), 4)
	assert.True(t, errors.Is(err, apperr.ErrInvalidGroupSize), "room already holds the cap")

	err = s.AddMember(ctx, 12345, 1, time.Now(), 0)
	assert.True(t, errors.Is(err, apperr.ErrRoomNotFound))

	_, err = s.FindMembership(ctx, room.ID, 99)
	assert.True(t, errors.Is(err, apperr.ErrNotRoomMember))

	groups, err := s.ListGroupRooms(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 4)

	mine, err := s.ListRoomsForMember(ctx, 4)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, room.ID, mine[0].Room.ID)
	assert.Equal(t, int64(4), mine[0].Membership.MemberID)
}

func TestMemoryRoomStore_ReadPositionAndPreview(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryRoomStore()
	room := models.NewPrivateRoom(1, 2, time.Now())
	require.NoError(t, s.CreateRoom(ctx, room))

	changed, err := s.AdvanceLastRead(ctx, room.ID, 1, 5, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.AdvanceLastRead(ctx, room.ID, 1, 3, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	m, err := s.FindMembership(ctx, room.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), m.LastReadSeq)

	later := time.Now()
	earlier := later.Add(-time.Minute)
	require.NoError(t, s.UpdateLastMessage(ctx, room.ID, later, "newest"))
	require.NoError(t, s.UpdateLastMessage(ctx, room.ID, earlier, "stale"))

	found, err := s.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	require.NotNil(t, found.LastMessagePreview)
	assert.Equal(t, "newest", *found.LastMessagePreview)
}

func TestMemoryRoomStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryRoomStore()
	room := models.NewGroupRoom([]int64{1, 2}, time.Now())
	require.NoError(t, s.CreateRoom(ctx, room))

	found, err := s.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	found.Members[0].LastReadSeq = 100

	again, err := s.FindRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Members[0].LastReadSeq)
}

func TestMemoryMessageStore(t *testing.T) {
	ctx := context.Background()
	s := storage.NewMemoryMessageStore()

	for _, seq := range []int64{2, 1, 3, 5, 4} {
		require.NoError(t, s.Append(ctx, textMessage(7, seq, "m")))
	}
	require.NoError(t, s.Append(ctx, textMessage(8, 1, "other room")))

	err := s.Append(ctx, textMessage(7, 3, "again"))
	assert.True(t, errors.Is(err, apperr.ErrDuplicateSeq))

	err = s.Append(ctx, textMessage(7, 6, "  "))
	assert.True(t, errors.Is(err, apperr.ErrInvalidMessage))

	latest, err := s.LatestSeq(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), latest)

	newest, err := s.FetchBefore(ctx, 7, nil, 2)
	require.NoError(t, err)
	require.Len(t, newest, 2)
	assert.Equal(t, int64(5), newest[0].Seq)
	assert.Equal(t, int64(4), newest[1].Seq)

	before := int64(4)
	older, err := s.FetchBefore(ctx, 7, &before, 10)
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, int64(3), older[0].Seq)
	assert.Equal(t, int64(1), older[2].Seq)

	batch, err := s.LatestSeqForRooms(ctx, []int64{7, 8, 9})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{7: 5, 8: 1}, batch)

	require.NoError(t, s.DeleteRoomMessages(ctx, 7))
	latest, err = s.LatestSeq(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, latest)
}
