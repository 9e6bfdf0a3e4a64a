package storage_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"
	"shelterchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// openTestDB connects to CHAT_TEST_DATABASE_DSN and starts from empty tables.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("CHAT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("CHAT_TEST_DATABASE_DSN not set")
	}
	db, err := storage.OpenPostgres(dsn, false)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	require.NoError(t, db.Exec("TRUNCATE messages, memberships, rooms RESTART IDENTITY CASCADE").Error)
	return db
}

func TestPostgresRoomStore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := storage.NewPostgresRoomStore(db)
	now := time.Now().UTC()

	room := models.NewPrivateRoom(10, 20, now)
	require.NoError(t, s.CreateRoom(ctx, room))

	err := s.CreateRoom(ctx, models.NewPrivateRoom(20, 10, now))
	assert.True(t, errors.Is(err, apperr.ErrPrivateRoomRace))

	found, err := s.FindPrivateRoom(ctx, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, found.MemberIDs())

	changed, err := s.AdvanceLastRead(ctx, room.ID, 10, 4, now)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = s.AdvanceLastRead(ctx, room.ID, 10, 2, now)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.UpdateLastMessage(ctx, room.ID, now, "hi"))
	mine, err := s.ListRoomsForMember(ctx, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, int64(4), mine[0].Membership.LastReadSeq)
	require.NotNil(t, mine[0].Room.LastMessagePreview)
	assert.Equal(t, "hi", *mine[0].Room.LastMessagePreview)

	remaining, err := s.RemoveMember(ctx, room.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	_, err = s.FindPrivateRoom(ctx, 10, 20)
	assert.True(t, errors.Is(err, apperr.ErrRoomNotFound))

	remaining, err = s.RemoveMember(ctx, room.ID, 20)
	require.NoError(t, err)
	assert.Zero(t, remaining)
	_, err = s.FindRoom(ctx, room.ID)
	assert.True(t, errors.Is(err, apperr.ErrRoomNotFound))
}

func TestPostgresRoomStore_GroupMembers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := storage.NewPostgresRoomStore(db)

	room := models.NewGroupRoom([]int64{1, 2}, time.Now())
	require.NoError(t, s.CreateRoom(ctx, room))

	require.NoError(t, s.AddMember(ctx, room.ID, 3, time.Now(), 3))
	err := s.AddMember(ctx, room.ID, 3, time.Now(), 0)
	assert.True(t, errors.Is(err, apperr.ErrAlreadyMember))
	err = s.AddMember(ctx, room.ID, 4, time.Now(), 3)
	assert.True(t, errors.Is(err, apperr.ErrInvalidGroupSize))
	err = s.AddMember(ctx, 999999, 4, time.Now(), 0)
	assert.True(t, errors.Is(err, apperr.ErrRoomNotFound))

	_, err = s.RemoveMember(ctx, room.ID, 42)
	assert.True(t, errors.Is(err, apperr.ErrNotRoomMember))

	groups, err := s.ListGroupRooms(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []int64{1, 2, 3}, groups[0].MemberIDs())
}

func TestPostgresMessageStore_WithAdvisoryLock(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := storage.NewPostgresMessageStore(db)
	alloc := storage.NewLockingAllocator(storage.NewAdvisoryLocker(db), store)

	seqs := allocateConcurrently(t, alloc, store, 20)
	assertContiguous(t, seqs)

	err := store.Append(ctx, textMessage(1, 5, "duplicate"))
	assert.True(t, errors.Is(err, apperr.ErrDuplicateSeq))

	before := int64(11)
	page, err := store.FetchBefore(ctx, 1, &before, 3)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, int64(10), page[0].Seq)

	batch, err := alloc.LatestSeqForRooms(ctx, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 20, 2: 0}, batch)

	require.NoError(t, store.DeleteRoomMessages(ctx, 1))
	latest, err := store.LatestSeq(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, latest)
}
