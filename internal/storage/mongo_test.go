package storage_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestMongo connects to CHAT_TEST_MONGO_URI and works in a throwaway
// database dropped when the test ends.
func openTestMongo(t *testing.T) *storage.MongoMessageStore {
	t.Helper()
	uri := os.Getenv("CHAT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CHAT_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := storage.ConnectMongo(ctx, uri)
	require.NoError(t, err)

	db := client.Database(fmt.Sprintf("chat_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	store, err := storage.NewMongoMessageStore(ctx, db)
	require.NoError(t, err)
	return store
}

func TestMongoMessageStore(t *testing.T) {
	s := openTestMongo(t)
	ctx := context.Background()

	for seq := int64(1); seq <= 3; seq++ {
		require.NoError(t, s.Append(ctx, textMessage(1, seq, "hello")))
	}
	require.NoError(t, s.Append(ctx, textMessage(2, 7, "other room")))

	err := s.Append(ctx, textMessage(1, 2, "again"))
	assert.True(t, errors.Is(err, apperr.ErrDuplicateSeq))

	latest, err := s.LatestSeq(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest)

	latest, err = s.LatestSeq(ctx, 99)
	require.NoError(t, err)
	assert.Zero(t, latest)

	batch, err := s.LatestSeqForRooms(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 3, 2: 7}, batch)

	before := int64(3)
	page, err := s.FetchBefore(ctx, 1, &before, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].Seq)
	assert.Equal(t, int64(1), page[1].Seq)

	require.NoError(t, s.DeleteRoomMessages(ctx, 1))
	page, err = s.FetchBefore(ctx, 1, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}
