// Package storage holds the persistence ports of the chat core and their
// PostgreSQL (gorm), MongoDB, Redis and in-memory backends.
package storage

import (
	"context"
	"time"

	"shelterchat/backend/internal/models"
)

// RoomStore persists rooms and their memberships.
type RoomStore interface {
	// CreateRoom inserts room together with its memberships. A PRIVATE room
	// whose pair key is taken fails with apperr.ErrPrivateRoomRace.
	CreateRoom(ctx context.Context, room *models.Room) error
	// FindRoom loads a room with its memberships.
	FindRoom(ctx context.Context, roomID int64) (*models.Room, error)
	// FindPrivateRoom returns the live PRIVATE room of the pair {a, b}.
	FindPrivateRoom(ctx context.Context, a, b int64) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID int64) error

	// AddMember adds a membership. With maxMembers > 0 it fails with
	// apperr.ErrInvalidGroupSize when the room already holds that many,
	// checked atomically with the insert.
	AddMember(ctx context.Context, roomID, memberID int64, joinedAt time.Time, maxMembers int) error
	// RemoveMember deletes the membership and reports how many remain. The
	// room itself is deleted once no member remains. Removing a PRIVATE
	// member clears the room's pair key.
	RemoveMember(ctx context.Context, roomID, memberID int64) (int, error)
	FindMembership(ctx context.Context, roomID, memberID int64) (*models.Membership, error)
	ListMemberships(ctx context.Context, roomID int64) ([]models.Membership, error)

	ListRoomsForMember(ctx context.Context, memberID int64) ([]RoomMembership, error)
	// ListGroupRooms loads every GROUP room with its memberships.
	ListGroupRooms(ctx context.Context) ([]models.Room, error)

	// UpdateLastMessage records the newest message unless a newer one is
	// already recorded.
	UpdateLastMessage(ctx context.Context, roomID int64, at time.Time, preview string) error
	// AdvanceLastRead moves the read position forward only. It reports
	// whether the stored position changed.
	AdvanceLastRead(ctx context.Context, roomID, memberID, seq int64, at time.Time) (bool, error)
}

// RoomMembership pairs a room with one member's membership in it.
type RoomMembership struct {
	Room       models.Room
	Membership models.Membership
}

// MessageStore is the durable, append-only message log.
type MessageStore interface {
	// Append stores msg. A (room, seq) that is already taken fails with
	// apperr.ErrDuplicateSeq.
	Append(ctx context.Context, msg *models.Message) error
	// FetchBefore returns up to limit messages with seq < beforeSeq (or the
	// newest when beforeSeq is nil), newest first.
	FetchBefore(ctx context.Context, roomID int64, beforeSeq *int64, limit int) ([]models.Message, error)
	LatestSeq(ctx context.Context, roomID int64) (int64, error)
	// LatestSeqForRooms answers for many rooms in one query. Rooms without
	// messages are absent from the result.
	LatestSeqForRooms(ctx context.Context, roomIDs []int64) (map[int64]int64, error)
	DeleteRoomMessages(ctx context.Context, roomID int64) error
}

// SequenceAllocator issues per-room sequence numbers.
type SequenceAllocator interface {
	// Allocate issues the next seq of roomID and hands it to bind, which
	// must persist exactly one message under it. The seq is returned only
	// when bind succeeded.
	Allocate(ctx context.Context, roomID int64, bind func(seq int64) error) (int64, error)
	// LatestSeq is the highest issued seq of roomID, 0 when none.
	LatestSeq(ctx context.Context, roomID int64) (int64, error)
	// LatestSeqForRooms answers for every requested room in a single round
	// trip. Rooms without messages map to 0.
	LatestSeqForRooms(ctx context.Context, roomIDs []int64) (map[int64]int64, error)
}

// RoomLocker grants a room-scoped exclusive lock.
type RoomLocker interface {
	Lock(ctx context.Context, roomID int64) (unlock func(), err error)
}
