package storage

import (
	"context"
	"database/sql/driver"
	"sync"

	"shelterchat/backend/internal/apperr"

	"gorm.io/gorm"
)

// LockingAllocator derives the next seq as max(seq)+1 of the durable log
// while holding a room-scoped lock. The lock is held until bind returns, so
// the allocation and the append form one critical section per room.
type LockingAllocator struct {
	locker RoomLocker
	store  MessageStore
}

func NewLockingAllocator(locker RoomLocker, store MessageStore) *LockingAllocator {
	return &LockingAllocator{locker: locker, store: store}
}

func (a *LockingAllocator) Allocate(ctx context.Context, roomID int64, bind func(seq int64) error) (int64, error) {
	unlock, err := a.locker.Lock(ctx, roomID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	latest, err := a.store.LatestSeq(ctx, roomID)
	if err != nil {
		return 0, err
	}
	seq := latest + 1
	if err := bind(seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (a *LockingAllocator) LatestSeq(ctx context.Context, roomID int64) (int64, error) {
	return a.store.LatestSeq(ctx, roomID)
}

func (a *LockingAllocator) LatestSeqForRooms(ctx context.Context, roomIDs []int64) (map[int64]int64, error) {
	found, err := a.store.LatestSeqForRooms(ctx, roomIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(roomIDs))
	for _, id := range roomIDs {
		out[id] = found[id]
	}
	return out, nil
}

// LocalLocker is an in-process RoomLocker. Lock entries are dropped once
// nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	rooms map[int64]*roomLock
}

type roomLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{rooms: make(map[int64]*roomLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, roomID int64) (func(), error) {
	l.mu.Lock()
	rl, ok := l.rooms[roomID]
	if !ok {
		rl = &roomLock{sem: make(chan struct{}, 1)}
		l.rooms[roomID] = rl
	}
	rl.refs++
	l.mu.Unlock()

	select {
	case rl.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(roomID, rl)
		return nil, apperr.Infra("lock room", ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-rl.sem
			l.release(roomID, rl)
		})
	}, nil
}

func (l *LocalLocker) release(roomID int64, rl *roomLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rl.refs--
	if rl.refs == 0 {
		delete(l.rooms, roomID)
	}
}

// AdvisoryLocker serializes allocation across nodes with a PostgreSQL
// session advisory lock keyed by room id. The lock lives on a pinned pool
// connection for as long as it is held.
type AdvisoryLocker struct {
	db *gorm.DB
}

func NewAdvisoryLocker(db *gorm.DB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

func (l *AdvisoryLocker) Lock(ctx context.Context, roomID int64) (func(), error) {
	sqlDB, err := l.db.DB()
	if err != nil {
		return nil, apperr.Infra("lock room", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, apperr.Infra("lock room", err)
	}
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", roomID); err != nil {
		_ = conn.Close()
		return nil, apperr.Infra("lock room", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", roomID); err != nil {
				// a session still holding the lock must not go back to the pool
				_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			}
			_ = conn.Close()
		})
	}, nil
}
