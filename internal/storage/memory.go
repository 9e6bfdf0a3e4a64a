package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"
)

// MemoryRoomStore is a process-local RoomStore for single-node runs and tests.
type MemoryRoomStore struct {
	mu       sync.RWMutex
	nextID   int64
	nextRow  int64
	rooms    map[int64]*models.Room
	pairKeys map[string]int64
}

func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{
		rooms:    make(map[int64]*models.Room),
		pairKeys: make(map[string]int64),
	}
}

func cloneRoom(r *models.Room) *models.Room {
	c := *r
	c.Members = append([]models.Membership(nil), r.Members...)
	return &c
}

func (s *MemoryRoomStore) CreateRoom(_ context.Context, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.PairKey != nil {
		if _, taken := s.pairKeys[*room.PairKey]; taken {
			return apperr.ErrPrivateRoomRace
		}
	}
	s.nextID++
	room.ID = s.nextID
	for i := range room.Members {
		room.Members[i].RoomID = room.ID
		s.nextRow++
		room.Members[i].ID = s.nextRow
	}
	s.rooms[room.ID] = cloneRoom(room)
	if room.PairKey != nil {
		s.pairKeys[*room.PairKey] = room.ID
	}
	return nil
}

func (s *MemoryRoomStore) FindRoom(_ context.Context, roomID int64) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (s *MemoryRoomStore) FindPrivateRoom(ctx context.Context, a, b int64) (*models.Room, error) {
	s.mu.RLock()
	id, ok := s.pairKeys[models.PrivatePairKey(a, b)]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrRoomNotFound
	}
	return s.FindRoom(ctx, id)
}

func (s *MemoryRoomStore) DeleteRoom(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(roomID)
	return nil
}

func (s *MemoryRoomStore) deleteLocked(roomID int64) {
	if r, ok := s.rooms[roomID]; ok && r.PairKey != nil {
		delete(s.pairKeys, *r.PairKey)
	}
	delete(s.rooms, roomID)
}

func (s *MemoryRoomStore) AddMember(_ context.Context, roomID, memberID int64, joinedAt time.Time, maxMembers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return apperr.ErrRoomNotFound
	}
	if _, exists := r.Membership(memberID); exists {
		return apperr.ErrAlreadyMember
	}
	if maxMembers > 0 && len(r.Members) >= maxMembers {
		return apperr.ErrInvalidGroupSize
	}
	s.nextRow++
	r.Members = append(r.Members, models.Membership{
		ID:       s.nextRow,
		RoomID:   roomID,
		MemberID: memberID,
		JoinedAt: joinedAt,
	})
	sort.Slice(r.Members, func(i, j int) bool { return r.Members[i].MemberID < r.Members[j].MemberID })
	return nil
}

func (s *MemoryRoomStore) RemoveMember(_ context.Context, roomID, memberID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return 0, apperr.ErrRoomNotFound
	}
	idx := -1
	for i, m := range r.Members {
		if m.MemberID == memberID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, apperr.ErrNotRoomMember
	}
	r.Members = append(r.Members[:idx], r.Members[idx+1:]...)

	remaining := len(r.Members)
	if remaining == 0 {
		s.deleteLocked(roomID)
		return 0, nil
	}
	if r.Type == models.RoomPrivate && r.PairKey != nil {
		delete(s.pairKeys, *r.PairKey)
		r.PairKey = nil
	}
	return remaining, nil
}

func (s *MemoryRoomStore) FindMembership(_ context.Context, roomID, memberID int64) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, apperr.ErrNotRoomMember
	}
	m, ok := r.Membership(memberID)
	if !ok {
		return nil, apperr.ErrNotRoomMember
	}
	c := *m
	return &c, nil
}

func (s *MemoryRoomStore) ListMemberships(_ context.Context, roomID int64) ([]models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return append([]models.Membership(nil), r.Members...), nil
}

func (s *MemoryRoomStore) ListRoomsForMember(_ context.Context, memberID int64) ([]RoomMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RoomMembership
	for _, r := range s.rooms {
		if m, ok := r.Membership(memberID); ok {
			room := *r
			room.Members = nil
			out = append(out, RoomMembership{Room: room, Membership: *m})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.ID < out[j].Room.ID })
	return out, nil
}

func (s *MemoryRoomStore) ListGroupRooms(_ context.Context) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Room
	for _, r := range s.rooms {
		if r.Type == models.RoomGroup {
			out = append(out, *cloneRoom(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryRoomStore) UpdateLastMessage(_ context.Context, roomID int64, at time.Time, preview string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	if r.LastMessageAt != nil && r.LastMessageAt.After(at) {
		return nil
	}
	r.Touch(at, preview)
	return nil
}

func (s *MemoryRoomStore) AdvanceLastRead(_ context.Context, roomID, memberID, seq int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	m, ok := r.Membership(memberID)
	if !ok {
		return false, nil
	}
	return m.AdvanceTo(seq, at), nil
}

// MemoryMessageStore is a process-local MessageStore. Each room's log is
// kept sorted by seq.
type MemoryMessageStore struct {
	mu   sync.RWMutex
	logs map[int64][]models.Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{logs: make(map[int64][]models.Message)}
}

func (s *MemoryMessageStore) Append(_ context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[msg.RoomID]
	i := sort.Search(len(log), func(i int) bool { return log[i].Seq >= msg.Seq })
	if i < len(log) && log[i].Seq == msg.Seq {
		return apperr.ErrDuplicateSeq
	}
	log = append(log, models.Message{})
	copy(log[i+1:], log[i:])
	log[i] = *msg
	s.logs[msg.RoomID] = log
	return nil
}

func (s *MemoryMessageStore) FetchBefore(_ context.Context, roomID int64, beforeSeq *int64, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[roomID]
	end := len(log)
	if beforeSeq != nil {
		end = sort.Search(len(log), func(i int) bool { return log[i].Seq >= *beforeSeq })
	}
	out := make([]models.Message, 0, limit)
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

func (s *MemoryMessageStore) LatestSeq(_ context.Context, roomID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.logs[roomID]
	if len(log) == 0 {
		return 0, nil
	}
	return log[len(log)-1].Seq, nil
}

func (s *MemoryMessageStore) LatestSeqForRooms(_ context.Context, roomIDs []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]int64, len(roomIDs))
	for _, id := range roomIDs {
		if log := s.logs[id]; len(log) > 0 {
			out[id] = log[len(log)-1].Seq
		}
	}
	return out, nil
}

func (s *MemoryMessageStore) DeleteRoomMessages(_ context.Context, roomID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, roomID)
	return nil
}
