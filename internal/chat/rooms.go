package chat

import (
	"context"
	"errors"
	"sort"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/events"
	"shelterchat/backend/internal/localization"
	"shelterchat/backend/internal/metrics"
	"shelterchat/backend/internal/models"

	"go.uber.org/zap"
)

// CreatePrivateRoom returns the room shared by a and b, creating it on
// first contact.
func (s *Service) CreatePrivateRoom(ctx context.Context, a, b int64) (int64, error) {
	if a == b {
		return 0, apperr.ErrSelfChat
	}
	if err := s.members.EnsureAllActive(ctx, []int64{a, b}); err != nil {
		return 0, err
	}

	existing, err := s.rooms.FindPrivateRoom(ctx, a, b)
	if err == nil && existing.HasExactly(a, b) {
		return existing.ID, nil
	}
	if err != nil && !errors.Is(err, apperr.ErrRoomNotFound) {
		return 0, err
	}

	room := models.NewPrivateRoom(a, b, s.now())
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		if !errors.Is(err, apperr.ErrPrivateRoomRace) {
			return 0, err
		}
		// a concurrent request created the pair's room first
		winner, ferr := s.rooms.FindPrivateRoom(ctx, a, b)
		if ferr != nil {
			s.logger.Warn("private room race could not be resolved",
				zap.Int64("member_a", a), zap.Int64("member_b", b), zap.Error(ferr))
			return 0, err
		}
		return winner.ID, nil
	}

	metrics.RoomsCreated.WithLabelValues(string(models.RoomPrivate)).Inc()
	s.logger.Info("private room created", zap.Int64("room_id", room.ID), zap.Int64("member_a", a), zap.Int64("member_b", b))
	s.emitRoomEvent(ctx, events.RoomEvent{
		Subject: events.SubjectRoomCreated, RoomID: room.ID, RoomType: room.Type, MemberIDs: room.MemberIDs(), At: room.CreatedAt,
	})
	return room.ID, nil
}

// CreateGroupRoom creates a GROUP room of the creator and others.
func (s *Service) CreateGroupRoom(ctx context.Context, creator int64, others []int64) (int64, error) {
	ids := dedupe(append([]int64{creator}, others...))
	if len(ids) > s.opts.MaxGroupSize {
		return 0, apperr.ErrInvalidGroupSize
	}
	if err := s.members.EnsureAllActive(ctx, ids); err != nil {
		return 0, err
	}

	room := models.NewGroupRoom(ids, s.now())
	if err := s.rooms.CreateRoom(ctx, room); err != nil {
		return 0, err
	}

	metrics.RoomsCreated.WithLabelValues(string(models.RoomGroup)).Inc()
	s.logger.Info("group room created", zap.Int64("room_id", room.ID), zap.Int64("member_id", creator), zap.Int("members", len(ids)))
	s.emitRoomEvent(ctx, events.RoomEvent{
		Subject: events.SubjectRoomCreated, RoomID: room.ID, RoomType: room.Type, MemberIDs: ids, At: room.CreatedAt,
	})
	return room.ID, nil
}

// JoinGroupRoom adds memberID to a GROUP room.
func (s *Service) JoinGroupRoom(ctx context.Context, memberID, roomID int64) error {
	if err := s.members.EnsureActive(ctx, memberID); err != nil {
		return err
	}
	room, err := s.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Type != models.RoomGroup {
		return apperr.ErrNotGroupRoom
	}
	if _, ok := room.Membership(memberID); ok {
		return apperr.ErrAlreadyMember
	}

	if err := s.rooms.AddMember(ctx, roomID, memberID, s.now(), s.opts.MaxGroupSize); err != nil {
		return err
	}
	s.logger.Info("member joined", zap.Int64("room_id", roomID), zap.Int64("member_id", memberID))
	s.emitRoomEvent(ctx, events.RoomEvent{
		Subject: events.SubjectMemberJoined, RoomID: roomID, RoomType: room.Type, MemberID: memberID,
	})
	return nil
}

// LeaveRoom removes memberID from the room. The last member to leave
// deletes the room; its messages are purged when configured to. Leaving a
// GROUP room that still has members posts a SYSTEM message to it.
func (s *Service) LeaveRoom(ctx context.Context, roomID, memberID int64) error {
	room, err := s.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	remaining, err := s.rooms.RemoveMember(ctx, roomID, memberID)
	if err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	s.logger.Info("member left", zap.Int64("room_id", roomID), zap.Int64("member_id", memberID), zap.Int("remaining", remaining))
	s.emitRoomEvent(ctx, events.RoomEvent{
		Subject: events.SubjectMemberLeft, RoomID: roomID, RoomType: room.Type, MemberID: memberID,
	})

	if remaining == 0 {
		s.roomDeleted(ctx, room)
		return nil
	}
	if room.Type != models.RoomGroup {
		return nil
	}

	stayed := room.Members[:0]
	for _, m := range room.Members {
		if m.MemberID != memberID {
			stayed = append(stayed, m)
		}
	}
	room.Members = stayed

	notice := &models.Message{
		RoomID:   roomID,
		SenderID: memberID,
		Type:     models.MessageSystem,
		Content:  s.loc.Format(s.loc.DefaultLanguage(), localization.KeyMemberLeft, memberID),
	}
	if err := s.commit(ctx, room, notice); err != nil {
		s.postCommitFailed("system_message", err, zap.Int64("room_id", roomID), zap.Int64("member_id", memberID))
	}
	return nil
}

func (s *Service) roomDeleted(ctx context.Context, room *models.Room) {
	s.logger.Info("room deleted", zap.Int64("room_id", room.ID))
	if s.opts.PurgeMessagesOnDelete {
		if err := s.messages.DeleteRoomMessages(ctx, room.ID); err != nil {
			s.postCommitFailed("purge", err, zap.Int64("room_id", room.ID))
		}
		if f, ok := s.seq.(interface {
			Forget(ctx context.Context, roomID int64) error
		}); ok {
			if err := f.Forget(ctx, room.ID); err != nil {
				s.postCommitFailed("purge", err, zap.Int64("room_id", room.ID))
			}
		}
	}
	s.emitRoomEvent(ctx, events.RoomEvent{
		Subject: events.SubjectRoomDeleted, RoomID: room.ID, RoomType: room.Type,
	})
}

// ListMyRooms summarizes every room of memberID, most recent activity
// first. Rooms without messages come last.
func (s *Service) ListMyRooms(ctx context.Context, memberID int64) ([]models.RoomSummary, error) {
	rms, err := s.rooms.ListRoomsForMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rms))
	for _, rm := range rms {
		ids = append(ids, rm.Room.ID)
	}
	latest, err := s.seq.LatestSeqForRooms(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.RoomSummary, 0, len(rms))
	for i := range rms {
		unread := rms[i].Membership.UnreadCount(latest[rms[i].Room.ID])
		out = append(out, models.NewRoomSummary(&rms[i].Room, unread))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return recentFirst(out[i], out[j])
	})
	return out, nil
}

// ListGroupRooms lists every GROUP room with the caller's unread count
// (0 where the caller is not a member).
func (s *Service) ListGroupRooms(ctx context.Context, caller int64) ([]models.GroupRoomSummary, error) {
	rooms, err := s.rooms.ListGroupRooms(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	latest, err := s.seq.LatestSeqForRooms(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.GroupRoomSummary, 0, len(rooms))
	for i := range rooms {
		var unread int64
		m, joined := rooms[i].Membership(caller)
		if joined {
			unread = m.UnreadCount(latest[rooms[i].ID])
		}
		out = append(out, models.GroupRoomSummary{
			RoomSummary: models.NewRoomSummary(&rooms[i], unread),
			MemberCount: len(rooms[i].Members),
			Joined:      joined,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return recentFirst(out[i].RoomSummary, out[j].RoomSummary)
	})
	return out, nil
}

// GetRoom describes a room to one of its members.
func (s *Service) GetRoom(ctx context.Context, roomID, caller int64) (models.RoomDetail, error) {
	room, err := s.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return models.RoomDetail{}, err
	}
	m, ok := room.Membership(caller)
	if !ok {
		return models.RoomDetail{}, apperr.ErrNotRoomMember
	}
	latest, err := s.seq.LatestSeq(ctx, roomID)
	if err != nil {
		return models.RoomDetail{}, err
	}
	return models.RoomDetail{
		RoomSummary: models.NewRoomSummary(room, m.UnreadCount(latest)),
		MemberIDs:   room.MemberIDs(),
		LatestSeq:   latest,
	}, nil
}

// IsRoomMember reports whether memberID currently belongs to roomID.
func (s *Service) IsRoomMember(ctx context.Context, roomID, memberID int64) (bool, error) {
	_, err := s.rooms.FindMembership(ctx, roomID, memberID)
	if errors.Is(err, apperr.ErrNotRoomMember) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// requireMember loads the caller's membership, telling a missing room
// apart from a room the caller is not in.
func (s *Service) requireMember(ctx context.Context, roomID, memberID int64) (*models.Membership, error) {
	m, err := s.rooms.FindMembership(ctx, roomID, memberID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, apperr.ErrNotRoomMember) {
		return nil, err
	}
	if _, ferr := s.rooms.FindRoom(ctx, roomID); ferr != nil {
		return nil, ferr
	}
	return nil, err
}

func recentFirst(a, b models.RoomSummary) bool {
	switch {
	case a.LastMessageAt == nil && b.LastMessageAt == nil:
		return a.RoomID > b.RoomID
	case a.LastMessageAt == nil:
		return false
	case b.LastMessageAt == nil:
		return true
	case a.LastMessageAt.Equal(*b.LastMessageAt):
		return a.RoomID > b.RoomID
	default:
		return a.LastMessageAt.After(*b.LastMessageAt)
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
