package chat

import (
	"context"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/config"
	"shelterchat/backend/internal/metrics"
	"shelterchat/backend/internal/models"

	"go.uber.org/zap"
)

// Draft is a message as submitted by a client.
type Draft struct {
	Type     models.MessageType `json:"type"`
	Content  string             `json:"content,omitempty"`
	FileName string             `json:"fileName,omitempty"`
	FileURL  string             `json:"fileUrl,omitempty"`
	FileSize *int64             `json:"fileSize,omitempty"`
}

// SendMessage appends a message from senderID to the room and fans it
// out. Once the message is committed the call succeeds; later steps only
// log their failures.
func (s *Service) SendMessage(ctx context.Context, roomID, senderID int64, d Draft) (models.MessagePayload, error) {
	if d.Type == "" {
		d.Type = models.MessageText
	}
	if d.Type == models.MessageSystem {
		return models.MessagePayload{}, apperr.ErrInvalidMessage
	}
	msg := &models.Message{
		RoomID:   roomID,
		SenderID: senderID,
		Type:     d.Type,
		Content:  d.Content,
		FileName: d.FileName,
		FileURL:  d.FileURL,
		FileSize: d.FileSize,
	}
	if err := msg.Validate(); err != nil {
		return models.MessagePayload{}, err
	}

	room, err := s.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return models.MessagePayload{}, err
	}
	if _, ok := room.Membership(senderID); !ok {
		return models.MessagePayload{}, apperr.ErrNotRoomMember
	}

	if err := s.commit(ctx, room, msg); err != nil {
		return models.MessagePayload{}, err
	}
	return msg.Payload(), nil
}

// commit allocates a seq, appends msg under it and then runs the
// post-commit steps on a context that no longer follows the caller.
func (s *Service) commit(ctx context.Context, room *models.Room, msg *models.Message) error {
	start := time.Now()
	_, err := s.seq.Allocate(ctx, room.ID, func(seq int64) error {
		msg.Seq = seq
		msg.CreatedAt = s.now()
		return s.messages.Append(ctx, msg)
	})
	if err != nil {
		s.logger.Warn("message not committed", zap.Int64("room_id", room.ID), zap.Int64("member_id", msg.SenderID), zap.Error(err))
		return err
	}
	metrics.SendDuration.Observe(time.Since(start).Seconds())
	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()

	s.afterCommit(context.WithoutCancel(ctx), room, msg)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, room *models.Room, msg *models.Message) {
	fields := []zap.Field{zap.Int64("room_id", room.ID), zap.Int64("seq", msg.Seq)}

	preview := msg.Preview()
	if err := s.rooms.UpdateLastMessage(ctx, room.ID, msg.CreatedAt, preview); err != nil {
		s.postCommitFailed("preview", err, fields...)
	}
	room.Touch(msg.CreatedAt, preview)

	if m, ok := room.Membership(msg.SenderID); ok {
		if _, err := s.rooms.AdvanceLastRead(ctx, room.ID, msg.SenderID, msg.Seq, msg.CreatedAt); err != nil {
			s.postCommitFailed("read_advance", err, fields...)
		}
		m.AdvanceTo(msg.Seq, msg.CreatedAt)
	}

	payload := msg.Payload()
	if err := s.fanout.PublishToRoom(ctx, room.ID, payload); err != nil {
		s.postCommitFailed("fanout", err, fields...)
	}

	latest, err := s.seq.LatestSeq(ctx, room.ID)
	if err != nil || latest < msg.Seq {
		latest = msg.Seq
	}
	for _, m := range room.Members {
		unread := m.UnreadCount(latest)
		if m.MemberID == msg.SenderID {
			unread = 0
		}
		if err := s.fanout.PublishToMember(ctx, m.MemberID, models.NewRoomSummary(room, unread)); err != nil {
			s.postCommitFailed("fanout", err, append(fields, zap.Int64("member_id", m.MemberID))...)
		}
	}

	if err := s.msgEvents.PublishMessage(ctx, payload); err != nil {
		s.postCommitFailed("event", err, fields...)
	}
}

// FetchHistory returns up to size messages older than beforeSeq (the
// newest when nil) in ascending seq order.
func (s *Service) FetchHistory(ctx context.Context, roomID, caller int64, beforeSeq *int64, size int) (models.HistoryPage, error) {
	if _, err := s.requireMember(ctx, roomID, caller); err != nil {
		return models.HistoryPage{}, err
	}
	size = clampPageSize(size)

	rows, err := s.messages.FetchBefore(ctx, roomID, beforeSeq, size+1)
	if err != nil {
		return models.HistoryPage{}, err
	}
	hasMore := len(rows) > size
	if hasMore {
		rows = rows[:size]
	}

	page := models.HistoryPage{Messages: make([]models.MessagePayload, len(rows)), HasMore: hasMore}
	for i := range rows {
		page.Messages[len(rows)-1-i] = rows[i].Payload()
	}
	return page, nil
}

func clampPageSize(size int) int {
	switch {
	case size <= 0:
		return config.DefaultPageSize
	case size > config.MaxPageSize:
		return config.MaxPageSize
	default:
		return size
	}
}

// MarkRead moves the member's read position to the room's latest seq and
// returns the resulting position. Other sessions of the member receive a
// cleared room summary.
func (s *Service) MarkRead(ctx context.Context, roomID, memberID int64) (int64, error) {
	room, err := s.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}
	m, ok := room.Membership(memberID)
	if !ok {
		return 0, apperr.ErrNotRoomMember
	}
	latest, err := s.seq.LatestSeq(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if latest <= m.LastReadSeq {
		return m.LastReadSeq, nil
	}

	changed, err := s.rooms.AdvanceLastRead(ctx, roomID, memberID, latest, s.now())
	if err != nil {
		return 0, err
	}
	if changed {
		ctx = context.WithoutCancel(ctx)
		if err := s.fanout.PublishToMember(ctx, memberID, models.NewRoomSummary(room, 0)); err != nil {
			s.postCommitFailed("fanout", err, zap.Int64("room_id", roomID), zap.Int64("member_id", memberID))
		}
	}
	return latest, nil
}
