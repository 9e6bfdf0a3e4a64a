package storage

import (
	"context"
	"errors"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"

	"gorm.io/gorm"
)

// PostgresMessageStore keeps the message log in the messages table.
type PostgresMessageStore struct {
	db *gorm.DB
}

func NewPostgresMessageStore(db *gorm.DB) *PostgresMessageStore {
	return &PostgresMessageStore{db: db}
}

func (s *PostgresMessageStore) Append(ctx context.Context, msg *models.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Create(msg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.ErrDuplicateSeq, err)
	}
	if err != nil {
		return apperr.Infra("append message", err)
	}
	return nil
}

func (s *PostgresMessageStore) FetchBefore(ctx context.Context, roomID int64, beforeSeq *int64, limit int) ([]models.Message, error) {
	q := s.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeSeq != nil {
		q = q.Where("seq < ?", *beforeSeq)
	}
	var out []models.Message
	if err := q.Order("seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, apperr.Infra("fetch messages", err)
	}
	return out, nil
}

func (s *PostgresMessageStore) LatestSeq(ctx context.Context, roomID int64) (int64, error) {
	var latest int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("room_id = ?", roomID).
		Scan(&latest).Error
	if err != nil {
		return 0, apperr.Infra("latest seq", err)
	}
	return latest, nil
}

func (s *PostgresMessageStore) LatestSeqForRooms(ctx context.Context, roomIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(roomIDs))
	if len(roomIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		RoomID int64
		Latest int64
	}
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Select("room_id, MAX(seq) AS latest").
		Where("room_id IN ?", roomIDs).
		Group("room_id").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Infra("latest seq for rooms", err)
	}
	for _, r := range rows {
		out[r.RoomID] = r.Latest
	}
	return out, nil
}

func (s *PostgresMessageStore) DeleteRoomMessages(ctx context.Context, roomID int64) error {
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Delete(&models.Message{}).Error; err != nil {
		return apperr.Infra("delete room messages", err)
	}
	return nil
}
