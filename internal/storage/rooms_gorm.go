package storage

import (
	"context"
	"errors"
	"time"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresRoomStore is the gorm implementation of RoomStore.
type PostgresRoomStore struct {
	db *gorm.DB
}

func NewPostgresRoomStore(db *gorm.DB) *PostgresRoomStore {
	return &PostgresRoomStore{db: db}
}

func orderMembers(db *gorm.DB) *gorm.DB {
	return db.Order("member_id")
}

func (s *PostgresRoomStore) CreateRoom(ctx context.Context, room *models.Room) error {
	err := s.db.WithContext(ctx).Create(room).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.ErrPrivateRoomRace, err)
	}
	if err != nil {
		return apperr.Infra("create room", err)
	}
	return nil
}

func (s *PostgresRoomStore) FindRoom(ctx context.Context, roomID int64) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Preload("Members", orderMembers).First(&room, roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrRoomNotFound
	}
	if err != nil {
		return nil, apperr.Infra("find room", err)
	}
	return &room, nil
}

func (s *PostgresRoomStore) FindPrivateRoom(ctx context.Context, a, b int64) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).
		Preload("Members", orderMembers).
		Where("pair_key = ?", models.PrivatePairKey(a, b)).
		First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrRoomNotFound
	}
	if err != nil {
		return nil, apperr.Infra("find private room", err)
	}
	return &room, nil
}

func (s *PostgresRoomStore) DeleteRoom(ctx context.Context, roomID int64) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", roomID).Delete(&models.Membership{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Room{}, roomID).Error
	})
	if err != nil {
		return apperr.Infra("delete room", err)
	}
	return nil
}

// AddMember locks the room row like RemoveMember, so concurrent joins are
// counted one after another against maxMembers.
func (s *PostgresRoomStore) AddMember(ctx context.Context, roomID, memberID int64, joinedAt time.Time, maxMembers int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		if maxMembers > 0 {
			var count int64
			if err := tx.Model(&models.Membership{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
				return err
			}
			if count >= int64(maxMembers) {
				return apperr.ErrInvalidGroupSize
			}
		}

		m := models.Membership{RoomID: roomID, MemberID: memberID, JoinedAt: joinedAt}
		return tx.Create(&m).Error
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.ErrAlreadyMember, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Wrap(apperr.ErrRoomNotFound, err)
	case apperr.KindOf(err) != apperr.KindInfrastructure:
		return err
	}
	return apperr.Infra("add member", err)
}

// RemoveMember locks the room row so concurrent leaves of the last two
// members cannot both observe a remaining member. The room is deleted in
// the same transaction once it is empty.
func (s *PostgresRoomStore) RemoveMember(ctx context.Context, roomID, memberID int64) (int, error) {
	var remaining int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&room, roomID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		res := tx.Where("room_id = ? AND member_id = ?", roomID, memberID).Delete(&models.Membership{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrNotRoomMember
		}

		if err := tx.Model(&models.Membership{}).Where("room_id = ?", roomID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Delete(&models.Room{}, roomID).Error
		}
		if room.Type == models.RoomPrivate && room.PairKey != nil {
			return tx.Model(&models.Room{}).Where("id = ?", roomID).Update("pair_key", nil).Error
		}
		return nil
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInfrastructure {
			return 0, err
		}
		return 0, apperr.Infra("remove member", err)
	}
	return int(remaining), nil
}

func (s *PostgresRoomStore) FindMembership(ctx context.Context, roomID, memberID int64) (*models.Membership, error) {
	var m models.Membership
	err := s.db.WithContext(ctx).Where("room_id = ? AND member_id = ?", roomID, memberID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotRoomMember
	}
	if err != nil {
		return nil, apperr.Infra("find membership", err)
	}
	return &m, nil
}

func (s *PostgresRoomStore) ListMemberships(ctx context.Context, roomID int64) ([]models.Membership, error) {
	var out []models.Membership
	if err := s.db.WithContext(ctx).Where("room_id = ?", roomID).Order("member_id").Find(&out).Error; err != nil {
		return nil, apperr.Infra("list memberships", err)
	}
	return out, nil
}

func (s *PostgresRoomStore) ListRoomsForMember(ctx context.Context, memberID int64) ([]RoomMembership, error) {
	var memberships []models.Membership
	if err := s.db.WithContext(ctx).Where("member_id = ?", memberID).Find(&memberships).Error; err != nil {
		return nil, apperr.Infra("list rooms for member", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.RoomID)
	}
	var rooms []models.Room
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rooms).Error; err != nil {
		return nil, apperr.Infra("list rooms for member", err)
	}
	byID := make(map[int64]models.Room, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
	}

	out := make([]RoomMembership, 0, len(memberships))
	for _, m := range memberships {
		// a room deleted between the two queries is skipped
		if room, ok := byID[m.RoomID]; ok {
			out = append(out, RoomMembership{Room: room, Membership: m})
		}
	}
	return out, nil
}

func (s *PostgresRoomStore) ListGroupRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).
		Preload("Members", orderMembers).
		Where("type = ?", models.RoomGroup).
		Order("id").
		Find(&rooms).Error
	if err != nil {
		return nil, apperr.Infra("list group rooms", err)
	}
	return rooms, nil
}

func (s *PostgresRoomStore) UpdateLastMessage(ctx context.Context, roomID int64, at time.Time, preview string) error {
	err := s.db.WithContext(ctx).Model(&models.Room{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)", roomID, at).
		Updates(map[string]interface{}{
			"last_message_at":      at,
			"last_message_preview": preview,
		}).Error
	if err != nil {
		return apperr.Infra("update last message", err)
	}
	return nil
}

func (s *PostgresRoomStore) AdvanceLastRead(ctx context.Context, roomID, memberID, seq int64, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Membership{}).
		Where("room_id = ? AND member_id = ? AND last_read_seq < ?", roomID, memberID, seq).
		Updates(map[string]interface{}{
			"last_read_seq": seq,
			"last_read_at":  at,
		})
	if res.Error != nil {
		return false, apperr.Infra("advance last read", res.Error)
	}
	return res.RowsAffected > 0, nil
}
