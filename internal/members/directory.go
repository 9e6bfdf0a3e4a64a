// Package members answers whether platform accounts exist and are active.
// Accounts are owned by the member service; this package only reads them.
package members

import (
	"context"
	"sync"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/models"

	"gorm.io/gorm"
)

// Directory validates that members can take part in chats.
type Directory interface {
	// EnsureActive fails with apperr.ErrMemberNotFound or
	// apperr.ErrMemberDeleted.
	EnsureActive(ctx context.Context, memberID int64) error
	// EnsureAllActive checks every id with a single lookup.
	EnsureAllActive(ctx context.Context, memberIDs []int64) error
}

// GormDirectory reads the members table of the shared database.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) EnsureActive(ctx context.Context, memberID int64) error {
	return d.EnsureAllActive(ctx, []int64{memberID})
}

func (d *GormDirectory) EnsureAllActive(ctx context.Context, memberIDs []int64) error {
	if len(memberIDs) == 0 {
		return nil
	}
	var found []models.Member
	err := d.db.WithContext(ctx).
		Select("id", "is_deleted").
		Where("id IN ?", memberIDs).
		Find(&found).Error
	if err != nil {
		return apperr.Infra("lookup members", err)
	}
	return check(memberIDs, found)
}

func check(memberIDs []int64, found []models.Member) error {
	byID := make(map[int64]models.Member, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	for _, id := range memberIDs {
		m, ok := byID[id]
		if !ok {
			return apperr.ErrMemberNotFound
		}
		if m.IsDeleted {
			return apperr.ErrMemberDeleted
		}
	}
	return nil
}

// MemoryDirectory keeps members in process. With AllowUnknown set every id
// that was never registered counts as active, which suits single-node
// development where no member service exists.
type MemoryDirectory struct {
	AllowUnknown bool

	mu      sync.RWMutex
	members map[int64]models.Member
}

func NewMemoryDirectory(allowUnknown bool) *MemoryDirectory {
	return &MemoryDirectory{AllowUnknown: allowUnknown, members: make(map[int64]models.Member)}
}

// Put registers or replaces a member.
func (d *MemoryDirectory) Put(m models.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
}

// MarkDeleted flags a registered member as deleted.
func (d *MemoryDirectory) MarkDeleted(memberID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.members[memberID]
	m.ID = memberID
	m.IsDeleted = true
	d.members[memberID] = m
}

func (d *MemoryDirectory) EnsureActive(ctx context.Context, memberID int64) error {
	return d.EnsureAllActive(ctx, []int64{memberID})
}

func (d *MemoryDirectory) EnsureAllActive(_ context.Context, memberIDs []int64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	found := make([]models.Member, 0, len(memberIDs))
	for _, id := range memberIDs {
		if m, ok := d.members[id]; ok {
			found = append(found, m)
		} else if d.AllowUnknown {
			found = append(found, models.Member{ID: id})
		}
	}
	return check(memberIDs, found)
}
