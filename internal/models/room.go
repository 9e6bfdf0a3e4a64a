package models

import (
	"fmt"
	"time"
)

// RoomType distinguishes 1-on-1 rooms from group rooms.
type RoomType string

const (
	RoomPrivate RoomType = "PRIVATE"
	RoomGroup   RoomType = "GROUP"
)

// Room is a conversation with an explicit, finite member set.
// Memberships are owned by the room and are removed with it.
type Room struct {
	// ID is the autoincrement room identifier.
	ID int64 `gorm:"primaryKey;autoIncrement" json:"roomId"`
	// Type is PRIVATE or GROUP.
	Type RoomType `gorm:"type:varchar(16);not null;index" json:"type"`
	// PairKey is "min:max" of the two member IDs of a PRIVATE room. It is
	// unique while set and cleared as soon as either member leaves.
	PairKey *string `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	// LastMessageAt is the creation time of the newest message (nil for an empty room).
	LastMessageAt *time.Time `gorm:"index" json:"lastMessageAt"`
	// LastMessagePreview is a short rendering of the newest message.
	LastMessagePreview *string `gorm:"type:text" json:"lastMessagePreview"`
	CreatedAt          time.Time `json:"createdAt"`

	Members []Membership `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE" json:"-"`
}

// PrivatePairKey builds the unordered pair key for two member IDs.
func PrivatePairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

// NewPrivateRoom builds an unsaved PRIVATE room for a and b.
func NewPrivateRoom(a, b int64, now time.Time) *Room {
	key := PrivatePairKey(a, b)
	return &Room{
		Type:      RoomPrivate,
		PairKey:   &key,
		CreatedAt: now,
		Members: []Membership{
			{MemberID: a, JoinedAt: now},
			{MemberID: b, JoinedAt: now},
		},
	}
}

// NewGroupRoom builds an unsaved GROUP room. memberIDs must already be deduplicated.
func NewGroupRoom(memberIDs []int64, now time.Time) *Room {
	room := &Room{Type: RoomGroup, CreatedAt: now}
	for _, id := range memberIDs {
		room.Members = append(room.Members, Membership{MemberID: id, JoinedAt: now})
	}
	return room
}

// MemberIDs lists the IDs of the loaded memberships.
func (r *Room) MemberIDs() []int64 {
	ids := make([]int64, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.MemberID)
	}
	return ids
}

// Membership returns the loaded membership of memberID, if any.
func (r *Room) Membership(memberID int64) (*Membership, bool) {
	for i := range r.Members {
		if r.Members[i].MemberID == memberID {
			return &r.Members[i], true
		}
	}
	return nil, false
}

// HasExactly reports whether the loaded member set is exactly {a, b}.
func (r *Room) HasExactly(a, b int64) bool {
	if len(r.Members) != 2 {
		return false
	}
	_, okA := r.Membership(a)
	_, okB := r.Membership(b)
	return okA && okB
}

// Touch records the newest message on the room.
func (r *Room) Touch(at time.Time, preview string) {
	r.LastMessageAt = &at
	r.LastMessagePreview = &preview
}

// Membership links a member to a room and carries the member's read position.
type Membership struct {
	ID       int64 `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID   int64 `gorm:"not null;uniqueIndex:uk_room_member,priority:1" json:"roomId"`
	MemberID int64 `gorm:"not null;uniqueIndex:uk_room_member,priority:2;index:idx_membership_member" json:"memberId"`
	// LastReadSeq is the highest seq the member has read. It never regresses.
	LastReadSeq int64      `gorm:"not null;default:0" json:"lastReadSeq"`
	LastReadAt  *time.Time `json:"lastReadAt"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

// AdvanceTo moves the read position forward. It reports whether anything changed.
func (m *Membership) AdvanceTo(seq int64, at time.Time) bool {
	if seq <= m.LastReadSeq {
		return false
	}
	m.LastReadSeq = seq
	m.LastReadAt = &at
	return true
}

// UnreadCount is max(latestSeq - LastReadSeq, 0).
func (m Membership) UnreadCount(latestSeq int64) int64 {
	if n := latestSeq - m.LastReadSeq; n > 0 {
		return n
	}
	return 0
}
