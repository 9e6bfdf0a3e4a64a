package models

// Member is the read-only view of a platform account. The account
// lifecycle is owned by the member service; chat only looks members up.
type Member struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"type:varchar(64)" json:"name"`
	Role      string `gorm:"type:varchar(32)" json:"role"`
	IsDeleted bool   `gorm:"not null;default:false" json:"-"`
}

// TableName pins the table owned by the member service.
func (Member) TableName() string {
	return "members"
}
