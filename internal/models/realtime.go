package models

import "time"

// MessagePayload is pushed to room channels. Optional fields are omitted
// when blank.
type MessagePayload struct {
	RoomID    int64       `json:"roomId"`
	SenderID  int64       `json:"senderId"`
	Type      MessageType `json:"type"`
	Seq       int64       `json:"seq"`
	CreatedAt time.Time   `json:"createdAt"`
	Content   string      `json:"content,omitempty"`
	FileURL   string      `json:"fileUrl,omitempty"`
	FileName  string      `json:"fileName,omitempty"`
	FileSize  *int64      `json:"fileSize,omitempty"`
}

// RoomSummary is one row of a member's room list and the payload of
// personal-channel updates.
type RoomSummary struct {
	RoomID             int64      `json:"roomId"`
	Type               RoomType   `json:"type"`
	UnreadCount        int64      `json:"unreadCount"`
	LastMessagePreview *string    `json:"lastMessagePreview"`
	LastMessageAt      *time.Time `json:"lastMessageAt"`
}

// NewRoomSummary builds the summary of room for a member with unread messages.
func NewRoomSummary(room *Room, unread int64) RoomSummary {
	return RoomSummary{
		RoomID:             room.ID,
		Type:               room.Type,
		UnreadCount:        unread,
		LastMessagePreview: room.LastMessagePreview,
		LastMessageAt:      room.LastMessageAt,
	}
}

// GroupRoomSummary is a row of the public group-room directory.
type GroupRoomSummary struct {
	RoomSummary
	MemberCount int  `json:"memberCount"`
	Joined      bool `json:"joined"`
}

// RoomDetail describes a room to one of its members.
type RoomDetail struct {
	RoomSummary
	MemberIDs []int64 `json:"memberIds"`
	LatestSeq int64   `json:"latestSeq"`
}

// HistoryPage is a reverse-paginated slice of a room's log in ascending order.
type HistoryPage struct {
	Messages []MessagePayload `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}
