// Package events publishes chat domain events for downstream consumers.
// Message events go to Kafka, room lifecycle events go to NATS. Both are
// optional and never block or fail a committed operation.
package events

import (
	"context"
	"time"

	"shelterchat/backend/internal/models"
)

// Room lifecycle subjects.
const (
	SubjectRoomCreated  = "chat.room.created"
	SubjectRoomDeleted  = "chat.room.deleted"
	SubjectMemberJoined = "chat.member.joined"
	SubjectMemberLeft   = "chat.member.left"
)

// RoomEvent describes a change of a room or its member set.
type RoomEvent struct {
	Subject   string          `json:"-"`
	RoomID    int64           `json:"roomId"`
	RoomType  models.RoomType `json:"roomType"`
	MemberID  int64           `json:"memberId,omitempty"`
	MemberIDs []int64         `json:"memberIds,omitempty"`
	At        time.Time       `json:"at"`
}

// MessagePublisher receives every committed message.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg models.MessagePayload) error
}

// RoomPublisher receives room lifecycle events.
type RoomPublisher interface {
	PublishRoomEvent(ctx context.Context, ev RoomEvent) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) PublishMessage(context.Context, models.MessagePayload) error { return nil }
func (Nop) PublishRoomEvent(context.Context, RoomEvent) error         { return nil }
