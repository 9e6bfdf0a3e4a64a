package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"shelterchat/backend/internal/apperr"
)

// MessageType is the kind of payload a message carries.
type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageImage  MessageType = "IMAGE"
	MessageVideo  MessageType = "VIDEO"
	MessageFile   MessageType = "FILE"
	MessageAudio  MessageType = "AUDIO"
	MessageSystem MessageType = "SYSTEM"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageFile, MessageAudio, MessageSystem:
		return true
	}
	return false
}

// IsBinary reports whether t carries a file reference instead of text.
func (t MessageType) IsBinary() bool {
	switch t {
	case MessageImage, MessageVideo, MessageFile, MessageAudio:
		return true
	}
	return false
}

// FileRef points at an uploaded file. Upload itself happens elsewhere.
type FileRef struct {
	Name string `json:"fileName,omitempty"`
	URL  string `json:"fileUrl,omitempty"`
	Size *int64 `json:"fileSize,omitempty"`
}

// Message is one entry of a room's append-only log.
type Message struct {
	ID       int64       `gorm:"primaryKey;autoIncrement" json:"-"`
	RoomID   int64       `gorm:"not null;uniqueIndex:uk_room_seq,priority:1" json:"roomId"`
	Seq      int64       `gorm:"not null;uniqueIndex:uk_room_seq,priority:2" json:"seq"`
	SenderID int64       `gorm:"not null;index" json:"senderId"`
	Type     MessageType `gorm:"type:varchar(16);not null" json:"type"`
	Content  string      `gorm:"type:text" json:"content,omitempty"`
	FileName string      `gorm:"type:text" json:"fileName,omitempty"`
	FileURL  string      `gorm:"type:text" json:"fileUrl,omitempty"`
	FileSize *int64      `json:"fileSize,omitempty"`
	// CreatedAt is set by the ingestion path, not by the database.
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"createdAt"`
}

// Validate enforces the content rules of the message type.
func (m *Message) Validate() error {
	if !m.Type.Valid() {
		return apperr.ErrInvalidMessage
	}
	if m.Type.IsBinary() {
		if strings.TrimSpace(m.FileURL) == "" {
			return apperr.ErrInvalidMessage
		}
		return nil
	}
	if strings.TrimSpace(m.Content) == "" {
		return apperr.ErrInvalidMessage
	}
	return nil
}

// File returns the message's file reference.
func (m *Message) File() FileRef {
	return FileRef{Name: m.FileName, URL: m.FileURL, Size: m.FileSize}
}

// Payload renders the sparse push representation of the message.
func (m *Message) Payload() MessagePayload {
	p := MessagePayload{
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt,
	}
	if strings.TrimSpace(m.Content) != "" {
		p.Content = m.Content
	}
	if strings.TrimSpace(m.FileURL) != "" {
		p.FileURL = m.FileURL
	}
	if strings.TrimSpace(m.FileName) != "" {
		p.FileName = m.FileName
	}
	p.FileSize = m.FileSize
	return p
}

const previewMaxRunes = 30

// Preview renders the room-list preview of the message.
func (m *Message) Preview() string {
	switch m.Type {
	case MessageImage:
		return "[Image]"
	case MessageVideo:
		return "[Video]"
	case MessageFile:
		return "[File]"
	case MessageAudio:
		return "[Audio]"
	}
	if utf8.RuneCountInString(m.Content) <= previewMaxRunes {
		return m.Content
	}
	return string([]rune(m.Content)[:previewMaxRunes]) + "…"
}
