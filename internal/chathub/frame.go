package chathub

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"shelterchat/backend/internal/apperr"
)

// Client commands.
const (
	CmdConnect     = "CONNECT"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdSend        = "SEND"
	CmdDisconnect  = "DISCONNECT"
)

// Server commands.
const (
	CmdConnected = "CONNECTED"
	CmdMessage   = "MESSAGE"
	CmdError     = "ERROR"
)

// Frame headers.
const (
	HeaderAuthorization = "Authorization"
	HeaderID            = "id"
	HeaderDestination   = "destination"
	HeaderSubscription  = "subscription"
	HeaderReceipt       = "receipt"
	HeaderCode          = "code"
	HeaderMessage       = "message"
	HeaderSession       = "session"
)

// Frame is one JSON text frame of the WebSocket protocol.
type Frame struct {
	Command string            `json:"command"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Header returns a header value or "" when absent.
func (f Frame) Header(name string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[name]
}

// DecodeFrame parses a client frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidFrame, err)
	}
	f.Command = strings.ToUpper(strings.TrimSpace(f.Command))
	switch f.Command {
	case CmdConnect, CmdSubscribe, CmdUnsubscribe, CmdSend, CmdDisconnect:
		return &f, nil
	}
	return nil, apperr.ErrInvalidFrame
}

func connectedFrame(sessionID string, memberID int64) Frame {
	return Frame{Command: CmdConnected, Headers: map[string]string{
		HeaderSession: sessionID,
		"member-id":   strconv.FormatInt(memberID, 10),
	}}
}

func messageFrame(subID, destination string, body json.RawMessage) Frame {
	return Frame{Command: CmdMessage, Headers: map[string]string{
		HeaderSubscription: subID,
		HeaderDestination:  destination,
	}, Body: body}
}

func errorFrame(receipt, code, message string) Frame {
	h := map[string]string{HeaderCode: code, HeaderMessage: message}
	if receipt != "" {
		h[HeaderReceipt] = receipt
	}
	return Frame{Command: CmdError, Headers: h}
}

// DestKind classifies a destination.
type DestKind int

const (
	DestRoomTopic DestKind = iota + 1
	DestPersonalTopic
	DestRoomPublish
)

// Label is the metric label of a subscription channel.
func (k DestKind) Label() string {
	if k == DestPersonalTopic {
		return "personal"
	}
	return "room"
}

const (
	roomTopicPrefix   = "/topic/chat/room/"
	roomPublishPrefix = "/publish/chat/room/"
	personalPrefix    = "/topic/user."
	personalSuffix    = ".room-summary"
)

// Destination is a parsed destination header.
type Destination struct {
	Kind DestKind
	// ID is the room id or, for personal topics, the member id.
	ID int64
}

// String renders the destination in its canonical form.
func (d Destination) String() string {
	switch d.Kind {
	case DestRoomTopic:
		return RoomTopic(d.ID)
	case DestPersonalTopic:
		return MemberTopic(d.ID)
	case DestRoomPublish:
		return RoomPublish(d.ID)
	}
	return ""
}

// RoomTopic is the destination room messages are pushed to.
func RoomTopic(roomID int64) string {
	return roomTopicPrefix + strconv.FormatInt(roomID, 10)
}

// MemberTopic is the destination room summaries of a member are pushed to.
func MemberTopic(memberID int64) string {
	return fmt.Sprintf("%s%d%s", personalPrefix, memberID, personalSuffix)
}

// RoomPublish is the destination clients send messages of a room to.
func RoomPublish(roomID int64) string {
	return roomPublishPrefix + strconv.FormatInt(roomID, 10)
}

// ParseDestination recognizes the three destination shapes.
func ParseDestination(dest string) (Destination, error) {
	var (
		kind DestKind
		raw  string
	)
	switch {
	case strings.HasPrefix(dest, roomTopicPrefix):
		kind, raw = DestRoomTopic, strings.TrimPrefix(dest, roomTopicPrefix)
	case strings.HasPrefix(dest, roomPublishPrefix):
		kind, raw = DestRoomPublish, strings.TrimPrefix(dest, roomPublishPrefix)
	case strings.HasPrefix(dest, personalPrefix) && strings.HasSuffix(dest, personalSuffix):
		kind, raw = DestPersonalTopic, strings.TrimSuffix(strings.TrimPrefix(dest, personalPrefix), personalSuffix)
	default:
		return Destination{}, apperr.ErrInvalidDest
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	// only the canonical spelling matches the topics messages are pushed to
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != raw {
		return Destination{}, apperr.ErrInvalidDest
	}
	return Destination{Kind: kind, ID: id}, nil
}
