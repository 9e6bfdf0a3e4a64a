// Package chat is the chat core: room directory, message ingestion and
// history, read tracking and the post-commit fan-out of every change.
package chat

import (
	"context"
	"time"

	"shelterchat/backend/internal/config"
	"shelterchat/backend/internal/events"
	"shelterchat/backend/internal/localization"
	"shelterchat/backend/internal/members"
	"shelterchat/backend/internal/metrics"
	"shelterchat/backend/internal/models"
	"shelterchat/backend/internal/storage"

	"go.uber.org/zap"
)

// Broadcaster delivers real-time updates to subscribed connections.
type Broadcaster interface {
	PublishToRoom(ctx context.Context, roomID int64, msg models.MessagePayload) error
	PublishToMember(ctx context.Context, memberID int64, summary models.RoomSummary) error
}

// Deps are the collaborators of a Service. Events are optional.
type Deps struct {
	Rooms      storage.RoomStore
	Messages   storage.MessageStore
	Seq        storage.SequenceAllocator
	Members    members.Directory
	Fanout     Broadcaster
	MsgEvents  events.MessagePublisher
	RoomEvents events.RoomPublisher
	Localizer  *localization.Localizer
	Logger     *zap.Logger
}

// Options tune the room rules.
type Options struct {
	MaxGroupSize          int
	PurgeMessagesOnDelete bool
	// Now overrides the clock in tests.
	Now func() time.Time
}

type Service struct {
	rooms      storage.RoomStore
	messages   storage.MessageStore
	seq        storage.SequenceAllocator
	members    members.Directory
	fanout     Broadcaster
	msgEvents  events.MessagePublisher
	roomEvents events.RoomPublisher
	loc        *localization.Localizer
	logger     *zap.Logger
	opts       Options
}

func NewService(deps Deps, opts Options) *Service {
	if opts.MaxGroupSize <= 0 {
		opts.MaxGroupSize = config.DefaultMaxGroupSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{
		rooms:      deps.Rooms,
		messages:   deps.Messages,
		seq:        deps.Seq,
		members:    deps.Members,
		fanout:     deps.Fanout,
		msgEvents:  deps.MsgEvents,
		roomEvents: deps.RoomEvents,
		loc:        deps.Localizer,
		logger:     deps.Logger,
		opts:       opts,
	}
	if s.msgEvents == nil {
		s.msgEvents = events.Nop{}
	}
	if s.roomEvents == nil {
		s.roomEvents = events.Nop{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// now is UTC at millisecond precision, which every store keeps losslessly.
func (s *Service) now() time.Time {
	return s.opts.Now().UTC().Truncate(time.Millisecond)
}

// postCommitFailed records a side effect that failed after its operation
// was committed. Such failures are never returned to the caller.
func (s *Service) postCommitFailed(step string, err error, fields ...zap.Field) {
	metrics.PostCommitFailures.WithLabelValues(step).Inc()
	s.logger.Error("post-commit step failed", append(fields, zap.String("step", step), zap.Error(err))...)
}

func (s *Service) emitRoomEvent(ctx context.Context, ev events.RoomEvent) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	if err := s.roomEvents.PublishRoomEvent(ctx, ev); err != nil {
		s.postCommitFailed("event", err, zap.String("subject", ev.Subject), zap.Int64("room_id", ev.RoomID))
	}
}
