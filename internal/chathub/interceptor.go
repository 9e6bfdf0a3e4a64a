package chathub

import (
	"context"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/auth"
	"shelterchat/backend/internal/metrics"

	"golang.org/x/time/rate"
)

// Interceptor inspects an inbound frame before it is handled. An error
// rejects that frame only.
type Interceptor interface {
	PreSend(ctx context.Context, s *Session, f *Frame) error
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(ctx context.Context, s *Session, f *Frame) error

func (fn InterceptorFunc) PreSend(ctx context.Context, s *Session, f *Frame) error {
	return fn(ctx, s, f)
}

// Chain runs interceptors in order and stops at the first rejection.
type Chain []Interceptor

func (c Chain) PreSend(ctx context.Context, s *Session, f *Frame) error {
	for _, i := range c {
		if err := i.PreSend(ctx, s, f); err != nil {
			metrics.RejectedFrames.WithLabelValues(apperr.CodeOf(err)).Inc()
			return err
		}
	}
	return nil
}

// MembershipChecker answers whether a member belongs to a room.
type MembershipChecker interface {
	IsRoomMember(ctx context.Context, roomID, memberID int64) (bool, error)
}

// Gatekeeper authenticates CONNECT frames and authorizes every later
// frame against the session's identity.
type Gatekeeper struct {
	Resolver auth.Resolver
	Rooms    MembershipChecker
}

func (g *Gatekeeper) PreSend(ctx context.Context, s *Session, f *Frame) error {
	switch f.Command {
	case CmdConnect:
		token, err := auth.BearerToken(f.Header(HeaderAuthorization))
		if err != nil {
			return err
		}
		id, err := g.Resolver.Resolve(ctx, token)
		if err != nil {
			return err
		}
		s.authenticate(id)
		return nil
	case CmdDisconnect:
		return nil
	}

	id, ok := s.Identity()
	if !ok {
		return apperr.ErrNotAuthenticated
	}

	switch f.Command {
	case CmdSubscribe:
		dest, err := ParseDestination(f.Header(HeaderDestination))
		if err != nil {
			return err
		}
		switch dest.Kind {
		case DestPersonalTopic:
			if dest.ID != id.MemberID {
				return apperr.ErrForbiddenDest
			}
		case DestRoomTopic:
			member, err := g.Rooms.IsRoomMember(ctx, dest.ID, id.MemberID)
			if err != nil {
				return err
			}
			if !member {
				return apperr.ErrNotRoomMember
			}
		default:
			return apperr.ErrInvalidDest
		}
	case CmdSend:
		dest, err := ParseDestination(f.Header(HeaderDestination))
		if err != nil {
			return err
		}
		if dest.Kind != DestRoomPublish {
			return apperr.ErrInvalidDest
		}
	}
	return nil
}

// RateLimit caps the inbound frame rate of each session.
type RateLimit struct {
	Limit rate.Limit
	Burst int
}

func (r RateLimit) PreSend(_ context.Context, s *Session, f *Frame) error {
	if f.Command == CmdDisconnect {
		return nil
	}
	// only the session's read goroutine gets here
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(r.Limit, r.Burst)
	}
	if !s.limiter.Allow() {
		return apperr.ErrRateLimited
	}
	return nil
}
