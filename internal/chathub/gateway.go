package chathub

import (
	"context"
	"encoding/json"
	"strings"

	"shelterchat/backend/internal/apperr"
	"shelterchat/backend/internal/chat"
	"shelterchat/backend/internal/localization"
	"shelterchat/backend/internal/models"

	"go.uber.org/zap"
)

// MessageSender is the part of the chat service SEND frames are routed to.
type MessageSender interface {
	SendMessage(ctx context.Context, roomID, senderID int64, d chat.Draft) (models.MessagePayload, error)
}

// Gateway speaks the frame protocol on behalf of the hub.
type Gateway struct {
	hub    *Hub
	chain  Chain
	sender MessageSender
	loc    *localization.Localizer
	logger *zap.Logger
}

func NewGateway(hub *Hub, sender MessageSender, loc *localization.Localizer, logger *zap.Logger, interceptors ...Interceptor) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{hub: hub, chain: Chain(interceptors), sender: sender, loc: loc, logger: logger}
}

// Handle processes one inbound frame of s. It reports false when the
// connection must be closed afterwards.
func (g *Gateway) Handle(ctx context.Context, s *Session, data []byte) bool {
	f, err := DecodeFrame(data)
	if err != nil {
		g.reject(s, "", err)
		return true
	}
	receipt := f.Header(HeaderReceipt)

	if err := g.chain.PreSend(ctx, s, f); err != nil {
		g.reject(s, receipt, err)
		// a failed CONNECT ends the connection
		return f.Command != CmdConnect
	}

	switch f.Command {
	case CmdConnect:
		id, _ := s.Identity()
		s.reply(connectedFrame(s.ID, id.MemberID))
		g.logger.Debug("session authenticated", zap.String("session_id", s.ID), zap.Int64("member_id", id.MemberID))
	case CmdSubscribe:
		subID := strings.TrimSpace(f.Header(HeaderID))
		if subID == "" {
			g.reject(s, receipt, apperr.ErrInvalidFrame)
			return true
		}
		parsed, err := ParseDestination(f.Header(HeaderDestination))
		if err != nil {
			g.reject(s, receipt, err)
			return true
		}
		g.hub.Subscribe(s, subID, parsed.String(), parsed.Kind)
	case CmdUnsubscribe:
		g.hub.Unsubscribe(s, f.Header(HeaderID))
	case CmdSend:
		if err := g.send(ctx, s, f); err != nil {
			g.reject(s, receipt, err)
		}
	case CmdDisconnect:
		return false
	}
	return true
}

func (g *Gateway) send(ctx context.Context, s *Session, f *Frame) error {
	dest, err := ParseDestination(f.Header(HeaderDestination))
	if err != nil {
		return err
	}
	var draft chat.Draft
	if len(f.Body) > 0 {
		if err := json.Unmarshal(f.Body, &draft); err != nil {
			return apperr.Wrap(apperr.ErrInvalidMessage, err)
		}
	}
	id, _ := s.Identity()
	_, err = g.sender.SendMessage(ctx, dest.ID, id.MemberID, draft)
	return err
}

func (g *Gateway) reject(s *Session, receipt string, err error) {
	code := apperr.CodeOf(err)
	fields := []zap.Field{zap.String("session_id", s.ID), zap.String("code", code), zap.Error(err)}
	if apperr.KindOf(err) == apperr.KindInfrastructure {
		g.logger.Error("frame failed", fields...)
	} else {
		g.logger.Debug("frame rejected", fields...)
	}

	message := code
	if g.loc != nil {
		message = g.loc.GetString(s.Lang, code)
	}
	s.reply(errorFrame(receipt, code, message))
}
