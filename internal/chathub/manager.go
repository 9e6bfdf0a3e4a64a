// Package chathub fans chat updates out to WebSocket connections and
// guards those connections with an interceptor chain.
package chathub

import (
	"context"
	"encoding/json"
	"errors"

	"shelterchat/backend/internal/metrics"
	"shelterchat/backend/internal/models"

	"go.uber.org/zap"
)

var errHubStopped = errors.New("chathub: hub stopped")

// Envelope is a payload addressed to a destination. It is what travels
// over the relay between nodes.
type Envelope struct {
	Destination string          `json:"destination"`
	Body        json.RawMessage `json:"body"`
}

type subscription struct {
	session *Session
	id      string
	dest    string
	kind    DestKind
}

type subEntry struct {
	dest string
	kind DestKind
}

// Hub owns the subscription registry. All registry state is confined to
// the Run goroutine; other goroutines talk to it over channels.
type Hub struct {
	relay  Relay
	logger *zap.Logger

	sessions map[*Session]map[string]subEntry
	topics   map[string]map[*Session]string

	register    chan *Session
	unregister  chan *Session
	subscribe   chan subscription
	unsubscribe chan subscription
	inbound     chan Envelope
	done        chan struct{}
}

// NewHub creates a hub. With a nil relay every publish is delivered to
// this node's subscribers only.
func NewHub(relay Relay, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		relay:       relay,
		logger:      logger,
		sessions:    make(map[*Session]map[string]subEntry),
		topics:      make(map[string]map[*Session]string),
		register:    make(chan *Session),
		unregister:  make(chan *Session),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		inbound:     make(chan Envelope, 256),
		done:        make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is cancelled,
// then closes every session.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	if h.relay != nil {
		go func() {
			err := h.relay.Listen(ctx, func(env Envelope) {
				select {
				case h.inbound <- env:
				case <-h.done:
				}
			})
			if err != nil && ctx.Err() == nil {
				h.logger.Error("fan-out relay stopped", zap.Error(err))
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-h.register:
			h.sessions[s] = make(map[string]subEntry)
			metrics.ActiveConnections.Inc()
		case s := <-h.unregister:
			h.remove(s)
		case sub := <-h.subscribe:
			h.addSubscription(sub)
		case sub := <-h.unsubscribe:
			h.removeSubscription(sub.session, sub.id)
		case env := <-h.inbound:
			h.deliver(env)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for s := range h.sessions {
		h.remove(s)
	}
}

// Register adds a session. It reports false once the hub has stopped.
func (h *Hub) Register(s *Session) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

// Unregister drops a session and all of its subscriptions and closes its
// outbound stream.
func (h *Hub) Unregister(s *Session) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Subscribe attaches s to dest under the client's subscription id. A
// reused id replaces the earlier subscription.
func (h *Hub) Subscribe(s *Session, id, dest string, kind DestKind) {
	select {
	case h.subscribe <- subscription{session: s, id: id, dest: dest, kind: kind}:
	case <-h.done:
	}
}

func (h *Hub) Unsubscribe(s *Session, id string) {
	select {
	case h.unsubscribe <- subscription{session: s, id: id}:
	case <-h.done:
	}
}

// PublishToRoom implements chat.Broadcaster.
func (h *Hub) PublishToRoom(ctx context.Context, roomID int64, msg models.MessagePayload) error {
	return h.publish(ctx, RoomTopic(roomID), msg)
}

// PublishToMember implements chat.Broadcaster.
func (h *Hub) PublishToMember(ctx context.Context, memberID int64, summary models.RoomSummary) error {
	return h.publish(ctx, MemberTopic(memberID), summary)
}

func (h *Hub) publish(ctx context.Context, dest string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	env := Envelope{Destination: dest, Body: body}
	if h.relay != nil {
		return h.relay.Publish(ctx, env)
	}
	select {
	case <-h.done:
		return errHubStopped
	default:
	}
	select {
	case h.inbound <- env:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) addSubscription(sub subscription) {
	subs, ok := h.sessions[sub.session]
	if !ok {
		return
	}
	if _, exists := subs[sub.id]; exists {
		h.removeSubscription(sub.session, sub.id)
	}
	subs[sub.id] = subEntry{dest: sub.dest, kind: sub.kind}
	if h.topics[sub.dest] == nil {
		h.topics[sub.dest] = make(map[*Session]string)
	}
	h.topics[sub.dest][sub.session] = sub.id
	metrics.ActiveSubscriptions.WithLabelValues(sub.kind.Label()).Inc()
}

func (h *Hub) removeSubscription(s *Session, id string) {
	subs, ok := h.sessions[s]
	if !ok {
		return
	}
	entry, ok := subs[id]
	if !ok {
		return
	}
	delete(subs, id)
	if subscribers := h.topics[entry.dest]; subscribers != nil {
		delete(subscribers, s)
		if len(subscribers) == 0 {
			delete(h.topics, entry.dest)
		}
	}
	metrics.ActiveSubscriptions.WithLabelValues(entry.kind.Label()).Dec()
}

func (h *Hub) remove(s *Session) {
	subs, ok := h.sessions[s]
	if !ok {
		return
	}
	for id := range subs {
		h.removeSubscription(s, id)
	}
	delete(h.sessions, s)
	s.close()
	metrics.ActiveConnections.Dec()
}

func (h *Hub) deliver(env Envelope) {
	for s, subID := range h.topics[env.Destination] {
		data, err := json.Marshal(messageFrame(subID, env.Destination, env.Body))
		if err != nil {
			h.logger.Error("encode frame", zap.String("destination", env.Destination), zap.Error(err))
			return
		}
		if !s.enqueue(data) {
			metrics.SlowConsumersDropped.Inc()
			h.logger.Warn("dropping slow consumer", zap.String("session_id", s.ID), zap.String("destination", env.Destination))
			h.remove(s)
		}
	}
}
