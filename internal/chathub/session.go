package chathub

import (
	"encoding/json"
	"sync"

	"shelterchat/backend/internal/auth"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Session is the server side of one client connection. Frames of a
// session are handled by a single goroutine; outbound frames are queued
// on a bounded buffer drained by the connection's write pump.
type Session struct {
	ID   string
	Lang string

	identity *auth.Identity
	limiter  *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewSession creates an unauthenticated session with an outbound buffer
// of the given size.
func NewSession(lang string, buffer int) *Session {
	return &Session{
		ID:   uuid.NewString(),
		Lang: lang,
		send: make(chan []byte, buffer),
	}
}

// Identity returns the authenticated member, or false before CONNECT.
func (s *Session) Identity() (auth.Identity, bool) {
	if s.identity == nil {
		return auth.Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) authenticate(id auth.Identity) {
	s.identity = &id
}

// Outbound yields encoded frames until the session is closed.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// enqueue queues data without blocking. It reports false when the buffer
// is full or the session is closed.
func (s *Session) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

func (s *Session) reply(f Frame) bool {
	data, err := json.Marshal(f)
	if err != nil {
		return false
	}
	return s.enqueue(data)
}

// close stops the outbound stream. Frames already queued are still
// delivered by the write pump. It is safe to call more than once.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.send)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
