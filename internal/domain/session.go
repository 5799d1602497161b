package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the MCP session state machine's current node.
type SessionState string

const (
	SessionUninitialized SessionState = "uninitialized"
	SessionInitializing  SessionState = "initializing"
	SessionActive        SessionState = "active"
	SessionClosed        SessionState = "closed"
)

// SSEEvent is one buffered outbound event on an MCP SSE session, assigned a
// monotonic id by the session it belongs to.
type SSEEvent struct {
	ID   int64  `json:"id"`
	Data []byte `json:"data"`
}

// Session is a stateful JSON-RPC conversation from initialize to close.
type Session struct {
	SessionID          uuid.UUID
	State              SessionState
	ProtocolVersion    string
	ClientCapabilities map[string]any
	CreatedAt          time.Time
	LastActivityAt     time.Time
}

// NewSession creates an Uninitialized session.
func NewSession() *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:      uuid.New(),
		State:          SessionUninitialized,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Touch updates LastActivityAt; callers use this to track idle timeout.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now.UTC()
}

// Idle reports whether the session has been silent longer than timeout.
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}
