package mcp

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/michiel/ratchet-sub007/internal/domain"
)

var errSessionNotFound = errors.New("mcp: session not found")

// defaultReplayBufferSize bounds how many past SSE events a session keeps
// for Last-Event-ID reconnect.
const defaultReplayBufferSize = 1000

// sessionEntry pairs a domain.Session with the MCP-layer state a transport
// needs: its client id (post-auth), its outbound event buffer, and the
// subscriber channel currently streaming it (SSE only; nil for stdio).
type sessionEntry struct {
	session  *domain.Session
	clientID string

	mu         sync.Mutex
	nextID     int64
	buffer     []domain.SSEEvent // ring, oldest first, capped at bufferSize
	bufferSize int
	subscriber chan domain.SSEEvent
}

func newSessionEntry(bufferSize int) *sessionEntry {
	if bufferSize <= 0 {
		bufferSize = defaultReplayBufferSize
	}
	return &sessionEntry{
		session:    domain.NewSession(),
		bufferSize: bufferSize,
	}
}

// push appends an event to the replay buffer (assigning it the next
// monotonic id) and forwards it to a live subscriber if one is attached.
func (e *sessionEntry) push(data []byte) domain.SSEEvent {
	e.mu.Lock()
	e.nextID++
	event := domain.SSEEvent{ID: e.nextID, Data: data}
	e.buffer = append(e.buffer, event)
	if len(e.buffer) > e.bufferSize {
		e.buffer = e.buffer[len(e.buffer)-e.bufferSize:]
	}
	sub := e.subscriber
	e.mu.Unlock()

	if sub != nil {
		select {
		case sub <- event:
		default:
		}
	}
	return event
}

// replaySince returns every buffered event with an id greater than lastID,
// oldest first. Events older than the buffer's retention window are
// unrecoverable; callers should treat a gap as a hard reconnect failure.
func (e *sessionEntry) replaySince(lastID int64) []domain.SSEEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []domain.SSEEvent
	for _, ev := range e.buffer {
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (e *sessionEntry) attach(ch chan domain.SSEEvent) {
	e.mu.Lock()
	e.subscriber = ch
	e.mu.Unlock()
}

func (e *sessionEntry) detach(ch chan domain.SSEEvent) {
	e.mu.Lock()
	if e.subscriber == ch {
		e.subscriber = nil
	}
	e.mu.Unlock()
}

// SessionManager owns the set of live MCP sessions: creation, state
// transitions, SSE replay buffers, and idle-timeout sweeping.
type SessionManager struct {
	idleTimeout time.Duration
	bufferSize  int

	mu       sync.RWMutex
	sessions map[uuid.UUID]*sessionEntry
}

func NewSessionManager(idleTimeout time.Duration, bufferSize int) *SessionManager {
	return &SessionManager{
		idleTimeout: idleTimeout,
		bufferSize:  bufferSize,
		sessions:    make(map[uuid.UUID]*sessionEntry),
	}
}

// Create starts a new Uninitialized session and returns its id.
func (m *SessionManager) Create() uuid.UUID {
	entry := newSessionEntry(m.bufferSize)
	m.mu.Lock()
	m.sessions[entry.session.SessionID] = entry
	m.mu.Unlock()
	return entry.session.SessionID
}

// EnsureSession returns whether a session already existed for id, creating
// an Uninitialized one under that exact id if not. SSE transports use this:
// unlike stdio, the client picks its own session id up front (it appears in
// both the POST and GET URLs) rather than receiving one from the server.
func (m *SessionManager) EnsureSession(id uuid.UUID) (created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return false
	}
	entry := newSessionEntry(m.bufferSize)
	entry.session.SessionID = id
	m.sessions[id] = entry
	return true
}

func (m *SessionManager) get(id uuid.UUID) (*sessionEntry, bool) {
	m.mu.RLock()
	entry, ok := m.sessions[id]
	m.mu.RUnlock()
	return entry, ok
}

// State returns a session's current state, or SessionClosed if unknown.
func (m *SessionManager) State(id uuid.UUID) domain.SessionState {
	entry, ok := m.get(id)
	if !ok {
		return domain.SessionClosed
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.State
}

func (m *SessionManager) touch(id uuid.UUID) {
	if entry, ok := m.get(id); ok {
		entry.session.Touch(time.Now().UTC())
	}
}

// Transition moves a session to state and records protocolVersion when
// entering Active. Unknown session ids are a no-op.
func (m *SessionManager) Transition(id uuid.UUID, state domain.SessionState, protocolVersion string) {
	entry, ok := m.get(id)
	if !ok {
		return
	}
	entry.mu.Lock()
	entry.session.State = state
	if protocolVersion != "" {
		entry.session.ProtocolVersion = protocolVersion
	}
	entry.mu.Unlock()
}

// SetClientID records the client identity an Authenticator resolved for a
// session at initialize time.
func (m *SessionManager) SetClientID(id uuid.UUID, clientID string) {
	if entry, ok := m.get(id); ok {
		entry.mu.Lock()
		entry.clientID = clientID
		entry.mu.Unlock()
	}
}

// ClientID returns the client id recorded for a session, or "" if unset.
func (m *SessionManager) ClientID(id uuid.UUID) string {
	entry, ok := m.get(id)
	if !ok {
		return ""
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.clientID
}

// Close transitions a session to Closed and drops its replay buffer.
func (m *SessionManager) Close(id uuid.UUID) {
	m.mu.Lock()
	entry, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		entry.mu.Lock()
		entry.session.State = domain.SessionClosed
		entry.mu.Unlock()
	}
}

// SweepIdle closes every session that has been silent past the configured
// idle timeout and returns how many were closed.
func (m *SessionManager) SweepIdle(now time.Time) int {
	if m.idleTimeout <= 0 {
		return 0
	}
	m.mu.Lock()
	var stale []uuid.UUID
	for id, entry := range m.sessions {
		if entry.session.Idle(now, m.idleTimeout) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	return len(stale)
}

// Publish emits an SSE event on the given session, marshalling payload as
// the event's JSON data.
func (m *SessionManager) Publish(id uuid.UUID, payload any) (domain.SSEEvent, error) {
	entry, ok := m.get(id)
	if !ok {
		return domain.SSEEvent{}, errSessionNotFound
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.SSEEvent{}, err
	}
	return entry.push(data), nil
}

// Subscribe attaches ch as the live SSE subscriber for a session and
// replays every buffered event newer than lastEventID into it, oldest
// first, before returning. Subsequent Publish calls forward new events to
// ch until Unsubscribe is called.
func (m *SessionManager) Subscribe(id uuid.UUID, lastEventID int64, ch chan domain.SSEEvent) error {
	entry, ok := m.get(id)
	if !ok {
		return errSessionNotFound
	}
	entry.attach(ch)
	for _, ev := range entry.replaySince(lastEventID) {
		ch <- ev
	}
	return nil
}

func (m *SessionManager) Unsubscribe(id uuid.UUID, ch chan domain.SSEEvent) {
	if entry, ok := m.get(id); ok {
		entry.detach(ch)
	}
}
