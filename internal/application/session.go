package application

import (
	"strings"
	"sync"
	"time"

	"github.com/bnema/forum-agent/internal/domain"
	"github.com/bnema/forum-agent/internal/ports"
)

// Session holds the connection diagnostics and the agent's own forum id.
type Session struct {
	mu    sync.Mutex
	clock ports.Clock

	connected            bool
	lastError            string
	selfID               *int64
	nextBrowseAt         *time.Time
	nextPostAt           *time.Time
	connectAttempts      int
	connectSuccesses     int
	reconnects           int
	lastEventType        string
	lastEventAt          *time.Time
	lastDisconnectReason string
	lastDisconnectAt     *time.Time
}

var _ ports.StreamObserver = (*Session)(nil)

func NewSession(clock ports.Clock) *Session {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &Session{clock: clock}
}

func (s *Session) StreamConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = true
	s.lastError = ""
	s.connectSuccesses++
}

func (s *Session) StreamDisconnected(reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
	s.lastDisconnectReason = reason
	s.lastDisconnectAt = &now
}

func (s *Session) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = msg
}

func (s *Session) ConnectAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connectAttempts++
}

func (s *Session) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconnects++
}

func (s *Session) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connected = false
}

// SetSelfID overwrites the own actor id; repeated connected events after a
// reconnect simply replace it.
func (s *Session) SetSelfID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selfID = &id
}

func (s *Session) SelfID() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selfID == nil {
		return 0, false
	}
	return *s.selfID, true
}

func (s *Session) RecordEvent(label string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastEventType = label
	s.lastEventAt = &at
}

func (s *Session) SetNextBrowse(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextBrowseAt = &at
}

func (s *Session) SetNextPost(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextPostAt = &at
}

func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastError
}

func (s *Session) Snapshot() domain.Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.Diagnostics{
		Connected:            s.connected,
		LastError:            s.lastError,
		SelfID:               copyInt(s.selfID),
		NextBrowseAt:         copyTime(s.nextBrowseAt),
		NextPostAt:           copyTime(s.nextPostAt),
		ConnectAttempts:      s.connectAttempts,
		ConnectSuccesses:     s.connectSuccesses,
		Reconnects:           s.reconnects,
		LastEventType:        s.lastEventType,
		LastEventAt:          copyTime(s.lastEventAt),
		LastDisconnectReason: s.lastDisconnectReason,
		LastDisconnectAt:     copyTime(s.lastDisconnectAt),
	}
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
