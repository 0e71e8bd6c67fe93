package relay

import (
	"sync"
	"time"
)

// Session lifecycle statuses and termination reasons.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusTerminated = "terminated"

	ReasonCompleted      = "completed"
	ReasonInvalidAnswers = "invalid_answers"
	ReasonSilence        = "silence"
)

// Session tracks questionnaire progress for one call. All methods are safe
// for concurrent use; the silence watchdog fires on its own goroutine.
type Session struct {
	CallSid string

	mu                sync.Mutex
	questionIndex     int
	answers           map[string]any
	invalidAttempts   int
	status            string
	terminationReason string
	terminated        bool
	watchdog          *time.Timer
}

func NewSession(callSid string) *Session {
	return &Session{
		CallSid: callSid,
		answers: make(map[string]any),
		status:  StatusInProgress,
	}
}

// Arm starts (or restarts) the silence watchdog. A previous timer is
// stopped first so at most one is pending.
func (s *Session) Arm(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.terminated {
		return
	}
	s.watchdog = time.AfterFunc(d, fn)
}

// Disarm stops the silence watchdog if one is pending.
func (s *Session) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
}

// BeginTermination atomically latches the terminal state. It returns false
// when the session was already finalized, so silence and answer paths racing
// each other finalize exactly once.
func (s *Session) BeginTermination(status, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	s.status = status
	s.terminationReason = reason
	return true
}

// RecordInvalid increments the consecutive-invalid counter and returns the
// new count.
func (s *Session) RecordInvalid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidAttempts++
	return s.invalidAttempts
}

// RecordAnswer stores a validated answer, resets the invalid counter, and
// advances to the next question. It returns the new question index.
func (s *Session) RecordAnswer(questionID string, value any) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[questionID] = value
	s.invalidAttempts = 0
	s.questionIndex++
	return s.questionIndex
}

// Index returns the current question index.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionIndex
}

// Terminated reports whether the session has been finalized.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Outcome returns the latched status and reason.
func (s *Session) Outcome() (status, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.terminationReason
}

// AnswersCopy returns a snapshot of the collected answers.
func (s *Session) AnswersCopy() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// SessionStore holds live sessions keyed by call SID.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Create registers a fresh session for the call, replacing and disarming any
// stale one left by a reconnect.
func (st *SessionStore) Create(callSid string) *Session {
	st.mu.Lock()
	old := st.sessions[callSid]
	sess := NewSession(callSid)
	st.sessions[callSid] = sess
	st.mu.Unlock()
	if old != nil {
		old.Disarm()
	}
	return sess
}

// Get returns the session for the call, or nil when none is live.
func (st *SessionStore) Get(callSid string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.sessions[callSid]
}

// Remove drops the session and disarms its watchdog.
func (st *SessionStore) Remove(callSid string) {
	st.mu.Lock()
	sess := st.sessions[callSid]
	delete(st.sessions, callSid)
	st.mu.Unlock()
	if sess != nil {
		sess.Disarm()
	}
}
