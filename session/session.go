// Package session buffers partial transcription fragments per
// conversation session and finalizes an utterance when speech pauses.
//
// Each session debounces: every fragment cancels the pending pause
// timer and schedules a new one, so an utterance boundary is inferred
// from silence rather than explicit delimiters. When the timer fires
// (or Finalize is called) the buffered fragments are joined in arrival
// order and handed to the sink on the session's own dispatch goroutine,
// which keeps one session's utterances in order without ever blocking
// another session's ingest or timers.
package session

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"
)

// ErrMissingSessionID is returned by Ingest for an empty session id,
// the only malformed input the manager rejects.
var ErrMissingSessionID = errors.New("session id is required")

// ErrClosed is returned by Ingest after Close.
var ErrClosed = errors.New("session manager is closed")

// Sink consumes finalized utterances. It runs on the session's dispatch
// goroutine and may block on downstream pipelines; that never stalls
// ingestion or timers.
type Sink func(userID, utterance string)

// Config configures the manager.
type Config struct {
	// PauseThreshold is the silence duration that finalizes an
	// utterance. Defaults to 3 seconds.
	PauseThreshold time.Duration

	// DefaultUserID is used for sessions whose fragments never carried
	// a user id.
	DefaultUserID string
}

type utterance struct {
	userID string
	text   string
}

// state of a single session. A session accumulates fragments until its
// queued utterances are dispatched and nothing is buffered, at which
// point it is reaped; the same id later starts a fresh session.
type state struct {
	userID    string
	fragments []string

	// timer is the pending pause timer; gen invalidates stale fires.
	// At most one timer is pending per session: scheduling a new one
	// always stops the old one and bumps gen.
	timer *time.Timer
	gen   uint64

	// pending holds finalized utterances awaiting dispatch, drained in
	// order by the session's dispatcher goroutine.
	pending []utterance
	wake    chan struct{}
}

// Manager owns the session registry.
type Manager struct {
	cfg  Config
	sink Sink

	mu       sync.Mutex
	sessions map[string]*state
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a manager delivering finalized utterances to sink.
func NewManager(cfg Config, sink Sink) *Manager {
	if cfg.PauseThreshold <= 0 {
		cfg.PauseThreshold = 3 * time.Second
	}
	return &Manager{
		cfg:      cfg,
		sink:     sink,
		sessions: make(map[string]*state),
		done:     make(chan struct{}),
	}
}

// Ingest appends a fragment to the session's buffer, creating the
// session if absent, and reschedules the pause timer. It does only
// constant-time bookkeeping; it never blocks on downstream work.
//
// The first non-empty userID seen pins the session's user. Blank
// fragments are ignored.
func (m *Manager) Ingest(sessionID, userID, fragment string) error {
	if sessionID == "" {
		return ErrMissingSessionID
	}
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	s, ok := m.sessions[sessionID]
	if !ok {
		s = &state{wake: make(chan struct{}, 1)}
		m.sessions[sessionID] = s
		m.wg.Add(1)
		go m.dispatch(sessionID, s)
		log.Printf("[SESSION] New session %s", sessionID)
	}
	if s.userID == "" && userID != "" {
		s.userID = userID
	}

	s.fragments = append(s.fragments, fragment)

	// Debounce: invalidate any pending fire and restart the clock.
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(m.cfg.PauseThreshold, func() {
		m.fire(sessionID, s, gen)
	})
	return nil
}

// fire runs when a pause timer elapses. A fragment that arrived after
// the timer was scheduled bumped gen, making this fire stale: the
// fragment wins and the rescheduled timer will fire later.
func (m *Manager) fire(sessionID string, s *state, gen uint64) {
	m.mu.Lock()
	if s.gen != gen {
		m.mu.Unlock()
		return
	}
	m.finalizeLocked(sessionID, s)
	m.mu.Unlock()
}

// Finalize immediately finalizes the session's buffer, cancelling any
// pending timer. Unknown or already-idle sessions are a no-op.
func (m *Manager) Finalize(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || m.closed {
		return
	}
	s.gen++ // invalidate any in-flight timer fire
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	m.finalizeLocked(sessionID, s)
}

// finalizeLocked drains the buffer and queues the joined utterance for
// dispatch. Caller holds m.mu. An empty buffer emits nothing.
func (m *Manager) finalizeLocked(sessionID string, s *state) {
	s.timer = nil
	if len(s.fragments) == 0 {
		return
	}
	text := strings.Join(s.fragments, " ")
	s.fragments = nil

	userID := s.userID
	if userID == "" {
		userID = m.cfg.DefaultUserID
	}

	log.Printf("[SESSION] Finalized session %s (%d chars)", sessionID, len(text))
	s.pending = append(s.pending, utterance{userID: userID, text: text})
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers a session's utterances to the sink in finalization
// order. Downstream calls block only this goroutine. When a drain
// leaves the session fully idle the registry entry is reaped and the
// goroutine exits; a later fragment recreates the session from scratch.
func (m *Manager) dispatch(sessionID string, s *state) {
	defer m.wg.Done()
	for {
		select {
		case <-s.wake:
			if m.drain(sessionID, s) {
				return
			}
		case <-m.done:
			m.drain(sessionID, s)
			return
		}
	}
}

// drain delivers pending utterances, then reaps the session if nothing
// is buffered or pending anymore. Returns true when reaped.
func (m *Manager) drain(sessionID string, s *state) bool {
	for {
		m.mu.Lock()
		if len(s.pending) == 0 {
			// A pending timer implies buffered fragments, so the
			// fragments check alone decides idleness.
			if !m.closed && len(s.fragments) == 0 {
				delete(m.sessions, sessionID)
				m.mu.Unlock()
				log.Printf("[SESSION] Session %s idle, reaped", sessionID)
				return true
			}
			m.mu.Unlock()
			return false
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		m.mu.Unlock()

		m.sink(next.userID, next.text)
	}
}

// ActiveSessions reports how many sessions currently hold state.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close finalizes every accumulating session, delivers what is already
// queued, and stops the dispatchers. Ingest fails with ErrClosed
// afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, s := range m.sessions {
		s.gen++
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		m.finalizeLocked(id, s)
	}
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}
