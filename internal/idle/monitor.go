// Package idle tracks per-session user activity in memory and expires
// sessions that stay idle past the configured timeout.
//
// One timer is armed per session. Each entry carries a generation counter
// bumped on every reschedule, so a timer fire that raced a reset is
// recognized as stale and ignored. The expiry handler runs at most once
// per session, outside the monitor lock.
package idle

import (
	"sync"
	"time"
)

// Config for one Monitor.
type Config struct {
	// Timeout is how long a session may go without activity.
	Timeout time.Duration
	// Coalesce is the minimum deadline movement that reschedules the
	// timer. Activity bursts inside it only update lastActivity; the fire
	// handler re-arms from lastActivity instead of expiring.
	Coalesce time.Duration
}

// Expiry describes a session that idled out.
type Expiry struct {
	SessionID    string
	Identity     string
	LastActivity time.Time
	Deadline     time.Time
}

// Handler receives expiry notifications.
type Handler func(Expiry)

type entry struct {
	identity     string
	lastActivity time.Time
	// scheduledFor is when the armed timer will fire, which may trail the
	// true deadline while touches are being coalesced.
	scheduledFor time.Time
	gen          uint64
	timer        *time.Timer
	expired      bool
}

// Monitor tracks live sessions. All methods are safe for concurrent use.
type Monitor struct {
	mu       sync.Mutex
	config   Config
	handler  Handler
	sessions map[string]*entry
	closed   bool
}

func New(cfg Config, handler Handler) *Monitor {
	if cfg.Coalesce < 0 {
		cfg.Coalesce = 0
	}
	return &Monitor{
		config:   cfg,
		handler:  handler,
		sessions: make(map[string]*entry),
	}
}

// Track registers a session and arms its idle deadline. Re-tracking an
// existing session resets it to a fresh, unexpired state.
func (m *Monitor) Track(sessionID, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if old, ok := m.sessions[sessionID]; ok && old.timer != nil {
		old.timer.Stop()
	}
	now := time.Now()
	e := &entry{identity: identity, lastActivity: now}
	m.sessions[sessionID] = e
	m.schedule(sessionID, e, now.Add(m.config.Timeout))
}

// schedule arms the timer for e. Callers hold m.mu.
func (m *Monitor) schedule(sessionID string, e *entry, deadline time.Time) {
	e.gen++
	gen := e.gen
	e.scheduledFor = deadline
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(time.Until(deadline), func() {
		m.fire(sessionID, gen)
	})
}

func (m *Monitor) fire(sessionID string, gen uint64) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok || m.closed || e.expired || e.gen != gen {
		// Stale fire after a reset, removal or shutdown.
		m.mu.Unlock()
		return
	}
	deadline := e.lastActivity.Add(m.config.Timeout)
	if time.Now().Before(deadline) {
		// Coalesced activity moved the true deadline past the armed one;
		// re-arm instead of expiring.
		m.schedule(sessionID, e, deadline)
		m.mu.Unlock()
		return
	}
	ev := m.expireLocked(sessionID, e)
	m.mu.Unlock()
	if m.handler != nil {
		m.handler(ev)
	}
}

// expireLocked marks e expired and builds the notification. Callers hold
// m.mu and must invoke the handler after releasing it. The entry is kept
// so repeated Expired queries stay deterministic until Remove.
func (m *Monitor) expireLocked(sessionID string, e *entry) Expiry {
	e.expired = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return Expiry{
		SessionID:    sessionID,
		Identity:     e.identity,
		LastActivity: e.lastActivity,
		Deadline:     e.lastActivity.Add(m.config.Timeout),
	}
}

// Touch records activity, extending the idle deadline. It returns false
// for unknown or expired sessions: expiry is terminal, activity never
// revives a session. A touch that finds the deadline already passed
// finalizes the expiry itself rather than waiting for the timer.
func (m *Monitor) Touch(sessionID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok || m.closed {
		m.mu.Unlock()
		return false
	}
	if e.expired {
		m.mu.Unlock()
		return false
	}
	now := time.Now()
	if now.After(e.lastActivity.Add(m.config.Timeout)) {
		ev := m.expireLocked(sessionID, e)
		m.mu.Unlock()
		if m.handler != nil {
			m.handler(ev)
		}
		return false
	}
	e.lastActivity = now
	newDeadline := now.Add(m.config.Timeout)
	if newDeadline.Sub(e.scheduledFor) > m.config.Coalesce {
		m.schedule(sessionID, e, newDeadline)
	}
	m.mu.Unlock()
	return true
}

// Expired reports whether the session has idled out. Unknown sessions
// read as expired. A live entry past its deadline is finalized here even
// when the timer has not fired yet.
func (m *Monitor) Expired(sessionID string) bool {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return true
	}
	if e.expired {
		m.mu.Unlock()
		return true
	}
	if time.Now().After(e.lastActivity.Add(m.config.Timeout)) {
		ev := m.expireLocked(sessionID, e)
		m.mu.Unlock()
		if m.handler != nil {
			m.handler(ev)
		}
		return true
	}
	m.mu.Unlock()
	return false
}

// Deadline returns the current idle deadline of a live session.
func (m *Monitor) Deadline(sessionID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok || e.expired {
		return time.Time{}, false
	}
	return e.lastActivity.Add(m.config.Timeout), true
}

// Remove evicts a session, cancelling its timer. The expiry handler does
// not fire: logout is not an expiry.
func (m *Monitor) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(m.sessions, sessionID)
}

// Close stops every timer and drops all sessions. Fires already in flight
// become no-ops.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for _, e := range m.sessions {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	m.sessions = make(map[string]*entry)
}
