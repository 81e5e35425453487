package authcore

import (
	"time"

	"github.com/finleyhq/authcore/internal/idle"
)

// RecordActivity extends the idle deadline for a live session. It returns
// ErrSessionExpired when the session has idled out or is unknown: expiry
// is terminal and activity never revives a session.
func (s *Service) RecordActivity(sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}
	if s.sessions == nil {
		return ErrNotReady
	}
	if !s.sessions.Touch(sessionID) {
		return ErrSessionExpired
	}
	s.metricInc(MetricActivitySignal)
	return nil
}

// IsSessionExpired reports whether the session has idled out. Unknown
// sessions read as expired.
func (s *Service) IsSessionExpired(sessionID string) bool {
	if s == nil || s.sessions == nil {
		return true
	}
	return s.sessions.Expired(sessionID)
}

// SessionDeadline returns the current idle deadline of a live session.
func (s *Service) SessionDeadline(sessionID string) (time.Time, bool) {
	if s == nil || s.sessions == nil {
		return time.Time{}, false
	}
	return s.sessions.Deadline(sessionID)
}

// ValidateSession parses a signed session token, checks the session is
// still live, and counts the request as activity.
func (s *Service) ValidateSession(signed string) (*SessionGrant, error) {
	if s.tokens == nil || s.sessions == nil {
		return nil, ErrNotReady
	}
	claims, err := s.tokens.Parse(signed)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if !s.sessions.Touch(claims.SessionID) {
		return nil, ErrSessionExpired
	}
	s.metricInc(MetricActivitySignal)
	return &SessionGrant{
		SessionID: claims.SessionID,
		Identity:  claims.Identity,
		Token:     signed,
	}, nil
}

// EndSession evicts a session (logout). The expiry handler does not fire
// and no session.expired event is emitted: only idling out is an expiry.
func (s *Service) EndSession(sessionID string) {
	if s == nil || s.sessions == nil {
		return
	}
	s.sessions.Remove(sessionID)
	s.metricInc(MetricSessionEnded)
}

// handleExpiry is the idle monitor callback: one session.expired event
// and one expiry-handler invocation per expired session.
func (s *Service) handleExpiry(ev idle.Expiry) {
	s.metricInc(MetricSessionExpired)
	s.emitAudit(EventSessionExpired, ev.Identity, ev.SessionID, SessionExpiredPayload{
		IdleFor: time.Since(ev.LastActivity),
	})
	if s.expiry != nil {
		s.expiry(ExpiredSession{
			SessionID:    ev.SessionID,
			Identity:     ev.Identity,
			LastActivity: ev.LastActivity,
			Deadline:     ev.Deadline,
		})
	}
}
