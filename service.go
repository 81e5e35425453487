package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/finleyhq/authcore/internal/idle"
	"github.com/finleyhq/authcore/internal/lockout"
	"github.com/finleyhq/authcore/token"
)

// Service is the account-security facade: lockout tracking, idle-session
// monitoring, MFA enrollment and verification, and audit emission. Every
// state-changing operation emits exactly one audit event, constructed
// after the state change and handed to the asynchronous dispatcher.
//
// Build a Service with the Builder; the zero value is not usable.
type Service struct {
	config      Config
	verifier    Verifier
	lockouts    *lockout.Tracker
	sessions    *idle.Monitor
	mfaStore    MFAStore
	totp        *authenticator
	enrollments *enrollmentRegistry
	tokens      *token.Manager
	audit       *auditDispatcher
	metrics     *Metrics
	expiry      ExpiryHandler
}

// Close stops the idle monitor and drains the audit dispatcher.
func (s *Service) Close() {
	if s == nil {
		return
	}
	if s.sessions != nil {
		s.sessions.Close()
	}
	if s.audit != nil {
		s.audit.Close()
	}
}

// AuditDropped reports how many audit events were lost to a full buffer
// or a persistently failing sink.
func (s *Service) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{Counters: map[string]uint64{}}
	}
	return s.metrics.Snapshot()
}

func (s *Service) metricInc(id MetricID) {
	if s == nil {
		return
	}
	s.metrics.Inc(id)
}

func (s *Service) emitAudit(eventType EventType, identity, sessionID string, payload Payload) {
	if s == nil || s.audit == nil {
		return
	}
	s.audit.Emit(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Severity:  severityFor(eventType),
		Identity:  identity,
		SessionID: sessionID,
		Payload:   payload,
	})
}

// RecordFailedLogin counts one failed attempt against identity and
// reports the resulting lockout position. Exactly one audit event is
// emitted per call: login.failed with the post-increment count,
// account.locked on the locking transition, or
// security.suspicious_activity for an attempt while already locked — the
// latter also returns *LockedError.
func (s *Service) RecordFailedLogin(ctx context.Context, identity string) (LockoutStatus, error) {
	if identity == "" {
		return LockoutStatus{}, ErrIdentityRequired
	}
	if s.lockouts == nil {
		return LockoutStatus{}, ErrNotReady
	}

	status, err := s.lockouts.RecordFailure(ctx, identity)
	if err != nil {
		return LockoutStatus{}, mapLockoutErr(err)
	}

	out := LockoutStatus{Attempts: status.Attempts, Locked: status.Locked, Until: status.Until}
	switch {
	case status.Locked && !status.JustLocked:
		s.metricInc(MetricLoginRejectedLocked)
		s.emitAudit(EventSuspiciousActivity, identity, "", SuspiciousActivityPayload{
			Reason: "login_attempt_while_locked",
			Until:  status.Until,
		})
		return out, &LockedError{Identity: identity, Until: status.Until}
	case status.JustLocked:
		// The counter reset to zero when the lock was imposed.
		out.Attempts = 0
		s.metricInc(MetricAccountLocked)
		s.emitAudit(EventAccountLocked, identity, "", AccountLockedPayload{
			Until:    status.Until,
			Attempts: status.Attempts,
		})
		return out, nil
	default:
		s.metricInc(MetricLoginFailure)
		s.emitAudit(EventLoginFailed, identity, "", LoginFailedPayload{AttemptCount: status.Attempts})
		return out, nil
	}
}

// RecordSuccessfulLogin resets the failure counter and emits
// login.succeeded. An active lock is never lifted early; callers should
// gate on IsAccountLocked before verifying credentials.
func (s *Service) RecordSuccessfulLogin(ctx context.Context, identity, method string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if s.lockouts == nil {
		return ErrNotReady
	}
	if err := s.lockouts.RecordSuccess(ctx, identity); err != nil {
		return mapLockoutErr(err)
	}
	s.metricInc(MetricLoginSuccess)
	s.emitAudit(EventLoginSucceeded, identity, "", LoginSucceededPayload{Method: method})
	return nil
}

// IsAccountLocked is a pure query; it performs lazy lock expiry but emits
// no audit event. When the backend cannot be reached the identity reads
// as locked.
func (s *Service) IsAccountLocked(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrIdentityRequired
	}
	if s.lockouts == nil {
		return true, ErrNotReady
	}
	locked, _, err := s.lockouts.Locked(ctx, identity)
	if err != nil {
		return true, mapLockoutErr(err)
	}
	return locked, nil
}

// AccountLockStatus reports the lock flag, unlock time and current
// failure count for identity.
func (s *Service) AccountLockStatus(ctx context.Context, identity string) (LockoutStatus, error) {
	if identity == "" {
		return LockoutStatus{}, ErrIdentityRequired
	}
	if s.lockouts == nil {
		return LockoutStatus{}, ErrNotReady
	}
	locked, until, err := s.lockouts.Locked(ctx, identity)
	if err != nil {
		return LockoutStatus{}, mapLockoutErr(err)
	}
	attempts, err := s.lockouts.FailureCount(ctx, identity)
	if err != nil {
		return LockoutStatus{}, mapLockoutErr(err)
	}
	return LockoutStatus{Attempts: attempts, Locked: locked, Until: until}, nil
}

func mapLockoutErr(err error) error {
	if errors.Is(err, lockout.ErrUnavailable) {
		return ErrLockoutUnavailable
	}
	return err
}
