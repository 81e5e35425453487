package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Login runs the composed login flow: lockout gate, credential check
// through the external verifier, failure accounting, MFA gate, session
// issuance. When the identity has MFA enabled the credential is accepted
// but no session is issued; the caller follows up with CompleteMFALogin.
func (s *Service) Login(ctx context.Context, identity, credential string) (*LoginResult, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	if s.verifier == nil || s.lockouts == nil || s.mfaStore == nil {
		return nil, ErrNotReady
	}

	locked, until, err := s.lockouts.Locked(ctx, identity)
	if err != nil {
		return nil, mapLockoutErr(err)
	}
	if locked {
		s.metricInc(MetricLoginRejectedLocked)
		s.emitAudit(EventSuspiciousActivity, identity, "", SuspiciousActivityPayload{
			Reason: "login_attempt_while_locked",
			Until:  until,
		})
		return nil, &LockedError{Identity: identity, Until: until}
	}

	ok, err := s.verifier.Verify(ctx, identity, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	if !ok {
		status, err := s.RecordFailedLogin(ctx, identity)
		if err != nil {
			return nil, err
		}
		if status.Locked {
			return nil, &LockedError{Identity: identity, Until: status.Until}
		}
		return nil, ErrInvalidCredentials
	}

	record, err := s.mfaStore.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Enabled {
		return &LoginResult{MFARequired: true}, nil
	}

	return s.finishLogin(ctx, identity, "password")
}

// CompleteMFALogin finishes a login whose first factor already passed.
// The code may be a TOTP code or a backup code; which one determines the
// method recorded on the login.succeeded event.
func (s *Service) CompleteMFALogin(ctx context.Context, identity, code string) (*LoginResult, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	if s.lockouts == nil || s.totp == nil {
		return nil, ErrNotReady
	}

	locked, until, err := s.lockouts.Locked(ctx, identity)
	if err != nil {
		return nil, mapLockoutErr(err)
	}
	if locked {
		s.metricInc(MetricLoginRejectedLocked)
		s.emitAudit(EventSuspiciousActivity, identity, "", SuspiciousActivityPayload{
			Reason: "mfa_attempt_while_locked",
			Until:  until,
		})
		return nil, &LockedError{Identity: identity, Until: until}
	}

	method := "totp"
	if !s.totp.CodeWellFormed(code) {
		method = "backup_code"
	}
	if err := s.VerifyLoginCode(ctx, identity, code); err != nil {
		return nil, err
	}
	return s.finishLogin(ctx, identity, method)
}

// finishLogin issues the session, clears the failure counter, and emits
// the single login.succeeded event for the flow.
func (s *Service) finishLogin(ctx context.Context, identity, method string) (*LoginResult, error) {
	grant, err := s.startSession(identity)
	if err != nil {
		return nil, err
	}
	if err := s.lockouts.RecordSuccess(ctx, identity); err != nil {
		return nil, mapLockoutErr(err)
	}
	s.metricInc(MetricLoginSuccess)
	s.emitAudit(EventLoginSucceeded, identity, grant.SessionID, LoginSucceededPayload{Method: method})
	return &LoginResult{Session: grant}, nil
}

// StartSession issues a tracked session and signed grant for an identity
// that has already been authenticated by other means. No audit event is
// emitted; the authentication that precedes it is the audited change.
func (s *Service) StartSession(identity string) (*SessionGrant, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	return s.startSession(identity)
}

func (s *Service) startSession(identity string) (*SessionGrant, error) {
	if s.sessions == nil || s.tokens == nil {
		return nil, ErrNotReady
	}
	sessionID := uuid.NewString()
	signed, err := s.tokens.Issue(identity, sessionID)
	if err != nil {
		return nil, err
	}
	s.sessions.Track(sessionID, identity)
	s.metricInc(MetricSessionStarted)
	return &SessionGrant{
		SessionID: sessionID,
		Identity:  identity,
		Token:     signed,
		IssuedAt:  time.Now(),
	}, nil
}
