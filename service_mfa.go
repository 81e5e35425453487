package authcore

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StartMFAEnrollment begins (or restarts) MFA enrollment for identity:
// fresh secret, provisioning URI and backup codes, moving the flow to
// StateAwaitingScan. Any enrollment already in flight is discarded.
// Nothing is persisted and no audit event is emitted until the flow
// completes with AcknowledgeBackupCodes.
func (s *Service) StartMFAEnrollment(ctx context.Context, identity string) (*EnrollmentSetup, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	if s.totp == nil || s.mfaStore == nil || s.enrollments == nil {
		return nil, ErrNotReady
	}

	record, err := s.mfaStore.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if record != nil && record.Enabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, secretBase32, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	codes, hashes, err := generateBackupCodes(identity, s.config.MFA.BackupCodeCount, s.config.MFA.BackupCodeLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}

	e := &enrollment{
		identity:      identity,
		state:         StateAwaitingScan,
		pendingSecret: secret,
		secretBase32:  secretBase32,
		provisionURI:  s.totp.ProvisionURI(secretBase32, identity),
		backupCodes:   codes,
		codeHashes:    hashes,
		startedAt:     time.Now(),
	}
	s.enrollments.put(e)
	s.metricInc(MetricEnrollmentStarted)
	return &EnrollmentSetup{
		SecretBase32: secretBase32,
		ProvisionURI: e.provisionURI,
		BackupCodes:  append([]string(nil), codes...),
	}, nil
}

// ConfirmMFAScanned records that the user scanned the QR, moving the flow
// to StateAwaitingVerification.
func (s *Service) ConfirmMFAScanned(identity string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if s.enrollments == nil {
		return ErrNotReady
	}
	r := s.enrollments
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byIdentity[identity]
	if !ok {
		return ErrEnrollmentState
	}
	if e.state != StateAwaitingScan {
		delete(r.byIdentity, identity)
		return ErrEnrollmentState
	}
	e.state = StateAwaitingVerification
	return nil
}

// SubmitMFACode verifies the user's first TOTP code against the pending
// secret. A valid code moves the flow to StateBackupCodesIssued and
// surfaces the backup codes one more time; a malformed code fails fast
// with ErrCodeFormat and a wrong code returns ErrCodeInvalid, both
// leaving the state unchanged for another try.
func (s *Service) SubmitMFACode(identity, code string) (*EnrollmentProgress, error) {
	if identity == "" {
		return nil, ErrIdentityRequired
	}
	if s.totp == nil || s.enrollments == nil {
		return nil, ErrNotReady
	}
	r := s.enrollments
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byIdentity[identity]
	if !ok {
		return nil, ErrEnrollmentState
	}
	if e.state != StateAwaitingVerification {
		delete(r.byIdentity, identity)
		return nil, ErrEnrollmentState
	}
	if !s.totp.CodeWellFormed(code) {
		return nil, ErrCodeFormat
	}
	ok, _, err := s.totp.Verify(e.pendingSecret, code, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if !ok {
		s.metricInc(MetricTOTPFailure)
		return nil, ErrCodeInvalid
	}
	e.state = StateBackupCodesIssued
	s.metricInc(MetricTOTPSuccess)
	return &EnrollmentProgress{
		State:       StateBackupCodesIssued,
		BackupCodes: append([]string(nil), e.backupCodes...),
	}, nil
}

// AcknowledgeBackupCodes completes enrollment: the MFA record is
// persisted in one write, the ephemeral enrollment is discarded, and
// mfa.enabled is emitted. After this the secret and backup codes are no
// longer retrievable.
func (s *Service) AcknowledgeBackupCodes(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if s.mfaStore == nil || s.enrollments == nil {
		return ErrNotReady
	}
	r := s.enrollments
	r.mu.Lock()
	e, ok := r.byIdentity[identity]
	if !ok {
		r.mu.Unlock()
		return ErrEnrollmentState
	}
	if e.state != StateBackupCodesIssued {
		delete(r.byIdentity, identity)
		r.mu.Unlock()
		return ErrEnrollmentState
	}
	record := &MFARecord{
		Enabled:          true,
		Secret:           e.pendingSecret,
		BackupCodeHashes: append([][32]byte(nil), e.codeHashes...),
	}
	codeCount := len(e.codeHashes)
	r.mu.Unlock()

	// Persist before discarding the enrollment: a store failure leaves
	// the flow in StateBackupCodesIssued so the user can retry.
	if err := s.mfaStore.Save(ctx, identity, record); err != nil {
		return err
	}

	r.mu.Lock()
	if cur, ok := r.byIdentity[identity]; ok && cur == e {
		delete(r.byIdentity, identity)
	}
	r.mu.Unlock()

	s.metricInc(MetricMFAEnabled)
	s.emitAudit(EventMFAEnabled, identity, "", MFAEnabledPayload{BackupCodes: codeCount})
	return nil
}

// CancelMFAEnrollment discards any in-flight enrollment, returning the
// identity to StateInitial. Persisted MFA state is untouched.
func (s *Service) CancelMFAEnrollment(identity string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if s.enrollments == nil {
		return ErrNotReady
	}
	s.enrollments.remove(identity)
	s.metricInc(MetricEnrollmentCancelled)
	return nil
}

// MFAEnrollmentState reports where identity stands in the enrollment
// flow; identities with nothing in flight are in StateInitial.
func (s *Service) MFAEnrollmentState(identity string) EnrollmentState {
	if s == nil || s.enrollments == nil {
		return StateInitial
	}
	return s.enrollments.stateOf(identity)
}

// MFAEnabled reports whether identity has a completed MFA record.
func (s *Service) MFAEnabled(ctx context.Context, identity string) (bool, error) {
	if identity == "" {
		return false, ErrIdentityRequired
	}
	if s.mfaStore == nil {
		return false, ErrNotReady
	}
	record, err := s.mfaStore.Get(ctx, identity)
	if err != nil {
		return false, err
	}
	return record != nil && record.Enabled, nil
}

// VerifyLoginCode checks a second-factor code for an MFA-enabled
// identity. A code in exact TOTP digit shape goes through the TOTP check
// with replay protection; any other shape is canonicalized and tried as a
// single-use backup code, whose consumption is atomic and permanent.
// Verification failures emit login.failed; a success emits nothing here —
// the login flow that follows is the audited state change.
func (s *Service) VerifyLoginCode(ctx context.Context, identity, code string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if s.totp == nil || s.mfaStore == nil {
		return ErrNotReady
	}

	record, err := s.mfaStore.Get(ctx, identity)
	if err != nil {
		return err
	}
	if record == nil || !record.Enabled {
		return ErrMFANotEnabled
	}
	if strings.TrimSpace(code) == "" {
		return ErrCodeFormat
	}

	if s.totp.CodeWellFormed(code) {
		return s.verifyTOTPLogin(ctx, identity, record, code)
	}
	return s.verifyBackupCodeLogin(ctx, identity, record, code)
}

func (s *Service) verifyTOTPLogin(ctx context.Context, identity string, record *MFARecord, code string) error {
	ok, counter, err := s.totp.Verify(record.Secret, code, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if !ok {
		s.metricInc(MetricTOTPFailure)
		s.emitAudit(EventLoginFailed, identity, "", LoginFailedPayload{Reason: "totp_invalid"})
		return ErrCodeInvalid
	}
	if s.config.MFA.EnforceReplayProtection {
		if counter <= record.LastUsedCounter {
			s.metricInc(MetricTOTPFailure)
			s.emitAudit(EventLoginFailed, identity, "", LoginFailedPayload{Reason: "totp_replay"})
			return ErrCodeInvalid
		}
		if err := s.mfaStore.UpdateLastUsedCounter(ctx, identity, counter); err != nil {
			return err
		}
	}
	s.metricInc(MetricTOTPSuccess)
	return nil
}

func (s *Service) verifyBackupCodeLogin(ctx context.Context, identity string, record *MFARecord, code string) error {
	canonical := canonicalizeBackupCode(code)
	if len(canonical) != s.config.MFA.BackupCodeLength {
		return ErrCodeFormat
	}
	if len(record.BackupCodeHashes) == 0 {
		return ErrBackupCodesExhausted
	}
	consumed, err := s.mfaStore.ConsumeBackupCode(ctx, identity, backupCodeHash(identity, canonical))
	if err != nil {
		return err
	}
	if !consumed {
		s.metricInc(MetricBackupCodeFailed)
		s.emitAudit(EventLoginFailed, identity, "", LoginFailedPayload{Reason: "backup_code_invalid"})
		return ErrCodeInvalid
	}
	s.metricInc(MetricBackupCodeUsed)
	return nil
}

// DisableMFA removes the identity's MFA record — enabled flag, secret and
// remaining backup codes — in one delete. It is idempotent: disabling
// when nothing is enabled is a no-op and emits no audit event, so retried
// requests cannot duplicate mfa.disabled.
func (s *Service) DisableMFA(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrIdentityRequired
	}
	if s.mfaStore == nil {
		return ErrNotReady
	}
	record, err := s.mfaStore.Get(ctx, identity)
	if err != nil {
		return err
	}
	if record == nil || !record.Enabled {
		return nil
	}
	if err := s.mfaStore.Delete(ctx, identity); err != nil {
		return err
	}
	if s.enrollments != nil {
		s.enrollments.remove(identity)
	}
	s.metricInc(MetricMFADisabled)
	s.emitAudit(EventMFADisabled, identity, "", MFADisabledPayload{})
	return nil
}
