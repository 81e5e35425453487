package authcore

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotReady is returned when an operation runs against a Service that
	// was not fully built.
	ErrNotReady = errors.New("service not initialized")

	// ErrIdentityRequired is returned when the identity argument is empty.
	ErrIdentityRequired = errors.New("identity required")

	// ErrInvalidCredentials is returned by Login when the external verifier
	// rejects the credential.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrVerifierUnavailable wraps failures of the external identity verifier.
	ErrVerifierUnavailable = errors.New("identity verifier unavailable")

	// ErrAccountLocked matches any *LockedError via errors.Is.
	ErrAccountLocked = errors.New("account locked")

	// ErrLockoutUnavailable is returned when the lockout backend cannot be
	// reached; callers treat the identity as locked.
	ErrLockoutUnavailable = errors.New("lockout backend unavailable")

	// ErrSessionExpired is returned for activity against a session past its
	// idle deadline. Expired sessions are terminal.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionNotFound is returned when a session identifier is empty or
	// unknown.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTokenInvalid is returned when a session token fails to parse or
	// verify.
	ErrTokenInvalid = errors.New("invalid session token")

	// ErrEnrollmentState is returned for an MFA enrollment operation issued
	// in the wrong state; the enrollment is discarded.
	ErrEnrollmentState = errors.New("mfa enrollment in wrong state")

	// ErrCodeFormat is returned before any cryptographic work when a
	// verification code is malformed.
	ErrCodeFormat = errors.New("malformed verification code")

	// ErrCodeInvalid is returned when a well-formed code does not verify.
	ErrCodeInvalid = errors.New("invalid verification code")

	// ErrMFANotEnabled is returned when an MFA verification is requested for
	// an identity without MFA.
	ErrMFANotEnabled = errors.New("mfa not enabled")

	// ErrMFAAlreadyEnabled is returned when enrollment is started for an
	// identity that already has MFA.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")

	// ErrMFAUnavailable wraps MFA store and crypto failures.
	ErrMFAUnavailable = errors.New("mfa backend unavailable")

	// ErrBackupCodesExhausted is returned when a backup code is presented but
	// none remain.
	ErrBackupCodesExhausted = errors.New("no backup codes remaining")
)

// LockedError reports a rejected operation against a locked identity. It
// matches ErrAccountLocked through errors.Is and carries the unlock time so
// callers can surface it.
type LockedError struct {
	Identity string
	Until    time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account %s locked until %s", e.Identity, e.Until.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}
