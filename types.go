package authcore

import (
	"context"
	"time"
)

// Verifier is the external identity provider. It answers whether a
// credential is valid for an identity; everything around that decision —
// lockout, sessions, MFA, audit — is this library's job.
type Verifier interface {
	Verify(ctx context.Context, identity, credential string) (bool, error)
}

// MFARecord is the persisted MFA state for one identity.
type MFARecord struct {
	Enabled          bool
	Secret           []byte
	LastUsedCounter  int64
	BackupCodeHashes [][32]byte
}

// MFAStore persists MFA records. Get returns (nil, nil) for an identity
// without a record. ConsumeBackupCode and UpdateLastUsedCounter must be
// atomic with respect to concurrent verifications.
type MFAStore interface {
	Get(ctx context.Context, identity string) (*MFARecord, error)
	Save(ctx context.Context, identity string, record *MFARecord) error
	Delete(ctx context.Context, identity string) error
	UpdateLastUsedCounter(ctx context.Context, identity string, counter int64) error
	ConsumeBackupCode(ctx context.Context, identity string, hash [32]byte) (bool, error)
}

// EnrollmentState is the position of an identity in the MFA enrollment
// flow. Identities with no enrollment in flight are in StateInitial.
type EnrollmentState uint8

const (
	StateInitial EnrollmentState = iota
	StateAwaitingScan
	StateAwaitingVerification
	StateBackupCodesIssued
	StateComplete
)

func (s EnrollmentState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateAwaitingScan:
		return "awaiting_scan"
	case StateAwaitingVerification:
		return "awaiting_verification"
	case StateBackupCodesIssued:
		return "backup_codes_issued"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// EnrollmentSetup is returned by StartMFAEnrollment. The secret and backup
// codes are shown to the user exactly during enrollment; they cannot be
// retrieved again once enrollment completes.
type EnrollmentSetup struct {
	SecretBase32 string
	ProvisionURI string
	BackupCodes  []string
}

// EnrollmentProgress is returned by SubmitMFACode. BackupCodes is populated
// on the transition into StateBackupCodesIssued.
type EnrollmentProgress struct {
	State       EnrollmentState
	BackupCodes []string
}

// LockoutStatus is the current lockout position of an identity.
type LockoutStatus struct {
	// Attempts is the failed-attempt count inside the current window.
	// Zero while locked: imposing the lock resets the counter.
	Attempts int
	Locked   bool
	Until    time.Time
}

// SessionGrant is an issued session: the tracked identifier plus the
// signed token handed to the client.
type SessionGrant struct {
	SessionID string
	Identity  string
	Token     string
	IssuedAt  time.Time
}

// LoginResult is returned by Login. When MFARequired is set the credential
// was accepted but no session exists yet; the caller must follow up with
// CompleteMFALogin.
type LoginResult struct {
	Session     *SessionGrant
	MFARequired bool
}

// ExpiredSession describes an idle-expired session handed to the
// registered expiry handler.
type ExpiredSession struct {
	SessionID    string
	Identity     string
	LastActivity time.Time
	Deadline     time.Time
}

// ExpiryHandler receives idle-expiry notifications, at most once per
// session, outside any Service lock.
type ExpiryHandler func(ExpiredSession)
