package authcore

import (
	"errors"
	"strings"
	"time"
)

// Config is the full configuration tree for a Service. Obtain a populated
// baseline from DefaultConfig and override what the deployment needs; Build
// rejects configurations that fail Validate.
type Config struct {
	Lockout LockoutConfig
	Session SessionConfig
	MFA     MFAConfig
	Token   TokenConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// LockoutConfig governs failed-login counting and account lockout.
type LockoutConfig struct {
	// Threshold is the failed-attempt count at which the lock is imposed.
	Threshold int
	// LockDuration is how long an imposed lock lasts.
	LockDuration time.Duration
	// FailureWindow bounds how long sub-threshold failures persist.
	// Zero means LockDuration.
	FailureWindow time.Duration
	// RedisPrefix namespaces the tracker's keys.
	RedisPrefix string
}

// SessionConfig governs idle-session monitoring.
type SessionConfig struct {
	// IdleTimeout is how long a session may go without activity.
	IdleTimeout time.Duration
	// ActivityCoalesce is the minimum deadline movement that reschedules a
	// session's timer; activity bursts inside it update the deadline
	// without touching the timer.
	ActivityCoalesce time.Duration
}

// MFAConfig governs TOTP verification and backup codes.
type MFAConfig struct {
	// Issuer appears in provisioning URIs shown to authenticator apps.
	Issuer string
	// Digits is the TOTP code length, 6 or 8.
	Digits int
	// Period is the TOTP time step in seconds.
	Period int
	// Algorithm selects the HMAC hash: SHA1, SHA256 or SHA512.
	Algorithm string
	// Skew is the number of adjacent time steps accepted on each side.
	Skew int
	// EnforceReplayProtection rejects reuse of an already-accepted TOTP
	// window via the persisted last-used counter.
	EnforceReplayProtection bool
	// BackupCodeCount is how many single-use recovery codes enrollment
	// issues.
	BackupCodeCount int
	// BackupCodeLength is the character length of each code before
	// formatting.
	BackupCodeLength int
	// RedisPrefix namespaces MFA record keys.
	RedisPrefix string
}

// TokenConfig governs the signed session tokens issued by StartSession.
type TokenConfig struct {
	// SigningMethod is "hs256" or "ed25519".
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	// TTL is the token lifetime. Zero means Session.IdleTimeout.
	TTL time.Duration
	// Leeway tolerates clock drift during validation.
	Leeway time.Duration
}

// AuditConfig governs the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled bool
	// BufferSize is the dispatch queue capacity.
	BufferSize int
	// DropIfFull drops events instead of blocking when the queue is full.
	DropIfFull bool
	// RetryAttempts is how many times a failed sink delivery is retried
	// before the event is dropped and logged locally.
	RetryAttempts int
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: 5 failed attempts lock
// for 15 minutes, 30-minute idle timeout, 6-digit SHA1 TOTP with one step
// of skew, 10 backup codes. Token key material must still be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Lockout: LockoutConfig{
			Threshold:     5,
			LockDuration:  15 * time.Minute,
			FailureWindow: 15 * time.Minute,
			RedisPrefix:   "lko",
		},
		Session: SessionConfig{
			IdleTimeout:      30 * time.Minute,
			ActivityCoalesce: time.Second,
		},
		MFA: MFAConfig{
			Issuer:                  "authcore",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
			BackupCodeCount:         10,
			BackupCodeLength:        10,
			RedisPrefix:             "mfa",
		},
		Token: TokenConfig{
			SigningMethod: "hs256",
			Leeway:        30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:       false,
			BufferSize:    1024,
			DropIfFull:    true,
			RetryAttempts: 1,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// Validate checks the whole tree and returns the first problem found.
func (c *Config) Validate() error {
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be greater than zero")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be greater than zero")
	}
	if c.Lockout.FailureWindow < 0 {
		return errors.New("Lockout FailureWindow cannot be negative")
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be greater than zero")
	}
	if c.Session.ActivityCoalesce < 0 {
		return errors.New("Session ActivityCoalesce cannot be negative")
	}
	if c.Session.ActivityCoalesce >= c.Session.IdleTimeout {
		return errors.New("Session ActivityCoalesce must be shorter than IdleTimeout")
	}
	if strings.TrimSpace(c.MFA.Issuer) == "" {
		return errors.New("MFA Issuer is required")
	}
	if c.MFA.Digits != 6 && c.MFA.Digits != 8 {
		return errors.New("MFA Digits must be 6 or 8")
	}
	if c.MFA.Period < 15 {
		return errors.New("MFA Period must be at least 15 seconds")
	}
	if c.MFA.Skew < 0 || c.MFA.Skew > 2 {
		return errors.New("MFA Skew must be between 0 and 2")
	}
	switch strings.ToUpper(c.MFA.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("MFA Algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.MFA.BackupCodeCount <= 0 {
		return errors.New("MFA BackupCodeCount must be greater than zero")
	}
	if c.MFA.BackupCodeLength < 8 {
		return errors.New("MFA BackupCodeLength must be at least 8")
	}
	switch c.Token.SigningMethod {
	case "hs256":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("Token hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("Token ed25519 requires PrivateKey")
		}
		if len(c.Token.PublicKey) == 0 {
			return errors.New("Token ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported Token SigningMethod")
	}
	if c.Token.TTL < 0 {
		return errors.New("Token TTL cannot be negative")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2 minutes")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be greater than zero when audit is enabled")
	}
	if c.Audit.RetryAttempts < 0 {
		return errors.New("Audit RetryAttempts cannot be negative")
	}
	return nil
}
