package authcore

import (
	"errors"

	"github.com/finleyhq/authcore/internal/idle"
	"github.com/finleyhq/authcore/internal/lockout"
	"github.com/finleyhq/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles a Service. A Builder is single-use: Build can be
// called once.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	verifier  Verifier
	mfaStore  MFAStore
	auditSink Sink
	expiry    ExpiryHandler
	built     bool
}

// New starts a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the client backing lockout state and, unless
// WithMFAStore overrides it, MFA records.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithVerifier supplies the external identity provider used by Login.
// Optional: hosts that call RecordFailedLogin/RecordSuccessfulLogin
// around their own credential check can omit it.
func (b *Builder) WithVerifier(v Verifier) *Builder {
	b.verifier = v
	return b
}

// WithMFAStore overrides the default Redis-backed MFA record store.
func (b *Builder) WithMFAStore(store MFAStore) *Builder {
	b.mfaStore = store
	return b
}

// WithAuditSink supplies the destination for audit events. Without one
// (or with Audit.Enabled false) events are discarded.
func (b *Builder) WithAuditSink(sink Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithExpiryHandler registers a callback invoked once per idle-expired
// session, so hosts can force re-authentication.
func (b *Builder) WithExpiryHandler(h ExpiryHandler) *Builder {
	b.expiry = h
	return b
}

func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	store := b.mfaStore
	if store == nil {
		store = NewRedisMFAStore(b.redis, cfg.MFA.RedisPrefix)
	}

	tokenTTL := cfg.Token.TTL
	if tokenTTL <= 0 {
		tokenTTL = cfg.Session.IdleTimeout
	}
	tokens, err := token.New(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		TTL:           tokenTTL,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	s := &Service{
		config:      cfg,
		verifier:    b.verifier,
		mfaStore:    store,
		totp:        newAuthenticator(cfg.MFA),
		enrollments: newEnrollmentRegistry(),
		tokens:      tokens,
		metrics:     newMetrics(cfg.Metrics),
		expiry:      b.expiry,
	}
	s.lockouts = lockout.New(b.redis, lockout.Config{
		Threshold:     cfg.Lockout.Threshold,
		LockDuration:  cfg.Lockout.LockDuration,
		FailureWindow: cfg.Lockout.FailureWindow,
		Prefix:        cfg.Lockout.RedisPrefix,
	})
	s.sessions = idle.New(idle.Config{
		Timeout:  cfg.Session.IdleTimeout,
		Coalesce: cfg.Session.ActivityCoalesce,
	}, s.handleExpiry)
	s.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	b.built = true
	return s, nil
}
