// Package token issues and parses the signed grants that bind a session
// identifier to an authenticated identity.
package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the JWT algorithm.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

// Config for one Manager. Key material is validated at construction, not
// first use.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	TTL           time.Duration
	Leeway        time.Duration
}

// Claims carried by a session token.
type Claims struct {
	Identity  string `json:"idn"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens. It is immutable after New
// and safe for concurrent use.
type Manager struct {
	config Config
}

func New(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs a token binding sessionID to identity.
func (m *Manager) Issue(identity, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Identity:  identity,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.config.Issuer,
		},
	}
	tok := jwt.NewWithClaims(m.method(), claims)
	key, err := m.signKey()
	if err != nil {
		return "", err
	}
	return tok.SignedString(key)
}

// Parse verifies a token and returns its claims. The algorithm is
// allow-listed to the configured method; tokens signed any other way are
// rejected regardless of their header.
func (m *Manager) Parse(signed string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method().Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(signed, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey()
	})
	if err != nil {
		return nil, err
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *Manager) method() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) signKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
