package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// totpSecretBytes is the raw secret size: 160 bits, the RFC 4226
// recommended minimum and what authenticator apps expect.
const totpSecretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// authenticator implements RFC 6238 time-based one-time passwords.
type authenticator struct {
	config MFAConfig
}

func newAuthenticator(cfg MFAConfig) *authenticator {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	cfg.Algorithm = strings.ToUpper(cfg.Algorithm)
	return &authenticator{config: cfg}
}

// GenerateSecret returns a fresh random secret in raw and base32 form.
func (a *authenticator) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	return raw, b32.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI encoded into the enrollment QR.
func (a *authenticator) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(a.config.Issuer + ":" + account)
	params := url.Values{}
	params.Set("secret", secretBase32)
	params.Set("issuer", a.config.Issuer)
	params.Set("algorithm", a.config.Algorithm)
	params.Set("digits", strconv.Itoa(a.config.Digits))
	params.Set("period", strconv.Itoa(a.config.Period))
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// CodeWellFormed reports whether code has the exact digit shape of a TOTP
// code. Anything else is rejected before any HMAC work.
func (a *authenticator) CodeWellFormed(code string) bool {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != a.config.Digits {
		return false
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] < '0' || trimmed[i] > '9' {
			return false
		}
	}
	return true
}

// Verify checks code against secret at the given time, accepting the
// configured number of adjacent time steps on each side. On a match it
// returns the matched counter so callers can enforce replay protection.
// The comparison is constant time per candidate window.
func (a *authenticator) Verify(secret []byte, code string, now time.Time) (bool, int64, error) {
	if !a.CodeWellFormed(code) {
		return false, 0, nil
	}
	if len(secret) == 0 {
		return false, 0, errors.New("empty totp secret")
	}
	trimmed := strings.TrimSpace(code)
	base := now.Unix() / int64(a.config.Period)
	for step := -a.config.Skew; step <= a.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		candidate, err := hotpCode(secret, counter, a.config.Digits, a.config.Algorithm)
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(trimmed)) == 1 {
			return true, counter, nil
		}
	}
	return false, 0, nil
}

// hotpCode computes the RFC 4226 truncated code for one counter value.
func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	fn, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(counter))

	mac := hmac.New(fn, secret)
	mac.Write(buf[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, value%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported totp algorithm: %s", algorithm)
	}
}
