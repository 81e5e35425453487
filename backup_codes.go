package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"strings"
)

// backupCodeAlphabet excludes characters users confuse when reading codes
// back (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// generateBackupCodes returns formatted single-use codes alongside their
// identity-scoped hashes. Only the hashes are ever persisted.
func generateBackupCodes(identity string, count, length int) ([]string, [][32]byte, error) {
	codes := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		raw, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, formatBackupCode(raw))
		hashes = append(hashes, backupCodeHash(identity, raw))
	}
	return codes, hashes, nil
}

func newBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// formatBackupCode splits the code for readability; canonicalization
// reverses it.
func formatBackupCode(code string) string {
	if len(code) < 6 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// canonicalizeBackupCode strips separators and whitespace and upper-cases,
// so user-typed variants of the same code hash identically.
func canonicalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// backupCodeHash scopes the hash to the identity so identical codes issued
// to different identities never collide in storage.
func backupCodeHash(identity, canonicalCode string) [32]byte {
	return sha256.Sum256([]byte(identity + ":" + canonicalCode))
}
