package authcore

import (
	"strings"
	"testing"
)

func TestGenerateBackupCodes(t *testing.T) {
	codes, hashes, err := generateBackupCodes("alice", 10, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(codes) != 10 || len(hashes) != 10 {
		t.Fatalf("expected 10 codes and hashes, got %d/%d", len(codes), len(hashes))
	}

	seen := make(map[string]bool)
	for i, code := range codes {
		canonical := canonicalizeBackupCode(code)
		if len(canonical) != 10 {
			t.Fatalf("code %q canonicalizes to %d chars", code, len(canonical))
		}
		for _, r := range canonical {
			if !strings.ContainsRune(backupCodeAlphabet, r) {
				t.Fatalf("code %q contains %q outside the alphabet", code, r)
			}
		}
		if seen[canonical] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[canonical] = true

		if backupCodeHash("alice", canonical) != hashes[i] {
			t.Fatalf("hash mismatch for code %q", code)
		}
	}
}

func TestCanonicalizeBackupCode(t *testing.T) {
	cases := map[string]string{
		"ABCDE-FGHJK":     "ABCDEFGHJK",
		"abcde-fghjk":     "ABCDEFGHJK",
		" ABCDE FGHJK ":   "ABCDEFGHJK",
		"ABCDEFGHJK":      "ABCDEFGHJK",
		"ab-cd-ef-gh-jk ": "ABCDEFGHJK",
	}
	for input, want := range cases {
		if got := canonicalizeBackupCode(input); got != want {
			t.Errorf("canonicalize(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBackupCodeHashIsIdentityScoped(t *testing.T) {
	if backupCodeHash("alice", "ABCDEFGHJK") == backupCodeHash("bob", "ABCDEFGHJK") {
		t.Fatal("same code for different identities hashed identically")
	}
}
