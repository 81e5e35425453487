package authcore

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func newTestMFAStore(t *testing.T) *RedisMFAStore {
	t.Helper()
	_, rdb := newTestRedis(t)
	return NewRedisMFAStore(rdb, "mfa")
}

func testRecord() *MFARecord {
	return &MFARecord{
		Enabled:         true,
		Secret:          []byte("12345678901234567890"),
		LastUsedCounter: 42,
		BackupCodeHashes: [][32]byte{
			backupCodeHash("alice", "ABCDEFGHJK"),
			backupCodeHash("alice", "MNPQRSTUVW"),
		},
	}
}

func TestMFAStoreRoundTrip(t *testing.T) {
	store := newTestMFAStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "alice", testRecord()); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	want := testRecord()
	if !got.Enabled || got.LastUsedCounter != want.LastUsedCounter {
		t.Fatalf("record mismatch: %+v", got)
	}
	if !bytes.Equal(got.Secret, want.Secret) {
		t.Fatal("secret mismatch")
	}
	if len(got.BackupCodeHashes) != 2 || got.BackupCodeHashes[0] != want.BackupCodeHashes[0] {
		t.Fatalf("hash mismatch: %+v", got.BackupCodeHashes)
	}
}

func TestMFAStoreGetMissing(t *testing.T) {
	store := newTestMFAStore(t)
	record, err := store.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
}

func TestMFAStoreDelete(t *testing.T) {
	store := newTestMFAStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "alice", testRecord()); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	record, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Fatal("record survived delete")
	}
	// Deleting again is harmless.
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
}

func TestMFAStoreConsumeBackupCode(t *testing.T) {
	store := newTestMFAStore(t)
	ctx := context.Background()
	hash := backupCodeHash("alice", "ABCDEFGHJK")

	if err := store.Save(ctx, "alice", testRecord()); err != nil {
		t.Fatal(err)
	}

	consumed, err := store.ConsumeBackupCode(ctx, "alice", hash)
	if err != nil {
		t.Fatal(err)
	}
	if !consumed {
		t.Fatal("known code not consumed")
	}

	// Single use: the same hash is gone.
	consumed, err = store.ConsumeBackupCode(ctx, "alice", hash)
	if err != nil {
		t.Fatal(err)
	}
	if consumed {
		t.Fatal("code consumed twice")
	}

	record, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(record.BackupCodeHashes) != 1 {
		t.Fatalf("expected one remaining hash, got %d", len(record.BackupCodeHashes))
	}
}

func TestMFAStoreConsumeWithoutRecord(t *testing.T) {
	store := newTestMFAStore(t)
	_, err := store.ConsumeBackupCode(context.Background(), "nobody", backupCodeHash("nobody", "ABCDEFGHJK"))
	if !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("expected ErrMFANotEnabled, got %v", err)
	}
}

func TestMFAStoreUpdateLastUsedCounter(t *testing.T) {
	store := newTestMFAStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, "alice", testRecord()); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateLastUsedCounter(ctx, "alice", 100); err != nil {
		t.Fatal(err)
	}
	record, err := store.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if record.LastUsedCounter != 100 {
		t.Fatalf("counter not advanced: %d", record.LastUsedCounter)
	}

	// The counter only moves forward.
	if err := store.UpdateLastUsedCounter(ctx, "alice", 50); err != nil {
		t.Fatal(err)
	}
	record, err = store.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if record.LastUsedCounter != 100 {
		t.Fatalf("counter moved backwards: %d", record.LastUsedCounter)
	}
}

func TestMFARecordCodecRejectsUnknownVersion(t *testing.T) {
	encoded, err := encodeMFARecord(testRecord())
	if err != nil {
		t.Fatal(err)
	}
	encoded[0] = 99
	if _, err := decodeMFARecord(encoded); err == nil {
		t.Fatal("unknown version accepted")
	}
}

func TestMFARecordCodecRejectsTruncation(t *testing.T) {
	encoded, err := encodeMFARecord(testRecord())
	if err != nil {
		t.Fatal(err)
	}
	for _, cut := range []int{1, 2, 5, len(encoded) / 2, len(encoded) - 1} {
		if _, err := decodeMFARecord(encoded[:cut]); err == nil {
			t.Errorf("truncated record of %d bytes accepted", cut)
		}
	}
}
