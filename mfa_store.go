package authcore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const mfaRecordVersion1 = 1

// RedisMFAStore persists MFA records as versioned binary blobs. Single-use
// backup-code consumption and replay-counter advancement run inside WATCH
// transactions so concurrent verifications cannot double-spend.
type RedisMFAStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedisMFAStore(client redis.UniversalClient, prefix string) *RedisMFAStore {
	if prefix == "" {
		prefix = "mfa"
	}
	return &RedisMFAStore{redis: client, prefix: prefix}
}

func (s *RedisMFAStore) key(identity string) string {
	return s.prefix + ":" + identity
}

func (s *RedisMFAStore) Get(ctx context.Context, identity string) (*MFARecord, error) {
	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	record, err := decodeMFARecord(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return record, nil
}

func (s *RedisMFAStore) Save(ctx context.Context, identity string, record *MFARecord) error {
	encoded, err := encodeMFARecord(record)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	if err := s.redis.Set(ctx, s.key(identity), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}

func (s *RedisMFAStore) Delete(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
	}
	return nil
}

func (s *RedisMFAStore) UpdateLastUsedCounter(ctx context.Context, identity string, counter int64) error {
	return s.mutate(ctx, identity, func(record *MFARecord) bool {
		if counter <= record.LastUsedCounter {
			return false
		}
		record.LastUsedCounter = counter
		return true
	})
}

func (s *RedisMFAStore) ConsumeBackupCode(ctx context.Context, identity string, hash [32]byte) (bool, error) {
	consumed := false
	err := s.mutate(ctx, identity, func(record *MFARecord) bool {
		for i, h := range record.BackupCodeHashes {
			if h == hash {
				record.BackupCodeHashes = append(record.BackupCodeHashes[:i], record.BackupCodeHashes[i+1:]...)
				consumed = true
				return true
			}
		}
		return false
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// mutate runs a WATCH-guarded read-modify-write on the record key,
// retrying on transaction conflicts. fn reports whether the record
// changed.
func (s *RedisMFAStore) mutate(ctx context.Context, identity string, fn func(*MFARecord) bool) error {
	const maxRetries = 4
	key := s.key(identity)
	for i := 0; i < maxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decodeMFARecord(data)
			if err != nil {
				return err
			}
			if !fn(record) {
				return nil
			}
			updated, err := encodeMFARecord(record)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, redis.KeepTTL)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrMFANotEnabled
			}
			return fmt.Errorf("%w: %v", ErrMFAUnavailable, err)
		}
		return nil
	}
	return fmt.Errorf("%w: transaction contention", ErrMFAUnavailable)
}

func encodeMFARecord(record *MFARecord) ([]byte, error) {
	if len(record.Secret) > 0xffff {
		return nil, errors.New("mfa secret too large")
	}
	if len(record.BackupCodeHashes) > 0xffff {
		return nil, errors.New("too many backup code hashes")
	}

	var buf bytes.Buffer
	buf.WriteByte(mfaRecordVersion1)
	if record.Enabled {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LastUsedCounter); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Secret))); err != nil {
		return nil, err
	}
	buf.Write(record.Secret)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.BackupCodeHashes))); err != nil {
		return nil, err
	}
	for _, h := range record.BackupCodeHashes {
		buf.Write(h[:])
	}
	return buf.Bytes(), nil
}

func decodeMFARecord(data []byte) (*MFARecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != mfaRecordVersion1 {
		return nil, fmt.Errorf("unsupported mfa record version: %d", version)
	}

	enabled, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record := &MFARecord{Enabled: enabled == 1}

	if err := binary.Read(reader, binary.BigEndian, &record.LastUsedCounter); err != nil {
		return nil, err
	}

	var secretLen uint16
	if err := binary.Read(reader, binary.BigEndian, &secretLen); err != nil {
		return nil, err
	}
	if secretLen > 0 {
		record.Secret = make([]byte, secretLen)
		if _, err := io.ReadFull(reader, record.Secret); err != nil {
			return nil, err
		}
	}

	var hashCount uint16
	if err := binary.Read(reader, binary.BigEndian, &hashCount); err != nil {
		return nil, err
	}
	record.BackupCodeHashes = make([][32]byte, 0, hashCount)
	for i := 0; i < int(hashCount); i++ {
		var h [32]byte
		if _, err := io.ReadFull(reader, h[:]); err != nil {
			return nil, err
		}
		record.BackupCodeHashes = append(record.BackupCodeHashes, h)
	}
	return record, nil
}
