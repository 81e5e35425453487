package authcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeVerifier struct {
	identity   string
	credential string
	err        error
}

func (v fakeVerifier) Verify(_ context.Context, identity, credential string) (bool, error) {
	if v.err != nil {
		return false, v.err
	}
	return identity == v.identity && credential == v.credential, nil
}

func TestRecordFailedLoginThreshold(t *testing.T) {
	svc, sink, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		status, err := svc.RecordFailedLogin(ctx, "alice")
		if err != nil {
			t.Fatalf("failure %d: %v", i, err)
		}
		if status.Locked {
			t.Fatalf("locked after %d failures", i)
		}
		ev := waitEvent(t, sink, EventLoginFailed)
		payload, ok := ev.Payload.(LoginFailedPayload)
		if !ok {
			t.Fatalf("wrong payload type: %T", ev.Payload)
		}
		if payload.AttemptCount != i {
			t.Fatalf("expected attempt count %d, got %d", i, payload.AttemptCount)
		}
	}

	// Fifth failure imposes the lock: exactly one account.locked event,
	// not an additional login.failed.
	status, err := svc.RecordFailedLogin(ctx, "alice")
	if err != nil {
		t.Fatalf("locking failure: %v", err)
	}
	if !status.Locked {
		t.Fatal("expected locked status")
	}
	if status.Attempts != 0 {
		t.Fatalf("lock should reset the count, got %d", status.Attempts)
	}
	ev := waitEvent(t, sink, EventAccountLocked)
	locked, ok := ev.Payload.(AccountLockedPayload)
	if !ok {
		t.Fatalf("wrong payload type: %T", ev.Payload)
	}
	if locked.Attempts != 5 {
		t.Fatalf("expected 5 attempts on lock payload, got %d", locked.Attempts)
	}

	isLocked, err := svc.IsAccountLocked(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !isLocked {
		t.Fatal("expected locked account")
	}

	// A sixth failure is refused, audited as suspicious, and does not
	// move the unlock time.
	_, err = svc.RecordFailedLogin(ctx, "alice")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	var lockErr *LockedError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockedError, got %T", err)
	}
	if !lockErr.Until.Equal(status.Until) {
		t.Fatalf("lock extended: %s vs %s", lockErr.Until, status.Until)
	}
	waitEvent(t, sink, EventSuspiciousActivity)

	if extra := drainEvents(sink); len(extra) != 0 {
		t.Fatalf("unexpected extra events: %v", extra)
	}
}

func TestRecordSuccessfulLoginResetsCounter(t *testing.T) {
	svc, sink, _ := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := svc.RecordFailedLogin(ctx, "alice"); err != nil {
			t.Fatal(err)
		}
		waitEvent(t, sink, EventLoginFailed)
	}
	if err := svc.RecordSuccessfulLogin(ctx, "alice", "password"); err != nil {
		t.Fatal(err)
	}
	ev := waitEvent(t, sink, EventLoginSucceeded)
	if ev.Payload.(LoginSucceededPayload).Method != "password" {
		t.Fatalf("wrong method: %+v", ev.Payload)
	}

	status, err := svc.AccountLockStatus(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if status.Attempts != 0 || status.Locked {
		t.Fatalf("counter not reset: %+v", status)
	}
}

func TestLockExpiresAutomatically(t *testing.T) {
	svc, sink, mr := newTestService(t, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.RecordFailedLogin(ctx, "alice"); err != nil {
			t.Fatal(err)
		}
	}
	drainEvents(sink)

	mr.FastForward(16 * time.Minute)

	locked, err := svc.IsAccountLocked(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Fatal("lock survived its duration")
	}

	status, err := svc.RecordFailedLogin(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if status.Locked || status.Attempts != 1 {
		t.Fatalf("expected fresh count after expiry, got %+v", status)
	}
}

func TestEmptyIdentityRejected(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.RecordFailedLogin(ctx, ""); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if err := svc.RecordSuccessfulLogin(ctx, "", "password"); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
	if _, err := svc.IsAccountLocked(ctx, ""); !errors.Is(err, ErrIdentityRequired) {
		t.Fatalf("expected ErrIdentityRequired, got %v", err)
	}
}

func TestLoginFlow(t *testing.T) {
	svc, sink, _ := newTestService(t, nil)
	svc.verifier = fakeVerifier{identity: "alice", credential: "hunter2"}
	ctx := context.Background()

	// Wrong credential counts as a failure.
	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	waitEvent(t, sink, EventLoginFailed)

	result, err := svc.Login(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if result.MFARequired || result.Session == nil {
		t.Fatalf("expected plain session, got %+v", result)
	}
	ev := waitEvent(t, sink, EventLoginSucceeded)
	if ev.Payload.(LoginSucceededPayload).Method != "password" {
		t.Fatalf("wrong method: %+v", ev.Payload)
	}
	if ev.SessionID != result.Session.SessionID {
		t.Fatal("event not tagged with session id")
	}

	// The token binds the session to the identity.
	grant, err := svc.ValidateSession(result.Session.Token)
	if err != nil {
		t.Fatal(err)
	}
	if grant.Identity != "alice" || grant.SessionID != result.Session.SessionID {
		t.Fatalf("grant mismatch: %+v", grant)
	}

	// The failure counter was reset by the successful login.
	status, err := svc.AccountLockStatus(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if status.Attempts != 0 {
		t.Fatalf("counter not reset by login: %+v", status)
	}
}

func TestLoginLocksAfterRepeatedFailures(t *testing.T) {
	svc, sink, _ := newTestService(t, nil)
	svc.verifier = fakeVerifier{identity: "alice", credential: "hunter2"}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, "alice", "wrong")
		if err == nil {
			t.Fatalf("login %d succeeded with wrong credential", i)
		}
	}
	drainEvents(sink)

	// Even the correct credential is refused while locked.
	_, err := svc.Login(ctx, "alice", "hunter2")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	waitEvent(t, sink, EventSuspiciousActivity)
}

func TestLoginRequiresMFAWhenEnabled(t *testing.T) {
	svc, sink, _ := newTestService(t, nil)
	svc.verifier = fakeVerifier{identity: "alice", credential: "hunter2"}
	ctx := context.Background()

	secret, _ := enrollMFA(t, svc, sink, "alice")

	result, err := svc.Login(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !result.MFARequired || result.Session != nil {
		t.Fatalf("expected MFA gate, got %+v", result)
	}
	// The first factor alone emits nothing; the flow is not complete.
	if extra := drainEvents(sink); len(extra) != 0 {
		t.Fatalf("unexpected events before second factor: %v", extra)
	}

	completed, err := svc.CompleteMFALogin(ctx, "alice", mustTOTP(t, secret))
	if err != nil {
		t.Fatal(err)
	}
	if completed.Session == nil {
		t.Fatal("expected session after second factor")
	}
	ev := waitEvent(t, sink, EventLoginSucceeded)
	if ev.Payload.(LoginSucceededPayload).Method != "totp" {
		t.Fatalf("wrong method: %+v", ev.Payload)
	}
}

func TestCompleteMFALoginWithBackupCode(t *testing.T) {
	svc, sink, _ := newTestService(t, nil)
	svc.verifier = fakeVerifier{identity: "alice", credential: "hunter2"}
	ctx := context.Background()

	_, codes := enrollMFA(t, svc, sink, "alice")

	result, err := svc.CompleteMFALogin(ctx, "alice", codes[0])
	if err != nil {
		t.Fatal(err)
	}
	if result.Session == nil {
		t.Fatal("expected session")
	}
	ev := waitEvent(t, sink, EventLoginSucceeded)
	if ev.Payload.(LoginSucceededPayload).Method != "backup_code" {
		t.Fatalf("wrong method: %+v", ev.Payload)
	}
}
