package authcore

import (
	"context"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	svc, sink, _ := newTestService(t, func(c *Config) {
		c.Metrics.Enabled = true
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.RecordFailedLogin(ctx, "alice"); err != nil {
			t.Fatal(err)
		}
	}
	if err := svc.RecordSuccessfulLogin(ctx, "alice", "password"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.StartSession("alice"); err != nil {
		t.Fatal(err)
	}
	drainEvents(sink)

	snap := svc.MetricsSnapshot()
	if got := snap.Counters["login_failure"]; got != 3 {
		t.Fatalf("login_failure = %d, want 3", got)
	}
	if got := snap.Counters["login_success"]; got != 1 {
		t.Fatalf("login_success = %d, want 1", got)
	}
	if got := snap.Counters["session_started"]; got != 1 {
		t.Fatalf("session_started = %d, want 1", got)
	}
	if got := snap.Counters["account_locked"]; got != 0 {
		t.Fatalf("account_locked = %d, want 0", got)
	}
}

func TestMetricsDisabledSnapshotIsEmpty(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	if _, err := svc.RecordFailedLogin(context.Background(), "alice"); err != nil {
		t.Fatal(err)
	}
	snap := svc.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("disabled metrics produced counters: %v", snap.Counters)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("nil metrics produced counters: %v", snap.Counters)
	}
}
