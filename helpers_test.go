package authcore

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// newTestService builds a Service on miniredis with audit enabled and a
// ChannelSink. mutate adjusts the config before Build; overrides that
// shrink Session.IdleTimeout must shrink ActivityCoalesce too.
func newTestService(t *testing.T, mutate func(*Config)) (*Service, *ChannelSink, *miniredis.Miniredis) {
	t.Helper()
	mr, rdb := newTestRedis(t)

	cfg := defaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 64
	cfg.Token.PrivateKey = []byte("unit-test-signing-secret")
	cfg.Token.Issuer = "authcore-test"
	if mutate != nil {
		mutate(&cfg)
	}

	sink := NewChannelSink(64)
	svc, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("failed to build service: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, sink, mr
}

// waitEvent blocks until the sink delivers the next event and asserts its
// type.
func waitEvent(t *testing.T, sink *ChannelSink, want EventType) Event {
	t.Helper()
	select {
	case ev := <-sink.Events():
		if ev.Type != want {
			t.Fatalf("expected %s event, got %s", want, ev.Type)
		}
		if ev.Severity != severityFor(want) {
			t.Fatalf("wrong severity for %s: %s", want, ev.Severity)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s event", want)
		return Event{}
	}
}

// drainEvents collects whatever the sink delivers within a short window.
func drainEvents(sink *ChannelSink) []Event {
	var out []Event
	for {
		select {
		case ev := <-sink.Events():
			out = append(out, ev)
		case <-time.After(150 * time.Millisecond):
			return out
		}
	}
}
