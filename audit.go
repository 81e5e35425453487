package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType identifies an audit event. The vocabulary is closed: every
// state change the Service performs maps to exactly one of these.
type EventType string

const (
	EventLoginSucceeded     EventType = "login.succeeded"
	EventLoginFailed        EventType = "login.failed"
	EventAccountLocked      EventType = "account.locked"
	EventSessionExpired     EventType = "session.expired"
	EventMFAEnabled         EventType = "mfa.enabled"
	EventMFADisabled        EventType = "mfa.disabled"
	EventSuspiciousActivity EventType = "security.suspicious_activity"
)

// Severity classifies the outcome an event records.
type Severity uint8

const (
	SeveritySuccess Severity = iota
	SeverityWarning
	SeverityFailure
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity name, so JSON sinks emit "warning"
// rather than a bare number.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// severityFor is the fixed event-to-severity mapping.
func severityFor(t EventType) Severity {
	switch t {
	case EventLoginSucceeded, EventMFAEnabled:
		return SeveritySuccess
	case EventSessionExpired, EventMFADisabled, EventSuspiciousActivity:
		return SeverityWarning
	default:
		return SeverityFailure
	}
}

// Payload is the per-event detail. The set of implementations is closed:
// one struct per event type, so sinks can switch on the concrete type
// instead of digging through maps.
type Payload interface {
	auditPayload()
}

// LoginSucceededPayload carries how the login was completed: "password",
// "totp" or "backup_code".
type LoginSucceededPayload struct {
	Method string `json:"method"`
}

// LoginFailedPayload carries the post-increment attempt count, or a reason
// for failures that do not advance the lockout counter (MFA rejections).
type LoginFailedPayload struct {
	AttemptCount int    `json:"attempt_count,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// AccountLockedPayload is emitted on the locking transition.
type AccountLockedPayload struct {
	Until    time.Time `json:"until"`
	Attempts int       `json:"attempts"`
}

// SessionExpiredPayload is emitted when a session idles out.
type SessionExpiredPayload struct {
	IdleFor time.Duration `json:"idle_for"`
}

// MFAEnabledPayload is emitted when enrollment completes.
type MFAEnabledPayload struct {
	BackupCodes int `json:"backup_codes"`
}

// MFADisabledPayload is emitted when MFA is torn down.
type MFADisabledPayload struct{}

// SuspiciousActivityPayload is emitted for attempts against a locked
// identity.
type SuspiciousActivityPayload struct {
	Reason string    `json:"reason"`
	Until  time.Time `json:"until,omitzero"`
}

func (LoginSucceededPayload) auditPayload()     {}
func (LoginFailedPayload) auditPayload()        {}
func (AccountLockedPayload) auditPayload()      {}
func (SessionExpiredPayload) auditPayload()     {}
func (MFAEnabledPayload) auditPayload()         {}
func (MFADisabledPayload) auditPayload()        {}
func (SuspiciousActivityPayload) auditPayload() {}

// Event is one audit record. Events are constructed after the state change
// they describe and reflect post-transition state.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"event_type"`
	Severity  Severity  `json:"severity"`
	Identity  string    `json:"identity,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Payload   Payload   `json:"payload,omitempty"`
}

// Sink receives audit events from the dispatcher goroutine. Record errors
// trigger a bounded retry; a sink must never assume redelivery beyond
// that. Implementations must be safe for use from a single goroutine at a
// time.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) Record(context.Context, Event) error { return nil }

// ChannelSink buffers events on a channel, mainly for tests and for hosts
// that want to bridge events into their own pipeline.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Record(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events exposes the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line to the wrapped writer.
type JSONWriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Record(_ context.Context, event Event) error {
	encoded, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.writer.Write(append(encoded, '\n'))
	return err
}
