package authcore

import "sync/atomic"

// MetricID enumerates the in-process counters the Service maintains.
type MetricID uint8

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRejectedLocked
	MetricAccountLocked
	MetricSessionStarted
	MetricSessionExpired
	MetricSessionEnded
	MetricActivitySignal
	MetricEnrollmentStarted
	MetricEnrollmentCancelled
	MetricMFAEnabled
	MetricMFADisabled
	MetricTOTPSuccess
	MetricTOTPFailure
	MetricBackupCodeUsed
	MetricBackupCodeFailed
	metricIDCount
)

var metricNames = map[MetricID]string{
	MetricLoginSuccess:        "login_success",
	MetricLoginFailure:        "login_failure",
	MetricLoginRejectedLocked: "login_rejected_locked",
	MetricAccountLocked:       "account_locked",
	MetricSessionStarted:      "session_started",
	MetricSessionExpired:      "session_expired",
	MetricSessionEnded:        "session_ended",
	MetricActivitySignal:      "activity_signal",
	MetricEnrollmentStarted:   "enrollment_started",
	MetricEnrollmentCancelled: "enrollment_cancelled",
	MetricMFAEnabled:          "mfa_enabled",
	MetricMFADisabled:         "mfa_disabled",
	MetricTOTPSuccess:         "totp_success",
	MetricTOTPFailure:         "totp_failure",
	MetricBackupCodeUsed:      "backup_code_used",
	MetricBackupCodeFailed:    "backup_code_failed",
}

func (id MetricID) String() string {
	if name, ok := metricNames[id]; ok {
		return name
	}
	return "unknown"
}

// Metrics is a fixed array of atomic counters. A nil *Metrics is a valid
// disabled instance.
type Metrics struct {
	counters [metricIDCount]atomic.Uint64
}

func newMetrics(cfg MetricsConfig) *Metrics {
	if !cfg.Enabled {
		return nil
	}
	return &Metrics{}
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// MetricsSnapshot is a point-in-time copy of every counter, keyed by name.
type MetricsSnapshot struct {
	Counters map[string]uint64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[string]uint64, int(metricIDCount))}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id.String()] = m.counters[id].Load()
	}
	return snap
}
