package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StopReason identifies why trading was halted.
type StopReason int

const (
	StopReasonNone StopReason = iota
	StopReasonErrorLevelExceeded
	StopReasonPingTooHigh
	StopReasonManual
)

func (r StopReason) String() string {
	switch r {
	case StopReasonErrorLevelExceeded:
		return "ErrorLevelExceeded"
	case StopReasonPingTooHigh:
		return "PingTooHigh"
	case StopReasonManual:
		return "Manual"
	default:
		return "None"
	}
}

// AutoStopConfig holds the error/ping thresholds and restart policy.
type AutoStopConfig struct {
	MaxErrorLevel        uint32
	MaxPingMs            uint64
	PanicSellOnStop      bool
	RestartAfterMinutes  *uint32 // nil disables auto-restart
}

// DefaultAutoStopConfig returns the default thresholds and restart policy.
func DefaultAutoStopConfig() AutoStopConfig {
	restart := uint32(5)
	return AutoStopConfig{
		MaxErrorLevel:       3,
		MaxPingMs:           1000,
		PanicSellOnStop:     false,
		RestartAfterMinutes: &restart,
	}
}

// AutoStopManager is an error-rate and latency watchdog. Its mutable
// fields are guarded by a mutex since risk managers are logically
// process-scoped singletons that may be consulted from multiple
// goroutines (one per symbol driver).
type AutoStopManager struct {
	mu sync.Mutex

	config AutoStopConfig
	logger zerolog.Logger

	currentErrorLevel uint32
	stoppedAt         *time.Time
	stopReason        StopReason
	errorHistory      []time.Time

	now func() time.Time
}

// NewAutoStopManager builds a manager from config.
func NewAutoStopManager(config AutoStopConfig, logger zerolog.Logger) *AutoStopManager {
	return &AutoStopManager{config: config, logger: logger, now: time.Now}
}

// RecordError appends an error timestamp, drops entries older than 1 hour,
// and recomputes current_error_level from the remaining history.
func (m *AutoStopManager) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.errorHistory = append(m.errorHistory, now)
	m.errorHistory = pruneOlderThan(m.errorHistory, now.Add(-time.Hour))
	m.currentErrorLevel = uint32(len(m.errorHistory))
}

func pruneOlderThan(history []time.Time, cutoff time.Time) []time.Time {
	kept := history[:0]
	for _, ts := range history {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// CheckPing transitions to stopped (PingTooHigh) and returns true if
// pingMs exceeds the configured threshold.
func (m *AutoStopManager) CheckPing(pingMs uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pingMs > m.config.MaxPingMs {
		m.stopLocked(StopReasonPingTooHigh)
		return true
	}
	return false
}

// CheckErrors transitions to stopped (ErrorLevelExceeded) and returns true
// if current_error_level has reached the configured threshold.
func (m *AutoStopManager) CheckErrors() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentErrorLevel >= m.config.MaxErrorLevel {
		m.stopLocked(StopReasonErrorLevelExceeded)
		return true
	}
	return false
}

// Stop halts trading for reason. Idempotent: a second call while already
// stopped has no effect.
func (m *AutoStopManager) Stop(reason StopReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked(reason)
}

func (m *AutoStopManager) stopLocked(reason StopReason) {
	if m.stoppedAt != nil {
		return
	}
	now := m.now()
	m.stoppedAt = &now
	m.stopReason = reason
	m.logger.Warn().Str("reason", reason.String()).Msg("auto-stop triggered")
}

// ShouldRestart reports whether enough time has elapsed since stop for an
// automatic restart, per the configured policy.
func (m *AutoStopManager) ShouldRestart() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stoppedAt == nil || m.config.RestartAfterMinutes == nil {
		return false
	}
	elapsed := m.now().Sub(*m.stoppedAt)
	return elapsed >= time.Duration(*m.config.RestartAfterMinutes)*time.Minute
}

// Restart clears the stopped state, reason, error level, and history.
func (m *AutoStopManager) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stoppedAt = nil
	m.stopReason = StopReasonNone
	m.currentErrorLevel = 0
	m.errorHistory = nil
}

// IsStopped reports whether trading is currently halted.
func (m *AutoStopManager) IsStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stoppedAt != nil
}

// StopReasonValue returns the recorded stop reason (StopReasonNone if running).
func (m *AutoStopManager) StopReasonValue() StopReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopReason
}

// StoppedAt returns the stop timestamp and whether one is set.
func (m *AutoStopManager) StoppedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stoppedAt == nil {
		return time.Time{}, false
	}
	return *m.stoppedAt, true
}

// CurrentErrorLevel returns the live error-history length.
func (m *AutoStopManager) CurrentErrorLevel() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentErrorLevel
}
