package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState is the circuit breaker's current mode.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"    // normal operation
	BreakerOpen     BreakerState = "open"      // trading halted
	BreakerHalfOpen BreakerState = "half_open" // testing recovery
)

// CircuitBreakerConfig holds the trip thresholds and cooldown policy.
type CircuitBreakerConfig struct {
	Enabled              bool
	MaxLossPerHour       float64 // percent
	MaxConsecutiveLosses int
	CooldownMinutes      int
	MaxTradesPerMinute   int
	MaxDailyLoss         float64 // percent
	MaxDailyTrades       int
}

// DefaultCircuitBreakerConfig returns safe defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:              true,
		MaxLossPerHour:       3.0,
		MaxConsecutiveLosses: 5,
		CooldownMinutes:      30,
		MaxTradesPerMinute:   10,
		MaxDailyLoss:         5.0,
		MaxDailyTrades:       100,
	}
}

// CircuitBreaker is a supplemental risk component that halts trading on
// consecutive losses, hourly/daily loss limits, or trade-rate limits,
// recovering automatically through a half-open probation period once a
// cooldown elapses and a winning trade is recorded.
type CircuitBreaker struct {
	mu sync.Mutex

	config CircuitBreakerConfig
	logger zerolog.Logger

	state             BreakerState
	consecutiveLosses int
	hourlyLoss        float64
	dailyLoss         float64
	tradesLastMinute  int
	dailyTrades       int
	lastTripTime      time.Time
	hourlyResetTime   time.Time
	dailyResetTime    time.Time
	minuteResetTime   time.Time
	tripReason        string

	onTrip  func(reason string)
	onReset func()

	now func() time.Time
}

// NewCircuitBreaker builds a breaker from config.
func NewCircuitBreaker(config CircuitBreakerConfig, logger zerolog.Logger) *CircuitBreaker {
	now := time.Now
	return &CircuitBreaker{
		config:          config,
		logger:          logger,
		state:           BreakerClosed,
		hourlyResetTime: now().Add(time.Hour),
		dailyResetTime:  now().Truncate(24 * time.Hour).Add(24 * time.Hour),
		minuteResetTime: now().Add(time.Minute),
		now:             now,
	}
}

// OnTrip registers a callback invoked (in its own goroutine) when the
// breaker trips open.
func (cb *CircuitBreaker) OnTrip(handler func(reason string)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onTrip = handler
}

// OnReset registers a callback invoked (in its own goroutine) when the
// breaker recovers to closed.
func (cb *CircuitBreaker) OnReset(handler func()) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onReset = handler
}

// CanTrade reports whether trading is currently allowed, and a reason
// string when it is not.
func (cb *CircuitBreaker) CanTrade() (bool, string) {
	if !cb.config.Enabled {
		return true, ""
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.resetCountersIfNeeded()

	if cb.state == BreakerOpen {
		elapsed := cb.now().Sub(cb.lastTripTime)
		cooldown := time.Duration(cb.config.CooldownMinutes) * time.Minute

		if elapsed < cooldown {
			remaining := cooldown - elapsed
			return false, fmt.Sprintf("circuit breaker open, cooldown remaining: %v (reason: %s)",
				remaining.Round(time.Second), cb.tripReason)
		}
		cb.state = BreakerHalfOpen
	}

	if cb.hourlyLoss >= cb.config.MaxLossPerHour {
		return false, fmt.Sprintf("hourly loss limit reached: %.2f%% >= %.2f%%", cb.hourlyLoss, cb.config.MaxLossPerHour)
	}
	if cb.dailyLoss >= cb.config.MaxDailyLoss {
		return false, fmt.Sprintf("daily loss limit reached: %.2f%% >= %.2f%%", cb.dailyLoss, cb.config.MaxDailyLoss)
	}
	if cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		return false, fmt.Sprintf("max consecutive losses reached: %d", cb.consecutiveLosses)
	}
	if cb.tradesLastMinute >= cb.config.MaxTradesPerMinute {
		return false, fmt.Sprintf("rate limit reached: %d trades/minute", cb.tradesLastMinute)
	}
	if cb.dailyTrades >= cb.config.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached: %d trades", cb.dailyTrades)
	}

	return true, ""
}

// RecordTrade records the realized PnL percentage of a closed trade and
// updates the loss/rate counters, tripping or recovering the breaker as
// needed.
func (cb *CircuitBreaker) RecordTrade(pnlPercent float64) {
	if !cb.config.Enabled {
		return
	}
	if math.IsNaN(pnlPercent) || math.IsInf(pnlPercent, 0) {
		return
	}

	cb.mu.Lock()
	cb.resetCountersIfNeeded()

	cb.tradesLastMinute++
	cb.dailyTrades++

	var recovered bool
	if pnlPercent < 0 {
		cb.consecutiveLosses++
		cb.hourlyLoss += -pnlPercent
		cb.dailyLoss += -pnlPercent
	} else {
		cb.consecutiveLosses = 0
		if cb.state == BreakerHalfOpen {
			cb.state = BreakerClosed
			recovered = true
		}
	}

	onReset := cb.onReset
	cb.checkAndTrip()
	cb.mu.Unlock()

	if recovered && onReset != nil {
		go onReset()
	}
}

func (cb *CircuitBreaker) checkAndTrip() {
	var reason string
	switch {
	case cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses:
		reason = fmt.Sprintf("consecutive losses: %d", cb.consecutiveLosses)
	case cb.hourlyLoss >= cb.config.MaxLossPerHour:
		reason = fmt.Sprintf("hourly loss: %.2f%%", cb.hourlyLoss)
	case cb.dailyLoss >= cb.config.MaxDailyLoss:
		reason = fmt.Sprintf("daily loss: %.2f%%", cb.dailyLoss)
	}

	if reason == "" {
		return
	}

	cb.state = BreakerOpen
	cb.lastTripTime = cb.now()
	cb.tripReason = reason
	cb.logger.Warn().Str("reason", reason).Msg("circuit breaker tripped")

	if cb.onTrip != nil {
		handler := cb.onTrip
		go handler(reason)
	}
}

func (cb *CircuitBreaker) resetCountersIfNeeded() {
	now := cb.now()

	if now.After(cb.minuteResetTime) {
		cb.tradesLastMinute = 0
		cb.minuteResetTime = now.Add(time.Minute)
	}
	if now.After(cb.hourlyResetTime) {
		cb.hourlyLoss = 0
		cb.hourlyResetTime = now.Add(time.Hour)
	}
	if now.After(cb.dailyResetTime) {
		cb.dailyLoss = 0
		cb.dailyTrades = 0
		cb.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// ForceReset manually closes the breaker, clearing consecutive-loss state.
func (cb *CircuitBreaker) ForceReset() {
	cb.mu.Lock()
	cb.state = BreakerClosed
	cb.consecutiveLosses = 0
	cb.tripReason = ""
	onReset := cb.onReset
	cb.mu.Unlock()

	if onReset != nil {
		go onReset()
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
