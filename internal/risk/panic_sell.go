// Package risk implements the risk-management layer consulted by the
// driver before forwarding a strategy signal to the exchange layer: a
// panic-sell trigger, an error/latency auto-stop watchdog, a liquidation
// risk evaluator, and a supplemental trade circuit breaker. None of these
// components open sockets or submit orders — they are pure decision
// functions (or small state machines) over driver-supplied events.
package risk

import "github.com/rs/zerolog"

// PanicSellConfig holds the tunables for PanicSellManager.
type PanicSellConfig struct {
	Enabled         bool
	DropToPercent   float64  // e.g. 1.02 = buy_price + 2%
	SpreadPercent   float64  // e.g. 0.01 = 1% spread
	AutoPanicIfDrop *float64 // percent drop from buy_price that forces a panic sell
	PanicIfBidsDrop *float64 // percent above buy_price; a best bid below buy_price*(1+T/100) forces a panic sell
}

// DefaultPanicSellConfig returns the default thresholds.
func DefaultPanicSellConfig() PanicSellConfig {
	return PanicSellConfig{
		Enabled:       false,
		DropToPercent: 1.02,
		SpreadPercent: 0.01,
	}
}

// PanicSellManager is a pure function of its inputs; it carries no mutable
// state of its own.
type PanicSellManager struct {
	config PanicSellConfig
	logger zerolog.Logger
}

// NewPanicSellManager builds a manager from config. logger may be the zero
// value (a no-op logger).
func NewPanicSellManager(config PanicSellConfig, logger zerolog.Logger) *PanicSellManager {
	return &PanicSellManager{config: config, logger: logger}
}

// ShouldPanicSell returns the panic target price and true if an emergency
// exit is warranted, or (0, false) otherwise.
func (m *PanicSellManager) ShouldPanicSell(buyPrice, currentPrice float64, bestBid float64, hasBid bool) (float64, bool) {
	if !m.config.Enabled || buyPrice <= 0 {
		return 0, false
	}

	if threshold := m.config.AutoPanicIfDrop; threshold != nil {
		dropThreshold := buyPrice * (1 - absF(*threshold)/100)
		if currentPrice < dropThreshold {
			target := m.CalculatePanicPrice(buyPrice)
			m.logger.Warn().
				Float64("buy_price", buyPrice).
				Float64("current_price", currentPrice).
				Float64("target", target).
				Msg("panic sell: price drop threshold breached")
			return target, true
		}
	}

	if threshold := m.config.PanicIfBidsDrop; threshold != nil && hasBid {
		bidThreshold := buyPrice * (1 + *threshold/100)
		if bestBid < bidThreshold {
			target := m.CalculatePanicPrice(buyPrice)
			m.logger.Warn().
				Float64("buy_price", buyPrice).
				Float64("best_bid", bestBid).
				Float64("target", target).
				Msg("panic sell: bid collapse threshold breached")
			return target, true
		}
	}

	return 0, false
}

// CalculatePanicPrice computes buy_price * drop_to_percent * (1 - spread_percent).
func (m *PanicSellManager) CalculatePanicPrice(buyPrice float64) float64 {
	target := buyPrice * m.config.DropToPercent
	return target * (1 - m.config.SpreadPercent)
}

// ForcePanicSell is the manual/global-risk-manager-invoked escape hatch;
// it bypasses the enabled/trigger checks entirely.
func (m *PanicSellManager) ForcePanicSell(buyPrice float64) float64 {
	return m.CalculatePanicPrice(buyPrice)
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
