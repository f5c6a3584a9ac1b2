// Package deltas maintains windowed price history per symbol and computes
// percentage deltas over multiple horizons, plus cross-asset deltas
// (BTC reference, market reference). It never fails: missing or
// insufficient history always resolves to a zero component.
package deltas

import (
	"strings"
	"time"

	"github.com/moonspike/core/internal/market"
)

// Deltas is the percent-change snapshot produced per evaluation. A value of
// 2.5 means +2.5%.
type Deltas struct {
	Delta3h      float64
	DeltaHourly  float64
	Delta15Min   float64
	DeltaMarket  float64
	DeltaBTC     float64
	DeltaBTC5m   float64
}

const (
	maxHistoryDuration = 24 * time.Hour

	window15Min = 15 * time.Minute
	window1h    = time.Hour
	window3h    = 3 * time.Hour
	windowBTC5m = 5 * time.Minute
)

// Calculator holds three ordered price-point sequences (symbol, BTC
// reference, market reference), each bounded by maxHistoryDuration.
type Calculator struct {
	symbolHistory []market.PricePoint
	btcHistory    []market.PricePoint
	marketHistory []market.PricePoint
}

// New returns an empty Calculator.
func New() *Calculator {
	return &Calculator{}
}

// Update appends a price point derived from tick to the symbol and market
// histories, and additionally to the BTC history when the symbol contains
// the substring "BTC" (case-sensitive). It then prunes all three histories
// of anything older than now-maxHistoryDuration.
func (c *Calculator) Update(tick market.TradeTick, now time.Time) {
	point := market.PricePoint{Timestamp: tick.Timestamp, Price: tick.Price}

	c.symbolHistory = append(c.symbolHistory, point)
	c.marketHistory = append(c.marketHistory, point)

	if strings.Contains(tick.Symbol, "BTC") {
		c.btcHistory = append(c.btcHistory, point)
	}

	c.cleanup(now)
}

func (c *Calculator) cleanup(now time.Time) {
	cutoff := now.Add(-maxHistoryDuration)
	c.symbolHistory = pruneBefore(c.symbolHistory, cutoff)
	c.btcHistory = pruneBefore(c.btcHistory, cutoff)
	c.marketHistory = pruneBefore(c.marketHistory, cutoff)
}

func pruneBefore(history []market.PricePoint, cutoff time.Time) []market.PricePoint {
	i := 0
	for i < len(history) && history[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return history
	}
	return history[i:]
}

// CalculateDeltas computes the full Deltas snapshot for currentPrice at now.
func (c *Calculator) CalculateDeltas(currentPrice float64, now time.Time) Deltas {
	delta15 := calculateDeltaPercent(c.symbolHistory, currentPrice, now, window15Min)
	deltaHourly := calculateDeltaPercent(c.symbolHistory, currentPrice, now, window1h)
	delta3h := calculateDeltaPercent(c.symbolHistory, currentPrice, now, window3h)

	var deltaBTC float64
	if len(c.btcHistory) > 0 {
		latestBTC := c.btcHistory[len(c.btcHistory)-1].Price
		deltaBTC = calculateDeltaPercent(c.btcHistory, latestBTC, now, window1h)
	}

	deltaBTC5m := calculateBTC5mDelta(c.btcHistory, now)

	// The market channel is not yet a distinct reference in this revision
	// (see DESIGN.md open question); it mirrors the hourly symbol delta.
	deltaMarket := deltaHourly

	return Deltas{
		Delta3h:     delta3h,
		DeltaHourly: deltaHourly,
		Delta15Min:  delta15,
		DeltaMarket: deltaMarket,
		DeltaBTC:    deltaBTC,
		DeltaBTC5m:  deltaBTC5m,
	}
}

// calculateDeltaPercent finds the earliest price at or after now-window and
// returns its percent change to currentPrice. If no such point exists it
// falls back to the oldest retained point, then to currentPrice itself
// (zero delta). start_price <= 0 is guarded to zero.
func calculateDeltaPercent(history []market.PricePoint, currentPrice float64, now time.Time, window time.Duration) float64 {
	cutoff := now.Add(-window)

	startPrice := currentPrice
	found := false
	for _, p := range history {
		if !p.Timestamp.Before(cutoff) {
			startPrice = p.Price
			found = true
			break
		}
	}
	if !found && len(history) > 0 {
		startPrice = history[0].Price
	}

	return percentChange(startPrice, currentPrice)
}

func percentChange(startPrice, currentPrice float64) float64 {
	if startPrice <= 0 {
		return 0
	}
	return ((currentPrice - startPrice) / startPrice) * 100
}

// calculateBTC5mDelta returns the peak-to-trough percent range of BTC
// prices observed in the last 5 minutes, or zero if none.
func calculateBTC5mDelta(btcHistory []market.PricePoint, now time.Time) float64 {
	cutoff := now.Add(-windowBTC5m)

	min, max := 0.0, 0.0
	seen := false
	for _, p := range btcHistory {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		if !seen {
			min, max = p.Price, p.Price
			seen = true
			continue
		}
		if p.Price < min {
			min = p.Price
		}
		if p.Price > max {
			max = p.Price
		}
	}

	if !seen || min <= 0 {
		return 0
	}
	return ((max - min) / min) * 100
}
