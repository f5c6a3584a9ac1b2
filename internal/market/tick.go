// Package market defines the immutable market data value objects the
// detection core consumes. It never opens a socket and never talks to an
// exchange — a driver outside this module is responsible for producing
// TradeTick values from whatever transport it uses.
package market

import "time"

// TradeSide is the aggressor side of an executed trade.
type TradeSide int

const (
	Buy TradeSide = iota
	Sell
)

func (s TradeSide) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// TradeTick is a single executed trade observation. All fields are set at
// construction time and never mutated afterwards.
type TradeTick struct {
	Timestamp time.Time
	Symbol    string
	Price     float64
	Volume    float64
	Side      TradeSide
	TradeID   string

	// BestBid and BestAsk are optional top-of-book snapshots taken at the
	// same instant as the trade. HasBid / HasAsk report whether each one is
	// available — see BestBidOr / BestAskOr.
	BestBid float64
	BestAsk float64
	HasBid  bool
	HasAsk  bool
}

// NewTradeTick builds a TradeTick from required fields. Best bid/ask are
// attached afterwards with WithBid/WithAsk since they are optional.
func NewTradeTick(ts time.Time, symbol string, price, volume float64, side TradeSide, tradeID string) TradeTick {
	return TradeTick{
		Timestamp: ts,
		Symbol:    symbol,
		Price:     price,
		Volume:    volume,
		Side:      side,
		TradeID:   tradeID,
	}
}

// WithBid attaches a best-bid snapshot and returns the updated tick.
func (t TradeTick) WithBid(bid float64) TradeTick {
	t.BestBid = bid
	t.HasBid = true
	return t
}

// WithAsk attaches a best-ask snapshot and returns the updated tick.
func (t TradeTick) WithAsk(ask float64) TradeTick {
	t.BestAsk = ask
	t.HasAsk = true
	return t
}

// BestBidOr returns BestBid if present, otherwise fallback.
func (t TradeTick) BestBidOr(fallback float64) float64 {
	if t.HasBid {
		return t.BestBid
	}
	return fallback
}

// BestAskOr returns BestAsk if present, otherwise fallback.
func (t TradeTick) BestAskOr(fallback float64) float64 {
	if t.HasAsk {
		return t.BestAsk
	}
	return fallback
}

// PricePoint is a single (timestamp, price) sample retained by a rolling
// window. Used internally by DeltaCalculator and the strategy windows.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}
