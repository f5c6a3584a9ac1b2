// Package mstrike implements the MStrike spike-detection strategy: it
// watches a smoothed-bid reference for a rapid drop, tracks the trough of
// the resulting strike, and emits buy/sell signals around it.
package mstrike

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moonspike/core/internal/deltas"
	"github.com/moonspike/core/internal/market"
)

// Direction gates which side of the market MStrike is allowed to act on.
type Direction int

const (
	Both Direction = iota
	OnlyLong
	OnlyShort
)

// Config holds every MStrike tunable. All fields are plain values; there is
// no environment or file loading here, that is the driver's job.
type Config struct {
	Depth    float64 // strike depth threshold in %, e.g. 10.0
	Volume   float64 // minimum strike volume
	BuyDelay uint64  // ms; driver schedules the buy after this delay

	BuyLevel    float64 // % of depth used to place the buy
	BuyRelative bool    // true: relative to depth, false: relative to price_before_strike
	SellLevel   float64 // % of depth used to place the sell
	SellAdjust  float64

	AddHourlyDelta float64
	Add15MinDelta  float64
	AddMarketDelta float64
	AddBTCDelta    float64

	Direction Direction

	WaitDip        bool
	WaitDipTimeout uint64 // ms, capped at 10000 by convention

	OrderSize     float64
	UseStopLoss   bool // TODO: stop-loss behavior is unimplemented, flag only
	UseTrailing   bool // TODO: trailing-stop behavior is unimplemented, flag only
	UseTakeProfit bool // TODO: take-profit behavior is unimplemented, flag only
}

// DefaultConfig returns the default tunables for this strategy.
func DefaultConfig() Config {
	return Config{
		Depth:          10.0,
		Volume:         0.0,
		BuyDelay:       0,
		BuyLevel:       0.0,
		BuyRelative:    true,
		SellLevel:      80.0,
		SellAdjust:     0.0,
		AddHourlyDelta: 0.0,
		Add15MinDelta:  0.0,
		AddMarketDelta: 0.0,
		AddBTCDelta:    0.0,
		Direction:      Both,
		WaitDip:        false,
		WaitDipTimeout: 10000,
		OrderSize:      100.0,
	}
}

const bidHistoryCap = 10
const emaPeriod = 4

// bidSample is a single (timestamp, best_bid) observation.
type bidSample struct {
	timestamp int64 // unix nanos, monotonic per symbol
	bid       float64
}

// State is the strategy's mutable state, owned by a single goroutine.
type State struct {
	lastBidEMA    float64
	hasLastBidEMA bool
	bidHistory    []bidSample

	minPriceDuringStrike float64
	hasMinPrice          bool
	strikeStartTime      int64
	strikeVolume         float64

	priceBeforeStrike float64
	hasPriceBefore    bool

	activeOrderID string
	buyPrice      float64
	hasBuyPrice   bool
	positionSize  float64

	deltaHourly float64
	delta15Min  float64
	deltaMarket float64
	deltaBTC    float64

	waitingForDipReversal bool
	dipWaitStart          int64
	lastPriceBeforeDip    float64
}

// SignalKind discriminates the MStrikeSignal tagged union.
type SignalKind int

const (
	NoAction SignalKind = iota
	DetectStrike
	PlaceBuy
	PlaceSell
	CancelOrder
)

// Signal is the flattened rendering of the Rust MStrikeSignal enum: a
// discriminant plus the superset of payload fields relevant to that kind.
type Signal struct {
	Kind SignalKind

	Depth    float64
	Volume   float64
	MinPrice float64

	Price  float64
	Size   float64
	Reason string

	OrderID string
}

// Strategy runs the MStrike state machine for one symbol.
type Strategy struct {
	config Config
	state  State
	logger zerolog.Logger
}

// New builds a Strategy from config.
func New(config Config, logger zerolog.Logger) *Strategy {
	return &Strategy{
		config: config,
		logger: logger.With().Str("component", "MStrikeStrategy").Logger(),
	}
}

// OnTick is the single entry point driving the state machine forward one
// tick. It must be called with non-decreasing timestamps per symbol.
func (s *Strategy) OnTick(tick market.TradeTick, d deltas.Deltas) Signal {
	now := tick.Timestamp.UnixNano()
	currentBid := tick.BestBidOr(tick.Price)

	s.updateDeltas(d)
	s.updateBidHistory(now, currentBid)
	// LastBidEMA must be recomputed before the detection check uses it
	// (LastBidEMA both seeds price_before_strike and gates the Idle->Tracking transition, so it must be refreshed first).
	s.updateLastBidEMA()

	if s.state.hasBuyPrice {
		return s.managePosition(tick)
	}

	if s.state.waitingForDipReversal {
		return s.checkDipReversal(tick)
	}

	if signal, ok := s.detectStrike(tick); ok {
		return signal
	}

	return Signal{Kind: NoAction}
}

func (s *Strategy) updateDeltas(d deltas.Deltas) {
	s.state.deltaHourly = d.DeltaHourly
	s.state.delta15Min = d.Delta15Min
	s.state.deltaMarket = d.DeltaMarket
	s.state.deltaBTC = d.DeltaBTC
}

func (s *Strategy) updateBidHistory(now int64, bid float64) {
	s.state.bidHistory = append(s.state.bidHistory, bidSample{timestamp: now, bid: bid})
	if len(s.state.bidHistory) > bidHistoryCap {
		s.state.bidHistory = s.state.bidHistory[1:]
	}
}

// updateLastBidEMA applies the asymmetric LastBidEMA update rule: a normal
// EMA(4) on the rise, but a hard snap to the second-most-recent bid on any
// decline, so the reference tracks drops aggressively.
func (s *Strategy) updateLastBidEMA() {
	if len(s.state.bidHistory) < emaPeriod {
		return
	}

	n := len(s.state.bidHistory)
	prevBid := s.state.bidHistory[n-2].bid

	multiplier := 2.0 / (float64(emaPeriod) + 1.0)
	recent := s.state.bidHistory[n-emaPeriod:]

	ema := recent[0].bid
	for _, sample := range recent[1:] {
		ema = (sample.bid * multiplier) + (ema * (1.0 - multiplier))
	}

	if s.state.hasLastBidEMA && prevBid < s.state.lastBidEMA {
		s.state.lastBidEMA = prevBid
	} else {
		s.state.lastBidEMA = ema
	}
	s.state.hasLastBidEMA = true
}

func (s *Strategy) detectStrike(tick market.TradeTick) (Signal, bool) {
	if !s.state.hasLastBidEMA {
		return Signal{}, false
	}

	switch s.config.Direction {
	case OnlyShort:
		return s.detectStrikeShort(tick)
	default:
		return s.detectStrikeLong(tick)
	}
}

func (s *Strategy) detectStrikeLong(tick market.TradeTick) (Signal, bool) {
	now := tick.Timestamp.UnixNano()
	currentPrice := tick.Price
	lastBidEMA := s.state.lastBidEMA

	effectiveDepth := s.calculateEffectiveDepth()

	if !s.state.hasMinPrice {
		if currentPrice < lastBidEMA {
			s.state.strikeStartTime = now
			s.state.minPriceDuringStrike = currentPrice
			s.state.hasMinPrice = true
			s.state.priceBeforeStrike = lastBidEMA
			s.state.hasPriceBefore = true
			s.state.strikeVolume = tick.Volume
		}
		return Signal{}, false
	}

	if currentPrice < s.state.minPriceDuringStrike {
		s.state.minPriceDuringStrike = currentPrice
		s.state.strikeVolume += tick.Volume
	}

	minPrice := s.state.minPriceDuringStrike
	priceBefore := s.state.priceBeforeStrike

	depth := ((priceBefore - minPrice) / priceBefore) * 100.0

	if depth < effectiveDepth || s.state.strikeVolume < s.config.Volume {
		return Signal{}, false
	}

	detectSignal := Signal{Kind: DetectStrike, Depth: depth, Volume: s.state.strikeVolume, MinPrice: minPrice}

	if s.config.BuyDelay > 0 {
		return detectSignal, true
	}

	if s.config.WaitDip {
		s.state.waitingForDipReversal = true
		s.state.dipWaitStart = now
		s.state.lastPriceBeforeDip = currentPrice
		return detectSignal, true
	}

	return s.placeBuyOrder(minPrice, depth), true
}

// detectStrikeShort is the OnlyShort mirror of detectStrikeLong:
// a strike is a rapid rise above LastBidEMA, the trough becomes a peak, and
// the buy/sell formulas mirror around that peak instead of a trough.
func (s *Strategy) detectStrikeShort(tick market.TradeTick) (Signal, bool) {
	now := tick.Timestamp.UnixNano()
	currentPrice := tick.Price
	lastBidEMA := s.state.lastBidEMA

	effectiveDepth := s.calculateEffectiveDepth()

	if !s.state.hasMinPrice {
		if currentPrice > lastBidEMA {
			s.state.strikeStartTime = now
			s.state.minPriceDuringStrike = currentPrice // peak, not trough, in the mirror
			s.state.hasMinPrice = true
			s.state.priceBeforeStrike = lastBidEMA
			s.state.hasPriceBefore = true
			s.state.strikeVolume = tick.Volume
		}
		return Signal{}, false
	}

	if currentPrice > s.state.minPriceDuringStrike {
		s.state.minPriceDuringStrike = currentPrice
		s.state.strikeVolume += tick.Volume
	}

	maxPrice := s.state.minPriceDuringStrike
	priceBefore := s.state.priceBeforeStrike

	depth := ((maxPrice - priceBefore) / priceBefore) * 100.0

	if depth < effectiveDepth || s.state.strikeVolume < s.config.Volume {
		return Signal{}, false
	}

	detectSignal := Signal{Kind: DetectStrike, Depth: depth, Volume: s.state.strikeVolume, MinPrice: maxPrice}

	if s.config.BuyDelay > 0 {
		return detectSignal, true
	}

	if s.config.WaitDip {
		s.state.waitingForDipReversal = true
		s.state.dipWaitStart = now
		s.state.lastPriceBeforeDip = currentPrice
		return detectSignal, true
	}

	return s.placeSellOrderShort(maxPrice, depth), true
}

func (s *Strategy) calculateEffectiveDepth() float64 {
	depth := s.config.Depth
	depth += s.state.deltaHourly * s.config.AddHourlyDelta
	depth += s.state.delta15Min * s.config.Add15MinDelta
	depth += s.state.deltaMarket * s.config.AddMarketDelta
	depth += s.state.deltaBTC * s.config.AddBTCDelta

	if depth < 0.1 {
		return 0.1
	}
	return depth
}

func (s *Strategy) placeBuyOrder(minPrice, depth float64) Signal {
	buyPrice := s.calculateBuyPrice(minPrice, depth)

	s.state.buyPrice = buyPrice
	s.state.hasBuyPrice = true
	s.state.positionSize = s.config.OrderSize

	return Signal{
		Kind:   PlaceBuy,
		Price:  buyPrice,
		Size:   s.config.OrderSize,
		Reason: fmt.Sprintf("MStrike detected: depth=%.2f%%, volume=%.2f", depth, s.state.strikeVolume),
	}
}

func (s *Strategy) calculateBuyPrice(minPrice, depth float64) float64 {
	priceBefore := s.state.priceBeforeStrike

	if s.config.BuyRelative {
		if s.config.BuyLevel == 0.0 {
			return minPrice
		}
		levelFromMin := depth * (s.config.BuyLevel / 100.0)
		return minPrice * (1.0 + levelFromMin/100.0)
	}
	return priceBefore * (1.0 - s.config.BuyLevel/100.0)
}

// placeSellOrderShort mirrors placeBuyOrder around the peak for the
// OnlyShort direction: it opens the short by emitting a PlaceSell at the
// mirrored entry price.
func (s *Strategy) placeSellOrderShort(maxPrice, depth float64) Signal {
	sellPrice := s.calculateSellPriceShort(maxPrice, depth)

	s.state.buyPrice = sellPrice
	s.state.hasBuyPrice = true
	s.state.positionSize = s.config.OrderSize

	return Signal{
		Kind:   PlaceSell,
		Price:  sellPrice,
		Size:   s.config.OrderSize,
		Reason: fmt.Sprintf("MStrike short detected: depth=%.2f%%, volume=%.2f", depth, s.state.strikeVolume),
	}
}

func (s *Strategy) calculateSellPriceShort(maxPrice, depth float64) float64 {
	priceBefore := s.state.priceBeforeStrike

	if s.config.BuyRelative {
		if s.config.BuyLevel == 0.0 {
			return maxPrice
		}
		levelFromMax := depth * (s.config.BuyLevel / 100.0)
		return maxPrice * (1.0 - levelFromMax/100.0)
	}
	return priceBefore * (1.0 + s.config.BuyLevel/100.0)
}

func (s *Strategy) calculateSellPrice(minPrice, depth float64) float64 {
	return minPrice * (1.0 + (depth*s.config.SellLevel/100.0)/100.0)
}

func (s *Strategy) calculateBuyPriceBackShort(minPrice, depth float64) float64 {
	return minPrice * (1.0 - (depth*s.config.SellLevel/100.0)/100.0)
}

func (s *Strategy) checkDipReversal(tick market.TradeTick) Signal {
	now := tick.Timestamp.UnixNano()
	currentPrice := tick.Price

	elapsedMs := (now - s.state.dipWaitStart) / int64(1e6)
	if elapsedMs > int64(s.config.WaitDipTimeout) {
		s.resetStrikeState()
		return Signal{Kind: NoAction}
	}

	if s.config.Direction == OnlyShort {
		if currentPrice < s.state.lastPriceBeforeDip {
			s.state.waitingForDipReversal = false
			maxPrice := s.state.minPriceDuringStrike
			priceBefore := s.state.priceBeforeStrike
			depth := ((maxPrice - priceBefore) / priceBefore) * 100.0
			return s.placeSellOrderShort(maxPrice, depth)
		}
		return Signal{Kind: NoAction}
	}

	if currentPrice > s.state.lastPriceBeforeDip {
		s.state.waitingForDipReversal = false
		minPrice := s.state.minPriceDuringStrike
		priceBefore := s.state.priceBeforeStrike
		depth := ((priceBefore - minPrice) / priceBefore) * 100.0
		return s.placeBuyOrder(minPrice, depth)
	}

	return Signal{Kind: NoAction}
}

func (s *Strategy) managePosition(tick market.TradeTick) Signal {
	currentPrice := tick.Price
	minPrice := s.state.minPriceDuringStrike
	priceBefore := s.state.priceBeforeStrike

	if s.config.Direction == OnlyShort {
		depth := ((minPrice - priceBefore) / priceBefore) * 100.0
		buyBackPrice := s.calculateBuyPriceBackShort(minPrice, depth)
		if currentPrice <= buyBackPrice {
			return Signal{Kind: PlaceBuy, Price: buyBackPrice, Size: s.state.positionSize}
		}
		return Signal{Kind: NoAction}
	}

	depth := ((priceBefore - minPrice) / priceBefore) * 100.0
	sellPrice := s.calculateSellPrice(minPrice, depth)

	if currentPrice >= sellPrice {
		return Signal{Kind: PlaceSell, Price: sellPrice, Size: s.state.positionSize}
	}

	// use_stop_loss / use_trailing / use_take_profit are carried as inert
	// config flags; their behavior is out of scope (stop-loss/trailing/take-profit are flags only, no behavior).
	return Signal{Kind: NoAction}
}

func (s *Strategy) resetStrikeState() {
	s.state.hasMinPrice = false
	s.state.minPriceDuringStrike = 0
	s.state.strikeStartTime = 0
	s.state.strikeVolume = 0
	s.state.hasPriceBefore = false
	s.state.priceBeforeStrike = 0
	s.state.waitingForDipReversal = false
	s.state.dipWaitStart = 0
	s.state.lastPriceBeforeDip = 0
}

// OnBuyFilled transitions the strategy into Positioned after an external
// fill. orderID, when empty, is generated.
func (s *Strategy) OnBuyFilled(price, size float64, orderID string) {
	if orderID == "" {
		orderID = uuid.New().String()
	}
	s.state.buyPrice = price
	s.state.hasBuyPrice = true
	s.state.positionSize = size
	s.state.activeOrderID = orderID
}

// OnSellFilled resets the strategy back to Idle.
func (s *Strategy) OnSellFilled() {
	s.state.hasBuyPrice = false
	s.state.buyPrice = 0
	s.state.positionSize = 0
	s.state.activeOrderID = ""
	s.resetStrikeState()
}
