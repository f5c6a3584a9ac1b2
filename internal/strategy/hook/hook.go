// Package hook implements the Hook corridor strategy: it detects a rapid
// price swing in a short rolling window and, instead of a fixed buy price,
// maintains a movable buy order inside a price corridor that follows the
// market until filled.
package hook

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/moonspike/core/internal/deltas"
	"github.com/moonspike/core/internal/market"
)

// Direction records which side of the market Hook is configured for. OnTick
// does not consult it: only the drop (long) path is implemented.
type Direction int

const (
	Long Direction = iota
	Short
	Both
)

// InterpolateMode selects one of the five corridor formulas applied by
// calculateCorridor.
type InterpolateMode int

const (
	InterpolateDefault InterpolateMode = iota // 0: from strike top to bottom
	InterpolateRollback
	InterpolateInitialPriority
	InterpolateCurrentRelative
	InterpolateRollbackDepth
)

// Config holds every Hook tunable.
type Config struct {
	TimeFrameMs     int64 // window length in ms, default 2000
	DetectDepth     float64
	DetectDepthMax  float64 // 0 disables the upper bound

	InitialPrice  float64 // % into [min, max] where the initial buy sits
	PriceDistance float64 // corridor half-width as % of depth
	PriceRollBack float64 // % retrace used for rollback_price
	PriceRollBackMax float64
	RollBackWaitMs   uint64

	AntiPump bool    // TODO: reserved, not evaluated
	DropMin  float64 // TODO: reserved, not evaluated
	DropMax  float64 // TODO: reserved, not evaluated

	Direction      Direction
	OppositeOrder  bool

	Interpolate InterpolateMode

	BuyOrderReduceMs uint64
	MinReducedSize   float64

	SellLevel float64
	SellFixed bool

	ReplaceDelaySec   float64
	RaiseWaitSec      float64
	PartFilledDelayMs uint64

	RepeatAfterSell bool
	RepeatIfProfit  float64

	OrderSize   float64
	BuyModifier float64 // TODO: corridor-width modifier, mechanism unspecified
	UseStopLoss bool    // TODO: unimplemented, flag only
	UseTrailing bool    // TODO: unimplemented, flag only
}

// DefaultConfig returns the default tunables for this strategy.
func DefaultConfig() Config {
	return Config{
		TimeFrameMs:       2000,
		DetectDepth:       5.0,
		DetectDepthMax:    0.0,
		InitialPrice:      25.0,
		PriceDistance:     10.0,
		PriceRollBack:     33.0,
		PriceRollBackMax:  0.0,
		RollBackWaitMs:    100,
		AntiPump:          false,
		DropMin:           0.0,
		DropMax:           0.0,
		Direction:         Long,
		OppositeOrder:     false,
		Interpolate:       InterpolateDefault,
		BuyOrderReduceMs:  100,
		MinReducedSize:    0.0,
		SellLevel:         75.0,
		SellFixed:         false,
		ReplaceDelaySec:   0.0,
		RaiseWaitSec:      0.0,
		PartFilledDelayMs: 0,
		RepeatAfterSell:   false,
		RepeatIfProfit:    0.0,
		OrderSize:         100.0,
		BuyModifier:       -3.0,
		UseStopLoss:       false,
		UseTrailing:       false,
	}
}

type windowSample struct {
	timestamp int64
	value     float64
}

type repeatOrder struct {
	buyPrice  float64
	sellPrice float64
	placedAt  int64
}

// State is the strategy's mutable state, owned by a single goroutine.
type State struct {
	priceWindow  []windowSample
	volumeWindow []windowSample

	strikeDetected       bool
	strikeDetectionTime  int64
	hasDetectionTime     bool
	strikeDepth          float64
	strikeMinPrice       float64
	strikeMaxPrice       float64
	strikeRollbackPrice  float64
	hasRollbackPrice     bool

	deltasAtDetection deltas.Deltas
	hasDeltasAtDetection bool

	corridorUpper    float64
	corridorLower    float64
	initialBuyPrice  float64
	hasCorridor      bool

	activeOrderID string
	buyPrice      float64
	hasBuyPrice   bool
	positionSize  float64

	repeatOrders []repeatOrder
}

// SignalKind discriminates the HookSignal tagged union.
type SignalKind int

const (
	NoAction SignalKind = iota
	DetectHook
	PlaceBuy
	ReplaceBuy
	PlaceSell
	CancelOrder
)

// Signal is the flattened rendering of the Rust HookSignal enum.
type Signal struct {
	Kind SignalKind

	Depth    float64
	MinPrice float64
	MaxPrice float64

	Price    float64
	Size     float64
	Reason   string
	NewPrice float64

	OrderID string
}

// Strategy runs the Hook state machine for one symbol.
type Strategy struct {
	config Config
	state  State
	logger zerolog.Logger
}

// New builds a Strategy from config.
func New(config Config, logger zerolog.Logger) *Strategy {
	return &Strategy{
		config: config,
		logger: logger.With().Str("component", "HookStrategy").Logger(),
	}
}

// OnTick is the single entry point driving the state machine forward one
// tick. It must be called with non-decreasing timestamps per symbol.
func (s *Strategy) OnTick(tick market.TradeTick, d deltas.Deltas) Signal {
	now := tick.Timestamp.UnixNano()

	s.updateWindow(now, tick.Price, tick.Volume)

	if s.state.hasBuyPrice {
		return s.managePosition(tick)
	}

	if s.state.activeOrderID != "" && s.state.hasCorridor {
		return s.manageCorridorOrder(tick)
	}

	if !s.state.strikeDetected || s.canDetectAgain(now) {
		if signal, ok := s.detectHook(tick, d); ok {
			return signal
		}
	}

	return Signal{Kind: NoAction}
}

func (s *Strategy) updateWindow(now int64, price, volume float64) {
	s.state.priceWindow = append(s.state.priceWindow, windowSample{timestamp: now, value: price})
	s.state.volumeWindow = append(s.state.volumeWindow, windowSample{timestamp: now, value: volume})

	cutoff := now - s.config.TimeFrameMs*int64(1e6)
	s.state.priceWindow = pruneBefore(s.state.priceWindow, cutoff)
	s.state.volumeWindow = pruneBefore(s.state.volumeWindow, cutoff)
}

func pruneBefore(window []windowSample, cutoff int64) []windowSample {
	i := 0
	for i < len(window) && window[i].timestamp < cutoff {
		i++
	}
	if i == 0 {
		return window
	}
	return window[i:]
}

func (s *Strategy) detectHook(tick market.TradeTick, d deltas.Deltas) (Signal, bool) {
	if len(s.state.priceWindow) < 2 {
		return Signal{}, false
	}

	maxPrice := s.state.priceWindow[0].value
	minPrice := s.state.priceWindow[0].value
	for _, sample := range s.state.priceWindow[1:] {
		if sample.value > maxPrice {
			maxPrice = sample.value
		}
		if sample.value < minPrice {
			minPrice = sample.value
		}
	}

	depth := ((maxPrice - minPrice) / maxPrice) * 100.0

	if depth < s.config.DetectDepth {
		return Signal{}, false
	}
	if s.config.DetectDepthMax > 0.0 && depth > s.config.DetectDepthMax {
		return Signal{}, false
	}

	// hook_anti_pump / hook_drop_min / hook_drop_max remain declarative
	// no-op flags, preserved but not evaluated.

	now := tick.Timestamp.UnixNano()

	s.state.strikeDetected = true
	s.state.strikeDetectionTime = now
	s.state.hasDetectionTime = true
	s.state.strikeDepth = depth
	s.state.strikeMinPrice = minPrice
	s.state.strikeMaxPrice = maxPrice
	s.state.deltasAtDetection = d
	s.state.hasDeltasAtDetection = true

	rollbackPrice := maxPrice - (depth*s.config.PriceRollBack/100.0)*(maxPrice/100.0)
	s.state.strikeRollbackPrice = rollbackPrice
	s.state.hasRollbackPrice = true

	s.calculateCorridor()

	orderSize := s.calculateOrderSize()
	if orderSize < s.config.MinReducedSize {
		return Signal{}, false
	}

	buyPrice := s.state.initialBuyPrice

	// The buy order is live from here until OnBuyFilled; OnTick tracks it
	// against the corridor meanwhile.
	s.state.activeOrderID = uuid.New().String()

	return Signal{
		Kind:    PlaceBuy,
		Price:   buyPrice,
		Size:    orderSize,
		Reason:  fmt.Sprintf("Hook detected: depth=%.2f%%", depth),
		OrderID: s.state.activeOrderID,
	}, true
}

// calculateCorridor computes upper/lower/initial for the configured
// InterpolateMode.
func (s *Strategy) calculateCorridor() {
	depth := s.state.strikeDepth
	maxPrice := s.state.strikeMaxPrice
	minPrice := s.state.strikeMinPrice
	rollback := maxPrice
	if s.state.hasRollbackPrice {
		rollback = s.state.strikeRollbackPrice
	}

	d := depth * s.config.PriceDistance / 100.0

	var upper, lower, initial float64

	switch s.config.Interpolate {
	case InterpolateRollback:
		upper = rollback
		lower = minPrice
		initial = rollback - (rollback-minPrice)*(s.config.InitialPrice/100.0)
	case InterpolateInitialPriority:
		initial = minPrice + (maxPrice-minPrice)*(s.config.InitialPrice/100.0)
		upper = initial + d*(maxPrice/100.0)
		lower = initial - d*(maxPrice/100.0)
	case InterpolateCurrentRelative:
		current := maxPrice
		if len(s.state.priceWindow) > 0 {
			current = s.state.priceWindow[len(s.state.priceWindow)-1].value
		}
		upper = current * (1.0 + d/100.0)
		lower = current * (1.0 - d/100.0)
		initial = current * (1.0 - s.config.InitialPrice/100.0)
	case InterpolateRollbackDepth:
		initial = minPrice + (rollback-minPrice)*(s.config.InitialPrice/100.0)
		upper = max(initial, (initial+rollback)/2.0)
		lower = min(initial, initial-d*(maxPrice/100.0))
	default: // InterpolateDefault (mode 0)
		upper = maxPrice
		lower = minPrice
		initial = minPrice + (maxPrice-minPrice)*(s.config.InitialPrice/100.0)
	}

	// buy_modifier corridor-width adjustment is a reserved no-op per
	// mechanism left unspecified here too.

	s.state.corridorUpper = upper
	s.state.corridorLower = lower
	s.state.initialBuyPrice = initial
	s.state.hasCorridor = true
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (s *Strategy) calculateOrderSize() float64 {
	if s.config.BuyOrderReduceMs == 0 {
		return s.config.OrderSize
	}

	var totalVolume float64
	for _, sample := range s.state.volumeWindow {
		totalVolume += sample.value
	}

	timeWindowMs := float64(s.config.TimeFrameMs)
	if timeWindowMs <= 0 {
		return s.config.OrderSize
	}

	avgVolumePerInterval := (totalVolume / timeWindowMs) * float64(s.config.BuyOrderReduceMs)

	if s.config.OrderSize < avgVolumePerInterval {
		return s.config.OrderSize
	}
	return avgVolumePerInterval
}

func (s *Strategy) manageCorridorOrder(tick market.TradeTick) Signal {
	currentPrice := tick.Price
	upper := s.state.corridorUpper
	lower := s.state.corridorLower

	if currentPrice <= lower {
		return Signal{Kind: ReplaceBuy, NewPrice: lower * 0.99}
	}
	if currentPrice >= upper {
		return Signal{Kind: ReplaceBuy, NewPrice: upper * 0.99}
	}

	return Signal{Kind: NoAction}
}

func (s *Strategy) managePosition(tick market.TradeTick) Signal {
	currentPrice := tick.Price
	buyPrice := s.state.buyPrice
	depth := s.state.strikeDepth

	var sellPrice float64
	if s.config.SellFixed {
		minPrice := s.state.strikeMinPrice
		sellPrice = minPrice * (1.0 + (depth*s.config.SellLevel/100.0)/100.0)
	} else {
		sellPrice = buyPrice * (1.0 + (depth*s.config.SellLevel/100.0)/100.0)
	}

	if currentPrice >= sellPrice {
		return Signal{Kind: PlaceSell, Price: sellPrice, Size: s.state.positionSize}
	}

	return Signal{Kind: NoAction}
}

func (s *Strategy) canDetectAgain(now int64) bool {
	if !s.state.hasDetectionTime {
		return true
	}
	elapsedMs := (now - s.state.strikeDetectionTime) / int64(1e6)
	return elapsedMs >= s.config.TimeFrameMs
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

// OnSellFilled clears the active position. The corridor is left intact
// (not reset); the next detection recomputes it.
func (s *Strategy) OnSellFilled(now int64) {
	if s.config.RepeatAfterSell {
		s.state.repeatOrders = append(s.state.repeatOrders, repeatOrder{
			buyPrice: s.state.buyPrice,
			placedAt: now,
		})
	}

	s.state.hasBuyPrice = false
	s.state.buyPrice = 0
	s.state.positionSize = 0
	s.state.activeOrderID = ""
}
