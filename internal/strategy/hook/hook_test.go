package hook

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/moonspike/core/internal/deltas"
	"github.com/moonspike/core/internal/market"
)

func newTestStrategy(cfg Config) *Strategy {
	return New(cfg, zerolog.Nop())
}

func tick(ts time.Time, price float64) market.TradeTick {
	return market.NewTradeTick(ts, "ETH_USDT", price, 1, market.Sell, "1")
}

func zeroDeltas() deltas.Deltas { return deltas.Deltas{} }

// S8 - Hook detect: depth exactly at threshold produces PlaceBuy or
// NoAction, never anything else.
func TestOnTickDetectDepthAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectDepth = 5.0
	cfg.TimeFrameMs = 2000
	s := newTestStrategy(cfg)

	now := time.Now()
	sig1 := s.OnTick(tick(now, 100), zeroDeltas())
	if sig1.Kind != NoAction {
		t.Fatalf("first tick kind = %v, want NoAction", sig1.Kind)
	}

	sig2 := s.OnTick(tick(now.Add(500*time.Millisecond), 95), zeroDeltas())
	if sig2.Kind != NoAction && sig2.Kind != PlaceBuy {
		t.Fatalf("second tick kind = %v, want NoAction or PlaceBuy", sig2.Kind)
	}
}

func TestDetectHookRequiresAtLeastTwoPoints(t *testing.T) {
	s := newTestStrategy(DefaultConfig())
	sig := s.OnTick(tick(time.Now(), 100), zeroDeltas())
	if sig.Kind != NoAction {
		t.Fatalf("single point must never detect, got %v", sig.Kind)
	}
}

func TestDetectHookRespectsMaxDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectDepth = 1.0
	cfg.DetectDepthMax = 3.0
	s := newTestStrategy(cfg)

	now := time.Now()
	s.OnTick(tick(now, 100), zeroDeltas())
	sig := s.OnTick(tick(now.Add(time.Millisecond), 90), zeroDeltas()) // 10% depth exceeds max

	if sig.Kind == PlaceBuy {
		t.Fatal("depth exceeding hook_detect_depth_max must not fire a detection")
	}
}

func TestCorridorMode0MatchesStrikeBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolate = InterpolateDefault
	cfg.InitialPrice = 25
	s := newTestStrategy(cfg)

	s.state.strikeDepth = 10
	s.state.strikeMaxPrice = 100
	s.state.strikeMinPrice = 90

	s.calculateCorridor()

	if s.state.corridorUpper != 100 {
		t.Fatalf("upper = %v, want 100", s.state.corridorUpper)
	}
	if s.state.corridorLower != 90 {
		t.Fatalf("lower = %v, want 90", s.state.corridorLower)
	}
	wantInitial := 90 + (100-90)*0.25
	if s.state.initialBuyPrice != wantInitial {
		t.Fatalf("initial = %v, want %v", s.state.initialBuyPrice, wantInitial)
	}
}

func TestCorridorMode1Rollback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolate = InterpolateRollback
	cfg.InitialPrice = 25
	s := newTestStrategy(cfg)

	s.state.strikeDepth = 10
	s.state.strikeMaxPrice = 100
	s.state.strikeMinPrice = 90
	s.state.strikeRollbackPrice = 95
	s.state.hasRollbackPrice = true

	s.calculateCorridor()

	if s.state.corridorUpper != 95 {
		t.Fatalf("upper = %v, want 95 (rollback price)", s.state.corridorUpper)
	}
	if s.state.corridorLower != 90 {
		t.Fatalf("lower = %v, want 90 (strike min)", s.state.corridorLower)
	}
	wantInitial := 95 - (95-90)*0.25
	if s.state.initialBuyPrice != wantInitial {
		t.Fatalf("initial = %v, want %v", s.state.initialBuyPrice, wantInitial)
	}
}

func TestCorridorMode2InitialPriority(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolate = InterpolateInitialPriority
	cfg.InitialPrice = 25
	cfg.PriceDistance = 10
	s := newTestStrategy(cfg)

	s.state.strikeDepth = 10
	s.state.strikeMaxPrice = 100
	s.state.strikeMinPrice = 90

	s.calculateCorridor()

	wantInitial := 90 + (100-90)*0.25
	d := 10.0 * 10.0 / 100.0
	wantUpper := wantInitial + d*(100.0/100.0)
	wantLower := wantInitial - d*(100.0/100.0)

	if s.state.initialBuyPrice != wantInitial {
		t.Fatalf("initial = %v, want %v", s.state.initialBuyPrice, wantInitial)
	}
	if s.state.corridorUpper != wantUpper {
		t.Fatalf("upper = %v, want %v", s.state.corridorUpper, wantUpper)
	}
	if s.state.corridorLower != wantLower {
		t.Fatalf("lower = %v, want %v", s.state.corridorLower, wantLower)
	}
}

func TestCorridorMode3CurrentRelative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolate = InterpolateCurrentRelative
	cfg.InitialPrice = 25
	cfg.PriceDistance = 10
	s := newTestStrategy(cfg)

	s.state.strikeDepth = 10
	s.state.strikeMaxPrice = 100
	s.state.strikeMinPrice = 90
	s.state.priceWindow = []windowSample{{timestamp: 1, value: 95}}

	s.calculateCorridor()

	current := 95.0
	d := 10.0 * 10.0 / 100.0
	wantUpper := current * (1.0 + d/100.0)
	wantLower := current * (1.0 - d/100.0)
	wantInitial := current * (1.0 - 0.25)

	if s.state.corridorUpper != wantUpper {
		t.Fatalf("upper = %v, want %v", s.state.corridorUpper, wantUpper)
	}
	if s.state.corridorLower != wantLower {
		t.Fatalf("lower = %v, want %v", s.state.corridorLower, wantLower)
	}
	if s.state.initialBuyPrice != wantInitial {
		t.Fatalf("initial = %v, want %v", s.state.initialBuyPrice, wantInitial)
	}
}

func TestCorridorMode4RollbackDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interpolate = InterpolateRollbackDepth
	cfg.InitialPrice = 25
	cfg.PriceDistance = 10
	s := newTestStrategy(cfg)

	s.state.strikeDepth = 10
	s.state.strikeMaxPrice = 100
	s.state.strikeMinPrice = 90
	s.state.strikeRollbackPrice = 95
	s.state.hasRollbackPrice = true

	s.calculateCorridor()

	wantInitial := 90 + (95-90)*0.25
	d := 10.0 * 10.0 / 100.0
	wantUpper := max(wantInitial, (wantInitial+95)/2.0)
	wantLower := min(wantInitial, wantInitial-d*(100.0/100.0))

	if s.state.initialBuyPrice != wantInitial {
		t.Fatalf("initial = %v, want %v", s.state.initialBuyPrice, wantInitial)
	}
	if s.state.corridorUpper != wantUpper {
		t.Fatalf("upper = %v, want %v", s.state.corridorUpper, wantUpper)
	}
	if s.state.corridorLower != wantLower {
		t.Fatalf("lower = %v, want %v", s.state.corridorLower, wantLower)
	}
}

// Invariant 9: while the corridor is set and price is strictly between
// lower and upper, no ReplaceBuy is emitted.
func TestNoReplaceBuyWithinCorridor(t *testing.T) {
	s := newTestStrategy(DefaultConfig())
	s.state.hasCorridor = true
	s.state.corridorUpper = 110
	s.state.corridorLower = 90
	s.state.activeOrderID = "order-1"

	sig := s.manageCorridorOrder(tick(time.Now(), 100))
	if sig.Kind != NoAction {
		t.Fatalf("price within corridor must not replace the order, got %v", sig.Kind)
	}
}

func TestReplaceBuyBelowLowerBound(t *testing.T) {
	s := newTestStrategy(DefaultConfig())
	s.state.hasCorridor = true
	s.state.corridorUpper = 110
	s.state.corridorLower = 90

	sig := s.manageCorridorOrder(tick(time.Now(), 85))
	if sig.Kind != ReplaceBuy {
		t.Fatalf("price below lower bound must replace the order, got %v", sig.Kind)
	}
	want := 90 * 0.99
	if sig.NewPrice != want {
		t.Fatalf("new price = %v, want %v", sig.NewPrice, want)
	}
}

func TestReplaceBuyAboveUpperBound(t *testing.T) {
	s := newTestStrategy(DefaultConfig())
	s.state.hasCorridor = true
	s.state.corridorUpper = 110
	s.state.corridorLower = 90

	sig := s.manageCorridorOrder(tick(time.Now(), 115))
	if sig.Kind != ReplaceBuy {
		t.Fatalf("price above upper bound must replace the order, got %v", sig.Kind)
	}
	want := 110 * 0.99
	if sig.NewPrice != want {
		t.Fatalf("new price = %v, want %v", sig.NewPrice, want)
	}
}

func TestCalculateOrderSizeCapsAtAverageVolume(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OrderSize = 1000
	cfg.TimeFrameMs = 2000
	cfg.BuyOrderReduceMs = 100
	s := newTestStrategy(cfg)

	now := time.Now()
	s.updateWindow(now.UnixNano(), 100, 10)

	got := s.calculateOrderSize()
	want := (10.0 / 2000.0) * 100.0
	if got != want {
		t.Fatalf("order size = %v, want %v", got, want)
	}
}

func TestCalculateOrderSizeDisabledReturnsConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BuyOrderReduceMs = 0
	cfg.OrderSize = 42
	s := newTestStrategy(cfg)

	if got := s.calculateOrderSize(); got != 42 {
		t.Fatalf("order size = %v, want 42 when buy_order_reduce disabled", got)
	}
}

func TestManagePositionSellFixedUsesMinPrice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SellFixed = true
	cfg.SellLevel = 50
	s := newTestStrategy(cfg)

	s.state.buyPrice = 95
	s.state.hasBuyPrice = true
	s.state.strikeMinPrice = 90
	s.state.strikeDepth = 10
	s.state.positionSize = 1

	want := 90 * (1 + (10*50.0/100.0)/100.0)
	sig := s.managePosition(tick(time.Now(), want))
	if sig.Kind != PlaceSell {
		t.Fatalf("expected PlaceSell at target price, got %v", sig.Kind)
	}
	if sig.Price != want {
		t.Fatalf("sell price = %v, want %v", sig.Price, want)
	}
}

func TestCanDetectAgainGatesByTimeFrame(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TimeFrameMs = 2000
	s := newTestStrategy(cfg)

	now := time.Now().UnixNano()
	if !s.canDetectAgain(now) {
		t.Fatal("no prior detection means detection is always allowed")
	}

	s.state.hasDetectionTime = true
	s.state.strikeDetectionTime = now

	if s.canDetectAgain(now + int64(time.Second)) {
		t.Fatal("1s elapsed with a 2s time frame must not allow re-detection")
	}
	if !s.canDetectAgain(now + int64(3*time.Second)) {
		t.Fatal("3s elapsed with a 2s time frame must allow re-detection")
	}
}

func TestOnSellFilledKeepsCorridorLive(t *testing.T) {
	s := newTestStrategy(DefaultConfig())
	s.state.hasCorridor = true
	s.state.corridorUpper = 110
	s.state.corridorLower = 90
	s.OnBuyFilled(95, 10, "")

	s.OnSellFilled(time.Now().UnixNano())

	if s.state.hasBuyPrice {
		t.Fatal("expected position cleared after OnSellFilled")
	}
	if !s.state.hasCorridor {
		t.Fatal("corridor must remain live across a sell per the original semantics")
	}
}

func TestOnSellFilledRecordsRepeatOrderWhenConfigured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RepeatAfterSell = true
	s := newTestStrategy(cfg)
	s.OnBuyFilled(95, 10, "")

	s.OnSellFilled(time.Now().UnixNano())

	if len(s.state.repeatOrders) != 1 {
		t.Fatalf("expected 1 repeat order recorded, got %d", len(s.state.repeatOrders))
	}
	if s.state.repeatOrders[0].buyPrice != 95 {
		t.Fatalf("repeat order buy price = %v, want 95", s.state.repeatOrders[0].buyPrice)
	}
}
