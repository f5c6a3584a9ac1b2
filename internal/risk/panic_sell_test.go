package risk

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
)

func newTestPanicSellManager(cfg PanicSellConfig) *PanicSellManager {
	return NewPanicSellManager(cfg, zerolog.Nop())
}

func f64(v float64) *float64 { return &v }

// S1 – PanicSell basic.
func TestCalculatePanicPrice(t *testing.T) {
	m := newTestPanicSellManager(PanicSellConfig{
		Enabled:       true,
		DropToPercent: 1.02,
		SpreadPercent: 0.01,
	})

	got := m.CalculatePanicPrice(100)
	want := 100.98
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("CalculatePanicPrice = %v, want %v", got, want)
	}
}

// S2 – PanicSell on price drop.
func TestShouldPanicSellOnAutoDrop(t *testing.T) {
	m := newTestPanicSellManager(PanicSellConfig{
		Enabled:         true,
		DropToPercent:   1.02,
		SpreadPercent:   0.01,
		AutoPanicIfDrop: f64(5.0),
	})

	target, ok := m.ShouldPanicSell(100, 94, 0, false)
	if !ok {
		t.Fatal("expected panic sell to trigger on 6% drop")
	}
	if math.Abs(target-100.98) > 1e-9 {
		t.Fatalf("target = %v, want 100.98", target)
	}
}

// S3 – PanicSell on bid collapse.
func TestShouldPanicSellOnBidDrop(t *testing.T) {
	m := newTestPanicSellManager(PanicSellConfig{
		Enabled:         true,
		DropToPercent:   1.02,
		SpreadPercent:   0.01,
		PanicIfBidsDrop: f64(3.0),
	})

	target, ok := m.ShouldPanicSell(100, 100, 102, true)
	if !ok {
		t.Fatal("expected panic sell to trigger: best_bid 102 < threshold 103")
	}
	if math.Abs(target-100.98) > 1e-9 {
		t.Fatalf("target = %v, want 100.98", target)
	}
}

func TestShouldPanicSellDisabledAlwaysNone(t *testing.T) {
	m := newTestPanicSellManager(PanicSellConfig{
		Enabled:         false,
		DropToPercent:   1.02,
		SpreadPercent:   0.01,
		AutoPanicIfDrop: f64(5.0),
	})

	if _, ok := m.ShouldPanicSell(100, 50, 0, false); ok {
		t.Fatal("disabled manager must never trigger a panic sell")
	}
}

func TestShouldPanicSellNonPositiveBuyPrice(t *testing.T) {
	m := newTestPanicSellManager(PanicSellConfig{Enabled: true, AutoPanicIfDrop: f64(1.0)})
	if _, ok := m.ShouldPanicSell(0, -10, 0, false); ok {
		t.Fatal("buy_price <= 0 must never trigger a panic sell")
	}
}
