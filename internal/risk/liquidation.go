package risk

// LiquidationWarning buckets how close a leveraged position is to
// liquidation.
type LiquidationWarning int

const (
	LiquidationWarningNone LiquidationWarning = iota
	LiquidationWarningLow           // 20-30% to liquidation
	LiquidationWarningMedium        // 10-20% to liquidation
	LiquidationWarningHigh          // 5-10% to liquidation
	LiquidationWarningCritical      // < 5% to liquidation
)

func (w LiquidationWarning) String() string {
	switch w {
	case LiquidationWarningLow:
		return "Low"
	case LiquidationWarningMedium:
		return "Medium"
	case LiquidationWarningHigh:
		return "High"
	case LiquidationWarningCritical:
		return "Critical"
	default:
		return "None"
	}
}

// LiquidationConfig is an immutable configuration for LiquidationControl.
type LiquidationConfig struct {
	Enabled                 bool
	MaxLeverage             uint32
	MaintenanceMarginRate   float64 // e.g. 0.01 = 1%
	LiquidationPriceThreshold float64 // e.g. 20; not read by CheckLiquidationRisk, whose warning buckets are fixed
}

// DefaultLiquidationConfig returns the default leverage and margin policy.
func DefaultLiquidationConfig() LiquidationConfig {
	return LiquidationConfig{
		Enabled:                   true,
		MaxLeverage:               125,
		MaintenanceMarginRate:     0.01,
		LiquidationPriceThreshold: 20.0,
	}
}

// LiquidationControl computes liquidation-price estimates and the severity
// of the resulting warning for leveraged positions.
type LiquidationControl struct {
	config LiquidationConfig
}

// NewLiquidationControl builds a control from config.
func NewLiquidationControl(config LiquidationConfig) *LiquidationControl {
	return &LiquidationControl{config: config}
}

// CalculateLiquidationPrice returns entry*(1 - (1-mmRate)/leverage) for a
// long position, or entry*(1 + (1-mmRate)/leverage) for a short position.
func (c *LiquidationControl) CalculateLiquidationPrice(positionSize, entryPrice, leverage float64) float64 {
	isLong := positionSize > 0
	marginFactor := (1 - c.config.MaintenanceMarginRate) / leverage

	if isLong {
		return entryPrice * (1 - marginFactor)
	}
	return entryPrice * (1 + marginFactor)
}

// CheckLiquidationRisk returns the warning bucket for a position given its
// mark price and leverage. balance is accepted for interface symmetry with
// CanOpenPosition but does not affect the liquidation-price estimate.
func (c *LiquidationControl) CheckLiquidationRisk(positionSize, entryPrice, markPrice, balance, leverage float64) LiquidationWarning {
	if !c.config.Enabled || positionSize == 0 || entryPrice <= 0 || markPrice <= 0 {
		return LiquidationWarningNone
	}

	liquidationPrice := c.CalculateLiquidationPrice(positionSize, entryPrice, leverage)

	isLong := positionSize > 0
	var priceDistance float64
	if isLong {
		priceDistance = (markPrice - liquidationPrice) / markPrice * 100
	} else {
		priceDistance = (liquidationPrice - markPrice) / markPrice * 100
	}

	switch {
	case priceDistance < 5:
		return LiquidationWarningCritical
	case priceDistance < 10:
		return LiquidationWarningHigh
	case priceDistance < 20:
		return LiquidationWarningMedium
	case priceDistance < 30:
		return LiquidationWarningLow
	default:
		return LiquidationWarningNone
	}
}

// ShouldReducePosition recommends a reduced position size for a given
// warning severity, or (0, false) if no reduction is warranted.
func (c *LiquidationControl) ShouldReducePosition(warning LiquidationWarning, currentSize float64) (float64, bool) {
	if !c.config.Enabled {
		return 0, false
	}

	switch warning {
	case LiquidationWarningCritical:
		return currentSize * 0.5, true
	case LiquidationWarningHigh:
		return currentSize * 0.7, true
	case LiquidationWarningMedium:
		return currentSize * 0.85, true
	default:
		return 0, false
	}
}

// CanOpenPosition reports whether proposedSize can be added to
// currentPositionsSize without exceeding balance*leverage notional.
func (c *LiquidationControl) CanOpenPosition(proposedSize, entryPrice, balance, leverage, currentPositionsSize float64) bool {
	if !c.config.Enabled {
		return true
	}

	totalSize := (absF(currentPositionsSize) + absF(proposedSize)) * entryPrice
	maxPositionValue := balance * leverage

	return totalSize <= maxPositionValue
}
