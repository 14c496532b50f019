package perpetual

import (
	"github.com/latticefi/dexcore/pkg/fixedpoint"
)

// PositionHealth is a read-only snapshot of a position's margin standing,
// grounded on x/perpetual/keeper/margin.go's GetPositionHealth.
type PositionHealth struct {
	Equity            fixedpoint.UInt
	MaintenanceMargin fixedpoint.UInt
	// MarginRatioBps is equity/maintenanceMargin expressed in basis
	// points (10000 == fully covered at 1x the maintenance requirement).
	MarginRatioBps fixedpoint.UInt
	AtRisk         bool
}

// atRiskMultiplierBps flags a position once its equity falls to 150% of
// its maintenance margin, giving a user or monitor warning before the
// liquidation threshold at 100% (margin.go's at-risk convention).
const atRiskMultiplierBps = 15_000

// PositionHealth reports a user's current margin standing on contract.
func (e *Engine) PositionHealth(contract, userID string) (PositionHealth, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pos, ok := e.positions[positionKey{contract: contract, userID: userID}]
	if !ok {
		return PositionHealth{}, false
	}

	notional, err := fixedpoint.MulOverBase(pos.Size, pos.MarkPrice)
	if err != nil {
		return PositionHealth{}, false
	}
	maintenance, err := fixedpoint.FeeBps(notional, e.cfg.MaintenanceMarginBps)
	if err != nil {
		return PositionHealth{}, false
	}
	equity := pos.Equity()

	health := PositionHealth{Equity: equity, MaintenanceMargin: maintenance}
	if !maintenance.IsZero() {
		ratio, err := fixedpoint.MulDiv(equity, fixedpoint.FromU64(10_000), maintenance)
		if err == nil {
			health.MarginRatioBps = ratio
		}
		atRiskFloor, err := fixedpoint.MulDiv(maintenance, fixedpoint.FromU64(atRiskMultiplierBps), fixedpoint.FromU64(10_000))
		if err == nil {
			health.AtRisk = equity.LTE(atRiskFloor)
		}
	}
	return health, true
}
