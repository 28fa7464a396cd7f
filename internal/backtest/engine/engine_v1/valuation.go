package engine

import (
	"time"

	"github.com/openquant-lab/breakwater/internal/types"
)

// valuation captures the end-of-step portfolio snapshot series.
type valuation struct {
	portfolio *portfolio
	ledger    *Ledger
	snapshots []types.PortfolioSnapshot
}

func newValuation(pf *portfolio, ledger *Ledger) *valuation {
	return &valuation{
		portfolio: pf,
		ledger:    ledger,
		snapshots: nil,
	}
}

// snapshot marks every open position to the given date's price, records the
// resulting portfolio value and appends the snapshot to the ledger. Assets
// without a price at this date keep their previous mark.
func (v *valuation) snapshot(date time.Time, prices map[string]float64) (types.PortfolioSnapshot, error) {
	for id, position := range v.portfolio.positions {
		if price, ok := prices[id]; ok {
			position.CurrentPrice = price
			v.portfolio.positions[id] = position
		}
	}

	positions := make(map[string]types.Position, len(v.portfolio.positions))
	for id, position := range v.portfolio.positions {
		positions[id] = position
	}

	snap := types.PortfolioSnapshot{
		Date:       date,
		TotalValue: v.portfolio.totalValue(),
		Cash:       v.portfolio.cash,
		Positions:  positions,
	}

	dailyReturn := 0.0
	if n := len(v.snapshots); n > 0 && v.snapshots[n-1].TotalValue != 0 {
		prev := v.snapshots[n-1].TotalValue
		dailyReturn = (snap.TotalValue - prev) / prev
	}

	v.snapshots = append(v.snapshots, snap)

	if err := v.ledger.AppendSnapshot(snap, dailyReturn); err != nil {
		return snap, err
	}

	return snap, nil
}

// history returns the accumulated snapshot series in date order.
func (v *valuation) history() []types.PortfolioSnapshot {
	return v.snapshots
}
