package types

import (
	"time"

	"github.com/moznion/go-optional"
)

type TradeAction string

const (
	TradeActionBuy  TradeAction = "buy"
	TradeActionSell TradeAction = "sell"
)

// Position represents the current holding of one asset. A position exists
// from open to close and is owned exclusively by the position manager; at
// most one open position per asset.
type Position struct {
	AssetID      string    `csv:"asset_id"`
	Quantity     float64   `csv:"quantity"`
	EntryPrice   float64   `csv:"entry_price"`
	EntryDate    time.Time `csv:"entry_date"`
	CurrentPrice float64   `csv:"current_price"`
}

// UnrealizedReturn is the fractional return of the position at its current
// mark: (current - entry) / entry.
func (p *Position) UnrealizedReturn() float64 {
	if p.EntryPrice == 0 {
		return 0
	}

	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
}

// Value is the marked-to-market value of the position.
func (p *Position) Value() float64 {
	return p.Quantity * p.CurrentPrice
}

// TradeRecord is one executed entry or exit. Records are immutable and
// appended to the trade ledger; they are never mutated or deleted.
type TradeRecord struct {
	ID              string                   `csv:"id"`
	Date            time.Time                `csv:"date"`
	AssetID         string                   `csv:"asset_id"`
	Action          TradeAction              `csv:"action"`
	Price           float64                  `csv:"price"`
	Quantity        float64                  `csv:"quantity"`
	Value           float64                  `csv:"value"`
	StopLossPrice   float64                  `csv:"stop_loss_price"`
	TakeProfitPrice float64                  `csv:"take_profit_price"`
	SignalScore     optional.Option[float64] `csv:"signal_score"`
}

// PortfolioSnapshot captures the portfolio at the end of one simulation
// step. Snapshots are append-only and ordered by date; Positions holds
// copies, not references into the canonical position store.
type PortfolioSnapshot struct {
	Date       time.Time           `csv:"date"`
	TotalValue float64             `csv:"total_value"`
	Cash       float64             `csv:"cash"`
	Positions  map[string]Position `csv:"positions"`
}
