package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/openquant-lab/breakwater/internal/logger"
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
	"go.uber.org/zap"
)

// portfolio is the mutable trading state: available cash plus the set of
// open positions, keyed by asset id. An asset is either absent from the map
// (flat) or present with a positive quantity (open); partial exits do not
// exist in this engine.
type portfolio struct {
	cash      float64
	positions map[string]types.Position
}

func newPortfolio(initialCapital float64) *portfolio {
	return &portfolio{
		cash:      initialCapital,
		positions: make(map[string]types.Position),
	}
}

// totalValue is cash plus the marked value of every open position.
func (p *portfolio) totalValue() float64 {
	total := p.cash
	for _, position := range p.positions {
		total += position.Value()
	}

	return total
}

// positionManager applies the exit and entry rules each step, emitting one
// trade record per executed transition.
type positionManager struct {
	config    *BacktestConfig
	portfolio *portfolio
	ledger    *Ledger
	logger    *logger.Logger
}

func newPositionManager(config *BacktestConfig, pf *portfolio, ledger *Ledger, log *logger.Logger) *positionManager {
	return &positionManager{
		config:    config,
		portfolio: pf,
		ledger:    ledger,
		logger:    log,
	}
}

// updatePositions marks every open position to the given date's price and
// closes those that crossed the stop-loss or take-profit boundary. Assets
// with no price at this date keep their previous mark and stay open.
func (m *positionManager) updatePositions(date time.Time, prices map[string]float64) error {
	ids := make([]string, 0, len(m.portfolio.positions))
	for id := range m.portfolio.positions {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		position := m.portfolio.positions[id]

		price, ok := prices[id]
		if !ok {
			m.logger.Warn("No price at step, keeping previous mark",
				zap.String("asset", id),
				zap.Time("date", date),
			)

			continue
		}

		position.CurrentPrice = price
		m.portfolio.positions[id] = position

		ret := position.UnrealizedReturn()
		if ret <= -m.config.StopLoss || ret >= m.config.TakeProfit {
			if err := m.closePosition(date, position); err != nil {
				return err
			}
		}
	}

	return nil
}

// executeEntries opens positions for the best-scoring candidates. The
// ranked list is truncated to the position cap before already-held assets
// are filtered out, so a step whose top candidates are all held opens
// nothing even with slots free.
func (m *positionManager) executeEntries(date time.Time, scores map[string]types.SignalScore, prices map[string]float64) error {
	ranked := RankScores(scores)

	candidates := make([]types.SignalScore, 0, m.config.MaxPositions)

	for _, score := range ranked {
		if score.TotalScore <= m.config.EntryThreshold {
			break
		}

		candidates = append(candidates, score)
		if len(candidates) == m.config.MaxPositions {
			break
		}
	}

	for _, candidate := range candidates {
		if len(m.portfolio.positions) >= m.config.MaxPositions {
			break
		}

		if _, held := m.portfolio.positions[candidate.AssetID]; held {
			continue
		}

		price, ok := prices[candidate.AssetID]
		if !ok || price <= 0 {
			continue
		}

		if err := m.openPosition(date, candidate, price); err != nil {
			return err
		}
	}

	return nil
}

// openPosition sizes and opens a position, deducting its cost from cash.
// The target value is a fraction of available cash, so each entry in a step
// shrinks the base the next one is sized from. Entries that would exceed
// cash or fall below the minimum trade amount are skipped rather than
// opened.
func (m *positionManager) openPosition(date time.Time, score types.SignalScore, price float64) error {
	positionValue := m.portfolio.cash * m.config.MaxPositionSize
	if positionValue > m.portfolio.cash {
		return nil
	}

	if positionValue < m.config.MinTradeAmount {
		return nil
	}

	quantity := positionValue / price
	if quantity <= 0 {
		return nil
	}

	m.portfolio.cash -= positionValue
	m.portfolio.positions[score.AssetID] = types.Position{
		AssetID:      score.AssetID,
		Quantity:     quantity,
		EntryPrice:   price,
		EntryDate:    date,
		CurrentPrice: price,
	}

	record := types.TradeRecord{
		ID:              uuid.New().String(),
		Date:            date,
		AssetID:         score.AssetID,
		Action:          types.TradeActionBuy,
		Price:           price,
		Quantity:        quantity,
		Value:           positionValue,
		StopLossPrice:   price * (1 - m.config.StopLoss),
		TakeProfitPrice: price * (1 + m.config.TakeProfit),
		SignalScore:     optional.Some(score.TotalScore),
	}

	if err := m.ledger.AppendTrade(record); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "failed to record entry", err)
	}

	m.logger.Info("Opened position",
		zap.String("asset", score.AssetID),
		zap.Time("date", date),
		zap.Float64("price", price),
		zap.Float64("quantity", quantity),
		zap.Float64("score", score.TotalScore),
	)

	return nil
}

// closePosition sells the full position at its current mark and returns the
// proceeds to cash.
func (m *positionManager) closePosition(date time.Time, position types.Position) error {
	proceeds := position.Value()

	m.portfolio.cash += proceeds
	delete(m.portfolio.positions, position.AssetID)

	record := types.TradeRecord{
		ID:          uuid.New().String(),
		Date:        date,
		AssetID:     position.AssetID,
		Action:      types.TradeActionSell,
		Price:       position.CurrentPrice,
		Quantity:    position.Quantity,
		Value:       proceeds,
		SignalScore: optional.None[float64](),
	}

	if err := m.ledger.AppendTrade(record); err != nil {
		return errors.Wrap(errors.ErrCodeLedgerAppendFailed, "failed to record exit", err)
	}

	m.logger.Info("Closed position",
		zap.String("asset", position.AssetID),
		zap.Time("date", date),
		zap.Float64("price", position.CurrentPrice),
		zap.Float64("return", position.UnrealizedReturn()),
	)

	return nil
}
