package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"buffet/internal/actor"
	"buffet/internal/domain"
	"buffet/internal/store"
)

// PositionLedger maintains one Open position per (symbol, side). Every
// read-modify-write runs on the ledger's mailbox, so fills for the same pair
// never race.
type PositionLedger struct {
	positions store.PositionStore
	mailbox   *actor.Mailbox
	log       *slog.Logger
}

// NewPositionLedger creates a PositionLedger backed by positions.
func NewPositionLedger(positions store.PositionStore, opts actor.Options, log *slog.Logger) *PositionLedger {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "position_ledger")
	return &PositionLedger{
		positions: positions,
		mailbox:   actor.New("position_ledger", opts, log),
		log:       log,
	}
}

// Start launches the ledger's mailbox.
func (l *PositionLedger) Start(ctx context.Context) { l.mailbox.Start(ctx) }

// Stop halts the ledger's mailbox.
func (l *PositionLedger) Stop() { l.mailbox.Stop() }

// OpenOrUpdate merges a fill into the Open position for (symbol, side),
// creating the position when none is open.
func (l *PositionLedger) OpenOrUpdate(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64) (*domain.Position, error) {
	return actor.Ask(ctx, l.mailbox, func(jctx context.Context) (*domain.Position, error) {
		return l.openOrUpdate(jctx, symbol, side, qty, price)
	})
}

// Close transitions an Open position to Closed with the given realized P&L.
func (l *PositionLedger) Close(ctx context.Context, positionID string, realizedPnL float64) (*domain.Position, error) {
	return actor.Ask(ctx, l.mailbox, func(jctx context.Context) (*domain.Position, error) {
		p, err := l.positions.ClosePosition(jctx, positionID, realizedPnL)
		if err != nil {
			return nil, err
		}
		l.log.Info("position closed", "position_id", p.ID, "symbol", p.Symbol, "realized_pnl", realizedPnL)
		return p, nil
	})
}

// Positions lists positions newest first, optionally only Open ones.
func (l *PositionLedger) Positions(ctx context.Context, openOnly bool) ([]domain.Position, error) {
	return actor.Ask(ctx, l.mailbox, func(jctx context.Context) ([]domain.Position, error) {
		return l.positions.ListPositions(jctx, openOnly)
	})
}

func (l *PositionLedger) openOrUpdate(ctx context.Context, symbol string, side domain.OrderSide, qty, price float64) (*domain.Position, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: fill quantity must be positive, got %v", domain.ErrInvalidInput, qty)
	}

	existing, err := l.positions.FindOpenPosition(ctx, symbol, side)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		p := &domain.Position{Symbol: symbol, Side: side, Quantity: qty, AvgEntryPrice: price}
		if err := l.positions.SavePosition(ctx, p); err != nil {
			return nil, err
		}
		l.log.Info("position opened", "position_id", p.ID, "symbol", symbol, "side", side, "qty", qty, "price", price)
		return p, nil
	case err != nil:
		return nil, err
	}

	total, avg, err := existing.MergeFill(qty, price)
	if err != nil {
		return nil, err
	}
	p, err := l.positions.UpdatePositionFill(ctx, existing.ID, total, avg)
	if err != nil {
		return nil, err
	}
	l.log.Debug("position updated", "position_id", p.ID, "symbol", symbol, "side", side, "qty", total, "avg_price", avg)
	return p, nil
}
