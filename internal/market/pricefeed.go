package market

import (
	"context"
	"errors"
	"time"

	"github.com/ktrnh/stocksim/internal/db"
	"github.com/ktrnh/stocksim/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// maxTickPct bounds one random walk step to ±5%.
const maxTickPct = 0.05

// nextPrice applies one percentage step and rounds to cents. There is no
// floor beyond the formula itself: a price can decay toward zero over
// many ticks.
func nextPrice(current, pct float64) float64 {
	return decimal.NewFromFloat(current).
		Mul(decimal.NewFromFloat(1 + pct)).
		Round(2).
		InexactFloat64()
}

// applyTick folds one new price into the stock's day statistics. When the
// calendar date has rolled over since the last update, opening, high and
// low all reset to the new price.
func applyTick(stock *models.Stock, price float64, now time.Time) {
	if !sameDay(stock.LastUpdated, now) {
		stock.OpeningPrice = price
		stock.HighPrice = price
		stock.LowPrice = price
	} else {
		if price > stock.HighPrice {
			stock.HighPrice = price
		}
		if price < stock.LowPrice {
			stock.LowPrice = price
		}
	}
	stock.CurrentPrice = price
	stock.LastUpdated = now
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// TickPrices applies one random walk step to every listed stock. Each
// stock updates in its own transaction: stocks are independent of each
// other, and a failure on one does not block the rest of the board.
func (s *Service) TickPrices(ctx context.Context) error {
	ids, err := s.db.ListStockIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.tickStock(ctx, id, s.drawPct()); err != nil {
			s.log.Error("price tick failed", "stock_id", id, "error", err.Error())
		}
	}
	return nil
}

// tickStock updates one stock under its row lock, serializing ticks and
// admin overrides per stock.
func (s *Service) tickStock(ctx context.Context, stockID int, pct float64) error {
	return s.db.WithTx(ctx, func(q db.Querier) error {
		stock, err := s.db.StockForUpdate(ctx, q, stockID)
		if err != nil {
			return err
		}
		return s.applyQuote(ctx, q, stock, nextPrice(stock.CurrentPrice, pct))
	})
}

// OverridePrice sets a stock's price directly (admin action). Day
// statistics and the history trail update exactly as for a tick.
func (s *Service) OverridePrice(ctx context.Context, stockID int, price float64) error {
	if price <= 0 {
		return &ValidationError{Message: "price must be positive"}
	}
	return s.db.WithTx(ctx, func(q db.Querier) error {
		stock, err := s.db.StockForUpdate(ctx, q, stockID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return s.applyQuote(ctx, q, stock, price)
	})
}

// applyQuote writes the new price, day statistics and history record in
// the caller's transaction.
func (s *Service) applyQuote(ctx context.Context, q db.Querier, stock *models.Stock, price float64) error {
	now := time.Now()
	applyTick(stock, price, now)
	if err := s.db.UpdateStockQuote(ctx, q, stock); err != nil {
		return err
	}
	return s.db.InsertPriceHistory(ctx, q, stock.ID, price, now)
}
