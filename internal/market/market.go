package market

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"

	"github.com/ktrnh/stocksim/internal/db"
	"github.com/ktrnh/stocksim/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Service is the trading core: order submission and cancellation, the
// cash ledger, derived holdings, settlement batches and the price feed.
// All mutations to a user's balance or an order's status go through
// row-locked transactions so concurrent callers serialize per row.
type Service struct {
	db  *db.DB
	log *slog.Logger

	// drawPct produces one random walk step; replaced in tests.
	drawPct func() float64
}

// NewService creates the trading core on top of the given database.
func NewService(database *db.DB, log *slog.Logger) *Service {
	return &Service{
		db:  database,
		log: log,
		drawPct: func() float64 {
			return rand.Float64()*2*maxTickPct - maxTickPct
		},
	}
}

// notional computes quantity * price with exact decimal arithmetic.
func notional(quantity int, price float64) float64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).InexactFloat64()
}

// SubmitOrder validates and queues a buy or sell intent at the stock's
// current price. Buy requires cash to cover the order at the current
// price; sell requires sufficient net holdings. Both checks happen at
// submission time only: settlement later executes at the locked-in price
// without re-checking.
func (s *Service) SubmitOrder(ctx context.Context, userID, stockID int, side string, quantity int) (*models.Order, error) {
	if side != models.SideBuy && side != models.SideSell {
		return nil, &ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if quantity <= 0 {
		return nil, &ValidationError{Message: "quantity must be a positive integer"}
	}

	var order *models.Order
	err := s.db.WithTx(ctx, func(q db.Querier) error {
		user, err := s.db.UserForUpdate(ctx, q, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		stock, err := s.db.GetStock(ctx, q, stockID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		switch side {
		case models.SideBuy:
			if user.CashBalance < notional(quantity, stock.CurrentPrice) {
				return ErrInsufficientFunds
			}
		case models.SideSell:
			held, err := s.netPosition(ctx, q, userID, stockID)
			if err != nil {
				return err
			}
			if held < quantity {
				return ErrInsufficientHoldings
			}
		}

		order, err = s.db.CreateOrder(ctx, q, &models.Order{
			UserID:   userID,
			StockID:  stockID,
			Side:     side,
			Quantity: quantity,
			Price:    stock.CurrentPrice,
			Status:   models.StatusPending,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder transitions a pending order to cancelled. Only the owner
// may cancel, and only while the order is still pending. The row lock
// prevents a cancel racing a settlement batch.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID int) error {
	return s.db.WithTx(ctx, func(q db.Querier) error {
		order, err := s.db.OrderForUpdate(ctx, q, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if order.UserID != userID {
			return ErrNotOwner
		}
		if order.Status != models.StatusPending {
			return ErrInvalidState
		}
		return s.db.SetOrderStatus(ctx, q, orderID, models.StatusCancelled)
	})
}

// Deposit credits a user's cash balance immediately, outside the
// order/settlement pipeline.
func (s *Service) Deposit(ctx context.Context, userID int, amount float64) error {
	if amount <= 0 {
		return &ValidationError{Message: "amount must be positive"}
	}
	return s.db.WithTx(ctx, func(q db.Querier) error {
		if _, err := s.db.UserForUpdate(ctx, q, userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		return s.db.AdjustUserCash(ctx, q, userID, amount)
	})
}

// Withdraw debits a user's cash balance immediately. Unlike settlement,
// withdrawal re-checks the balance under lock and never drives it negative.
func (s *Service) Withdraw(ctx context.Context, userID int, amount float64) error {
	if amount <= 0 {
		return &ValidationError{Message: "amount must be positive"}
	}
	return s.db.WithTx(ctx, func(q db.Querier) error {
		user, err := s.db.UserForUpdate(ctx, q, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if user.CashBalance < amount {
			return ErrInsufficientFunds
		}
		return s.db.AdjustUserCash(ctx, q, userID, -amount)
	})
}

// CreateStock lists a new stock (admin action). All day statistics start
// at the initial price.
func (s *Service) CreateStock(ctx context.Context, companyName, ticker string, volume int64, initialPrice float64) (*models.Stock, error) {
	if companyName == "" || ticker == "" {
		return nil, &ValidationError{Message: "company name and ticker are required"}
	}
	if volume <= 0 {
		return nil, &ValidationError{Message: "volume must be a positive integer"}
	}
	if initialPrice <= 0 {
		return nil, &ValidationError{Message: "initial price must be positive"}
	}
	return s.db.CreateStock(ctx, companyName, ticker, volume, initialPrice)
}
