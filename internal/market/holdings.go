package market

import (
	"context"
	"errors"

	"github.com/ktrnh/stocksim/internal/db"
	"github.com/ktrnh/stocksim/internal/models"

	"github.com/jackc/pgx/v5"
)

// position folds a transaction log into a net owned quantity: buys add,
// sells subtract. There is no stored position row anywhere; the
// transaction log is the only source of truth.
func position(txns []models.Transaction) int {
	net := 0
	for _, txn := range txns {
		switch txn.Side {
		case models.SideBuy:
			net += txn.Quantity
		case models.SideSell:
			net -= txn.Quantity
		}
	}
	return net
}

// NetPosition returns a user's net holding of a stock, derived from the
// transaction log. The single snapshot query sees either all of a
// concurrent settlement batch's transactions or none of them.
func (s *Service) NetPosition(ctx context.Context, userID, stockID int) (int, error) {
	return s.netPosition(ctx, s.db.Pool, userID, stockID)
}

func (s *Service) netPosition(ctx context.Context, q db.Querier, userID, stockID int) (int, error) {
	txns, err := s.db.GetUserStockTransactions(ctx, q, userID, stockID)
	if err != nil {
		return 0, err
	}
	return position(txns), nil
}

// Position is one line of a portfolio: a stock and the net quantity held.
type Position struct {
	Stock    models.Stock `json:"stock"`
	Quantity int          `json:"quantity"`
}

// Portfolio returns a user's cash balance and non-zero net positions.
func (s *Service) Portfolio(ctx context.Context, userID int) (*models.User, []Position, error) {
	user, err := s.db.GetUser(ctx, s.db.Pool, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	txns, err := s.db.GetUserTransactions(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	byStock := make(map[int]int)
	for _, txn := range txns {
		switch txn.Side {
		case models.SideBuy:
			byStock[txn.StockID] += txn.Quantity
		case models.SideSell:
			byStock[txn.StockID] -= txn.Quantity
		}
	}

	stocks, err := s.db.ListStocks(ctx)
	if err != nil {
		return nil, nil, err
	}

	var positions []Position
	for _, stock := range stocks {
		if qty := byStock[stock.ID]; qty != 0 {
			positions = append(positions, Position{Stock: stock, Quantity: qty})
		}
	}
	return user, positions, nil
}
