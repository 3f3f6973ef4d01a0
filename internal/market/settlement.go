package market

import (
	"context"
	"fmt"

	"github.com/ktrnh/stocksim/internal/db"
	"github.com/ktrnh/stocksim/internal/models"

	"github.com/google/uuid"
)

// BatchResult reports one settlement batch run.
type BatchResult struct {
	BatchID   uuid.UUID `json:"batch_id"`
	Processed int       `json:"processed"`
}

// RunSettlementBatch converts every currently pending order into a
// committed transaction in a single all-or-nothing database transaction.
// Orders settle FIFO by submission time, ties broken by id. The scheduled
// trigger and the admin trigger both call this; it is idempotent with
// respect to already-completed or cancelled orders, which the pending
// filter excludes by construction.
func (s *Service) RunSettlementBatch(ctx context.Context) (BatchResult, error) {
	batchID := uuid.New()
	processed := 0

	err := s.db.WithTx(ctx, func(q db.Querier) error {
		orders, err := s.db.PendingOrders(ctx, q)
		if err != nil {
			return err
		}
		for _, order := range orders {
			if err := s.settleOrder(ctx, q, order, batchID); err != nil {
				return fmt.Errorf("order %d: %w", order.ID, err)
			}
			processed++
		}
		return nil
	})
	if err != nil {
		s.log.Error("settlement batch rolled back",
			"batch_id", batchID.String(), "error", err.Error())
		return BatchResult{BatchID: batchID}, err
	}

	if processed > 0 {
		s.log.Info("settlement batch committed",
			"batch_id", batchID.String(), "processed", processed)
	}
	return BatchResult{BatchID: batchID, Processed: processed}, nil
}

// settleOrder executes one order at its locked-in submission price. Funds
// and holdings are not re-checked here: the balance is allowed to go
// negative if the user spent cash between submission and settlement.
func (s *Service) settleOrder(ctx context.Context, q db.Querier, order models.Order, batchID uuid.UUID) error {
	delta := notional(order.Quantity, order.Price)
	if order.Side == models.SideBuy {
		delta = -delta
	}
	if err := s.db.AdjustUserCash(ctx, q, order.UserID, delta); err != nil {
		return err
	}

	if _, err := s.db.InsertTransaction(ctx, q, &models.Transaction{
		UserID:   order.UserID,
		StockID:  order.StockID,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    order.Price,
		BatchID:  &batchID,
	}); err != nil {
		return err
	}

	return s.db.SetOrderStatus(ctx, q, order.ID, models.StatusCompleted)
}
