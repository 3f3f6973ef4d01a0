package market

import (
	"context"
	"testing"

	"github.com/ktrnh/stocksim/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The reference scenario: 1000 in cash, buy 10 shares at 50. Settlement
// debits 500, records one buy transaction, completes the order, and the
// derived net position becomes 10.
func TestRunSettlementBatch_BuyScenario(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	user := createTestUser(t, "alice", 1000)
	stock := createTestStock(t, "ACME", 50)

	order, err := s.SubmitOrder(ctx, user.ID, stock.ID, models.SideBuy, 10)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, cashBalance(t, user.ID), "cash unchanged while pending")

	result, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	assert.Equal(t, 500.0, cashBalance(t, user.ID))
	assert.Equal(t, models.StatusCompleted, orderStatus(t, order.ID))

	txns, err := testDB.GetUserStockTransactions(ctx, testDB.Pool, user.ID, stock.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, models.SideBuy, txns[0].Side)
	assert.Equal(t, 10, txns[0].Quantity)
	assert.Equal(t, 50.0, txns[0].Price)
	require.NotNil(t, txns[0].BatchID)
	assert.Equal(t, result.BatchID, *txns[0].BatchID, "transaction stamped with its batch")

	qty, err := s.NetPosition(ctx, user.ID, stock.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, qty)
}

func TestRunSettlementBatch_SellCredits(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	user := createTestUser(t, "alice", 100)
	stock := createTestStock(t, "ACME", 50)

	// Existing holding from an earlier settlement.
	_, err := testDB.InsertTransaction(ctx, testDB.Pool, &models.Transaction{
		UserID: user.ID, StockID: stock.ID, Side: models.SideBuy, Quantity: 10, Price: 40,
	})
	require.NoError(t, err)

	_, err = s.SubmitOrder(ctx, user.ID, stock.ID, models.SideSell, 4)
	require.NoError(t, err)

	result, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	assert.Equal(t, 300.0, cashBalance(t, user.ID), "credited 4 * 50")

	qty, err := s.NetPosition(ctx, user.ID, stock.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, qty)
}

func TestRunSettlementBatch_Idempotent(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	user := createTestUser(t, "alice", 1000)
	stock := createTestStock(t, "ACME", 50)

	_, err := s.SubmitOrder(ctx, user.ID, stock.ID, models.SideBuy, 10)
	require.NoError(t, err)

	first, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)

	// With no new pending orders the second run is a no-op.
	second, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 500.0, cashBalance(t, user.ID), "cash debited exactly once")
}

func TestRunSettlementBatch_SkipsCancelled(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	user := createTestUser(t, "alice", 1000)
	stock := createTestStock(t, "ACME", 50)

	order, err := s.SubmitOrder(ctx, user.ID, stock.ID, models.SideBuy, 10)
	require.NoError(t, err)
	require.NoError(t, s.CancelOrder(ctx, order.ID, user.ID))

	result, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Processed, "cancelled order never enters a batch")
	assert.Equal(t, 1000.0, cashBalance(t, user.ID))
	assert.Equal(t, models.StatusCancelled, orderStatus(t, order.ID))
}

func TestRunSettlementBatch_FIFO(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	alice := createTestUser(t, "alice", 10000)
	bob := createTestUser(t, "bob", 10000)
	stock := createTestStock(t, "ACME", 50)

	first, err := s.SubmitOrder(ctx, alice.ID, stock.ID, models.SideBuy, 1)
	require.NoError(t, err)
	second, err := s.SubmitOrder(ctx, bob.ID, stock.ID, models.SideBuy, 2)
	require.NoError(t, err)

	// Make the later submission the earlier one to prove ordering comes
	// from submission time, not insertion id.
	_, err = testDB.Pool.Exec(ctx,
		"UPDATE orders SET created_at = created_at - INTERVAL '1 hour' WHERE id = $1", second.ID)
	require.NoError(t, err)

	result, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)

	// Transactions are appended in settlement order, so their ids follow
	// the FIFO sequence.
	rows, err := testDB.Pool.Query(ctx, "SELECT user_id FROM transactions ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()

	var settledUsers []int
	for rows.Next() {
		var userID int
		require.NoError(t, rows.Scan(&userID))
		settledUsers = append(settledUsers, userID)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []int{bob.ID, alice.ID}, settledUsers)
	assert.Equal(t, models.StatusCompleted, orderStatus(t, first.ID))
	assert.Equal(t, models.StatusCompleted, orderStatus(t, second.ID))
}

// Funds are only checked at submission. If the cash is gone by settlement
// time the batch still executes at the locked-in price and the balance
// goes negative.
func TestRunSettlementBatch_NoFundsRecheck(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	user := createTestUser(t, "alice", 1000)
	stock := createTestStock(t, "ACME", 50)

	_, err := s.SubmitOrder(ctx, user.ID, stock.ID, models.SideBuy, 10)
	require.NoError(t, err)
	require.NoError(t, s.Withdraw(ctx, user.ID, 900))

	result, err := s.RunSettlementBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, -400.0, cashBalance(t, user.ID))
}

// Settlement cash deltas reconcile with the transaction log: the user's
// balance change attributable to settlement equals sell notional minus
// buy notional.
func TestRunSettlementBatch_CashConservation(t *testing.T) {
	cleanupDB(t)
	ctx := context.Background()
	s := newTestService()
	user := createTestUser(t, "alice", 5000)
	stock := createTestStock(t, "ACME", 40)

	_, err := s.SubmitOrder(ctx, user.ID, stock.ID, models.SideBuy, 20)
	require.NoError(t, err)
	_, err = s.RunSettlementBatch(ctx)
	require.NoError(t, err)

	// Price moves, then a partial exit.
	require.NoError(t, s.OverridePrice(ctx, stock.ID, 55))
	_, err = s.SubmitOrder(ctx, user.ID, stock.ID, models.SideSell, 8)
	require.NoError(t, err)
	_, err = s.RunSettlementBatch(ctx)
	require.NoError(t, err)

	txns, err := testDB.GetUserStockTransactions(ctx, testDB.Pool, user.ID, stock.ID)
	require.NoError(t, err)

	delta := 0.0
	for _, txn := range txns {
		notional := float64(txn.Quantity) * txn.Price
		if txn.Side == models.SideBuy {
			delta -= notional
		} else {
			delta += notional
		}
	}
	assert.InDelta(t, 5000+delta, cashBalance(t, user.ID), 1e-9)

	qty, err := s.NetPosition(ctx, user.ID, stock.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, qty)
}
