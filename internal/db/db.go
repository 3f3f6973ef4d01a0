package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ktrnh/stocksim/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same
// queries can run standalone or inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx runs fn inside a transaction. The transaction commits only if fn
// returns nil; any error rolls back every write fn performed.
func (db *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const userColumns = "id, full_name, username, email, password_hash, cash_balance, is_admin, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.FullName, &user.Username, &user.Email,
		&user.PasswordHash, &user.CashBalance, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, fullName, username, email, passwordHash string, isAdmin bool) (*models.User, error) {
	row := db.Pool.QueryRow(ctx,
		"INSERT INTO users (full_name, username, email, password_hash, is_admin) VALUES ($1, $2, $3, $4, $5) RETURNING "+userColumns,
		fullName, username, email, passwordHash, isAdmin)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1", username)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by id. Returns pgx.ErrNoRows if absent.
func (db *DB) GetUser(ctx context.Context, q Querier, id int) (*models.User, error) {
	return scanUser(q.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// UserForUpdate locks a user's row for the duration of the transaction.
// q must be a transaction.
func (db *DB) UserForUpdate(ctx context.Context, q Querier, id int) (*models.User, error) {
	return scanUser(q.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1 FOR UPDATE", id))
}

// AdjustUserCash applies a signed delta to a user's cash balance.
func (db *DB) AdjustUserCash(ctx context.Context, q Querier, id int, delta float64) error {
	tag, err := q.Exec(ctx, "UPDATE users SET cash_balance = cash_balance + $1 WHERE id = $2", delta, id)
	if err != nil {
		return fmt.Errorf("failed to adjust cash balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

const stockColumns = "id, company_name, ticker, volume, initial_price, current_price, opening_price, high_price, low_price, last_updated, created_at"

func scanStock(row pgx.Row) (*models.Stock, error) {
	stock := &models.Stock{}
	err := row.Scan(&stock.ID, &stock.CompanyName, &stock.Ticker, &stock.Volume,
		&stock.InitialPrice, &stock.CurrentPrice, &stock.OpeningPrice,
		&stock.HighPrice, &stock.LowPrice, &stock.LastUpdated, &stock.CreatedAt)
	if err != nil {
		return nil, err
	}
	return stock, nil
}

// CreateStock lists a new stock. Opening, high and low all start at the
// initial price.
func (db *DB) CreateStock(ctx context.Context, companyName, ticker string, volume int64, initialPrice float64) (*models.Stock, error) {
	row := db.Pool.QueryRow(ctx,
		`INSERT INTO stocks (company_name, ticker, volume, initial_price, current_price, opening_price, high_price, low_price)
		 VALUES ($1, $2, $3, $4, $4, $4, $4, $4) RETURNING `+stockColumns,
		companyName, ticker, volume, initialPrice)
	stock, err := scanStock(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create stock: %w", err)
	}
	return stock, nil
}

// GetStock retrieves a stock by id. Returns pgx.ErrNoRows if absent.
func (db *DB) GetStock(ctx context.Context, q Querier, id int) (*models.Stock, error) {
	return scanStock(q.QueryRow(ctx, "SELECT "+stockColumns+" FROM stocks WHERE id = $1", id))
}

// StockForUpdate locks a stock's row for the duration of the transaction.
func (db *DB) StockForUpdate(ctx context.Context, q Querier, id int) (*models.Stock, error) {
	return scanStock(q.QueryRow(ctx, "SELECT "+stockColumns+" FROM stocks WHERE id = $1 FOR UPDATE", id))
}

// ListStocks retrieves all listed stocks ordered by ticker.
func (db *DB) ListStocks(ctx context.Context) ([]models.Stock, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+stockColumns+" FROM stocks ORDER BY ticker")
	if err != nil {
		return nil, fmt.Errorf("failed to list stocks: %w", err)
	}
	defer rows.Close()

	var stocks []models.Stock
	for rows.Next() {
		stock, err := scanStock(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, *stock)
	}
	return stocks, rows.Err()
}

// ListStockIDs retrieves the ids of all listed stocks.
func (db *DB) ListStockIDs(ctx context.Context) ([]int, error) {
	rows, err := db.Pool.Query(ctx, "SELECT id FROM stocks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list stock ids: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan stock id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateStockQuote writes a stock's current price, day extremes and update
// time in one statement so high/low never drift from the price that set them.
func (db *DB) UpdateStockQuote(ctx context.Context, q Querier, stock *models.Stock) error {
	_, err := q.Exec(ctx,
		`UPDATE stocks SET current_price = $1, opening_price = $2, high_price = $3, low_price = $4, last_updated = $5
		 WHERE id = $6`,
		stock.CurrentPrice, stock.OpeningPrice, stock.HighPrice, stock.LowPrice, stock.LastUpdated, stock.ID)
	if err != nil {
		return fmt.Errorf("failed to update stock quote: %w", err)
	}
	return nil
}

// InsertPriceHistory appends one audit record for a price update.
func (db *DB) InsertPriceHistory(ctx context.Context, q Querier, stockID int, price float64, at time.Time) error {
	_, err := q.Exec(ctx,
		"INSERT INTO stock_price_history (stock_id, price, created_at) VALUES ($1, $2, $3)",
		stockID, price, at)
	if err != nil {
		return fmt.Errorf("failed to insert price history: %w", err)
	}
	return nil
}

// GetPriceHistory retrieves a stock's price history, oldest first.
func (db *DB) GetPriceHistory(ctx context.Context, stockID int) ([]models.PriceHistory, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, stock_id, price, created_at FROM stock_price_history WHERE stock_id = $1 ORDER BY created_at, id",
		stockID)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var history []models.PriceHistory
	for rows.Next() {
		var rec models.PriceHistory
		if err := rows.Scan(&rec.ID, &rec.StockID, &rec.Price, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

const orderColumns = "id, user_id, stock_id, side, quantity, price, status, created_at"

func scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(&order.ID, &order.UserID, &order.StockID, &order.Side,
		&order.Quantity, &order.Price, &order.Status, &order.CreatedAt)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CreateOrder inserts a new pending order.
func (db *DB) CreateOrder(ctx context.Context, q Querier, order *models.Order) (*models.Order, error) {
	row := q.QueryRow(ctx,
		"INSERT INTO orders (user_id, stock_id, side, quantity, price, status) VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+orderColumns,
		order.UserID, order.StockID, order.Side, order.Quantity, order.Price, order.Status)
	newOrder, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return newOrder, nil
}

// OrderForUpdate locks an order's row for the duration of the transaction.
func (db *DB) OrderForUpdate(ctx context.Context, q Querier, id int) (*models.Order, error) {
	return scanOrder(q.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
}

// PendingOrders locks and returns all pending orders in FIFO submission
// order, ties broken by id. q must be a transaction.
func (db *DB) PendingOrders(ctx context.Context, q Querier) ([]models.Order, error) {
	rows, err := q.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE status = 'pending' ORDER BY created_at, id FOR UPDATE")
	if err != nil {
		return nil, fmt.Errorf("failed to get pending orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// SetOrderStatus updates an order's status.
func (db *DB) SetOrderStatus(ctx context.Context, q Querier, orderID int, status string) error {
	_, err := q.Exec(ctx, "UPDATE orders SET status = $1 WHERE id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	return nil
}

// GetUserOrders retrieves all orders for a user, newest first.
func (db *DB) GetUserOrders(ctx context.Context, userID int) ([]models.Order, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

const transactionColumns = "id, user_id, stock_id, side, quantity, price, batch_id, created_at"

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	txn := &models.Transaction{}
	err := row.Scan(&txn.ID, &txn.UserID, &txn.StockID, &txn.Side,
		&txn.Quantity, &txn.Price, &txn.BatchID, &txn.CreatedAt)
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// InsertTransaction appends one immutable transaction record.
func (db *DB) InsertTransaction(ctx context.Context, q Querier, txn *models.Transaction) (*models.Transaction, error) {
	row := q.QueryRow(ctx,
		"INSERT INTO transactions (user_id, stock_id, side, quantity, price, batch_id) VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+transactionColumns,
		txn.UserID, txn.StockID, txn.Side, txn.Quantity, txn.Price, txn.BatchID)
	newTxn, err := scanTransaction(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return newTxn, nil
}

// GetUserTransactions retrieves all transactions for a user, oldest first.
func (db *DB) GetUserTransactions(ctx context.Context, userID int) ([]models.Transaction, error) {
	return db.queryTransactions(ctx, db.Pool,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = $1 ORDER BY created_at, id", userID)
}

// GetUserStockTransactions retrieves a user's transactions for one stock,
// oldest first. A single query reads a consistent snapshot: it sees either
// all of a settlement batch's rows or none of them.
func (db *DB) GetUserStockTransactions(ctx context.Context, q Querier, userID, stockID int) ([]models.Transaction, error) {
	return db.queryTransactions(ctx, q,
		"SELECT "+transactionColumns+" FROM transactions WHERE user_id = $1 AND stock_id = $2 ORDER BY created_at, id",
		userID, stockID)
}

func (db *DB) queryTransactions(ctx context.Context, q Querier, sql string, args ...any) ([]models.Transaction, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	defer rows.Close()

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}
