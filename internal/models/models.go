package models

import (
	"time"

	"github.com/google/uuid"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order statuses. Pending orders transition to completed via settlement
// or to cancelled via an explicit user cancellation; both are terminal.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// User represents a registered account holder.
type User struct {
	ID           int       `json:"id"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CashBalance  float64   `json:"cash_balance"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

// Stock represents a listed instrument with a synthetic market price.
type Stock struct {
	ID           int       `json:"id"`
	CompanyName  string    `json:"company_name"`
	Ticker       string    `json:"ticker"`
	Volume       int64     `json:"volume"`
	InitialPrice float64   `json:"initial_price"`
	CurrentPrice float64   `json:"current_price"`
	OpeningPrice float64   `json:"opening_price"`
	HighPrice    float64   `json:"high_price"`
	LowPrice     float64   `json:"low_price"`
	LastUpdated  time.Time `json:"last_updated"`
	CreatedAt    time.Time `json:"created_at"`
}

// Order represents a buy or sell intent. Price is locked in at submission
// time; settlement executes at this price regardless of later ticks.
type Order struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	StockID   int       `json:"stock_id"`
	Side      string    `json:"side"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"` // used for FIFO settlement order
}

// Transaction is an immutable record of a settled order. The transaction
// log is the sole source of truth for holdings.
type Transaction struct {
	ID        int        `json:"id"`
	UserID    int        `json:"user_id"`
	StockID   int        `json:"stock_id"`
	Side      string     `json:"side"`
	Quantity  int        `json:"quantity"`
	Price     float64    `json:"price"`
	BatchID   *uuid.UUID `json:"batch_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PriceHistory is an append-only audit record of one price update.
type PriceHistory struct {
	ID        int       `json:"id"`
	StockID   int       `json:"stock_id"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}
