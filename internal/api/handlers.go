package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ktrnh/stocksim/internal/auth"
	"github.com/ktrnh/stocksim/internal/db"
	"github.com/ktrnh/stocksim/internal/market"
)

type ctxKey string

const identityKey ctxKey = "identity"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	DB          *db.DB
	Market      *market.Service
	AuthService *auth.AuthService
}

// NewHandler creates a new handler
func NewHandler(database *db.DB, mkt *market.Service, authService *auth.AuthService) *Handler {
	return &Handler{DB: database, Market: mkt, AuthService: authService}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeMarketError maps core sentinel errors to HTTP status codes.
func writeMarketError(w http.ResponseWriter, err error) {
	var ve *market.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message})
	case errors.Is(err, market.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, market.ErrNotOwner):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "order belongs to another user"})
	case errors.Is(err, market.ErrInvalidState):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is no longer pending"})
	case errors.Is(err, market.ErrInsufficientFunds):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "insufficient funds"})
	case errors.Is(err, market.ErrInsufficientHoldings):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "insufficient holdings"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func callerIdentity(r *http.Request) (auth.Identity, bool) {
	id, ok := r.Context().Value(identityKey).(auth.Identity)
	return id, ok
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"full_name"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.FullName, req.Username, req.Email, req.Password)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to register user"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens and stores the caller identity
// in the request context.
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization header required"})
			return
		}

		// Remove "Bearer " prefix if present
		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		identity, err := h.AuthService.IdentityFromToken(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminOnlyMiddleware rejects callers without the admin flag.
func (h *Handler) AdminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := callerIdentity(r)
		if !ok || !identity.IsAdmin {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin access required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListStocks returns the quote board.
func (h *Handler) ListStocks(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.DB.ListStocks(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list stocks"})
		return
	}
	writeJSON(w, http.StatusOK, stocks)
}

// GetPriceHistory returns a stock's append-only price trail.
func (h *Handler) GetPriceHistory(w http.ResponseWriter, r *http.Request) {
	stockID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stock ID"})
		return
	}
	history, err := h.DB.GetPriceHistory(r.Context(), stockID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get price history"})
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// SubmitOrder queues a buy or sell order at the current market price.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req struct {
		StockID  int    `json:"stock_id"`
		Side     string `json:"side"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	order, err := h.Market.SubmitOrder(r.Context(), identity.UserID, req.StockID, req.Side, req.Quantity)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// GetUserOrders retrieves the caller's orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	orders, err := h.DB.GetUserOrders(r.Context(), identity.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to retrieve orders"})
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// CancelOrder cancels one of the caller's pending orders.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	orderID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	if err := h.Market.CancelOrder(r.Context(), orderID, identity.UserID); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order cancelled"})
}

// GetPortfolio returns the caller's cash balance and net positions.
func (h *Handler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	user, positions, err := h.Market.Portfolio(r.Context(), identity.UserID)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cash_balance": user.CashBalance,
		"positions":    positions,
	})
}

// GetUserTransactions retrieves the caller's transaction history
func (h *Handler) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	txns, err := h.DB.GetUserTransactions(r.Context(), identity.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to retrieve transactions"})
		return
	}
	writeJSON(w, http.StatusOK, txns)
}

// GetNetPosition returns the caller's derived holding of one stock.
func (h *Handler) GetNetPosition(w http.ResponseWriter, r *http.Request) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	stockID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stock ID"})
		return
	}

	qty, err := h.Market.NetPosition(r.Context(), identity.UserID, stockID)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"quantity": qty})
}

// Deposit credits the caller's cash balance.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.cashMutation(w, r, h.Market.Deposit)
}

// Withdraw debits the caller's cash balance.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.cashMutation(w, r, h.Market.Withdraw)
}

func (h *Handler) cashMutation(w http.ResponseWriter, r *http.Request, apply func(context.Context, int, float64) error) {
	identity, ok := callerIdentity(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := apply(r.Context(), identity.UserID, req.Amount); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// CreateStock lists a new stock (admin only).
func (h *Handler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CompanyName  string  `json:"company_name"`
		Ticker       string  `json:"ticker"`
		Volume       int64   `json:"volume"`
		InitialPrice float64 `json:"initial_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	stock, err := h.Market.CreateStock(r.Context(), req.CompanyName, req.Ticker, req.Volume, req.InitialPrice)
	if err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stock)
}

// OverridePrice sets a stock's price directly (admin only).
func (h *Handler) OverridePrice(w http.ResponseWriter, r *http.Request) {
	stockID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid stock ID"})
		return
	}

	var req struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Market.OverridePrice(r.Context(), stockID, req.Price); err != nil {
		writeMarketError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "price updated"})
}

// RunSettlement triggers a settlement batch on demand (admin only). The
// batch semantics are identical to the scheduled trigger; this endpoint
// only surfaces the outcome to the caller.
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	result, err := h.Market.RunSettlementBatch(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"processed": 0,
			"failed":    true,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id":  result.BatchID,
		"processed": result.Processed,
		"failed":    false,
	})
}
