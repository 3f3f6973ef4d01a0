package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter mounts all routes on a chi router. Public routes serve the
// quote board and auth; everything else requires a valid token, and the
// admin group additionally requires the admin flag.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/stocks", h.ListStocks)
	r.Get("/stocks/{id}/history", h.GetPriceHistory)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/orders", h.SubmitOrder)
		r.Get("/orders", h.GetUserOrders)
		r.Delete("/orders/{id}", h.CancelOrder)
		r.Get("/portfolio", h.GetPortfolio)
		r.Get("/transactions", h.GetUserTransactions)
		r.Get("/positions/{id}", h.GetNetPosition)
		r.Post("/cash/deposit", h.Deposit)
		r.Post("/cash/withdraw", h.Withdraw)

		// Admin endpoints
		r.Group(func(r chi.Router) {
			r.Use(h.AdminOnlyMiddleware)
			r.Post("/admin/stocks", h.CreateStock)
			r.Put("/admin/stocks/{id}/price", h.OverridePrice)
			r.Post("/admin/settlement", h.RunSettlement)
		})
	})

	return r
}
