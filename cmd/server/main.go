package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ktrnh/stocksim/internal/api"
	"github.com/ktrnh/stocksim/internal/auth"
	"github.com/ktrnh/stocksim/internal/config"
	"github.com/ktrnh/stocksim/internal/db"
	"github.com/ktrnh/stocksim/internal/market"
	"github.com/ktrnh/stocksim/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// quoteHub pushes the refreshed quote board to connected clients after
// every broadcast tick.
type quoteHub struct {
	db      *db.DB
	log     *slog.Logger
	clients map[*wsClient]bool
	mu      sync.RWMutex
}

func newQuoteHub(database *db.DB, log *slog.Logger) *quoteHub {
	return &quoteHub{
		db:      database,
		log:     log,
		clients: make(map[*wsClient]bool),
	}
}

func (hub *quoteHub) broadcast(ctx context.Context) error {
	stocks, err := hub.db.ListStocks(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{"stocks": stocks})
	if err != nil {
		return err
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for client := range hub.clients {
		client.mu.Lock()
		err := client.conn.WriteMessage(websocket.TextMessage, data)
		client.mu.Unlock()
		if err != nil {
			hub.log.Warn("failed to push quotes", "error", err.Error())
		}
	}
	return nil
}

func (hub *quoteHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.log.Warn("failed to upgrade connection", "error", err.Error())
		return
	}

	client := &wsClient{conn: conn}
	hub.mu.Lock()
	hub.clients[client] = true
	hub.mu.Unlock()

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			hub.mu.Lock()
			delete(hub.clients, client)
			hub.mu.Unlock()
			break
		}
	}
}

// Main entry point: sets up database, trading core, schedulers, and HTTP server
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()

	// Initialize database connection
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer database.Close()

	// Trading core and auth
	mkt := market.NewService(database, logger)
	authService := auth.NewAuthService(database, cfg.JWTSecret)
	handler := api.NewHandler(database, mkt, authService)

	// Background tasks: price feed and settlement run on independent
	// timers, decoupled from the request-serving path.
	hub := newQuoteHub(database, logger)
	runner := scheduler.New(logger)
	runner.Register("pricefeed", cfg.PriceTickInterval, mkt.TickPrices)
	runner.Register("settlement", cfg.SettlementInterval, func(ctx context.Context) error {
		_, err := mkt.RunSettlementBatch(ctx)
		return err
	})
	runner.Register("quotes", cfg.BroadcastInterval, hub.broadcast)
	runner.Start(ctx)

	// Set up HTTP router
	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WebSocket quote stream
	r.Get("/ws", hub.handleWebSocket)

	// REST API
	r.Mount("/", api.NewRouter(handler))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err.Error())
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig.String())

	// Graceful shutdown: stop HTTP server, then drain background tasks.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err.Error())
	}
	runner.Stop()

	logger.Info("server stopped")
}
