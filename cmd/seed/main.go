package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ktrnh/stocksim/internal/config"
	"github.com/ktrnh/stocksim/internal/db"
)

// bcrypt hash of "password123", cost 10.
const seedPasswordHash = "$2a$10$XLhV7TU4dIvHO1d9UKgoT.Kt1XCYIbLV4LkQqmXGtN6VBnsmgS.G."

// Seed the database with an admin, two traders and a starter quote board
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// First check if we already have stocks
	stocks, err := database.ListStocks(ctx)
	if err != nil {
		log.Fatalf("Failed to check stocks: %v", err)
	}
	if len(stocks) > 0 {
		fmt.Printf("Database already has %d stocks. No need to seed.\n", len(stocks))
		os.Exit(0)
	}

	users := []struct {
		fullName string
		username string
		email    string
		isAdmin  bool
		cash     float64
	}{
		{"Site Admin", "admin", "admin@stocksim.local", true, 0},
		{"Trader One", "trader1", "trader1@stocksim.local", false, 10000},
		{"Trader Two", "trader2", "trader2@stocksim.local", false, 10000},
	}

	for _, u := range users {
		created, err := database.CreateUser(ctx, u.fullName, u.username, u.email, seedPasswordHash, u.isAdmin)
		if err != nil {
			log.Fatalf("Failed to create user %s: %v", u.username, err)
		}
		if u.cash > 0 {
			if err := database.AdjustUserCash(ctx, database.Pool, created.ID, u.cash); err != nil {
				log.Fatalf("Failed to fund user %s: %v", u.username, err)
			}
		}
	}

	listings := []struct {
		companyName string
		ticker      string
		volume      int64
		price       float64
	}{
		{"Acme Industrial", "ACME", 1000000, 52.30},
		{"Globex Corporation", "GLBX", 500000, 114.75},
		{"Initech Software", "INTK", 750000, 23.10},
		{"Umbrella Holdings", "UMBR", 2000000, 8.45},
	}

	for _, l := range listings {
		if _, err := database.CreateStock(ctx, l.companyName, l.ticker, l.volume, l.price); err != nil {
			log.Fatalf("Failed to create stock %s: %v", l.ticker, err)
		}
	}

	fmt.Println("Successfully seeded the database with users and stocks!")
}
