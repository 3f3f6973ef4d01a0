package market

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestProperty_NextPriceRoundsToCents(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		// Prices come from the database already rounded to cents.
		cents := rapid.Int64Range(1, 10_000_000).Draw(t, "cents")
		pct := rapid.Float64Range(-maxTickPct, maxTickPct).Draw(t, "pct")

		got := nextPrice(float64(cents)/100, pct)

		scaled := got * 100
		if math.Abs(scaled-math.Round(scaled)) > 1e-6 {
			t.Fatalf("nextPrice produced more than 2 decimal places: %v", got)
		}
	})
}

func TestProperty_NextPriceStaysWithinStep(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(1, 10_000_000).Draw(t, "cents")
		pct := rapid.Float64Range(-maxTickPct, maxTickPct).Draw(t, "pct")
		current := float64(cents) / 100

		got := nextPrice(current, pct)

		// The rounded result may differ from the exact walk step by at
		// most half a cent.
		exact := current * (1 + pct)
		if math.Abs(got-exact) > 0.005+1e-9 {
			t.Fatalf("nextPrice(%v, %v) = %v, drifted from exact step %v", current, pct, got, exact)
		}
		if got < 0 {
			t.Fatalf("nextPrice(%v, %v) went negative: %v", current, pct, got)
		}
	})
}
