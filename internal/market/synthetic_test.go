package market

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"tradesense/internal/config"
)

func testMarketConfig() *config.Market {
	return &config.Market{
		BasePrices:       map[string]float64{"IAM": 92.50, "ATW": 480.00},
		PriceVolatility:  0.5,
		ChangeBand:       1.0,
		DomesticCurrency: "MAD",
		ForeignCurrency:  "$",
	}
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

func TestSynthetic_GetQuote(t *testing.T) {
	cfg := testMarketConfig()
	rng := rand.New(rand.NewPCG(1, 2))
	s := NewSynthetic(cfg, rng)

	// The price must stay inside the volatility band around the base
	// price across many draws, and the currency is always domestic.
	for i := 0; i < 1000; i++ {
		quote, err := s.GetQuote(context.Background(), "IAM")
		assert.NoError(t, err)
		assert.Equal(t, "IAM", quote.Ticker)
		assert.Equal(t, "MAD", quote.Currency)
		assert.GreaterOrEqual(t, quote.Price, 92.00)
		assert.LessOrEqual(t, quote.Price, 93.00)
		assert.GreaterOrEqual(t, quote.Change, -1.0)
		assert.LessOrEqual(t, quote.Change, 1.0)
	}
}

func TestSynthetic_GetQuote_SecondBasePrice(t *testing.T) {
	cfg := testMarketConfig()
	s := NewSynthetic(cfg, rand.New(rand.NewPCG(7, 7)))

	quote, err := s.GetQuote(context.Background(), "ATW")
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, quote.Price, 479.50)
	assert.LessOrEqual(t, quote.Price, 480.50)
}

func TestSynthetic_GetQuote_UnknownTicker(t *testing.T) {
	cfg := testMarketConfig()
	s := NewSynthetic(cfg, rand.New(rand.NewPCG(1, 2)))

	quote, err := s.GetQuote(context.Background(), "AAPL")
	assert.Nil(t, quote)
	assert.True(t, IsUnavailable(err))

	var ue *UnavailableError
	assert.ErrorAs(t, err, &ue)
	assert.Equal(t, ReasonUnknownTicker, ue.Reason)
}

func TestSynthetic_GetQuote_SeededIsDeterministic(t *testing.T) {
	cfg := testMarketConfig()
	a := NewSynthetic(cfg, rand.New(rand.NewPCG(42, 42)))
	b := NewSynthetic(cfg, rand.New(rand.NewPCG(42, 42)))

	qa, err := a.GetQuote(context.Background(), "IAM")
	assert.NoError(t, err)
	qb, err := b.GetQuote(context.Background(), "IAM")
	assert.NoError(t, err)

	assert.Equal(t, qa.Price, qb.Price)
	assert.Equal(t, qa.Change, qb.Change)
}
