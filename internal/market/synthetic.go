package market

import (
	"context"
	"math/rand/v2"
	"sync"

	"tradesense/internal/config"
)

// Synthetic produces quotes for domestic tickers by perturbing a fixed
// per-symbol base price with a small uniform offset. It keeps no state and
// never fails except for tickers it has no base price for.
type Synthetic struct {
	cfg *config.Market

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// ensure Synthetic implements the interface
var _ Provider = (*Synthetic)(nil)

// NewSynthetic creates a synthetic quote provider. The rand source is
// injected so tests can seed it.
func NewSynthetic(cfg *config.Market, rng *rand.Rand) *Synthetic {
	return &Synthetic{cfg: cfg, rng: rng}
}

// GetQuote implements Provider.
func (s *Synthetic) GetQuote(_ context.Context, ticker string) (*Quote, error) {
	base, ok := s.cfg.BasePrices[ticker]
	if !ok {
		return nil, &UnavailableError{Ticker: ticker, Reason: ReasonUnknownTicker}
	}

	price := base + s.uniform(s.cfg.PriceVolatility)
	change := s.uniform(s.cfg.ChangeBand)

	return &Quote{
		Ticker:   ticker,
		Price:    round2(price),
		Change:   round2(change),
		Currency: s.cfg.DomesticCurrency,
	}, nil
}

// uniform draws from U(-band, +band).
func (s *Synthetic) uniform(band float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (s.rng.Float64()*2 - 1) * band
}
