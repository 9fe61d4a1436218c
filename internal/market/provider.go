package market

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Quote is a price snapshot for a ticker at lookup time.
type Quote struct {
	Ticker   string  `json:"ticker"`
	Price    float64 `json:"price"`
	Change   float64 `json:"change"` // percent change over the session
	Currency string  `json:"currency"`
}

// Provider defines the interface for a market quote source.
type Provider interface {
	// GetQuote returns a current quote for the ticker, or an
	// *UnavailableError. It never propagates raw transport or parse
	// faults to the caller.
	GetQuote(ctx context.Context, ticker string) (*Quote, error)
}

// Reasons a quote can be unavailable. UnknownTicker means the source does
// not know the symbol (or has no session data for it); Transient covers
// network faults, upstream errors and malformed responses.
const (
	ReasonUnknownTicker = "unknown_ticker"
	ReasonTransient     = "transient"
)

// UnavailableError reports that no quote could be produced for a ticker.
type UnavailableError struct {
	Ticker string
	Reason string
	Err    error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("quote unavailable for %s (%s): %v", e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("quote unavailable for %s (%s)", e.Ticker, e.Reason)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err signals an unavailable quote.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}

// Router routes domestic tickers to the synthetic provider and everything
// else to the external one.
type Router struct {
	domestic map[string]struct{}
	local    Provider
	external Provider
}

// NewRouter creates a Router. The domestic set is the key set of the
// configured base-price map.
func NewRouter(domestic []string, local, external Provider) *Router {
	set := make(map[string]struct{}, len(domestic))
	for _, s := range domestic {
		set[s] = struct{}{}
	}
	return &Router{domestic: set, local: local, external: external}
}

// GetQuote implements Provider.
func (r *Router) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	if _, ok := r.domestic[ticker]; ok {
		return r.local.GetQuote(ctx, ticker)
	}
	return r.external.GetQuote(ctx, ticker)
}

// round2 rounds to 2 decimal places, the precision quotes are reported in.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
