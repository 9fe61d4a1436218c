package market

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradesense/internal/config"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com"
	chartPath    = "/v8/finance/chart/{ticker}"
	maxRetries   = 3
)

// YahooClient looks up quotes on the Yahoo Finance chart API, the external
// path for any ticker outside the domestic set.
type YahooClient struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	cfg     *config.Market
}

// ensure YahooClient implements the interface
var _ Provider = (*YahooClient)(nil)

// NewYahooClient creates a new Yahoo Finance client with a bounded
// per-request timeout and a client-side rate limiter.
func NewYahooClient(cfg *config.Market, logger *zap.Logger) *YahooClient {
	client := resty.New().
		SetBaseURL(yahooBaseURL).
		SetTimeout(cfg.QuoteTimeout).
		SetHeader("User-Agent", "tradesense/1.0")

	return &YahooClient{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		cfg:     cfg,
	}
}

// chartResponse mirrors the fields we need from the chart endpoint.
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Indicators struct {
		Quote []struct {
			Open  []*float64 `json:"open"`
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// GetQuote implements Provider. Every failure mode collapses into an
// *UnavailableError; callers never see a raw transport or parse fault.
func (c *YahooClient) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	resp, err := c.doRequest(ctx, ticker)
	if err != nil {
		c.logger.Warn("External quote lookup failed",
			zap.String("ticker", ticker),
			zap.Error(err),
		)
		return nil, &UnavailableError{Ticker: ticker, Reason: ReasonTransient, Err: err}
	}

	if resp.StatusCode() == http.StatusNotFound {
		return nil, &UnavailableError{Ticker: ticker, Reason: ReasonUnknownTicker}
	}

	body := resp.Result().(*chartResponse)
	if body.Chart.Error != nil {
		return nil, &UnavailableError{
			Ticker: ticker,
			Reason: ReasonUnknownTicker,
			Err:    fmt.Errorf("upstream: %s", body.Chart.Error.Description),
		}
	}

	open, close, ok := sessionBar(body)
	if !ok {
		// Known symbol but no session data, e.g. a delisted ticker.
		return nil, &UnavailableError{Ticker: ticker, Reason: ReasonUnknownTicker}
	}

	change := (close - open) / open * 100

	return &Quote{
		Ticker:   ticker,
		Price:    round2(close),
		Change:   round2(change),
		Currency: c.cfg.ForeignCurrency,
	}, nil
}

// doRequest executes the chart request with rate limiting and bounded
// retries. Only 429 and 5xx responses (and transport errors) are retried;
// a 404 is returned to the caller as-is.
func (c *YahooClient) doRequest(ctx context.Context, ticker string) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		resp, err = c.client.R().
			SetContext(ctx).
			SetPathParam("ticker", ticker).
			SetQueryParam("range", "1d").
			SetQueryParam("interval", "1d").
			SetResult(&chartResponse{}).
			Get(chartPath)

		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if err == nil && resp.StatusCode() == http.StatusNotFound {
			return resp, nil
		}

		shouldRetry := err != nil ||
			resp.StatusCode() == http.StatusTooManyRequests ||
			resp.StatusCode() >= 500
		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s", resp.Status())
		}

		// Exponential backoff: 1s, 2s, 4s
		retryAfter := time.Duration(math.Pow(2, float64(i))) * time.Second
		c.logger.Warn("Quote request failed, retrying...",
			zap.String("ticker", ticker),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
	}
	return nil, fmt.Errorf("request failed after %d attempts with status %s", maxRetries, resp.Status())
}

// sessionBar extracts the session open and the most recent close from a
// chart response. Yahoo pads the arrays with nulls outside trading hours.
func sessionBar(body *chartResponse) (open, close float64, ok bool) {
	if len(body.Chart.Result) == 0 {
		return 0, 0, false
	}
	quotes := body.Chart.Result[0].Indicators.Quote
	if len(quotes) == 0 {
		return 0, 0, false
	}

	bar := quotes[0]
	for _, v := range bar.Open {
		if v != nil {
			open = *v
			break
		}
	}
	for i := len(bar.Close) - 1; i >= 0; i-- {
		if bar.Close[i] != nil {
			close = *bar.Close[i]
			break
		}
	}

	if open == 0 || close == 0 {
		return 0, 0, false
	}
	return open, close, true
}
