package challenge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"tradesense/internal/config"
	"tradesense/internal/market"
	"tradesense/internal/models"
)

// Domain errors surfaced to the caller. Quote availability failures are
// reported as *market.UnavailableError and are not listed here.
var (
	// ErrNoActiveChallenge means a trade was attempted with no active
	// episode; the caller should start a challenge first.
	ErrNoActiveChallenge = errors.New("no active challenge")

	// ErrChallengeOver means the challenge reached a terminal state.
	// A finished episode is immutable: trading against it is refused
	// rather than settled with no status change.
	ErrChallengeOver = errors.New("challenge already finished")

	// ErrNoChallenge means no challenge has ever been started.
	ErrNoChallenge = errors.New("no challenge started")

	// ErrNoAccount means no account exists yet; one is created by the
	// first challenge start.
	ErrNoAccount = errors.New("no account")

	ErrInvalidTicker = errors.New("ticker must not be empty")
	ErrInvalidAmount = errors.New("amount must be a non-negative number")
)

// Engine owns the account/challenge/trade lifecycle: starting an episode,
// settling trades against quotes, applying the pass/fail rules and
// reporting account state.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	provider market.Provider
	db       *gorm.DB

	mu  sync.Mutex // rand.Rand is not safe for concurrent use
	rng *rand.Rand
}

// NewEngine creates a new challenge engine. The rand source drives the
// simulated settlement outcome and is injected so tests can seed it.
func NewEngine(logger *zap.Logger, cfg *config.Config, provider market.Provider, db *gorm.DB, rng *rand.Rand) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		provider: provider,
		db:       db,
		rng:      rng,
	}
}

// TradeRequest is a settlement request for a notional amount on a ticker.
type TradeRequest struct {
	Ticker string
	Type   string
	Amount float64
}

// TradeResult reports the outcome of a settled trade.
type TradeResult struct {
	Trade      models.Trade
	NewBalance float64
	Status     string
}

// EnsureAccount returns the first account, creating one with the
// configured default name if the store is empty.
func (e *Engine) EnsureAccount(ctx context.Context) (*models.Account, error) {
	var account models.Account
	err := e.db.WithContext(ctx).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		account = models.Account{Name: e.cfg.Challenge.AccountName}
		if err := e.db.WithContext(ctx).Create(&account).Error; err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
		e.logger.Info("Created default account",
			zap.Uint("account_id", account.ID),
			zap.String("name", account.Name),
		)
		return &account, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return &account, nil
}

// Account returns the first account or ErrNoAccount if none exists.
// Unlike EnsureAccount, it never creates one.
func (e *Engine) Account(ctx context.Context) (*models.Account, error) {
	var account models.Account
	err := e.db.WithContext(ctx).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	return &account, nil
}

// StartChallenge discards every prior challenge owned by the account,
// trades included, and creates a fresh active episode at the configured
// starting balance. This is a destructive reset, not an archival one.
func (e *Engine) StartChallenge(ctx context.Context, accountID uint) (*models.Challenge, error) {
	ch := models.Challenge{
		AccountID:     accountID,
		StartBalance:  e.cfg.Challenge.StartBalance,
		CurrentEquity: e.cfg.Challenge.StartBalance,
		Status:        models.StatusActive,
		StartedAt:     time.Now().UTC(),
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := tx.Model(&models.Challenge{}).Select("id").Where("account_id = ?", accountID)
		if err := tx.Where("challenge_id IN (?)", owned).Delete(&models.Trade{}).Error; err != nil {
			return fmt.Errorf("failed to delete prior trades: %w", err)
		}
		if err := tx.Where("account_id = ?", accountID).Delete(&models.Challenge{}).Error; err != nil {
			return fmt.Errorf("failed to delete prior challenges: %w", err)
		}
		if err := tx.Create(&ch).Error; err != nil {
			return fmt.Errorf("failed to create challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Challenge started",
		zap.Uint("account_id", accountID),
		zap.Uint("challenge_id", ch.ID),
		zap.Float64("start_balance", ch.StartBalance),
	)
	return &ch, nil
}

// ExecuteTrade settles a trade for the account's active challenge: it
// fetches a quote, draws a simulated profit/loss on the requested amount,
// applies the delta to equity, persists the trade record and re-evaluates
// the pass/fail rules. The equity mutation, the trade insert and the
// status evaluation commit as one transaction.
func (e *Engine) ExecuteTrade(ctx context.Context, accountID uint, req TradeRequest) (*TradeResult, error) {
	if req.Ticker == "" {
		return nil, ErrInvalidTicker
	}
	if req.Amount < 0 || math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, ErrInvalidAmount
	}

	var active models.Challenge
	err := e.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, models.StatusActive).
		First(&active).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up active challenge: %w", err)
	}

	quote, err := e.provider.GetQuote(ctx, req.Ticker)
	if err != nil {
		return nil, err
	}

	profit := req.Amount * e.uniform(e.cfg.Challenge.MaxTradeReturn)

	trade := models.Trade{
		ChallengeID: active.ID,
		Symbol:      req.Ticker,
		Type:        req.Type,
		EntryPrice:  quote.Price,
		Volume:      req.Amount / quote.Price,
		Profit:      profit,
		Status:      models.TradeStatusClosed,
	}

	var settled models.Challenge
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-read inside the transaction so concurrent settlements
		// cannot lose an equity update.
		if err := tx.First(&settled, active.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveChallenge
			}
			return fmt.Errorf("failed to reload challenge: %w", err)
		}
		if settled.Terminal() {
			return ErrChallengeOver
		}

		settled.CurrentEquity += profit
		settled.Status = evaluate(&settled, e.cfg.Challenge.Drawdown, e.cfg.Challenge.ProfitTarget)

		if err := tx.Create(&trade).Error; err != nil {
			return fmt.Errorf("failed to save trade: %w", err)
		}
		if err := tx.Model(&settled).
			Updates(map[string]interface{}{
				"current_equity": settled.CurrentEquity,
				"status":         settled.Status,
			}).Error; err != nil {
			return fmt.Errorf("failed to update challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Trade settled",
		zap.Uint("challenge_id", settled.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("type", trade.Type),
		zap.Float64("amount", req.Amount),
		zap.Float64("entry_price", trade.EntryPrice),
		zap.Float64("profit", trade.Profit),
		zap.Float64("new_balance", settled.CurrentEquity),
		zap.String("status", settled.Status),
	)

	return &TradeResult{
		Trade:      trade,
		NewBalance: settled.CurrentEquity,
		Status:     settled.Status,
	}, nil
}

// Snapshot returns the account's most recently created challenge
// regardless of status, or ErrNoChallenge if none was ever started.
func (e *Engine) Snapshot(ctx context.Context, accountID uint) (*models.Challenge, error) {
	var ch models.Challenge
	err := e.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id desc").
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoChallenge
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up challenge: %w", err)
	}
	return &ch, nil
}

// evaluate applies the pass/fail rules to an episode and returns the
// resulting status. Terminal states are kept as-is. The drawdown check
// runs before the profit-target check; the ordering is part of the
// contract even though a single bounded trade delta cannot breach both.
func evaluate(ch *models.Challenge, drawdown, target float64) string {
	if ch.Terminal() {
		return ch.Status
	}
	// Thresholds are compared at cent precision so that an equity sitting
	// exactly on a boundary resolves the way the rule reads: 10% down
	// fails, 10% up passes.
	switch {
	case ch.CurrentEquity <= roundCents(ch.StartBalance*(1-drawdown)):
		return models.StatusFailed
	case ch.CurrentEquity >= roundCents(ch.StartBalance*(1+target)):
		return models.StatusPassed
	default:
		return models.StatusActive
	}
}

func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}

// uniform draws from U(-band, +band).
func (e *Engine) uniform(band float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return (e.rng.Float64()*2 - 1) * band
}
