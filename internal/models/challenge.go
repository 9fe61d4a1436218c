package models

import (
	"time"

	"gorm.io/gorm"
)

// Challenge statuses. Active is the initial state; passed and failed are
// terminal and never transition again.
const (
	StatusActive = "active"
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// Challenge is one evaluation episode: a fixed start balance, a live
// equity figure mutated by every settled trade, and a pass/fail status.
// At most one challenge per account is active at any time.
type Challenge struct {
	gorm.Model
	AccountID     uint      `gorm:"index;not null" json:"account_id"`
	StartBalance  float64   `gorm:"not null" json:"start_balance"`
	CurrentEquity float64   `gorm:"not null" json:"current_equity"`
	Status        string    `gorm:"not null;default:active" json:"status"`
	StartedAt     time.Time `json:"started_at"`
	Trades        []Trade   `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Terminal reports whether the challenge has reached a final state.
func (c *Challenge) Terminal() bool {
	return c.Status == StatusPassed || c.Status == StatusFailed
}
