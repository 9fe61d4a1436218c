package models

import "gorm.io/gorm"

// TradeStatusClosed is the only trade status in this flow: trades settle
// instantly, no open-position lifecycle is modelled.
const TradeStatusClosed = "closed"

// Trade is an immutable settlement record. It is written exactly once per
// trade request and never mutated afterwards; it only disappears when a new
// challenge start cascades the old episode away.
type Trade struct {
	gorm.Model
	ChallengeID uint     `gorm:"index;not null" json:"challenge_id"`
	Symbol      string   `gorm:"not null" json:"symbol"`
	Type        string   `gorm:"not null" json:"type"` // e.g. "buy" or "sell"
	EntryPrice  float64  `gorm:"not null" json:"entry_price"`
	Volume      float64  `gorm:"not null" json:"volume"`
	ExitPrice   *float64 `json:"exit_price,omitempty"`
	Profit      float64  `json:"profit"`
	Status      string   `gorm:"not null;default:closed" json:"status"`
}
