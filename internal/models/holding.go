package models

import "github.com/shopspring/decimal"

// Holding is the amount of one crypto asset a user owns.
type Holding struct {
	Base
	UserID string          `gorm:"type:uuid;not null;uniqueIndex:idx_holdings_user_symbol" json:"user_id"`
	Symbol string          `gorm:"size:16;not null;uniqueIndex:idx_holdings_user_symbol" json:"symbol"`
	Amount decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0" json:"amount"`
}
