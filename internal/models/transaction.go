package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of wallet transaction
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// TransactionStatus is where a transaction is in admin review.
type TransactionStatus string

const (
	TransactionStatusPending  TransactionStatus = "pending"
	TransactionStatusApproved TransactionStatus = "approved"
	TransactionStatusRejected TransactionStatus = "rejected"
)

// Transaction is a deposit or withdrawal request. Balances only move when an
// admin approves it.
type Transaction struct {
	Base
	UserID     string            `gorm:"type:uuid;not null;index" json:"user_id"`
	Type       TransactionType   `gorm:"not null" json:"type"`
	Amount     decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"amount"`
	Fee        decimal.Decimal   `gorm:"type:numeric(20,8);not null;default:0" json:"fee"`
	Status     TransactionStatus `gorm:"not null;default:pending;index" json:"status"`
	Address    string            `json:"address,omitempty"`
	Note       string            `json:"note,omitempty"`
	ReviewedBy string            `gorm:"size:36" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// Total is what the transaction moves: amount plus fee.
func (t *Transaction) Total() decimal.Decimal {
	return t.Amount.Add(t.Fee)
}
