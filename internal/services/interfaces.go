package services

import (
	"context"

	"github.com/shopspring/decimal"

	"coinfolio/internal/models"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	ListUsers() ([]models.User, error)
	GetHoldings(userID string) ([]models.Holding, error)
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) (*models.User, error)
	SetHoldings(ctx context.Context, userID string, amounts map[string]decimal.Decimal) ([]models.Holding, error)
	EnsureAdmin(email, password string) (*models.User, error)
}

// WalletServicer defines the contract for deposits, withdrawals and their
// admin review.
type WalletServicer interface {
	QuoteWithdrawal(amount decimal.Decimal) (*WithdrawalQuote, error)
	RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.Transaction, error)
	RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, address string) (*models.Transaction, error)
	ListUserTransactions(userID string) ([]models.Transaction, error)
	ListTransactions(status *models.TransactionStatus) ([]models.Transaction, error)
	ApproveTransaction(ctx context.Context, adminID, transactionID string) (*models.Transaction, error)
	RejectTransaction(ctx context.Context, adminID, transactionID, note string) (*models.Transaction, error)
}

// PriceServicer defines the contract for the market price cache.
type PriceServicer interface {
	Prices(ctx context.Context, ids []string) (map[string]decimal.Decimal, error)
	Refresh(ctx context.Context) error
}

// ProfileServicer assembles the profile the sync client polls.
type ProfileServicer interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}
