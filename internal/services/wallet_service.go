package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/models"
	"coinfolio/internal/updates"
	"coinfolio/internal/uuid"
)

// FeeSchedule prices withdrawals: the larger of a flat fee and a percentage
// of the amount.
type FeeSchedule struct {
	Flat decimal.Decimal
	Rate decimal.Decimal
}

// DefaultFeeSchedule is 2.00 flat or 1%, whichever is larger.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{Flat: decimal.NewFromInt(2), Rate: decimal.RequireFromString("0.01")}
}

// Fee returns the withdrawal fee for amount.
func (f FeeSchedule) Fee(amount decimal.Decimal) decimal.Decimal {
	return decimal.Max(f.Flat, amount.Mul(f.Rate).Round(8))
}

// WithdrawalQuote is what a withdrawal of Amount would cost.
type WithdrawalQuote struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

// walletService handles deposit and withdrawal requests.
type walletService struct {
	db        *gorm.DB
	fees      FeeSchedule
	publisher updates.Publisher
}

// NewWalletService creates a new WalletServicer. publisher may be nil.
func NewWalletService(db *gorm.DB, fees FeeSchedule, publisher updates.Publisher) WalletServicer {
	return &walletService{db: db, fees: fees, publisher: publisher}
}

// QuoteWithdrawal prices a withdrawal without creating it.
func (s *walletService) QuoteWithdrawal(amount decimal.Decimal) (*WithdrawalQuote, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	fee := s.fees.Fee(amount)
	return &WithdrawalQuote{Amount: amount, Fee: fee, Total: amount.Add(fee)}, nil
}

// RequestDeposit records a pending deposit. The balance is credited on approval.
func (s *walletService) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, apperrors.ErrInvalidAmount
	}
	if err := s.userExists(userID); err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		UserID: userID,
		Type:   models.TransactionTypeDeposit,
		Amount: amount,
		Fee:    decimal.Zero,
		Status: models.TransactionStatusPending,
	}
	if err := s.db.Create(tx).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	publish(ctx, s.publisher, userID)
	return tx, nil
}

// RequestWithdrawal records a pending withdrawal to address. The current
// balance must cover amount plus fee; it is checked again on approval.
func (s *walletService) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, address string) (*models.Transaction, error) {
	quote, err := s.QuoteWithdrawal(amount)
	if err != nil {
		return nil, err
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "withdrawal address is required")
	}

	if !uuid.IsValid(userID) {
		return nil, apperrors.ErrUserNotFound
	}
	var user models.User
	if err := s.db.Select("id", "balance").Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if user.Balance.LessThan(quote.Total) {
		return nil, apperrors.ErrInsufficientBalance
	}

	tx := &models.Transaction{
		UserID:  userID,
		Type:    models.TransactionTypeWithdrawal,
		Amount:  quote.Amount,
		Fee:     quote.Fee,
		Status:  models.TransactionStatusPending,
		Address: address,
	}
	if err := s.db.Create(tx).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	publish(ctx, s.publisher, userID)
	return tx, nil
}

// ListUserTransactions returns a user's transactions, newest first.
func (s *walletService) ListUserTransactions(userID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return txs, nil
}

// ListTransactions returns every transaction, optionally filtered by status,
// oldest first so the review queue reads in arrival order.
func (s *walletService) ListTransactions(status *models.TransactionStatus) ([]models.Transaction, error) {
	query := s.db.Preload("User").Order("created_at ASC")
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var txs []models.Transaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return txs, nil
}

// ApproveTransaction settles a pending transaction: deposits credit the
// amount, withdrawals debit amount plus fee.
func (s *walletService) ApproveTransaction(ctx context.Context, adminID, transactionID string) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		t, err := s.review(tx, adminID, transactionID, models.TransactionStatusApproved, "")
		if err != nil {
			return err
		}

		var balance *gorm.DB
		switch t.Type {
		case models.TransactionTypeDeposit:
			balance = tx.Model(&models.User{}).
				Where("id = ?", t.UserID).
				Update("balance", gorm.Expr("balance + ?", t.Amount))
		case models.TransactionTypeWithdrawal:
			total := t.Total()
			balance = tx.Model(&models.User{}).
				Where("id = ? AND balance >= ?", t.UserID, total).
				Update("balance", gorm.Expr("balance - ?", total))
		default:
			return apperrors.WithMessage(apperrors.ErrInvalidInput, "unknown transaction type")
		}
		if balance.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, balance.Error)
		}
		if balance.RowsAffected == 0 {
			if t.Type == models.TransactionTypeWithdrawal {
				return apperrors.ErrInsufficientBalance
			}
			return apperrors.ErrUserNotFound
		}

		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, result.UserID)
	return result, nil
}

// RejectTransaction closes a pending transaction without moving funds.
func (s *walletService) RejectTransaction(ctx context.Context, adminID, transactionID, note string) (*models.Transaction, error) {
	var result *models.Transaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		t, err := s.review(tx, adminID, transactionID, models.TransactionStatusRejected, note)
		result = t
		return err
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, result.UserID)
	return result, nil
}

// review moves a pending transaction to status. The status check is part of
// the UPDATE so two concurrent reviews cannot both succeed.
func (s *walletService) review(tx *gorm.DB, adminID, transactionID string, status models.TransactionStatus, note string) (*models.Transaction, error) {
	if !uuid.IsValid(transactionID) {
		return nil, apperrors.ErrTransactionNotFound
	}
	var t models.Transaction
	if err := tx.Where("id = ?", transactionID).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTransactionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if t.Status != models.TransactionStatusPending {
		return nil, apperrors.ErrTransactionNotPending
	}

	now := time.Now()
	fields := map[string]interface{}{
		"status":      status,
		"reviewed_by": adminID,
		"reviewed_at": now,
	}
	if note != "" {
		fields["note"] = note
	}
	res := tx.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", t.ID, models.TransactionStatusPending).
		Updates(fields)
	if res.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperrors.ErrTransactionNotPending
	}

	t.Status = status
	t.ReviewedBy = adminID
	t.ReviewedAt = &now
	if note != "" {
		t.Note = note
	}
	return &t, nil
}

func (s *walletService) userExists(userID string) error {
	if !uuid.IsValid(userID) {
		return apperrors.ErrUserNotFound
	}
	var count int64
	if err := s.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if count == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}
