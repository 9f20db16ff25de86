package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"coinfolio/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// TestPassword is the plain-text password of every fixture user.
const TestPassword = "password123"

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	return createUser(t, db, email, models.RoleUser, decimal.Zero)
}

// CreateTestUserWithBalance creates a user holding balance in cash.
func CreateTestUserWithBalance(t *testing.T, db *gorm.DB, balance string) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return createUser(t, db, email, models.RoleUser, decimal.RequireFromString(balance))
}

// CreateTestAdmin creates a user with the admin role.
func CreateTestAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("admin%d@test.com", nextID())
	return createUser(t, db, email, models.RoleAdmin, decimal.Zero)
}

func createUser(t *testing.T, db *gorm.DB, email string, role models.Role, balance decimal.Decimal) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Role:     role,
		Balance:  balance,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestHolding gives a user amount of symbol.
func CreateTestHolding(t *testing.T, db *gorm.DB, userID, symbol, amount string) *models.Holding {
	t.Helper()

	holding := &models.Holding{
		UserID: userID,
		Symbol: symbol,
		Amount: decimal.RequireFromString(amount),
	}
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return holding
}

// CreateTestTransaction creates a pending wallet transaction.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID string, txType models.TransactionType, amount, fee string) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID: userID,
		Type:   txType,
		Amount: decimal.RequireFromString(amount),
		Fee:    decimal.RequireFromString(fee),
		Status: models.TransactionStatusPending,
	}
	if txType == models.TransactionTypeWithdrawal {
		tx.Address = "bc1qtestaddress"
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestAssetPrice stores a cached market price.
func CreateTestAssetPrice(t *testing.T, db *gorm.DB, assetID, usd string) *models.AssetPrice {
	t.Helper()

	price := &models.AssetPrice{
		AssetID: assetID,
		USD:     decimal.RequireFromString(usd),
	}
	if err := db.Create(price).Error; err != nil {
		t.Fatalf("failed to create test asset price: %v", err)
	}
	return price
}
