package testutil_test

import (
	"testing"

	"coinfolio/internal/errors"
	"coinfolio/internal/models"
	"coinfolio/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{"users", "holdings", "transactions", "asset_prices"} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestSetupTestDB_Isolated(t *testing.T) {
	first := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, first)
	second := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, second)

	testutil.CreateTestUser(t, first)

	if count := testutil.CountRows(t, second, &models.User{}); count != 0 {
		t.Errorf("expected an empty second database, found %d users", count)
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUserWithBalance(t, db, "150.25")
	if user.ID == "" {
		t.Fatal("user should have an ID")
	}
	testutil.AssertBalance(t, db, user.ID, "150.250")
	if user.IsAdmin() {
		t.Error("fixture user should not be an admin")
	}

	admin := testutil.CreateTestAdmin(t, db)
	if !admin.IsAdmin() {
		t.Error("expected admin role")
	}

	holding := testutil.CreateTestHolding(t, db, user.ID, "BTC", "0.5")
	if holding.Symbol != "BTC" {
		t.Errorf("expected BTC holding, got %s", holding.Symbol)
	}

	tx := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeWithdrawal, "100", "2")
	if tx.Status != models.TransactionStatusPending {
		t.Errorf("expected pending, got %s", tx.Status)
	}
	testutil.AssertDecimal(t, "total", tx.Total(), "102.00")
}

func TestAssertAppError(t *testing.T) {
	testutil.AssertAppError(t, errors.ErrNotFound, "NOT_FOUND")
	testutil.AssertAppError(t, errors.Wrap(errors.ErrInternalServer, nil), "INTERNAL_ERROR")
}
