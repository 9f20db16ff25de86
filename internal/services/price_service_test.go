package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"coinfolio/internal/models"
	"coinfolio/internal/testutil"
)

func TestPriceService_Refresh(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	lookup := &stubLookup{prices: map[string]decimal.Decimal{"bitcoin": dec("60000"), "ethereum": dec("3000")}}
	svc := NewPriceService(db, lookup, []string{"ethereum", "bitcoin"})

	testutil.AssertNoError(t, svc.Refresh(context.Background()))

	prices, err := svc.Prices(context.Background(), []string{"bitcoin"})
	testutil.AssertNoError(t, err)
	if !prices["bitcoin"].Equal(dec("60000")) {
		t.Errorf("expected cached bitcoin price, got %s", prices["bitcoin"])
	}
	if len(lookup.calls) != 1 {
		t.Errorf("expected cached read without a lookup, got %d calls", len(lookup.calls))
	}

	if count := testutil.CountRows(t, db, &models.AssetPrice{}); count != 2 {
		t.Errorf("expected 2 persisted prices, got %d", count)
	}

	// A second refresh upserts rather than duplicating rows.
	lookup.prices["bitcoin"] = dec("61000")
	testutil.AssertNoError(t, svc.Refresh(context.Background()))
	if count := testutil.CountRows(t, db, &models.AssetPrice{}); count != 2 {
		t.Errorf("expected 2 persisted prices after upsert, got %d", count)
	}
}

func TestPriceService_RestoresFromDatabase(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	testutil.CreateTestAssetPrice(t, db, "solana", "150")

	svc := NewPriceService(db, nil, nil)
	prices, err := svc.Prices(context.Background(), []string{"solana", "unknown"})
	testutil.AssertNoError(t, err)

	if !prices["solana"].Equal(dec("150")) {
		t.Errorf("expected restored price 150, got %s", prices["solana"])
	}
	if _, ok := prices["unknown"]; ok {
		t.Error("unknown ids must be omitted")
	}
}

func TestPriceService_FetchesUntrackedOnDemand(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	lookup := &stubLookup{prices: map[string]decimal.Decimal{"dogecoin": dec("0.1")}}
	svc := NewPriceService(db, lookup, nil)

	prices, err := svc.Prices(context.Background(), []string{"dogecoin", "nope"})
	testutil.AssertNoError(t, err)
	if !prices["dogecoin"].Equal(dec("0.1")) || len(prices) != 1 {
		t.Errorf("unexpected prices %v", prices)
	}

	_, _ = svc.Prices(context.Background(), []string{"dogecoin"})
	if len(lookup.calls) != 1 {
		t.Errorf("expected the fetched price to be cached, got %d calls", len(lookup.calls))
	}
}

func TestPriceService_Unavailable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	lookup := &stubLookup{err: errors.New("upstream down")}
	svc := NewPriceService(db, lookup, []string{"bitcoin"})

	if err := svc.Refresh(context.Background()); err == nil {
		t.Error("expected refresh error")
	}
	_, err := svc.Prices(context.Background(), []string{"bitcoin"})
	testutil.AssertAppError(t, err, "PRICES_UNAVAILABLE")
}

func TestPriceService_StartRejectsBadSchedule(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	svc := NewPriceService(db, nil, nil)
	if err := svc.Start("not a schedule"); err == nil {
		t.Error("expected schedule error")
	}
	svc.Stop()
}
