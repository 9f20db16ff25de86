package services

import (
	"context"

	"github.com/shopspring/decimal"

	"coinfolio/internal/models"
	"coinfolio/internal/pricing"
)

// Profile is the account state served by GET /api/auth/me.
type Profile struct {
	User           *models.User
	Holdings       []models.Holding
	PortfolioValue decimal.Decimal
}

// profileService combines users, holdings and prices.
type profileService struct {
	users  UserServicer
	prices PriceServicer
	ids    pricing.SymbolIDs
}

// NewProfileService creates a new ProfileServicer.
func NewProfileService(users UserServicer, prices PriceServicer, ids pricing.SymbolIDs) ProfileServicer {
	if ids == nil {
		ids = pricing.DefaultSymbolIDs()
	}
	return &profileService{users: users, prices: prices, ids: ids}
}

// GetProfile loads the user with holdings valued at cached prices. Holdings
// without a known price count as zero; a price outage never fails the profile.
func (s *profileService) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.users.GetHoldings(userID)
	if err != nil {
		return nil, err
	}

	value := decimal.Zero
	symbols := make([]string, len(holdings))
	for i, h := range holdings {
		symbols[i] = h.Symbol
	}
	if ids := s.ids.IDs(symbols); len(ids) > 0 && s.prices != nil {
		prices, err := s.prices.Prices(ctx, ids)
		if err == nil {
			for _, h := range holdings {
				if id, ok := s.ids.ID(h.Symbol); ok {
					value = value.Add(h.Amount.Mul(prices[id]))
				}
			}
		}
	}

	return &Profile{User: user, Holdings: holdings, PortfolioValue: value}, nil
}
