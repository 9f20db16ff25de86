package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "coinfolio/internal/errors"
)

// ProfileShape identifies which known response layout a profile came in.
type ProfileShape int

const (
	// ShapeFlat is {"user": {...}, "portfolio": {...}}.
	ShapeFlat ProfileShape = iota + 1
	// ShapeNested is {"data": {"user": {...}, "portfolio": {...}}}.
	ShapeNested
)

// String implements fmt.Stringer.
func (s ProfileShape) String() string {
	switch s {
	case ShapeFlat:
		return "flat"
	case ShapeNested:
		return "nested"
	default:
		return "unknown"
	}
}

// HoldingAmount is one asset position reported by the profile endpoint.
type HoldingAmount struct {
	Symbol string
	Amount decimal.Decimal
}

// Profile is the authoritative account state returned by GET /api/auth/me.
type Profile struct {
	Shape          ProfileShape
	UserID         string
	Email          string
	Balance        decimal.Decimal
	PortfolioValue *decimal.Decimal
	// Holdings is nil when the response carried no portfolio object.
	Holdings []HoldingAmount
}

// FetchProfile fetches the authenticated user's profile.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/me", authed: true}, &raw); err != nil {
		return nil, err
	}
	profile, err := DecodeProfile(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrMalformedResponse, err)
	}
	return profile, nil
}

type profileUser struct {
	ID             json.RawMessage  `json:"id"`
	Email          string           `json:"email"`
	Balance        *decimal.Decimal `json:"balance"`
	PortfolioValue *decimal.Decimal `json:"portfolio_value"`
}

type profileBody struct {
	User      *profileUser               `json:"user"`
	Portfolio map[string]json.RawMessage `json:"portfolio"`
}

type profileEnvelope struct {
	profileBody
	Data *profileBody `json:"data"`
}

// DecodeProfile decodes a profile body in one of the known shapes. Any other
// shape, or a missing or non-numeric balance, is an error.
func DecodeProfile(raw []byte) (*Profile, error) {
	var env profileEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}

	var body *profileBody
	var shape ProfileShape
	switch {
	case env.User != nil:
		body, shape = &env.profileBody, ShapeFlat
	case env.Data != nil && env.Data.User != nil:
		body, shape = env.Data, ShapeNested
	default:
		return nil, fmt.Errorf("decoding profile: no user object in response")
	}

	if body.User.Balance == nil {
		return nil, fmt.Errorf("decoding profile: user.balance is missing")
	}

	return &Profile{
		Shape:          shape,
		UserID:         rawID(body.User.ID),
		Email:          body.User.Email,
		Balance:        *body.User.Balance,
		PortfolioValue: body.User.PortfolioValue,
		Holdings:       holdingsFromPortfolio(body.Portfolio),
	}, nil
}

// holdingsFromPortfolio turns {"btc_balance": 0.5, ...} into holdings sorted
// by symbol. Keys without the _balance suffix are ignored; non-numeric or
// negative amounts become zero. A response without a portfolio yields nil.
func holdingsFromPortfolio(portfolio map[string]json.RawMessage) []HoldingAmount {
	if portfolio == nil {
		return nil
	}
	out := make([]HoldingAmount, 0, len(portfolio))
	for key, raw := range portfolio {
		symbol, ok := strings.CutSuffix(strings.ToLower(key), "_balance")
		if !ok || symbol == "" {
			continue
		}
		out = append(out, HoldingAmount{
			Symbol: strings.ToUpper(symbol),
			Amount: rawAmount(raw),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func rawAmount(raw json.RawMessage) decimal.Decimal {
	s := strings.TrimSpace(string(raw))
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

func rawID(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
