package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a deposit or withdrawal request as seen by its owner.
type Transaction struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Amount     decimal.Decimal `json:"amount"`
	Fee        decimal.Decimal `json:"fee"`
	Status     string          `json:"status"`
	Address    string          `json:"address,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ReviewedAt *time.Time      `json:"reviewed_at,omitempty"`
}

// WithdrawalQuote is the fee breakdown for a prospective withdrawal.
type WithdrawalQuote struct {
	Amount decimal.Decimal `json:"amount"`
	Fee    decimal.Decimal `json:"fee"`
	Total  decimal.Decimal `json:"total"`
}

type transactionEnvelope struct {
	Transaction Transaction `json:"transaction"`
}

// Deposit files a deposit request. The balance changes only once an admin
// approves it.
func (c *Client) Deposit(ctx context.Context, amount decimal.Decimal) (*Transaction, error) {
	var out transactionEnvelope
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/wallet/deposits",
		body:   map[string]string{"amount": amount.String()},
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

// RequestWithdrawal files a withdrawal of amount to address.
func (c *Client) RequestWithdrawal(ctx context.Context, amount decimal.Decimal, address string) (*Transaction, error) {
	var out transactionEnvelope
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/wallet/withdrawals",
		body:   map[string]string{"amount": amount.String(), "address": address},
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Transaction, nil
}

// QuoteWithdrawal asks the server what a withdrawal of amount would cost.
func (c *Client) QuoteWithdrawal(ctx context.Context, amount decimal.Decimal) (*WithdrawalQuote, error) {
	var out WithdrawalQuote
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/api/wallet/withdrawals/quote?amount=" + url.QueryEscape(amount.String()),
		authed: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions lists the caller's transactions, newest first.
func (c *Client) Transactions(ctx context.Context) ([]Transaction, error) {
	var out struct {
		Transactions []Transaction `json:"transactions"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/wallet/transactions", authed: true}, &out)
	if err != nil {
		return nil, err
	}
	return out.Transactions, nil
}
