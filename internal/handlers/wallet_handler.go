package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/services"
)

// WalletHandler handles deposit and withdrawal requests
type WalletHandler struct {
	walletService services.WalletServicer
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(walletService services.WalletServicer) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// DepositRequest represents a deposit request. Amount may be a JSON number or
// a numeric string.
type DepositRequest struct {
	Amount json.Number `json:"amount" binding:"required,positive_decimal" swaggertype:"string" example:"100.00"`
}

// WithdrawalRequest represents a withdrawal request
type WithdrawalRequest struct {
	Amount  json.Number `json:"amount" binding:"required,positive_decimal" swaggertype:"string" example:"50.00"`
	Address string      `json:"address" binding:"required,max=128"`
}

// Deposit files a deposit request
// @Summary     Request a deposit
// @Description File a deposit; the balance is credited once an admin approves it
// @Tags        wallet
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body DepositRequest true "Deposit amount"
// @Success     201 {object} map[string]models.Transaction "Pending transaction"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /wallet/deposits [post]
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	amount, err := parseAmount(req.Amount.String())
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.walletService.RequestDeposit(c.Request.Context(), userID, amount)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// Withdraw files a withdrawal request
// @Summary     Request a withdrawal
// @Description File a withdrawal to an external address; amount plus fee is debited on approval
// @Tags        wallet
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body WithdrawalRequest true "Withdrawal"
// @Success     201 {object} map[string]models.Transaction "Pending transaction"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient balance"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /wallet/withdrawals [post]
func (h *WalletHandler) Withdraw(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	amount, err := parseAmount(req.Amount.String())
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.walletService.RequestWithdrawal(c.Request.Context(), userID, amount, req.Address)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transaction": tx})
}

// Quote prices a withdrawal
// @Summary     Quote a withdrawal
// @Tags        wallet
// @Produce     json
// @Security    BearerAuth
// @Param       amount query string true "Withdrawal amount"
// @Success     200 {object} services.WithdrawalQuote "Fee breakdown"
// @Failure     400 {object} ErrorResponse "Invalid amount"
// @Router      /wallet/withdrawals/quote [get]
func (h *WalletHandler) Quote(c *gin.Context) {
	amount, err := parseAmount(c.Query("amount"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	quote, err := h.walletService.QuoteWithdrawal(amount)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

// Transactions lists the caller's transactions
// @Summary     List my transactions
// @Tags        wallet
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.Transaction "Transactions, newest first"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /wallet/transactions [get]
func (h *WalletHandler) Transactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	txs, err := h.walletService.ListUserTransactions(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}
