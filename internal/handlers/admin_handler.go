package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/models"
	"coinfolio/internal/services"
)

// AdminHandler serves the back-office: user balances, holdings and the
// transaction review queue.
type AdminHandler struct {
	userService   services.UserServicer
	walletService services.WalletServicer
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(userService services.UserServicer, walletService services.WalletServicer) *AdminHandler {
	return &AdminHandler{userService: userService, walletService: walletService}
}

// AdminUser is one row of the user list.
type AdminUser struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Role        models.Role     `json:"role"`
	Balance     decimal.Decimal `json:"balance"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	LastLoginAt *time.Time      `json:"last_login_at,omitempty"`
}

// SetBalanceRequest overwrites a user's cash balance.
type SetBalanceRequest struct {
	Balance json.Number `json:"balance" binding:"required,nonneg_decimal" swaggertype:"string" example:"1000"`
}

// SetHoldingsRequest replaces a user's holdings; amounts keyed by symbol.
type SetHoldingsRequest struct {
	Holdings map[string]json.Number `json:"holdings" binding:"required,dive,keys,asset_symbol,endkeys,nonneg_decimal" swaggertype:"object"`
}

// RejectRequest carries an optional note shown to the user.
type RejectRequest struct {
	Note string `json:"note" binding:"max=500"`
}

// ListUsers lists every user
// @Summary     List users
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]AdminUser "Users"
// @Failure     403 {object} ErrorResponse "Admin role required"
// @Router      /admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers()
	if err != nil {
		respondWithError(c, err)
		return
	}

	out := make([]AdminUser, len(users))
	for i, u := range users {
		out[i] = AdminUser{
			ID:          u.ID,
			Email:       u.Email,
			Role:        u.Role,
			Balance:     u.Balance,
			IsActive:    u.IsActive,
			CreatedAt:   u.CreatedAt,
			LastLoginAt: u.LastLoginAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// SetBalance overwrites a user's balance
// @Summary     Set user balance
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "User ID"
// @Param       request body SetBalanceRequest true "New balance"
// @Success     200 {object} map[string]AdminUser "Updated user"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /admin/users/{id}/balance [put]
func (h *AdminHandler) SetBalance(c *gin.Context) {
	var req SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}
	balance, err := parseAmount(req.Balance.String())
	if err != nil {
		respondWithError(c, err)
		return
	}

	user, err := h.userService.SetBalance(c.Request.Context(), c.Param("id"), balance)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": AdminUser{
		ID:       user.ID,
		Email:    user.Email,
		Role:     user.Role,
		Balance:  user.Balance,
		IsActive: user.IsActive,
	}})
}

// SetHoldings replaces a user's holdings
// @Summary     Set user holdings
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "User ID"
// @Param       request body SetHoldingsRequest true "Amounts by symbol"
// @Success     200 {object} map[string][]models.Holding "Holdings"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "User not found"
// @Router      /admin/users/{id}/holdings [put]
func (h *AdminHandler) SetHoldings(c *gin.Context) {
	var req SetHoldingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	amounts := make(map[string]decimal.Decimal, len(req.Holdings))
	for symbol, raw := range req.Holdings {
		amount, err := parseAmount(raw.String())
		if err != nil {
			respondWithError(c, err)
			return
		}
		amounts[symbol] = amount
	}

	holdings, err := h.userService.SetHoldings(c.Request.Context(), c.Param("id"), amounts)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"holdings": holdings})
}

// ListTransactions lists transactions for review
// @Summary     List transactions
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       status query string false "pending, approved or rejected"
// @Success     200 {object} map[string][]models.Transaction "Transactions, oldest first"
// @Failure     400 {object} ErrorResponse "Invalid status"
// @Router      /admin/transactions [get]
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	var filter *models.TransactionStatus
	if raw := c.Query("status"); raw != "" {
		status := models.TransactionStatus(raw)
		switch status {
		case models.TransactionStatusPending, models.TransactionStatusApproved, models.TransactionStatusRejected:
		default:
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "status must be pending, approved or rejected"))
			return
		}
		filter = &status
	}

	txs, err := h.walletService.ListTransactions(filter)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

// Approve settles a pending transaction
// @Summary     Approve transaction
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Success     200 {object} map[string]models.Transaction "Approved transaction"
// @Failure     400 {object} ErrorResponse "Insufficient balance"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Already reviewed"
// @Router      /admin/transactions/{id}/approve [post]
func (h *AdminHandler) Approve(c *gin.Context) {
	adminID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	tx, err := h.walletService.ApproveTransaction(c.Request.Context(), adminID, c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}

// Reject closes a pending transaction without moving funds
// @Summary     Reject transaction
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Transaction ID"
// @Param       request body RejectRequest false "Optional note"
// @Success     200 {object} map[string]models.Transaction "Rejected transaction"
// @Failure     404 {object} ErrorResponse "Transaction not found"
// @Failure     409 {object} ErrorResponse "Already reviewed"
// @Router      /admin/transactions/{id}/reject [post]
func (h *AdminHandler) Reject(c *gin.Context) {
	adminID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RejectRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
	}

	tx, err := h.walletService.RejectTransaction(c.Request.Context(), adminID, c.Param("id"), req.Note)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transaction": tx})
}
