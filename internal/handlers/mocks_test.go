package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"coinfolio/internal/middleware"
	"coinfolio/internal/models"
	"coinfolio/internal/services"
	"coinfolio/internal/validator"
)

// --- mock services ---

type mockUserService struct {
	createUserFn     func(email, password string) (*models.User, error)
	getUserByEmailFn func(email string) (*models.User, error)
	getUserByIDFn    func(id string) (*models.User, error)
	attemptLoginFn   func(email, password string) (*models.User, error)
	listUsersFn      func() ([]models.User, error)
	getHoldingsFn    func(userID string) ([]models.Holding, error)
	setBalanceFn     func(userID string, balance decimal.Decimal) (*models.User, error)
	setHoldingsFn    func(userID string, amounts map[string]decimal.Decimal) ([]models.Holding, error)
}

func (m *mockUserService) CreateUser(email, password string) (*models.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByEmail(email string) (*models.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(email)
	}
	return &models.User{}, nil
}

func (m *mockUserService) GetUserByID(id string) (*models.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(id)
	}
	return &models.User{}, nil
}

func (m *mockUserService) VerifyPassword(_ *models.User, _ string) bool { return true }

func (m *mockUserService) AttemptLogin(email, password string) (*models.User, error) {
	if m.attemptLoginFn != nil {
		return m.attemptLoginFn(email, password)
	}
	return &models.User{}, nil
}

func (m *mockUserService) ListUsers() ([]models.User, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn()
	}
	return nil, nil
}

func (m *mockUserService) GetHoldings(userID string) ([]models.Holding, error) {
	if m.getHoldingsFn != nil {
		return m.getHoldingsFn(userID)
	}
	return nil, nil
}

func (m *mockUserService) SetBalance(_ context.Context, userID string, balance decimal.Decimal) (*models.User, error) {
	if m.setBalanceFn != nil {
		return m.setBalanceFn(userID, balance)
	}
	return &models.User{}, nil
}

func (m *mockUserService) SetHoldings(_ context.Context, userID string, amounts map[string]decimal.Decimal) ([]models.Holding, error) {
	if m.setHoldingsFn != nil {
		return m.setHoldingsFn(userID, amounts)
	}
	return nil, nil
}

func (m *mockUserService) EnsureAdmin(_, _ string) (*models.User, error) {
	return &models.User{Role: models.RoleAdmin}, nil
}

type mockWalletService struct {
	quoteFn    func(amount decimal.Decimal) (*services.WithdrawalQuote, error)
	depositFn  func(userID string, amount decimal.Decimal) (*models.Transaction, error)
	withdrawFn func(userID string, amount decimal.Decimal, address string) (*models.Transaction, error)
	listUserFn func(userID string) ([]models.Transaction, error)
	listFn     func(status *models.TransactionStatus) ([]models.Transaction, error)
	approveFn  func(adminID, transactionID string) (*models.Transaction, error)
	rejectFn   func(adminID, transactionID, note string) (*models.Transaction, error)
}

func (m *mockWalletService) QuoteWithdrawal(amount decimal.Decimal) (*services.WithdrawalQuote, error) {
	if m.quoteFn != nil {
		return m.quoteFn(amount)
	}
	return &services.WithdrawalQuote{}, nil
}

func (m *mockWalletService) RequestDeposit(_ context.Context, userID string, amount decimal.Decimal) (*models.Transaction, error) {
	if m.depositFn != nil {
		return m.depositFn(userID, amount)
	}
	return &models.Transaction{}, nil
}

func (m *mockWalletService) RequestWithdrawal(_ context.Context, userID string, amount decimal.Decimal, address string) (*models.Transaction, error) {
	if m.withdrawFn != nil {
		return m.withdrawFn(userID, amount, address)
	}
	return &models.Transaction{}, nil
}

func (m *mockWalletService) ListUserTransactions(userID string) ([]models.Transaction, error) {
	if m.listUserFn != nil {
		return m.listUserFn(userID)
	}
	return nil, nil
}

func (m *mockWalletService) ListTransactions(status *models.TransactionStatus) ([]models.Transaction, error) {
	if m.listFn != nil {
		return m.listFn(status)
	}
	return nil, nil
}

func (m *mockWalletService) ApproveTransaction(_ context.Context, adminID, transactionID string) (*models.Transaction, error) {
	if m.approveFn != nil {
		return m.approveFn(adminID, transactionID)
	}
	return &models.Transaction{}, nil
}

func (m *mockWalletService) RejectTransaction(_ context.Context, adminID, transactionID, note string) (*models.Transaction, error) {
	if m.rejectFn != nil {
		return m.rejectFn(adminID, transactionID, note)
	}
	return &models.Transaction{}, nil
}

type mockPriceService struct {
	pricesFn func(ids []string) (map[string]decimal.Decimal, error)
}

func (m *mockPriceService) Prices(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if m.pricesFn != nil {
		return m.pricesFn(ids)
	}
	return map[string]decimal.Decimal{}, nil
}

func (m *mockPriceService) Refresh(context.Context) error { return nil }

type mockProfileService struct {
	getProfileFn func(userID string) (*services.Profile, error)
}

func (m *mockProfileService) GetProfile(_ context.Context, userID string) (*services.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(userID)
	}
	return &services.Profile{User: &models.User{}}, nil
}

// --- test helpers ---

const testUserID = "0190d0a4-0000-7000-8000-0000000000aa"

func init() {
	gin.SetMode(gin.TestMode)
	validator.Register()
}

func injectUserID(uid string) gin.HandlerFunc {
	return injectUser(uid, models.RoleUser)
}

func injectUser(uid string, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, uid)
		c.Set(middleware.ContextRole, role)
		c.Next()
	}
}

func doRequest(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	body := parseJSON(t, rec)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	if errObj["code"] != wantCode {
		t.Errorf("expected error code %s, got %v", wantCode, errObj["code"])
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

