package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "coinfolio/internal/errors"
	"coinfolio/internal/models"
	"coinfolio/internal/updates"
	"coinfolio/internal/uuid"
)

// userService handles user-related business logic.
type userService struct {
	db        *gorm.DB
	publisher updates.Publisher
}

// NewUserService creates a new UserServicer. publisher may be nil.
func NewUserService(db *gorm.DB, publisher updates.Publisher) UserServicer {
	return &userService{db: db, publisher: publisher}
}

// CreateUser registers a new user
func (s *userService) CreateUser(email, password string) (*models.User, error) {
	if email == "" || password == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "email and password are required")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	var count int64
	s.db.Model(&models.User{}).Where("email = ?", email).Count(&count)
	if count > 0 {
		return nil, apperrors.ErrDuplicateEmail
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hashedPassword),
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return user, nil
}

// GetUserByEmail retrieves an active user by email
func (s *userService) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(email)), true).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(id string) (*models.User, error) {
	id, err := uuid.Parse(id)
	if err != nil {
		return nil, apperrors.ErrUserNotFound
	}
	var user models.User
	if err := s.db.Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &user, nil
}

// VerifyPassword checks if the provided password matches the stored hash
func (s *userService) VerifyPassword(user *models.User, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password))
	return err == nil
}

// AttemptLogin checks credentials and records the login time. Unknown emails
// and wrong passwords produce the same error.
func (s *userService) AttemptLogin(email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.VerifyPassword(user, password) {
		return nil, apperrors.ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.db.Model(user).Update("last_login_at", now).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.LastLoginAt = &now
	return user, nil
}

// ListUsers returns every user, newest first.
func (s *userService) ListUsers() ([]models.User, error) {
	var users []models.User
	if err := s.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return users, nil
}

// GetHoldings returns a user's non-zero holdings sorted by symbol.
func (s *userService) GetHoldings(userID string) ([]models.Holding, error) {
	var holdings []models.Holding
	if err := s.db.Where("user_id = ?", userID).Order("symbol ASC").Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return holdings, nil
}

// SetBalance overwrites a user's cash balance.
func (s *userService) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) (*models.User, error) {
	if balance.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "balance must not be negative")
	}
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(user).Update("balance", balance).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.Balance = balance

	publish(ctx, s.publisher, userID)
	return user, nil
}

// SetHoldings replaces a user's holdings with amounts. Symbols are upper-cased
// and zero amounts remove the holding.
func (s *userService) SetHoldings(ctx context.Context, userID string, amounts map[string]decimal.Decimal) ([]models.Holding, error) {
	if _, err := s.GetUserByID(userID); err != nil {
		return nil, err
	}

	normalized := make(map[string]decimal.Decimal, len(amounts))
	for symbol, amount := range amounts {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "symbol must not be empty")
		}
		if amount.IsNegative() {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount for "+symbol+" must not be negative")
		}
		normalized[symbol] = amount
	}

	symbols := make([]string, 0, len(normalized))
	for symbol := range normalized {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&models.Holding{}).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		for _, symbol := range symbols {
			if normalized[symbol].IsZero() {
				continue
			}
			holding := &models.Holding{UserID: userID, Symbol: symbol, Amount: normalized[symbol]}
			if err := tx.Create(holding).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	publish(ctx, s.publisher, userID)
	return s.GetHoldings(userID)
}

// EnsureAdmin creates the admin account if it does not exist, or promotes an
// existing user with that email. The password of an existing user is kept.
func (s *userService) EnsureAdmin(email, password string) (*models.User, error) {
	user, err := s.GetUserByEmail(email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		user, err = s.CreateUser(email, password)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if user.IsAdmin() {
		return user, nil
	}
	if err := s.db.Model(user).Update("role", models.RoleAdmin).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	user.Role = models.RoleAdmin
	return user, nil
}
