package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"simple-bank/internal/auth"
	"simple-bank/internal/domain"
	"simple-bank/internal/repository"
)

const (
	accountNumberDigits = 10
	// maxAccountNumberAttempts bounds the draws made before giving up on a fresh number.
	maxAccountNumberAttempts = 5
)

// AccountService describes the account lifecycle and balance operations.
type AccountService interface {
	CreateAccount(ctx context.Context, name, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.User, string, error)
	Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error)
	Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error)
	Balance(ctx context.Context, email string) (decimal.Decimal, error)
	CreateBankAccount(ctx context.Context, email string, accountType domain.AccountType) (*domain.User, error)
	UpdateProfile(ctx context.Context, email, name, phoneNumber string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) ([]domain.User, error)
}

type accountService struct {
	users            repository.UserRepository
	hasher           *auth.PasswordHasher
	tokens           *auth.TokenManager
	validate         *validator.Validate
	log              *logrus.Entry
	newAccountNumber func() (string, error)
}

func NewAccountService(users repository.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenManager, logger *logrus.Logger) AccountService {
	return &accountService{
		users:            users,
		hasher:           hasher,
		tokens:           tokens,
		validate:         validator.New(),
		log:              logger.WithField("component", "accounts"),
		newAccountNumber: randomAccountNumber,
	}
}

func (s *accountService) CreateAccount(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	err = s.withFreshAccountNumber(ctx, func(number string) error {
		user.AccountNumber = number
		return s.users.Create(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("email", email).Info("account created")
	return sanitizeUser(user), nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*domain.User, string, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, "", err
	}
	if password == "" {
		return nil, "", fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, "", domain.ErrAuthenticationFailed
	}

	token, err := s.tokens.Generate(user.Email, user.Role)
	if err != nil {
		return nil, "", err
	}
	return sanitizeUser(user), token, nil
}

func (s *accountService) Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	user, err := s.users.Deposit(ctx, email, amount)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"email": email, "amount": amount.StringFixed(2)}).Info("deposit applied")
	return sanitizeUser(user), nil
}

func (s *accountService) Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	user, err := s.users.Withdraw(ctx, email, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			s.log.WithField("email", email).Warn("withdrawal rejected: insufficient funds")
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"email": email, "amount": amount.StringFixed(2)}).Info("withdrawal applied")
	return sanitizeUser(user), nil
}

func (s *accountService) Balance(ctx context.Context, email string) (decimal.Decimal, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return decimal.Zero, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// CreateBankAccount assigns a fresh account number and the given type to the
// record, replacing any previous bank account details.
func (s *accountService) CreateBankAccount(ctx context.Context, email string, accountType domain.AccountType) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if !accountType.Valid() {
		return nil, fmt.Errorf("%w: account type must be %q or %q", domain.ErrInvalidInput, domain.AccountTypeChecking, domain.AccountTypeSavings)
	}

	var updated *domain.User
	err := s.withFreshAccountNumber(ctx, func(number string) error {
		taken, err := s.users.AccountNumberExists(ctx, number)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrAccountNumberTaken
		}
		updated, err = s.users.UpdateByEmail(ctx, email, domain.UserUpdate{
			AccountNumber: &number,
			AccountType:   &accountType,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"email": email, "account_type": accountType}).Info("bank account created")
	return sanitizeUser(updated), nil
}

func (s *accountService) UpdateProfile(ctx context.Context, email, name, phoneNumber string) (*domain.User, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	phoneNumber = strings.TrimSpace(phoneNumber)

	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if phoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number is required", domain.ErrInvalidInput)
	}

	user, err := s.users.UpdateByEmail(ctx, email, domain.UserUpdate{
		Name:        &name,
		PhoneNumber: &phoneNumber,
	})
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *accountService) FindByEmail(ctx context.Context, email string) ([]domain.User, error) {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return nil, err
	}
	users, err := s.users.FindManyByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(users))
	for i := range users {
		out = append(out, *sanitizeUser(&users[i]))
	}
	return out, nil
}

// withFreshAccountNumber draws account numbers and hands them to apply until
// apply stops reporting a collision.
func (s *accountService) withFreshAccountNumber(ctx context.Context, apply func(number string) error) error {
	for attempt := 1; attempt <= maxAccountNumberAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		number, err := s.newAccountNumber()
		if err != nil {
			return err
		}
		err = apply(number)
		if !errors.Is(err, domain.ErrAccountNumberTaken) {
			return err
		}
		s.log.WithField("attempt", attempt).Warn("account number collision, drawing again")
	}
	return fmt.Errorf("%w: gave up after %d attempts", domain.ErrAccountNumberTaken, maxAccountNumberAttempts)
}

func (s *accountService) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("%w: a valid email is required", domain.ErrInvalidInput)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// randomAccountNumber returns a uniformly drawn 10-digit numeral without a leading zero.
func randomAccountNumber() (string, error) {
	span := big.NewInt(9_000_000_000)
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("draw account number: %w", err)
	}
	return n.Add(n, big.NewInt(1_000_000_000)).String(), nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
