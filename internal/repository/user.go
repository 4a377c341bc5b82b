package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"simple-bank/internal/domain"
)

// UserRepository defines persistence operations over the users collection.
// Lookups that match nothing return domain.ErrNotFound.
type UserRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, user *domain.User) error
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindManyByEmail(ctx context.Context, email string) ([]domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	AccountNumberExists(ctx context.Context, accountNumber string) (bool, error)
	UpdateByEmail(ctx context.Context, email string, fields domain.UserUpdate) (*domain.User, error)
	// Deposit adds amount to the balance in a single store command. It fails with
	// domain.ErrBalanceLimit instead of letting the balance pass domain.MaxBalanceCents.
	Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error)
	// Withdraw subtracts amount only when the balance covers it, in a single
	// conditional store command, so concurrent withdrawals cannot overdraw.
	Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error)
}
