package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"simple-bank/internal/domain"
	"simple-bank/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	balance_cents INTEGER NOT NULL DEFAULT 0,
	account_type TEXT NOT NULL DEFAULT '',
	account_number TEXT NOT NULL UNIQUE,
	phone_number TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

const userColumns = `id, name, email, password_hash, balance_cents, account_type, account_number, phone_number, role, created_at, updated_at`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

var _ repository.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	user.Balance = decimal.Zero
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (`+userColumns+`)
VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		string(user.AccountType),
		user.AccountNumber,
		user.PhoneNumber,
		string(user.Role),
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return translateWriteError("insert user", err)
	}
	return nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = ?`,
		email,
	)
	return scanUser(row)
}

func (r *UserRepository) FindManyByEmail(ctx context.Context, email string) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = ?
ORDER BY created_at ASC`, email)
	if err != nil {
		return nil, fmt.Errorf("%w: query users by email: %v", domain.ErrStoreUnavailable, err)
	}
	return collectUsers(rows)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+userColumns+`
FROM users
ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", domain.ErrStoreUnavailable, err)
	}
	return collectUsers(rows)
}

func (r *UserRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE account_number = ?`, accountNumber).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("%w: count account numbers: %v", domain.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (r *UserRepository) UpdateByEmail(ctx context.Context, email string, fields domain.UserUpdate) (*domain.User, error) {
	if fields.Empty() {
		return r.FindByEmail(ctx, email)
	}

	var (
		sets []string
		args []any
	)
	if fields.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, *fields.Name)
	}
	if fields.PhoneNumber != nil {
		sets = append(sets, "phone_number=?")
		args = append(args, *fields.PhoneNumber)
	}
	if fields.AccountType != nil {
		sets = append(sets, "account_type=?")
		args = append(args, string(*fields.AccountType))
	}
	if fields.AccountNumber != nil {
		sets = append(sets, "account_number=?")
		args = append(args, *fields.AccountNumber)
	}
	if fields.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, string(*fields.Role))
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC(), email)

	user, err := r.mutate(ctx, email, `
UPDATE users
SET `+strings.Join(sets, ", ")+`
WHERE email=?`, args...)
	if err != nil {
		return nil, translateWriteError("update user", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	cents, err := domain.ToCents(amount)
	if err != nil {
		return nil, err
	}

	user, err := r.mutate(ctx, email, `
UPDATE users
SET balance_cents = balance_cents + ?, updated_at=?
WHERE email=? AND balance_cents <= ?`,
		cents,
		time.Now().UTC(),
		email,
		domain.MaxBalanceCents-cents,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: deposit: %v", domain.ErrStoreUnavailable, err)
	}
	if user == nil {
		if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
			return nil, findErr
		}
		return nil, domain.ErrBalanceLimit
	}
	return user, nil
}

func (r *UserRepository) Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	cents, err := domain.ToCents(amount)
	if err != nil {
		return nil, err
	}

	user, err := r.mutate(ctx, email, `
UPDATE users
SET balance_cents = balance_cents - ?, updated_at=?
WHERE email=? AND balance_cents >= ?`,
		cents,
		time.Now().UTC(),
		email,
		cents,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: withdraw: %v", domain.ErrStoreUnavailable, err)
	}
	if user == nil {
		// the conditional update matched nothing: either no such user or not enough funds
		if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
			return nil, findErr
		}
		return nil, domain.ErrInsufficientFunds
	}
	return user, nil
}

// mutate runs a single-row update and reads the post-update record in the same
// transaction. It returns a nil user when the update matched no row.
func (r *UserRepository) mutate(ctx context.Context, email, query string, args ...any) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if aff == 0 {
		return nil, nil
	}

	user, err := scanUser(tx.QueryRowContext(ctx, `
SELECT `+userColumns+`
FROM users
WHERE email = ?`, email))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return user, nil
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate users: %v", domain.ErrStoreUnavailable, err)
	}
	return users, nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user        domain.User
		cents       int64
		accountType string
		role        string
	)
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&cents,
		&accountType,
		&user.AccountNumber,
		&user.PhoneNumber,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: scan user: %v", domain.ErrStoreUnavailable, err)
	}
	user.Balance = domain.FromCents(cents)
	user.AccountType = domain.AccountType(accountType)
	user.Role = domain.Role(role)
	return &user, nil
}

func translateWriteError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") {
		if strings.Contains(msg, "account_number") {
			return domain.ErrAccountNumberTaken
		}
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
