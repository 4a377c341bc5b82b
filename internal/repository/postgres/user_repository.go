package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"simple-bank/internal/domain"
	"simple-bank/internal/repository"
)

const uniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, balance_cents, account_type, account_number, phone_number, role, created_at, updated_at`

// Ensure UserRepository satisfies the repository.UserRepository interface at compile time.
var _ repository.UserRepository = (*UserRepository)(nil)

// UserRepository provides Postgres-backed persistence for user records.
type UserRepository struct {
	pool *pgxpool.Pool
}

// Open parses the database URL and connects a pool.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Init runs the schema migrations.
func (r *UserRepository) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			balance_cents BIGINT NOT NULL DEFAULT 0,
			account_type TEXT NOT NULL DEFAULT '',
			account_number TEXT NOT NULL,
			phone_number TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique_idx ON users (email);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_account_number_unique_idx ON users (account_number);`,
	}
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// Create inserts a new user row with a zero balance.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}

	const query = `
		INSERT INTO users (id, name, email, password_hash, balance_cents, account_type, account_number, phone_number, role)
		VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8)
		RETURNING ` + userColumns
	row := r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash,
		string(user.AccountType), user.AccountNumber, user.PhoneNumber, string(user.Role),
	)
	created, err := scanUser(row)
	if err != nil {
		return translateWriteError("insert user", err)
	}
	*user = *created
	return nil
}

// FindByEmail fetches a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: find user: %v", domain.ErrStoreUnavailable, err)
	}
	return user, err
}

func (r *UserRepository) FindManyByEmail(ctx context.Context, email string) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1 ORDER BY created_at ASC`, email)
	if err != nil {
		return nil, fmt.Errorf("%w: query users by email: %v", domain.ErrStoreUnavailable, err)
	}
	return collectUsers(rows)
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: query users: %v", domain.ErrStoreUnavailable, err)
	}
	return collectUsers(rows)
}

func (r *UserRepository) AccountNumberExists(ctx context.Context, accountNumber string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE account_number = $1)`, accountNumber).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%w: check account number: %v", domain.ErrStoreUnavailable, err)
	}
	return exists, nil
}

// UpdateByEmail merges the given fields into the matching row and returns the post-update row.
func (r *UserRepository) UpdateByEmail(ctx context.Context, email string, fields domain.UserUpdate) (*domain.User, error) {
	if fields.Empty() {
		return r.FindByEmail(ctx, email)
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if fields.Name != nil {
		add("name", *fields.Name)
	}
	if fields.PhoneNumber != nil {
		add("phone_number", *fields.PhoneNumber)
	}
	if fields.AccountType != nil {
		add("account_type", string(*fields.AccountType))
	}
	if fields.AccountNumber != nil {
		add("account_number", *fields.AccountNumber)
	}
	if fields.Role != nil {
		add("role", string(*fields.Role))
	}
	add("updated_at", time.Now().UTC())
	args = append(args, email)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE email = $%d RETURNING %s`, strings.Join(sets, ", "), len(args), userColumns)
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, translateWriteError("update user", err)
	}
	return user, nil
}

// Deposit increments the balance in one statement, refusing to pass MaxBalanceCents.
func (r *UserRepository) Deposit(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	cents, err := domain.ToCents(amount)
	if err != nil {
		return nil, err
	}
	const query = `
		UPDATE users SET balance_cents = balance_cents + $1, updated_at = NOW()
		WHERE email = $2 AND balance_cents <= $3
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, cents, email, domain.MaxBalanceCents-cents))
	if errors.Is(err, domain.ErrNotFound) {
		if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
			return nil, findErr
		}
		return nil, domain.ErrBalanceLimit
	}
	if err != nil {
		return nil, fmt.Errorf("%w: deposit: %v", domain.ErrStoreUnavailable, err)
	}
	return user, nil
}

// Withdraw decrements the balance only if it covers the amount.
func (r *UserRepository) Withdraw(ctx context.Context, email string, amount decimal.Decimal) (*domain.User, error) {
	cents, err := domain.ToCents(amount)
	if err != nil {
		return nil, err
	}
	const query = `
		UPDATE users SET balance_cents = balance_cents - $1, updated_at = NOW()
		WHERE email = $2 AND balance_cents >= $1
		RETURNING ` + userColumns
	user, err := scanUser(r.pool.QueryRow(ctx, query, cents, email))
	if errors.Is(err, domain.ErrNotFound) {
		if _, findErr := r.FindByEmail(ctx, email); findErr != nil {
			return nil, findErr
		}
		return nil, domain.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("%w: withdraw: %v", domain.ErrStoreUnavailable, err)
	}
	return user, nil
}

func collectUsers(rows pgx.Rows) ([]domain.User, error) {
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

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user        domain.User
		id          uuid.UUID
		cents       int64
		accountType string
		role        string
	)
	if err := row.Scan(&id, &user.Name, &user.Email, &user.PasswordHash, &cents, &accountType, &user.AccountNumber, &user.PhoneNumber, &role, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	user.ID = id.String()
	user.Balance = domain.FromCents(cents)
	user.AccountType = domain.AccountType(accountType)
	user.Role = domain.Role(role)
	return &user, nil
}

func translateWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		if strings.Contains(pgErr.ConstraintName, "account_number") {
			return domain.ErrAccountNumberTaken
		}
		return domain.ErrAlreadyExists
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}
