package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"simple-bank/internal/domain"
)

func setupRepo(t *testing.T) *UserRepository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "bank.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close test database: %v", err)
		}
	})

	repo := NewUserRepository(db)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("init repository: %v", err)
	}
	return repo
}

func seedUser(t *testing.T, repo *UserRepository, email, accountNumber string) *domain.User {
	t.Helper()
	user := &domain.User{
		Name:          "Ana",
		Email:         email,
		PasswordHash:  "hash",
		AccountNumber: accountNumber,
	}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create(%s) error = %v", email, err)
	}
	return user
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateAndFind(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	created := seedUser(t, repo, "ana@x.com", "1234567890")
	if created.ID == "" {
		t.Fatal("Create() left ID empty")
	}
	if !created.Balance.IsZero() || created.Role != domain.RoleUser {
		t.Fatalf("Create() defaults = balance %s role %q", created.Balance, created.Role)
	}

	got, err := repo.FindByEmail(ctx, "ana@x.com")
	if err != nil {
		t.Fatalf("FindByEmail() error = %v", err)
	}
	if got.ID != created.ID || got.AccountNumber != "1234567890" || got.Name != "Ana" {
		t.Fatalf("FindByEmail() got %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("FindByEmail() CreatedAt is zero")
	}

	many, err := repo.FindManyByEmail(ctx, "ana@x.com")
	if err != nil {
		t.Fatalf("FindManyByEmail() error = %v", err)
	}
	if len(many) != 1 || many[0].ID != created.ID {
		t.Fatalf("FindManyByEmail() got %+v", many)
	}

	none, err := repo.FindManyByEmail(ctx, "missing@x.com")
	if err != nil {
		t.Fatalf("FindManyByEmail(missing) error = %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("FindManyByEmail(missing) len=%d", len(none))
	}

	if _, err := repo.FindByEmail(ctx, "missing@x.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("FindByEmail(missing) err=%v want ErrNotFound", err)
	}
}

func TestCreateUniqueness(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1111111111")
	if _, err := repo.Deposit(ctx, "ana@x.com", dec("25")); err != nil {
		t.Fatal(err)
	}

	t.Run("duplicate email", func(t *testing.T) {
		err := repo.Create(ctx, &domain.User{Name: "Other", Email: "ana@x.com", PasswordHash: "h", AccountNumber: "2222222222"})
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("err=%v want ErrAlreadyExists", err)
		}
		got, _ := repo.FindByEmail(ctx, "ana@x.com")
		if !got.Balance.Equal(dec("25")) {
			t.Fatalf("balance of first record changed: %s", got.Balance)
		}
	})

	t.Run("duplicate account number", func(t *testing.T) {
		err := repo.Create(ctx, &domain.User{Name: "Bo", Email: "bo@x.com", PasswordHash: "h", AccountNumber: "1111111111"})
		if !errors.Is(err, domain.ErrAccountNumberTaken) {
			t.Fatalf("err=%v want ErrAccountNumberTaken", err)
		}
	})

	exists, err := repo.AccountNumberExists(ctx, "1111111111")
	if err != nil || !exists {
		t.Fatalf("AccountNumberExists() = %v, %v", exists, err)
	}
	exists, err = repo.AccountNumberExists(ctx, "9999999999")
	if err != nil || exists {
		t.Fatalf("AccountNumberExists(unused) = %v, %v", exists, err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1234567890")

	user, err := repo.Deposit(ctx, "ana@x.com", dec("100"))
	if err != nil {
		t.Fatalf("Deposit() error = %v", err)
	}
	if !user.Balance.Equal(dec("100")) {
		t.Fatalf("balance=%s want=100", user.Balance)
	}

	user, err = repo.Withdraw(ctx, "ana@x.com", dec("40"))
	if err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if !user.Balance.Equal(dec("60")) {
		t.Fatalf("balance=%s want=60", user.Balance)
	}

	for _, amt := range []string{"0", "-5", "0.001"} {
		if _, err := repo.Deposit(ctx, "ana@x.com", dec(amt)); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("Deposit(%s) err=%v want ErrInvalidAmount", amt, err)
		}
		if _, err := repo.Withdraw(ctx, "ana@x.com", dec(amt)); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("Withdraw(%s) err=%v want ErrInvalidAmount", amt, err)
		}
	}

	if _, err := repo.Withdraw(ctx, "ana@x.com", dec("60.01")); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Withdraw(over) err=%v want ErrInsufficientFunds", err)
	}

	got, _ := repo.FindByEmail(ctx, "ana@x.com")
	if !got.Balance.Equal(dec("60")) {
		t.Fatalf("failed operations changed balance: %s", got.Balance)
	}

	if _, err := repo.Withdraw(ctx, "missing@x.com", dec("10")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Withdraw(missing) err=%v want ErrNotFound", err)
	}
	if _, err := repo.Deposit(ctx, "missing@x.com", dec("10")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Deposit(missing) err=%v want ErrNotFound", err)
	}
}

func TestDepositRejectsOverflowingAmounts(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1234567890")

	for _, amt := range []string{"92233720368547758.08", "184467440737095515.16"} {
		if _, err := repo.Deposit(ctx, "ana@x.com", dec(amt)); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("Deposit(%s) err=%v want ErrInvalidAmount", amt, err)
		}
		if _, err := repo.Withdraw(ctx, "ana@x.com", dec(amt)); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Fatalf("Withdraw(%s) err=%v want ErrInvalidAmount", amt, err)
		}
	}
	got, err := repo.FindByEmail(ctx, "ana@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.IsZero() {
		t.Fatalf("balance after rejected amounts = %s want 0", got.Balance)
	}

	user, err := repo.Deposit(ctx, "ana@x.com", dec("1000000000000000"))
	if err != nil {
		t.Fatalf("Deposit(max) error = %v", err)
	}
	if !user.Balance.Equal(domain.FromCents(domain.MaxBalanceCents)) {
		t.Fatalf("balance=%s want max", user.Balance)
	}
	if _, err := repo.Deposit(ctx, "ana@x.com", dec("0.01")); !errors.Is(err, domain.ErrBalanceLimit) {
		t.Fatalf("Deposit past max err=%v want ErrBalanceLimit", err)
	}
	got, err = repo.FindByEmail(ctx, "ana@x.com")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Balance.Equal(domain.FromCents(domain.MaxBalanceCents)) {
		t.Fatalf("balance after refused deposit = %s want max", got.Balance)
	}

	if _, err := repo.Deposit(ctx, "missing@x.com", dec("0.01")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Deposit(missing) err=%v want ErrNotFound", err)
	}
}

func TestWithdrawExactBalance(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1234567890")
	if _, err := repo.Deposit(ctx, "ana@x.com", dec("12.34")); err != nil {
		t.Fatal(err)
	}
	user, err := repo.Withdraw(ctx, "ana@x.com", dec("12.34"))
	if err != nil {
		t.Fatalf("Withdraw(all) error = %v", err)
	}
	if !user.Balance.IsZero() {
		t.Fatalf("balance=%s want=0", user.Balance)
	}
}

func TestConcurrentWithdrawalsCannotOverdraw(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1234567890")
	if _, err := repo.Deposit(ctx, "ana@x.com", dec("50")); err != nil {
		t.Fatal(err)
	}

	const workers = 2
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		succeeded    int
		insufficient int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Withdraw(ctx, "ana@x.com", dec("50"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientFunds):
				insufficient++
			default:
				t.Errorf("Withdraw() unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("succeeded=%d insufficient=%d want 1/1", succeeded, insufficient)
	}
	got, _ := repo.FindByEmail(ctx, "ana@x.com")
	if !got.Balance.IsZero() {
		t.Fatalf("final balance=%s want=0", got.Balance)
	}
}

func TestConcurrentDeposits(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1234567890")

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := repo.Deposit(ctx, "ana@x.com", dec("1.5")); err != nil {
				t.Errorf("Deposit() err: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := repo.FindByEmail(ctx, "ana@x.com")
	if !got.Balance.Equal(dec("75")) {
		t.Fatalf("balance=%s want=75", got.Balance)
	}
}

func TestUpdateByEmail(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	seedUser(t, repo, "ana@x.com", "1111111111")
	seedUser(t, repo, "bo@x.com", "2222222222")

	name := "Ana Maria"
	phone := "+15550001"
	accountType := domain.AccountTypeSavings
	user, err := repo.UpdateByEmail(ctx, "ana@x.com", domain.UserUpdate{
		Name:        &name,
		PhoneNumber: &phone,
		AccountType: &accountType,
	})
	if err != nil {
		t.Fatalf("UpdateByEmail() error = %v", err)
	}
	if user.Name != name || user.PhoneNumber != phone || user.AccountType != domain.AccountTypeSavings {
		t.Fatalf("UpdateByEmail() got %+v", user)
	}
	if user.AccountNumber != "1111111111" {
		t.Fatalf("untouched field changed: %s", user.AccountNumber)
	}

	if _, err := repo.UpdateByEmail(ctx, "missing@x.com", domain.UserUpdate{Name: &name}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateByEmail(missing) err=%v want ErrNotFound", err)
	}

	taken := "2222222222"
	if _, err := repo.UpdateByEmail(ctx, "ana@x.com", domain.UserUpdate{AccountNumber: &taken}); !errors.Is(err, domain.ErrAccountNumberTaken) {
		t.Fatalf("UpdateByEmail(taken number) err=%v want ErrAccountNumberTaken", err)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("List() len=%d want=2", len(all))
	}
}
