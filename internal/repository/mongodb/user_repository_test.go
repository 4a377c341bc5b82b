package mongodb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"simple-bank/internal/domain"
)

// TestUserRepositoryIntegration runs against a live MongoDB in a throwaway database.
func TestUserRepositoryIntegration(t *testing.T) {
	uri := os.Getenv("BANK_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("set BANK_TEST_MONGO_URI to run this integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	dbName := fmt.Sprintf("bank_test_%d", time.Now().UnixNano())
	defer func() {
		_ = client.Database(dbName).Drop(context.Background())
		_ = client.Disconnect(context.Background())
	}()

	repo := NewUserRepository(client, dbName)
	if err := repo.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := repo.Create(ctx, &domain.User{Name: "Ana", Email: "ana@x.com", PasswordHash: "h", AccountNumber: "1111111111"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, &domain.User{Name: "Ana", Email: "ana@x.com", PasswordHash: "h", AccountNumber: "2222222222"}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate email err=%v want ErrAlreadyExists", err)
	}
	if err := repo.Create(ctx, &domain.User{Name: "Bo", Email: "bo@x.com", PasswordHash: "h", AccountNumber: "1111111111"}); !errors.Is(err, domain.ErrAccountNumberTaken) {
		t.Fatalf("duplicate number err=%v want ErrAccountNumberTaken", err)
	}

	if _, err := repo.Deposit(ctx, "ana@x.com", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	user, err := repo.Withdraw(ctx, "ana@x.com", decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !user.Balance.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("balance=%s want 60", user.Balance)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			_, err := repo.Withdraw(ctx, "ana@x.com", decimal.NewFromInt(60))
			if err != nil && !errors.Is(err, domain.ErrInsufficientFunds) {
				t.Errorf("withdraw: %v", err)
				return
			}
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 {
		t.Fatalf("succeeded=%d want 1", succeeded)
	}

	if _, err := repo.Withdraw(ctx, "missing@x.com", decimal.NewFromInt(10)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("withdraw missing err=%v want ErrNotFound", err)
	}

	phone := "+15550001"
	updated, err := repo.UpdateByEmail(ctx, "ana@x.com", domain.UserUpdate{PhoneNumber: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PhoneNumber != phone || !updated.Balance.IsZero() {
		t.Fatalf("update got %+v", updated)
	}
}
