package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToCents(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		err  error
	}{
		{in: "100", want: 10000},
		{in: "0.01", want: 1},
		{in: "40.5", want: 4050},
		{in: "0", err: ErrInvalidAmount},
		{in: "-10", err: ErrInvalidAmount},
		{in: "1.005", err: ErrInvalidAmount},
		{in: "1000000000000000", want: MaxBalanceCents},
		{in: "1000000000000000.01", err: ErrInvalidAmount},
		{in: "92233720368547758.08", err: ErrInvalidAmount},
		{in: "184467440737095515.16", err: ErrInvalidAmount},
	}
	for _, tt := range tests {
		got, err := ToCents(decimal.RequireFromString(tt.in))
		if tt.err != nil {
			if !errors.Is(err, tt.err) {
				t.Fatalf("ToCents(%s) err=%v want %v", tt.in, err, tt.err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ToCents(%s) unexpected err: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ToCents(%s)=%d want=%d", tt.in, got, tt.want)
		}
	}
}

func TestFromCentsMarshalsAsNumber(t *testing.T) {
	b, err := json.Marshal(map[string]decimal.Decimal{"balance": FromCents(6050)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"balance":60.5}` {
		t.Fatalf("got %s", b)
	}
}

func TestAccountTypeAndRole(t *testing.T) {
	if !AccountTypeChecking.Valid() || !AccountTypeSavings.Valid() {
		t.Fatal("known account types should be valid")
	}
	if AccountType("brokerage").Valid() {
		t.Fatal("unknown account type accepted")
	}
	if RoleUser.Privileged() {
		t.Fatal("plain users must not be privileged")
	}
	if !RoleAdmin.Privileged() || !RoleBankEmployee.Privileged() {
		t.Fatal("admins and bank employees are privileged")
	}
}
