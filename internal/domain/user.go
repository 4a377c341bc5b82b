package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType enumerates the kinds of bank account a user can open.
type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeSavings  AccountType = "savings"
)

// Valid reports whether t is one of the known account types.
func (t AccountType) Valid() bool {
	return t == AccountTypeChecking || t == AccountTypeSavings
}

type Role string

const (
	RoleUser         Role = "user"
	RoleAdmin        Role = "admin"
	RoleBankEmployee Role = "bank employee"
)

// Privileged reports whether the role may act on other users' records.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleBankEmployee
}

// User is the single persisted record of the bank: identity, credentials and
// the balance of the one account attached to it.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Balance       decimal.Decimal
	AccountType   AccountType
	AccountNumber string
	PhoneNumber   string
	Role          Role
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserUpdate is a partial set of fields merged into a record by email.
// Nil fields are left untouched.
type UserUpdate struct {
	Name          *string
	PhoneNumber   *string
	AccountType   *AccountType
	AccountNumber *string
	Role          *Role
}

// Empty reports whether the update carries no fields.
func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.PhoneNumber == nil && u.AccountType == nil && u.AccountNumber == nil && u.Role == nil
}
