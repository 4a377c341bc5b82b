package domain

import "errors"

var (
	// ErrNotFound indicates no record matches the given email.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists indicates a record with the same email exists.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrAccountNumberTaken indicates a generated account number collided with an existing one.
	ErrAccountNumberTaken = errors.New("account number already in use")
	// ErrInvalidAmount indicates a non-positive amount or one with more than two decimal places.
	ErrInvalidAmount = errors.New("amount must be a positive value with at most two decimal places")
	// ErrInsufficientFunds indicates a withdrawal larger than the current balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAuthenticationFailed covers both wrong passwords and hash verification failures.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrStoreUnavailable wraps connection and query failures of the record store.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrInvalidInput indicates a missing or malformed request field such as the email or account type.
	ErrInvalidInput = errors.New("invalid input")
	// ErrBalanceLimit indicates a deposit that would take the balance past MaxBalanceCents.
	ErrBalanceLimit = errors.New("deposit would exceed the maximum balance")
)
