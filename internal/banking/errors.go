package banking

import "errors"

var (
	// ErrInsufficientFunds is returned when a withdrawal exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for amounts that are not positive or have
	// more than two decimal places.
	ErrInvalidAmount = errors.New("invalid amount")
)
