// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-petr/pet-points/pkg/errorspkg"
)

var (
	// ErrInvalidArgument indicates a malformed user id or amount.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidUserID indicates that the user id is not positive.
	ErrInvalidUserID = fmt.Errorf("%w: user id must be positive", ErrInvalidArgument)
	// ErrInvalidAmount indicates that the charge or use amount is not positive.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	// ErrUserNotFound indicates that the user has no point balance.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserAlreadyExists indicates that the user point balance is already opened.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrInsufficientBalance indicates that the user does not have enough points.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrBalanceOverflow indicates that the charge would exceed the representable balance.
	ErrBalanceOverflow = fmt.Errorf("%w: balance overflow", errorspkg.ErrStoreUnavailable)
)

// TransactionType tells whether a history record increased or decreased the balance.
type TransactionType string

const (
	// Charge increases the balance.
	Charge TransactionType = "CHARGE"
	// Use decreases the balance.
	Use TransactionType = "USE"
)

// UserPoint holds the current point balance of a user.
type UserPoint struct {
	ID        int64     `json:"id"`
	Point     int64     `json:"point"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PointHistory is an immutable record of one balance change.
type PointHistory struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    int64           `json:"amount"` // positive for charge, negative for use
	Type      TransactionType `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
}

// CreateHistoryParams is the input data to append a history record.
type CreateHistoryParams struct {
	UserID    int64           `json:"user_id"`
	Amount    int64           `json:"amount"`
	Type      TransactionType `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
}

// PointEvent describes a committed balance change.
type PointEvent struct {
	History   PointHistory `json:"history"`
	UserPoint UserPoint    `json:"user_point"`
}
