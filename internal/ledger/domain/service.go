package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// TryConsume charges the account atomically. The reservation either
	// fits inside the remaining allowance or nothing is written.
	TryConsume(ctx context.Context, accountID snowflake.ID, amount int64) error

	// TopUp resets the allowance to the plan value and zeroes usage.
	TopUp(ctx context.Context, accountID snowflake.ID, planCredits int64) error
}

var (
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidAccount  = errors.New("invalid_account")
	ErrAccountNotFound = errors.New("account_not_found")
	ErrQuotaExceeded   = errors.New("quota_exceeded")
)
