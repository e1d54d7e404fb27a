package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateAccountRequest struct {
	Name    string `json:"name"`
	Credits int64  `json:"credits"`
}

type BindChannelRequest struct {
	AccountID string `json:"account_id"`
	RoutingID string `json:"routing_id"`
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Account, error)
	Bind(ctx context.Context, req BindChannelRequest) (ChannelBinding, error)

	// Resolve returns the account owning the given routing identifier.
	Resolve(ctx context.Context, routingID string) (snowflake.ID, error)
}

var (
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidAccount   = errors.New("invalid_account")
	ErrInvalidRoutingID = errors.New("invalid_routing_id")
	ErrAccountNotFound  = errors.New("account_not_found")
	ErrBindingNotFound  = errors.New("binding_not_found")
	ErrBindingExists    = errors.New("binding_exists")
)
