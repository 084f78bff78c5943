package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type EnsureUserRequest struct {
	UID         string
	Name        string
	Email       string
	PhoneNumber string
}

type UpdateProfileRequest struct {
	Name        *string
	Email       *string
	PhoneNumber *string
	DateOfBirth *time.Time
	IDVerified  *bool
}

type Service interface {
	// EnsureUser returns the customer for uid, creating it on first sight.
	EnsureUser(ctx context.Context, req EnsureUserRequest) (Customer, bool, error)
	GetByID(ctx context.Context, id snowflake.ID) (Customer, error)
	GetByUID(ctx context.Context, uid string) (Customer, error)
	// ResolveCustomer looks a customer up by id, uid or phone number.
	ResolveCustomer(ctx context.Context, ref string) (Customer, error)
	// ResolveCashier returns an active staff member.
	ResolveCashier(ctx context.Context, uid string) (Customer, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, req UpdateProfileRequest) (Customer, error)
	SetRole(ctx context.Context, id snowflake.ID, role Role) (Customer, error)
	Deactivate(ctx context.Context, id snowflake.ID) error
}

var (
	ErrNotFound        = errors.New("customer_not_found")
	ErrCashierNotFound = errors.New("cashier_not_found")
	ErrInactive        = errors.New("customer_inactive")
	ErrInvalidRole     = errors.New("invalid_role")
	ErrInvalidUID      = errors.New("invalid_uid")
	ErrInvalidRef      = errors.New("invalid_customer_ref")
	ErrInvalidEmail    = errors.New("invalid_email")
)
