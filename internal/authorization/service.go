package authorization

import (
	"context"
	"errors"

	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
)

// Service decides whether an actor role may perform action on object.
type Service interface {
	Authorize(ctx context.Context, actor customerdomain.Customer, object string, action string) error
	Allowed(role customerdomain.Role, object string, action string) (bool, error)
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)
