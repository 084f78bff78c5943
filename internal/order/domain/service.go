package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
)

type ItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerUID  string        `json:"-"`
	Items        []ItemRequest `json:"items"`
	DeliveryInfo DeliveryInfo  `json:"delivery_info"`
	Notes        string        `json:"notes"`
}

type ListOrdersRequest struct {
	pagination.Pagination
	Status Status `form:"status"`
}

type ListOrdersResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type FulfillRequest struct {
	OrderID       snowflake.ID
	CashierUID    string
	PaymentMethod billingdomain.PaymentMethod
	TerminalID    string
}

type FulfillResult struct {
	Order       Order                     `json:"order"`
	Transaction billingdomain.Transaction `json:"transaction"`
}

type Service interface {
	// Create validates stock and quota without reserving either.
	Create(ctx context.Context, req CreateOrderRequest) (*Order, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	GetByReference(ctx context.Context, reference string) (*Order, error)
	ListByCustomer(ctx context.Context, customerRef string, req ListOrdersRequest) (ListOrdersResponse, error)
	ListByStatus(ctx context.Context, req ListOrdersRequest) (ListOrdersResponse, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (*Order, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (*Order, error)
	// Fulfill commits the order through the sale pipeline and completes it.
	Fulfill(ctx context.Context, req FulfillRequest) (*FulfillResult, error)
}

var (
	ErrNotFound          = errors.New("order_not_found")
	ErrEmptyItems        = errors.New("order_empty_items")
	ErrInvalidItem       = errors.New("order_invalid_item")
	ErrInvalidStatus     = errors.New("order_invalid_status")
	ErrInvalidTransition = errors.New("order_invalid_transition")
	ErrInvalidReason     = errors.New("order_invalid_cancel_reason")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)
