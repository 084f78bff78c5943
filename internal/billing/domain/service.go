package domain

import (
	"context"
	"errors"
	"io"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
	"gorm.io/gorm"
)

type LineItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type CreateTransactionRequest struct {
	CashierUID     string            `json:"-"`
	CustomerRef    string            `json:"customer"`
	Items          []LineItemRequest `json:"items"`
	PaymentMethod  PaymentMethod     `json:"payment_method"`
	Discount       int64             `json:"discount"`
	Notes          string            `json:"notes"`
	TerminalID     string            `json:"terminal_id"`
	Channel        Channel           `json:"-"`
	OrderID        *snowflake.ID     `json:"-"`
	IdempotencyKey string            `json:"-"`
	// BeforeCommit runs inside the sale's unit of work once the transaction
	// row is written. An error rolls the whole sale back.
	BeforeCommit func(ctx context.Context, tx *gorm.DB, sale *Transaction) error `json:"-"`
}

type CreateTransactionResult struct {
	Transaction Transaction `json:"transaction"`
	// Replayed is set when the idempotency key matched an earlier sale.
	Replayed bool `json:"replayed"`
}

type RefundRequest struct {
	TransactionID snowflake.ID
	Reason        string
	RefundedBy    string
}

type ListTransactionsRequest struct {
	pagination.Pagination
	Status TransactionStatus
}

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type Service interface {
	CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*CreateTransactionResult, error)
	GetTransaction(ctx context.Context, id snowflake.ID) (*Transaction, error)
	GetByReceiptNumber(ctx context.Context, receiptNumber string) (*Transaction, error)
	ListByCustomer(ctx context.Context, customerRef string, req ListTransactionsRequest) (ListTransactionsResponse, error)
	// RefundTransaction flips status only. Stock is restored when the refund
	// policy asks for it; quota is never restored.
	RefundTransaction(ctx context.Context, req RefundRequest) (*Transaction, error)
	RenderReceiptPDF(ctx context.Context, id snowflake.ID) (io.Reader, error)
}

var (
	ErrNotFound               = errors.New("transaction_not_found")
	ErrEmptyItems             = errors.New("empty_items")
	ErrInvalidItem            = errors.New("invalid_item")
	ErrInvalidPaymentMethod   = errors.New("invalid_payment_method")
	ErrInvalidDiscount        = errors.New("invalid_discount")
	ErrAlreadyRefunded        = errors.New("transaction_already_refunded")
	ErrNotRefundable          = errors.New("transaction_not_refundable")
	ErrInvalidRefundReason    = errors.New("invalid_refund_reason")
	ErrIdempotencyKeyConflict = errors.New("idempotency_key_conflict")
	ErrConcurrencyConflict    = errors.New("concurrency_conflict")
	ErrPersistence            = errors.New("persistence_failure")
	ErrInvalidPageToken       = errors.New("invalid_page_token")
)
