// Package domain contains the sale record and its receipt sequence.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodUPI   PaymentMethod = "upi"
	PaymentMethodOther PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodUPI, PaymentMethodOther:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Channel is where a sale originated.
type Channel string

const (
	ChannelPOS   Channel = "pos"
	ChannelOrder Channel = "order"
)

// Transaction is an immutable sale. Only the refund fields change after
// creation.
type Transaction struct {
	ID               snowflake.ID      `json:"id" gorm:"primaryKey"`
	ReceiptNumber    string            `json:"receipt_number" gorm:"size:32;not null;uniqueIndex"`
	IdempotencyKey   *string           `json:"-" gorm:"size:128;uniqueIndex"`
	CustomerID       snowflake.ID      `json:"customer_id" gorm:"not null;index:idx_transactions_customer_created,priority:1"`
	CustomerUID      string            `json:"customer_uid" gorm:"size:128;not null"`
	CustomerName     string            `json:"customer_name" gorm:"size:255"`
	CashierID        snowflake.ID      `json:"cashier_id" gorm:"not null;index"`
	CashierUID       string            `json:"cashier_uid" gorm:"size:128;not null"`
	Channel          Channel           `json:"channel" gorm:"type:varchar(16);not null"`
	OrderID          *snowflake.ID     `json:"order_id,omitempty" gorm:"index"`
	TerminalID       string            `json:"terminal_id,omitempty" gorm:"size:64"`
	Items            []TransactionItem `json:"items" gorm:"foreignKey:TransactionID"`
	TotalAmount      int64             `json:"total_amount" gorm:"not null"`
	TaxAmount        int64             `json:"tax" gorm:"not null"`
	DiscountAmount   int64             `json:"discount" gorm:"not null"`
	FinalAmount      int64             `json:"final_amount" gorm:"not null"`
	TotalVolumeML    int64             `json:"total_volume_ml" gorm:"not null"`
	PaymentMethod    PaymentMethod     `json:"payment_method" gorm:"type:varchar(16);not null"`
	PaymentStatus    PaymentStatus     `json:"payment_status" gorm:"type:varchar(16);not null"`
	Status           TransactionStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	QuotaUsedML      int64             `json:"quota_used_ml" gorm:"not null"`
	QuotaRemainingML int64             `json:"quota_remaining_ml" gorm:"not null"`
	IDVerified       bool              `json:"id_verified" gorm:"not null"`
	Notes            string            `json:"notes,omitempty" gorm:"type:text"`
	RefundReason     *string           `json:"refund_reason,omitempty" gorm:"type:text"`
	RefundedAt       *time.Time        `json:"refunded_at,omitempty"`
	RefundedBy       *string           `json:"refunded_by,omitempty" gorm:"size:128"`
	CreatedAt        time.Time         `json:"created_at" gorm:"not null;index:idx_transactions_customer_created,priority:2"`
	UpdatedAt        time.Time         `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }

// TransactionItem snapshots the product at the time of sale.
type TransactionItem struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	TransactionID  snowflake.ID `json:"transaction_id" gorm:"not null;index"`
	ProductID      snowflake.ID `json:"product_id" gorm:"not null"`
	Name           string       `json:"name" gorm:"size:255;not null"`
	Barcode        string       `json:"barcode" gorm:"size:64;not null"`
	Quantity       int64        `json:"quantity" gorm:"not null"`
	VolumeML       int64        `json:"volume_ml" gorm:"not null"`
	UnitPrice      int64        `json:"unit_price" gorm:"not null"`
	AlcoholContent float64      `json:"alcohol_content" gorm:"not null"`
	LineAmount     int64        `json:"line_amount" gorm:"not null"`
	LineVolumeML   int64        `json:"line_volume_ml" gorm:"not null"`
}

func (TransactionItem) TableName() string { return "transaction_items" }

// ReceiptSequence is the per-day receipt counter.
type ReceiptSequence struct {
	Day       string    `gorm:"primaryKey;type:varchar(8)"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (ReceiptSequence) TableName() string { return "receipt_sequences" }
