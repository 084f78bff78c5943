package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// transitions lists the statuses reachable through UpdateStatus. Completion
// is reserved for Fulfill so every completed order has a committed sale.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusProcessing, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// Billable statuses can still be completed by a committed sale.
func (s Status) Billable() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	}
	return false
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type DeliveryInfo struct {
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// JSONMap drops empty fields.
func (d DeliveryInfo) JSONMap() datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range map[string]string{
		"address":  d.Address,
		"city":     d.City,
		"state":    d.State,
		"zip_code": d.ZipCode,
		"phone":    d.Phone,
		"notes":    d.Notes,
	} {
		if value != "" {
			out[key] = value
		}
	}
	return out
}

type Order struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Reference     string            `gorm:"type:varchar(26);not null;uniqueIndex" json:"reference"`
	CustomerID    snowflake.ID      `gorm:"not null;index:idx_orders_customer_created,priority:1" json:"customer_id"`
	CustomerUID   string            `gorm:"size:128;not null;index" json:"customer_uid"`
	Items         []OrderItem       `gorm:"foreignKey:OrderID" json:"items"`
	TotalAmount   int64             `gorm:"not null" json:"total_amount"`
	TotalVolumeML int64             `gorm:"not null" json:"total_volume_ml"`
	Status        Status            `gorm:"type:varchar(16);not null;index:idx_orders_status_created,priority:1" json:"status"`
	PaymentStatus PaymentStatus     `gorm:"type:varchar(16);not null" json:"payment_status"`
	DeliveryInfo  datatypes.JSONMap `gorm:"type:json" json:"delivery_info,omitempty"`
	Notes         string            `gorm:"type:text" json:"notes,omitempty"`
	CancelReason  *string           `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledAt   *time.Time        `json:"cancelled_at,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
	TransactionID *snowflake.ID     `gorm:"index" json:"transaction_id,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;index:idx_orders_customer_created,priority:2;index:idx_orders_status_created,priority:2" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

type OrderItem struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrderID        snowflake.ID `gorm:"not null;index" json:"-"`
	ProductID      snowflake.ID `gorm:"not null" json:"product_id"`
	Name           string       `gorm:"size:255;not null" json:"name"`
	Barcode        string       `gorm:"size:64" json:"barcode"`
	Quantity       int64        `gorm:"not null" json:"quantity"`
	VolumeML       int64        `gorm:"not null" json:"volume_ml"`
	Price          int64        `gorm:"not null" json:"price"`
	AlcoholContent float64      `gorm:"not null" json:"alcohol_content"`
}

func (OrderItem) TableName() string { return "order_items" }
