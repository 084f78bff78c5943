package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeCustomer ActorType = "customer"
	ActorTypeCashier  ActorType = "cashier"
	ActorTypeAdmin    ActorType = "admin"
	ActorTypeSystem   ActorType = "system"
)

// Actions recorded by the engine.
const (
	ActionSaleCommitted      = "sale.committed"
	ActionSaleRefunded       = "sale.refunded"
	ActionQuotaViolation     = "quota.violation"
	ActionStockInsufficient  = "stock.insufficient"
	ActionQuotaReset         = "quota.reset"
	ActionProductCreated     = "product.created"
	ActionProductRestocked   = "product.restocked"
	ActionOrderCreated       = "order.created"
	ActionOrderStatusChanged = "order.status_changed"
	ActionOrderCancelled     = "order.cancelled"
	ActionOrderFulfilled     = "order.fulfilled"
	ActionCustomerRoleSet    = "customer.role_set"
	ActionAuthorizationDeny  = "authorization.denied"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"size:32;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"size:64"`
	Action     string            `json:"action" gorm:"size:64;not null;index"`
	TargetType string            `json:"target_type" gorm:"size:64;not null;index:idx_audit_logs_target,priority:1"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"size:64;index:idx_audit_logs_target,priority:2"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty"`
	IPAddress  *string           `json:"ip_address,omitempty" gorm:"size:64"`
	UserAgent  *string           `json:"user_agent,omitempty" gorm:"size:512"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
