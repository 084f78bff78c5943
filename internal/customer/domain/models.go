package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role is the closed set of actor roles.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleCashier  Role = "cashier"
	RoleAdmin    Role = "admin"
)

func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleCashier, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsStaff reports whether the role may operate a till.
func (r Role) IsStaff() bool {
	switch r {
	case RoleCashier, RoleAdmin:
		return true
	case RoleCustomer:
		return false
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, string(r))
	}
	return string(r), nil
}

func (r *Role) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidRole, src)
	}
	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

type Customer struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	UID         string       `gorm:"size:128;not null;uniqueIndex" json:"uid"`
	Name        string       `gorm:"size:255" json:"name"`
	Email       string       `gorm:"size:255;index" json:"email,omitempty"`
	PhoneNumber string       `gorm:"size:32;index" json:"phone_number,omitempty"`
	Role        Role         `gorm:"type:varchar(16);not null" json:"role"`
	IsActive    bool         `gorm:"not null" json:"is_active"`
	IDVerified  bool         `gorm:"not null" json:"id_verified"`
	DateOfBirth *time.Time   `json:"date_of_birth,omitempty"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string { return "customers" }

// NormalizePhone strips everything except digits and a leading plus.
func NormalizePhone(value string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(value) {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
