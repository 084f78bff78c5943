package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSession     = "session"
	ObjectTransaction = "transaction"
	ObjectCustomer    = "customer"
	ObjectQuota       = "quota"
	ObjectProduct     = "product"
	ObjectOrder       = "order"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionSessionSync = "session.sync"

	ActionTransactionCreate  = "transaction.create"
	ActionTransactionViewOwn = "transaction.view_own"
	ActionTransactionView    = "transaction.view"
	ActionTransactionRefund  = "transaction.refund"

	ActionCustomerViewOwn   = "customer.view_own"
	ActionCustomerView      = "customer.view"
	ActionCustomerUpdateOwn = "customer.update_own"
	ActionCustomerUpdate    = "customer.update"
	ActionCustomerSetRole   = "customer.set_role"

	// ActionQuotaViewOwn covers the caller's own quota only.
	ActionQuotaViewOwn  = "quota.view_own"
	ActionQuotaView     = "quota.view"
	ActionQuotaReset    = "quota.reset"
	ActionQuotaExceeded = "quota.exceeded"

	ActionProductView     = "product.view"
	ActionProductCreate   = "product.create"
	ActionProductUpdate   = "product.update"
	ActionProductRestock  = "product.restock"
	ActionProductLowStock = "product.low_stock"

	ActionOrderCreate       = "order.create"
	ActionOrderViewOwn      = "order.view_own"
	ActionOrderView         = "order.view"
	ActionOrderUpdateStatus = "order.update_status"
	ActionOrderCancelOwn    = "order.cancel_own"
	ActionOrderCancel       = "order.cancel"
	ActionOrderFulfill      = "order.fulfill"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor customerdomain.Customer, object string, action string) error {
	if actor.ID == 0 || !actor.IsActive {
		return ErrInvalidActor
	}
	allowed, err := s.Allowed(actor.Role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization denied",
			zap.String("actor_id", actor.ID.String()),
			zap.String("role", actor.Role.String()),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) Allowed(role customerdomain.Role, object string, action string) (bool, error) {
	if !role.Valid() {
		return false, ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return false, ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return false, ErrInvalidAction
	}
	return s.enforcer.Enforce(roleSubject(role), object, action)
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor customerdomain.Customer, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	actorID := actor.ID.String()
	targetID := object
	_ = s.auditSvc.AuditLog(ctx, actorType(actor.Role), &actorID, auditdomain.ActionAuthorizationDeny, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
		"role":   actor.Role.String(),
	})
}

func actorType(role customerdomain.Role) string {
	switch role {
	case customerdomain.RoleAdmin:
		return string(auditdomain.ActorTypeAdmin)
	case customerdomain.RoleCashier:
		return string(auditdomain.ActorTypeCashier)
	default:
		return string(auditdomain.ActorTypeCustomer)
	}
}

func roleSubject(role customerdomain.Role) string {
	return "role:" + role.String()
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	customer := roleSubject(customerdomain.RoleCustomer)
	cashier := roleSubject(customerdomain.RoleCashier)
	admin := roleSubject(customerdomain.RoleAdmin)

	policies := [][]string{
		// Customer permissions (self-service)
		{customer, ObjectSession, ActionSessionSync},
		{customer, ObjectCustomer, ActionCustomerViewOwn},
		{customer, ObjectCustomer, ActionCustomerUpdateOwn},
		{customer, ObjectQuota, ActionQuotaViewOwn},
		{customer, ObjectTransaction, ActionTransactionViewOwn},
		{customer, ObjectProduct, ActionProductView},
		{customer, ObjectOrder, ActionOrderCreate},
		{customer, ObjectOrder, ActionOrderViewOwn},
		{customer, ObjectOrder, ActionOrderCancelOwn},

		// Cashier permissions (point of sale)
		{cashier, ObjectTransaction, ActionTransactionCreate},
		{cashier, ObjectTransaction, ActionTransactionView},
		{cashier, ObjectCustomer, ActionCustomerView},
		{cashier, ObjectCustomer, ActionCustomerUpdate},
		{cashier, ObjectQuota, ActionQuotaView},
		{cashier, ObjectProduct, ActionProductLowStock},
		{cashier, ObjectOrder, ActionOrderView},
		{cashier, ObjectOrder, ActionOrderUpdateStatus},
		{cashier, ObjectOrder, ActionOrderCancel},
		{cashier, ObjectOrder, ActionOrderFulfill},

		// Admin permissions
		{admin, ObjectTransaction, ActionTransactionRefund},
		{admin, ObjectCustomer, ActionCustomerSetRole},
		{admin, ObjectQuota, ActionQuotaReset},
		{admin, ObjectQuota, ActionQuotaExceeded},
		{admin, ObjectProduct, ActionProductCreate},
		{admin, ObjectProduct, ActionProductUpdate},
		{admin, ObjectProduct, ActionProductRestock},
		{admin, ObjectAuditLog, ActionAuditLogView},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	// Staff roles inherit everything below them.
	groupings := [][]string{
		{cashier, customer},
		{admin, cashier},
	}
	for _, grouping := range groupings {
		if _, err := enforcer.AddGroupingPolicy(grouping); err != nil {
			return err
		}
	}
	return nil
}
