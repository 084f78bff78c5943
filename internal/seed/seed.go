package seed

import (
	"context"
	"errors"
	"strings"

	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultAdminDisplay = "QuotaGuard Admin"

var Module = fx.Module("seed",
	fx.Invoke(Bootstrap),
)

type Params struct {
	fx.In

	Cfg       config.Config
	Log       *zap.Logger
	Customers customerdomain.Service
	Audit     auditdomain.Service
}

// Bootstrap promotes the configured identity to admin. Roles can only be
// changed by an admin, so a fresh install needs one seeded out of band.
func Bootstrap(p Params) error {
	uid := strings.TrimSpace(p.Cfg.BootstrapAdminUID)
	if uid == "" {
		return nil
	}

	admin, promoted, err := EnsureAdmin(context.Background(), p.Customers, p.Audit, uid)
	if err != nil {
		return err
	}
	if promoted {
		p.Log.Info("bootstrap admin seeded",
			zap.String("uid", admin.UID),
			zap.String("customer_id", admin.ID.String()),
		)
	}
	return nil
}

// EnsureAdmin registers uid if needed and grants it the admin role. It
// reports whether anything changed.
func EnsureAdmin(ctx context.Context, customers customerdomain.Service, audit auditdomain.Service, uid string) (customerdomain.Customer, bool, error) {
	if customers == nil {
		return customerdomain.Customer{}, false, errors.New("seed customer service is required")
	}

	user, _, err := customers.EnsureUser(ctx, customerdomain.EnsureUserRequest{
		UID:  uid,
		Name: defaultAdminDisplay,
	})
	if err != nil {
		return customerdomain.Customer{}, false, err
	}
	if user.Role == customerdomain.RoleAdmin {
		return user, false, nil
	}

	previous := user.Role
	user, err = customers.SetRole(ctx, user.ID, customerdomain.RoleAdmin)
	if err != nil {
		return customerdomain.Customer{}, false, err
	}

	if audit != nil {
		targetID := user.ID.String()
		_ = audit.AuditLog(ctx, string(auditdomain.ActorTypeSystem), nil, auditdomain.ActionCustomerRoleSet, "customer", &targetID, map[string]any{
			"from":  previous.String(),
			"to":    customerdomain.RoleAdmin.String(),
			"scope": "bootstrap",
		})
	}
	return user, true, nil
}
