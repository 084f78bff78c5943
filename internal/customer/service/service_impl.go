package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("customer.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) EnsureUser(ctx context.Context, req domain.EnsureUserRequest) (domain.Customer, bool, error) {
	uid := strings.TrimSpace(req.UID)
	if uid == "" {
		return domain.Customer{}, false, domain.ErrInvalidUID
	}

	existing, err := s.repo.FindByUID(ctx, s.db, uid)
	if err != nil {
		return domain.Customer{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	email := strings.TrimSpace(req.Email)
	if email != "" && !strings.Contains(email, "@") {
		return domain.Customer{}, false, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	customer := domain.Customer{
		ID:          s.genID.Generate(),
		UID:         uid,
		Name:        strings.TrimSpace(req.Name),
		Email:       email,
		PhoneNumber: domain.NormalizePhone(req.PhoneNumber),
		Role:        domain.RoleCustomer,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &customer); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.Customer{}, false, err
		}
		// another session registered the same uid first
		winner, findErr := s.repo.FindByUID(ctx, s.db, uid)
		if findErr != nil {
			return domain.Customer{}, false, findErr
		}
		if winner == nil {
			return domain.Customer{}, false, err
		}
		return *winner, false, nil
	}

	s.log.Info("customer registered",
		zap.String("customer_id", customer.ID.String()),
		zap.String("role", customer.Role.String()),
	)
	return customer, true, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Customer, error) {
	if id == 0 {
		return domain.Customer{}, domain.ErrNotFound
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

func (s *Service) GetByUID(ctx context.Context, uid string) (domain.Customer, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return domain.Customer{}, domain.ErrInvalidUID
	}
	item, err := s.repo.FindByUID(ctx, s.db, uid)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	return *item, nil
}

// ResolveCustomer tries the surrogate id, then the external uid, then the
// normalized phone number. Inactive customers resolve to ErrInactive.
func (s *Service) ResolveCustomer(ctx context.Context, ref string) (domain.Customer, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return domain.Customer{}, domain.ErrInvalidRef
	}

	item, err := s.lookup(ctx, ref)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil {
		return domain.Customer{}, domain.ErrNotFound
	}
	if !item.IsActive {
		return domain.Customer{}, domain.ErrInactive
	}
	return *item, nil
}

func (s *Service) lookup(ctx context.Context, ref string) (*domain.Customer, error) {
	if id, err := snowflake.ParseString(ref); err == nil && id > 0 {
		item, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil || item != nil {
			return item, err
		}
	}

	item, err := s.repo.FindByUID(ctx, s.db, ref)
	if err != nil || item != nil {
		return item, err
	}

	phone := domain.NormalizePhone(ref)
	if phone == "" {
		return nil, nil
	}
	return s.repo.FindByPhone(ctx, s.db, phone)
}

func (s *Service) ResolveCashier(ctx context.Context, uid string) (domain.Customer, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return domain.Customer{}, domain.ErrCashierNotFound
	}
	item, err := s.repo.FindByUID(ctx, s.db, uid)
	if err != nil {
		return domain.Customer{}, err
	}
	if item == nil || !item.IsActive || !item.Role.IsStaff() {
		return domain.Customer{}, domain.ErrCashierNotFound
	}
	return *item, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id snowflake.ID, req domain.UpdateProfileRequest) (domain.Customer, error) {
	fields := map[string]any{"updated_at": s.clock.Now()}
	if req.Name != nil {
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email != "" && !strings.Contains(email, "@") {
			return domain.Customer{}, domain.ErrInvalidEmail
		}
		fields["email"] = email
	}
	if req.PhoneNumber != nil {
		fields["phone_number"] = domain.NormalizePhone(*req.PhoneNumber)
	}
	if req.DateOfBirth != nil {
		dob := req.DateOfBirth.UTC().Truncate(24 * time.Hour)
		fields["date_of_birth"] = dob
	}
	if req.IDVerified != nil {
		fields["id_verified"] = *req.IDVerified
	}

	if err := s.repo.Update(ctx, s.db, id, fields); err != nil {
		return domain.Customer{}, err
	}
	return s.GetByID(ctx, id)
}

func (s *Service) SetRole(ctx context.Context, id snowflake.ID, role domain.Role) (domain.Customer, error) {
	if !role.Valid() {
		return domain.Customer{}, domain.ErrInvalidRole
	}
	if err := s.repo.Update(ctx, s.db, id, map[string]any{
		"role":       role,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return domain.Customer{}, err
	}
	s.log.Info("customer role changed",
		zap.String("customer_id", id.String()),
		zap.String("role", role.String()),
	)
	return s.GetByID(ctx, id)
}

// Deactivate soft-deletes the customer; rows are never removed.
func (s *Service) Deactivate(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.Update(ctx, s.db, id, map[string]any{
		"is_active":  false,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return err
	}
	s.log.Info("customer deactivated", zap.String("customer_id", id.String()))
	return nil
}
