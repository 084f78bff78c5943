package service

import (
	"context"
	"errors"
	"math"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/smallbiznis/quotaguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxHistoryDays = 366

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.QuotaPolicyHolder
	Repo   domain.Repository
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.QuotaPolicyHolder
	repo   domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("quota.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
	}
}

func (s *Service) WithTx(tx *gorm.DB) domain.Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	return &clone
}

func (s *Service) Today() string {
	policy := s.policy.Get()
	return domain.DayOf(s.clock.Now(), policy.Location(), policy.ResetOffset())
}

func (s *Service) GetOrCreateToday(ctx context.Context, customerID snowflake.ID) (*domain.DailyQuota, error) {
	if customerID == 0 {
		return nil, domain.ErrQuotaNotFound
	}
	day := s.Today()

	existing, err := s.repo.FindByCustomerDay(ctx, s.db, customerID, day)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	candidate := &domain.DailyQuota{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Day:        day,
		LimitML:    s.policy.Get().LimitML(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertIgnore(ctx, s.db, candidate); err != nil && !db.IsDuplicateKeyErr(err) {
		return nil, err
	}

	// Re-read so a losing creator gets the winning record.
	existing, err = s.repo.FindByCustomerDay(ctx, s.db, customerID, day)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrQuotaNotFound
	}
	return existing, nil
}

func (s *Service) TryConsume(ctx context.Context, customerID snowflake.ID, volumeML int64, transactionID snowflake.ID) (*domain.DailyQuota, error) {
	if volumeML <= 0 {
		return nil, domain.ErrInvalidVolume
	}
	quota, err := s.GetOrCreateToday(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ok, err := s.repo.Consume(ctx, s.db, quota.ID, volumeML, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.repo.FindByCustomerDay(ctx, s.db, customerID, quota.Day)
		if err != nil {
			return nil, err
		}
		if current == nil {
			current = quota
		}
		return nil, domain.NewQuotaExceeded(*current, volumeML)
	}

	if err := s.repo.InsertConsumption(ctx, s.db, &domain.Consumption{
		ID:            s.genID.Generate(),
		QuotaID:       quota.ID,
		CustomerID:    customerID,
		TransactionID: transactionID,
		VolumeML:      volumeML,
		CreatedAt:     now,
	}); err != nil {
		return nil, err
	}

	updated, err := s.repo.FindByCustomerDay(ctx, s.db, customerID, quota.Day)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrQuotaNotFound
	}

	if updated.Ratio() >= s.policy.Get().WarningThreshold {
		if err := s.repo.InsertWarning(ctx, s.db, &domain.Warning{
			ID:         s.genID.Generate(),
			QuotaID:    updated.ID,
			CustomerID: customerID,
			Message:    domain.WarningApproachingLimit,
			ConsumedML: updated.ConsumedML,
			LimitML:    updated.LimitML,
			CreatedAt:  now,
		}); err != nil {
			return nil, err
		}
	}
	return updated, nil
}

func (s *Service) CanConsume(ctx context.Context, customerID snowflake.ID, volumeML int64) error {
	if volumeML <= 0 {
		return domain.ErrInvalidVolume
	}
	quota, err := s.peekToday(ctx, customerID)
	if err != nil {
		return err
	}
	if quota.ConsumedML+volumeML > quota.LimitML {
		return domain.NewQuotaExceeded(quota, volumeML)
	}
	return nil
}

func (s *Service) Check(ctx context.Context, customerID snowflake.ID) (domain.Snapshot, error) {
	quota, err := s.GetOrCreateToday(ctx, customerID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	views, err := s.withEntries(ctx, []domain.DailyQuota{*quota})
	if err != nil {
		return domain.Snapshot{}, err
	}
	return views[0], nil
}

func (s *Service) History(ctx context.Context, customerID snowflake.ID, days int) ([]domain.Snapshot, error) {
	if days == 0 {
		days = s.policy.Get().HistoryDays
	}
	if days < 0 || days > maxHistoryDays {
		return nil, domain.ErrInvalidDays
	}
	from, err := domain.ShiftDay(s.Today(), -(days - 1))
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListByCustomerSince(ctx, s.db, customerID, from)
	if err != nil {
		return nil, err
	}
	return s.withEntries(ctx, items)
}

// withEntries builds the snapshots for records and attaches their
// consumption and warning entries.
func (s *Service) withEntries(ctx context.Context, records []domain.DailyQuota) ([]domain.Snapshot, error) {
	ids := make([]snowflake.ID, 0, len(records))
	for _, record := range records {
		if record.ID != 0 {
			ids = append(ids, record.ID)
		}
	}
	consumptions, err := s.repo.ListConsumptions(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	warnings, err := s.repo.ListWarnings(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byQuota := make(map[snowflake.ID]*domain.Snapshot, len(records))
	out := make([]domain.Snapshot, len(records))
	for i, record := range records {
		out[i] = toSnapshot(record)
		byQuota[record.ID] = &out[i]
	}
	for _, c := range consumptions {
		if view := byQuota[c.QuotaID]; view != nil {
			view.Consumptions = append(view.Consumptions, c)
		}
	}
	for _, w := range warnings {
		if view := byQuota[w.QuotaID]; view != nil {
			view.Warnings = append(view.Warnings, w)
		}
	}
	return out, nil
}

// Reset zeroes today's record for one customer. The caller records the audit
// entry.
func (s *Service) Reset(ctx context.Context, customerID snowflake.ID) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bound := s.WithTx(tx).(*Service)
		quota, err := bound.GetOrCreateToday(ctx, customerID)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.repo.ResetRecord(ctx, tx, quota.ID, now); err != nil {
			return err
		}
		quota.ConsumedML = 0
		quota.LastResetAt = &now
		snapshot = toSnapshot(*quota)
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, err
	}

	s.log.Info("quota reset",
		zap.String("customer_id", customerID.String()),
		zap.String("day", snapshot.Day),
	)
	return snapshot, nil
}

func (s *Service) ExceedingLimit(ctx context.Context) ([]domain.Snapshot, error) {
	items, err := s.repo.ListExceeding(ctx, s.db, s.Today())
	if err != nil {
		return nil, err
	}
	out := make([]domain.Snapshot, 0, len(items))
	for _, item := range items {
		out = append(out, toSnapshot(item))
	}
	return out, nil
}

func (s *Service) ResetElapsed(ctx context.Context, batchSize int) (domain.ResetResult, error) {
	if batchSize <= 0 {
		return domain.ResetResult{}, errors.New("batch size must be positive")
	}
	today := s.Today()

	var result domain.ResetResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := s.repo.ListElapsedUnsettled(ctx, tx, today, batchSize)
		if err != nil {
			return err
		}
		records, consumptions, err := s.repo.Settle(ctx, tx, ids, s.clock.Now())
		if err != nil {
			return err
		}
		result = domain.ResetResult{Records: records, Consumptions: consumptions}
		return nil
	})
	return result, err
}

func (s *Service) PruneExpired(ctx context.Context, batchSize int) (domain.PruneResult, error) {
	if batchSize <= 0 {
		return domain.PruneResult{}, errors.New("batch size must be positive")
	}
	cutoff, err := domain.ShiftDay(s.Today(), -s.policy.Get().RetentionDays)
	if err != nil {
		return domain.PruneResult{}, err
	}

	var result domain.PruneResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ids, err := s.repo.ListPrunable(ctx, tx, cutoff, batchSize)
		if err != nil {
			return err
		}
		records, warnings, err := s.repo.Delete(ctx, tx, ids)
		if err != nil {
			return err
		}
		result = domain.PruneResult{Records: records, Warnings: warnings}
		return nil
	})
	return result, err
}

// peekToday reads today's record without creating it.
func (s *Service) peekToday(ctx context.Context, customerID snowflake.ID) (domain.DailyQuota, error) {
	if customerID == 0 {
		return domain.DailyQuota{}, domain.ErrQuotaNotFound
	}
	day := s.Today()
	quota, err := s.repo.FindByCustomerDay(ctx, s.db, customerID, day)
	if err != nil {
		return domain.DailyQuota{}, err
	}
	if quota == nil {
		return domain.DailyQuota{
			CustomerID: customerID,
			Day:        day,
			LimitML:    s.policy.Get().LimitML(),
		}, nil
	}
	return *quota, nil
}

func toSnapshot(q domain.DailyQuota) domain.Snapshot {
	consumed := q.ConsumedML
	if q.Settled {
		consumed = q.SettledML
	}
	view := q
	view.ConsumedML = consumed
	remaining := view.RemainingML()

	return domain.Snapshot{
		CustomerID:      q.CustomerID.String(),
		Day:             q.Day,
		LimitML:         q.LimitML,
		ConsumedML:      consumed,
		RemainingML:     remaining,
		LimitLiters:     config.MLToLiters(q.LimitML),
		ConsumedLiters:  config.MLToLiters(consumed),
		RemainingLiters: config.MLToLiters(remaining),
		Percentage:      math.Round(view.Ratio()*10000) / 100,
		Status:          domain.StatusFor(consumed, q.LimitML),
		Settled:         q.Settled,
		LastResetAt:     q.LastResetAt,
		Consumptions:    []domain.Consumption{},
		Warnings:        []domain.Warning{},
	}
}
