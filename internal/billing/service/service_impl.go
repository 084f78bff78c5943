package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/format"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/events"
	"github.com/smallbiznis/quotaguard/internal/idempotency"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	"github.com/smallbiznis/quotaguard/internal/observability/metrics"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	"github.com/smallbiznis/quotaguard/internal/providers/pdf"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/smallbiznis/quotaguard/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.QuotaPolicyHolder
	Repo      domain.Repository
	Customers customerdomain.Service
	Products  productdomain.Service
	Inventory inventorydomain.Service
	Quota     quotadomain.Service
	Audit     auditdomain.Service
	Guard     idempotency.Guard
	Events    events.Publisher
	PDF       pdf.Provider
	Metrics   *metrics.Metrics        `optional:"true"`
	Counters  *metrics.BillingMetrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.QuotaPolicyHolder
	repo      domain.Repository
	customers customerdomain.Service
	products  productdomain.Service
	inventory inventorydomain.Service
	quota     quotadomain.Service
	audit     auditdomain.Service
	guard     idempotency.Guard
	events    events.Publisher
	pdf       pdf.Provider
	metrics   *metrics.Metrics
	counters  *metrics.BillingMetrics
}

func New(p Params) domain.Service {
	guard := p.Guard
	if guard == nil {
		guard = idempotency.NoopGuard{}
	}
	publisher := p.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("billing.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		repo:      p.Repo,
		customers: p.Customers,
		products:  p.Products,
		inventory: p.Inventory,
		quota:     p.Quota,
		audit:     p.Audit,
		guard:     guard,
		events:    publisher,
		pdf:       p.PDF,
		metrics:   p.Metrics,
		counters:  p.Counters,
	}
}

// draft is a validated sale ready to commit.
type draft struct {
	customer customerdomain.Customer
	cashier  customerdomain.Customer
	items    []domain.TransactionItem
	lines    []inventorydomain.Line
	total    int64
	tax      int64
	discount int64
	volumeML int64
	req      domain.CreateTransactionRequest
	key      string
}

func (s *Service) CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.CreateTransactionResult, error) {
	start := s.clock.Now()
	if req.Channel == "" {
		req.Channel = domain.ChannelPOS
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}
	log := logger.WithContext(ctx, s.log).With(zap.String("channel", string(req.Channel)))

	d, err := s.prepare(ctx, req)
	if err != nil {
		s.observeFailure(ctx, log, req.Channel, start, d, err)
		return nil, err
	}

	if d.key != "" {
		if existing, err := s.replay(ctx, d); existing != nil || err != nil {
			if err == nil {
				s.counters.ObserveAttempt(string(req.Channel), metrics.OutcomeReplayed, s.clock.Now().Sub(start))
			}
			return existing, err
		}
		release, err := s.guard.Acquire(ctx, d.key)
		if err != nil {
			s.observeFailure(ctx, log, req.Channel, start, d, err)
			return nil, err
		}
		defer release()
	}

	tx, err := s.commitWithRetry(ctx, log, d)
	if err != nil {
		if d.key != "" && db.IsDuplicateKeyErr(err) {
			// Lost an idempotency race against a concurrent submission.
			if existing, replayErr := s.replay(ctx, d); existing != nil {
				return existing, nil
			} else if replayErr != nil {
				err = replayErr
			}
		}
		s.observeFailure(ctx, log, req.Channel, start, d, err)
		return nil, err
	}

	s.afterCommit(ctx, log, d, tx, start)
	return &domain.CreateTransactionResult{Transaction: *tx}, nil
}

// prepare resolves the actors and snapshots the products. It writes nothing.
func (s *Service) prepare(ctx context.Context, req domain.CreateTransactionRequest) (*draft, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	if !req.PaymentMethod.Valid() {
		return nil, domain.ErrInvalidPaymentMethod
	}
	if req.Discount < 0 {
		return nil, domain.ErrInvalidDiscount
	}
	key, err := idempotency.NormalizeKey(req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	cashier, err := s.customers.ResolveCashier(ctx, req.CashierUID)
	if err != nil {
		return nil, err
	}
	customer, err := s.customers.ResolveCustomer(ctx, req.CustomerRef)
	if err != nil {
		return nil, err
	}

	lines := make([]inventorydomain.Line, 0, len(req.Items))
	ids := make([]snowflake.ID, 0, len(req.Items))
	seen := make(map[snowflake.ID]struct{}, len(req.Items))
	for _, item := range req.Items {
		id, err := snowflake.ParseString(strings.TrimSpace(item.ProductID))
		if err != nil || id == 0 || item.Quantity <= 0 {
			return nil, domain.ErrInvalidItem
		}
		lines = append(lines, inventorydomain.Line{ProductID: id, Quantity: item.Quantity})
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	d := &draft{customer: customer, cashier: cashier, lines: lines, req: req, key: key}
	for _, line := range lines {
		p := products[line.ProductID]
		if !p.IsActive {
			return nil, productdomain.ErrNotFound
		}
		item := domain.TransactionItem{
			ProductID:      p.ID,
			Name:           p.Name,
			Barcode:        p.Barcode,
			Quantity:       line.Quantity,
			VolumeML:       p.VolumeML,
			UnitPrice:      p.Price,
			AlcoholContent: p.AlcoholContent,
			LineAmount:     p.Price * line.Quantity,
			LineVolumeML:   p.VolumeML * line.Quantity,
		}
		d.items = append(d.items, item)
		d.total += item.LineAmount
		d.volumeML += item.LineVolumeML
	}

	d.tax = d.total * s.policy.Get().TaxRateBps / 10000
	if req.Discount > d.total+d.tax {
		return nil, domain.ErrInvalidDiscount
	}
	d.discount = req.Discount
	return d, nil
}

func (s *Service) replay(ctx context.Context, d *draft) (*domain.CreateTransactionResult, error) {
	existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, d.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if existing == nil {
		return nil, nil
	}
	if existing.CustomerID != d.customer.ID {
		return nil, domain.ErrIdempotencyKeyConflict
	}
	s.log.Info("idempotent replay",
		zap.String("receipt_number", existing.ReceiptNumber),
		zap.String("transaction_id", existing.ID.String()),
	)
	return &domain.CreateTransactionResult{Transaction: *existing, Replayed: true}, nil
}

func (s *Service) commitWithRetry(ctx context.Context, log *zap.Logger, d *draft) (*domain.Transaction, error) {
	maxAttempts := s.policy.Get().MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		tx, err := s.commit(ctx, d)
		if err == nil {
			return tx, nil
		}
		if !db.IsRetryable(err) || ctx.Err() != nil {
			return nil, classify(err)
		}
		lastErr = err
		s.counters.IncRetry()
		log.Warn("billing commit lost a race; retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrConcurrencyConflict, lastErr)
}

// commit runs reserve, consume, number and persist as one unit of work.
func (s *Service) commit(ctx context.Context, d *draft) (*domain.Transaction, error) {
	policy := s.policy.Get()
	now := s.clock.Now()
	txID := s.genID.Generate()

	var record *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservation, err := s.inventory.WithTx(tx).ReserveAll(ctx, d.lines)
		if err != nil {
			return err
		}

		quota, err := s.quota.WithTx(tx).TryConsume(ctx, d.customer.ID, d.volumeML, txID)
		if err != nil {
			released := zap.Array("lines", reservedLines(reservation.Lines()))
			if relErr := reservation.Release(ctx); relErr != nil {
				s.log.Error("compensating release failed", released, zap.Error(relErr))
			} else {
				s.log.Debug("reservation released", released)
			}
			return err
		}

		seq, err := s.repo.NextReceiptSequence(ctx, tx, format.SequenceDay(now, policy.Location()), now)
		if err != nil {
			return err
		}
		number, err := format.FormatReceiptNumber(policy.ReceiptTemplate, now.In(policy.Location()), seq)
		if err != nil {
			return err
		}

		record = s.buildTransaction(d, txID, number, quota, now)
		if err := s.repo.Insert(ctx, tx, record); err != nil {
			return err
		}
		if hook := d.req.BeforeCommit; hook != nil {
			if err := hook(ctx, tx, record); err != nil {
				return &hookError{err: err}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) buildTransaction(d *draft, id snowflake.ID, number string, quota *quotadomain.DailyQuota, now time.Time) *domain.Transaction {
	items := make([]domain.TransactionItem, len(d.items))
	for i, item := range d.items {
		item.ID = s.genID.Generate()
		item.TransactionID = id
		items[i] = item
	}

	record := &domain.Transaction{
		ID:               id,
		ReceiptNumber:    number,
		CustomerID:       d.customer.ID,
		CustomerUID:      d.customer.UID,
		CustomerName:     displayName(d.customer),
		CashierID:        d.cashier.ID,
		CashierUID:       d.cashier.UID,
		Channel:          d.req.Channel,
		OrderID:          d.req.OrderID,
		TerminalID:       strings.TrimSpace(d.req.TerminalID),
		Items:            items,
		TotalAmount:      d.total,
		TaxAmount:        d.tax,
		DiscountAmount:   d.discount,
		FinalAmount:      d.total + d.tax - d.discount,
		TotalVolumeML:    d.volumeML,
		PaymentMethod:    d.req.PaymentMethod,
		PaymentStatus:    domain.PaymentStatusCompleted,
		Status:           domain.TransactionStatusCompleted,
		QuotaUsedML:      quota.ConsumedML,
		QuotaRemainingML: quota.RemainingML(),
		IDVerified:       d.customer.IDVerified,
		Notes:            strings.TrimSpace(d.req.Notes),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if d.key != "" {
		key := d.key
		record.IdempotencyKey = &key
	}
	return record
}

func (s *Service) afterCommit(ctx context.Context, log *zap.Logger, d *draft, tx *domain.Transaction, start time.Time) {
	log.Info("sale committed",
		zap.String("receipt_number", tx.ReceiptNumber),
		zap.String("transaction_id", tx.ID.String()),
		zap.String("customer_id", tx.CustomerID.String()),
		zap.Int64("volume_ml", tx.TotalVolumeML),
		zap.Int64("quota_remaining_ml", tx.QuotaRemainingML),
		zap.Int64("final_amount", tx.FinalAmount),
	)

	channel := string(tx.Channel)
	s.counters.ObserveAttempt(channel, metrics.OutcomeCommitted, s.clock.Now().Sub(start))
	s.metrics.RecordSaleCommitted(ctx, channel, string(tx.PaymentMethod), tx.TotalVolumeML)
	limit := tx.QuotaUsedML + tx.QuotaRemainingML
	if limit > 0 && float64(tx.QuotaUsedML)/float64(limit) >= s.policy.Get().WarningThreshold {
		s.counters.IncQuotaWarning()
	}

	targetID := tx.ID.String()
	cashierUID := d.cashier.UID
	_ = s.audit.AuditLog(ctx, string(auditdomain.ActorTypeCashier), &cashierUID, auditdomain.ActionSaleCommitted, "transaction", &targetID, map[string]any{
		"receipt_number":     tx.ReceiptNumber,
		"customer_id":        tx.CustomerID.String(),
		"volume_ml":          tx.TotalVolumeML,
		"final_amount":       tx.FinalAmount,
		"quota_remaining_ml": tx.QuotaRemainingML,
		"channel":            channel,
	})

	s.publish(ctx, events.TypeSaleCommitted, tx.CustomerID.String(), map[string]any{
		"transaction_id":     tx.ID.String(),
		"receipt_number":     tx.ReceiptNumber,
		"customer_id":        tx.CustomerID.String(),
		"cashier_id":         tx.CashierID.String(),
		"channel":            channel,
		"total_volume_ml":    tx.TotalVolumeML,
		"final_amount":       tx.FinalAmount,
		"quota_used_ml":      tx.QuotaUsedML,
		"quota_remaining_ml": tx.QuotaRemainingML,
	})
}

// observeFailure logs, audits and counts a failed attempt. Business
// rejections are warnings; anything else is an error.
func (s *Service) observeFailure(ctx context.Context, log *zap.Logger, channel domain.Channel, start time.Time, d *draft, err error) {
	elapsed := s.clock.Now().Sub(start)
	reason := RejectionReason(err)

	var (
		stockErr *inventorydomain.InsufficientStockError
		quotaErr *quotadomain.QuotaExceededError
	)
	switch {
	case errors.As(err, &quotaErr) && d != nil:
		log.Warn("sale rejected: quota exceeded",
			zap.String("customer_id", d.customer.ID.String()),
			zap.Int64("requested_ml", quotaErr.RequestedML),
			zap.Int64("remaining_ml", quotaErr.RemainingML),
			zap.Int64("limit_ml", quotaErr.LimitML),
		)
		targetID := d.customer.ID.String()
		cashierUID := d.cashier.UID
		_ = s.audit.AuditLog(ctx, string(auditdomain.ActorTypeCashier), &cashierUID, auditdomain.ActionQuotaViolation, "customer", &targetID, map[string]any{
			"requested_ml": quotaErr.RequestedML,
			"consumed_ml":  quotaErr.ConsumedML,
			"remaining_ml": quotaErr.RemainingML,
			"limit_ml":     quotaErr.LimitML,
		})
		s.publish(ctx, events.TypeQuotaExceeded, targetID, map[string]any{
			"customer_id":  targetID,
			"requested_ml": quotaErr.RequestedML,
			"remaining_ml": quotaErr.RemainingML,
			"limit_ml":     quotaErr.LimitML,
		})
	case errors.As(err, &stockErr) && d != nil:
		log.Warn("sale rejected: insufficient stock",
			zap.String("customer_id", d.customer.ID.String()),
			zap.String("product_id", stockErr.ProductID.String()),
			zap.Int64("available", stockErr.Available),
			zap.Int64("requested", stockErr.Requested),
		)
		targetID := stockErr.ProductID.String()
		cashierUID := d.cashier.UID
		_ = s.audit.AuditLog(ctx, string(auditdomain.ActorTypeCashier), &cashierUID, auditdomain.ActionStockInsufficient, "product", &targetID, map[string]any{
			"customer_id": d.customer.ID.String(),
			"barcode":     stockErr.Barcode,
			"available":   stockErr.Available,
			"requested":   stockErr.Requested,
		})
		s.publish(ctx, events.TypeStockInsufficient, d.customer.ID.String(), map[string]any{
			"product_id": targetID,
			"available":  stockErr.Available,
			"requested":  stockErr.Requested,
		})
	case reason == "internal":
		log.Error("sale failed", zap.Error(err))
	default:
		log.Warn("sale rejected", zap.String("reason", reason), zap.Error(err))
	}

	outcome := metrics.OutcomeRejected
	if reason == "internal" || reason == "conflict" {
		outcome = metrics.OutcomeFailed
	} else {
		s.counters.IncRejection(reason)
	}
	s.counters.ObserveAttempt(string(channel), outcome, elapsed)
	s.metrics.RecordSaleRejected(ctx, string(channel), reason)
}

func (s *Service) publish(ctx context.Context, eventType, key string, payload map[string]any) {
	event, err := events.New(eventType, key, s.clock.Now(), payload)
	if err != nil {
		s.log.Warn("event encode failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// RejectionReason maps an error to a low-cardinality label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, quotadomain.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, inventorydomain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, customerdomain.ErrNotFound), errors.Is(err, customerdomain.ErrInactive):
		return "customer_not_found"
	case errors.Is(err, customerdomain.ErrCashierNotFound):
		return "cashier_not_found"
	case errors.Is(err, productdomain.ErrNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, idempotency.ErrInFlight):
		return "conflict"
	case errors.Is(err, domain.ErrPersistence):
		return "internal"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "invalid_request"
	}
}

// hookError marks a refusal from the caller's BeforeCommit hook.
type hookError struct {
	err error
}

func (e *hookError) Error() string { return e.err.Error() }
func (e *hookError) Unwrap() error { return e.err }

// classify keeps business errors as they are and wraps storage failures.
// Hook refusals belong to the caller and pass through unwrapped.
func classify(err error) error {
	var hookErr *hookError
	if errors.As(err, &hookErr) && !db.IsRetryable(hookErr.err) {
		return hookErr.err
	}
	switch {
	case errors.Is(err, quotadomain.ErrQuotaExceeded),
		errors.Is(err, inventorydomain.ErrInsufficientStock),
		errors.Is(err, inventorydomain.ErrInvalidQuantity),
		errors.Is(err, productdomain.ErrNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
}

func displayName(c customerdomain.Customer) string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return c.PhoneNumber
}

type reservedLines []inventorydomain.Line

func (l reservedLines) MarshalLogArray(enc zapcore.ArrayEncoder) error {
	for _, line := range l {
		if err := enc.AppendObject(zapcore.ObjectMarshalerFunc(func(o zapcore.ObjectEncoder) error {
			o.AddString("product_id", line.ProductID.String())
			o.AddInt64("quantity", line.Quantity)
			return nil
		})); err != nil {
			return err
		}
	}
	return nil
}
