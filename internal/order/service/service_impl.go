package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/clock"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/events"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	"github.com/smallbiznis/quotaguard/internal/observability/metrics"
	"github.com/smallbiznis/quotaguard/internal/order/domain"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCancelReasonLength = 500

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Customers customerdomain.Service
	Products  productdomain.Service
	Inventory inventorydomain.Service
	Quota     quotadomain.Service
	Billing   billingdomain.Service
	Audit     auditdomain.Service
	Events    events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	customers customerdomain.Service
	products  productdomain.Service
	inventory inventorydomain.Service
	quota     quotadomain.Service
	billing   billingdomain.Service
	audit     auditdomain.Service
	events    events.Publisher
	metrics   *metrics.Metrics
}

func New(p Params) domain.Service {
	publisher := p.Events
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		products:  p.Products,
		inventory: p.Inventory,
		quota:     p.Quota,
		billing:   p.Billing,
		audit:     p.Audit,
		events:    publisher,
		metrics:   p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (*domain.Order, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	customer, err := s.customers.ResolveCustomer(ctx, req.CustomerUID)
	if err != nil {
		return nil, err
	}

	lines := make([]inventorydomain.Line, 0, len(req.Items))
	ids := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		id, err := snowflake.ParseString(strings.TrimSpace(item.ProductID))
		if err != nil || id == 0 || item.Quantity <= 0 {
			return nil, domain.ErrInvalidItem
		}
		lines = append(lines, inventorydomain.Line{ProductID: id, Quantity: item.Quantity})
		ids = append(ids, id)
	}

	products, err := s.products.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:            s.genID.Generate(),
		Reference:     ulid.Make().String(),
		CustomerID:    customer.ID,
		CustomerUID:   customer.UID,
		Status:        domain.StatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		DeliveryInfo:  req.DeliveryInfo.JSONMap(),
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, line := range lines {
		p := products[line.ProductID]
		if !p.IsActive {
			return nil, productdomain.ErrNotFound
		}
		order.Items = append(order.Items, domain.OrderItem{
			ID:             s.genID.Generate(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			Name:           p.Name,
			Barcode:        p.Barcode,
			Quantity:       line.Quantity,
			VolumeML:       p.VolumeML,
			Price:          p.Price,
			AlcoholContent: p.AlcoholContent,
		})
		order.TotalAmount += p.Price * line.Quantity
		order.TotalVolumeML += p.VolumeML * line.Quantity
	}

	log := logger.WithContext(ctx, s.log)
	if err := s.inventory.CheckAvailable(ctx, lines); err != nil {
		log.Warn("order rejected", zap.String("customer_id", customer.ID.String()), zap.Error(err))
		return nil, err
	}
	if err := s.quota.CanConsume(ctx, customer.ID, order.TotalVolumeML); err != nil {
		log.Warn("order rejected", zap.String("customer_id", customer.ID.String()), zap.Error(err))
		return nil, err
	}

	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", order.Reference),
		zap.Int64("volume_ml", order.TotalVolumeML),
	)
	s.record(ctx, order, auditdomain.ActionOrderCreated, events.TypeOrderCreated, "created", nil)
	return order, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*domain.Order, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if _, err := ulid.ParseStrict(reference); err != nil {
		return nil, domain.ErrNotFound
	}
	order, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if status == domain.StatusCancelled {
		return s.Cancel(ctx, id, "")
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(order.Status, status) {
		return nil, domain.ErrInvalidTransition
	}

	from := order.Status
	ok, err := s.repo.UpdateStatus(ctx, s.db, id, from, map[string]any{
		"status":     status,
		"updated_at": s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, updated, auditdomain.ActionOrderStatusChanged, events.TypeOrderStatusChanged, string(status), map[string]any{
		"from": string(from),
	})
	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxCancelReasonLength {
		return nil, domain.ErrInvalidReason
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(order.Status, domain.StatusCancelled) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	fields := map[string]any{
		"status":       domain.StatusCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	}
	if reason != "" {
		fields["cancel_reason"] = reason
	}
	from := order.Status
	ok, err := s.repo.UpdateStatus(ctx, s.db, id, from, fields)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidTransition
	}

	cancelled, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.record(ctx, cancelled, auditdomain.ActionOrderCancelled, events.TypeOrderStatusChanged, "cancelled", map[string]any{
		"from":   string(from),
		"reason": reason,
	})
	return cancelled, nil
}

// Fulfill bills the order under the idempotency key order:<id>. The order is
// completed inside the sale's unit of work, so a cancel that lands first
// rolls the sale back and a cancel that lands later is refused.
func (s *Service) Fulfill(ctx context.Context, req domain.FulfillRequest) (*domain.FulfillResult, error) {
	order, err := s.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCompleted && order.TransactionID != nil {
		tx, err := s.billing.GetTransaction(ctx, *order.TransactionID)
		if err != nil {
			return nil, err
		}
		return &domain.FulfillResult{Order: *order, Transaction: *tx}, nil
	}
	if !order.Status.Billable() {
		return nil, domain.ErrInvalidTransition
	}

	items := make([]billingdomain.LineItemRequest, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, billingdomain.LineItemRequest{
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
		})
	}
	orderID := order.ID
	result, err := s.billing.CreateTransaction(ctx, billingdomain.CreateTransactionRequest{
		CashierUID:     req.CashierUID,
		CustomerRef:    order.CustomerID.String(),
		Items:          items,
		PaymentMethod:  req.PaymentMethod,
		Notes:          "order " + order.Reference,
		TerminalID:     req.TerminalID,
		Channel:        billingdomain.ChannelOrder,
		OrderID:        &orderID,
		IdempotencyKey: FulfillmentKey(order.ID),
		BeforeCommit: func(ctx context.Context, tx *gorm.DB, sale *billingdomain.Transaction) error {
			return s.complete(ctx, tx, orderID, sale.ID)
		},
	})
	if err != nil {
		return nil, err
	}

	completed, err := s.Get(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if completed.Status != domain.StatusCompleted || completed.TransactionID == nil || *completed.TransactionID != result.Transaction.ID {
		logger.WithContext(ctx, s.log).Error("committed sale does not match order",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(completed.Status)),
			zap.String("receipt_number", result.Transaction.ReceiptNumber),
		)
		return nil, domain.ErrInvalidTransition
	}

	if !result.Replayed {
		s.record(ctx, completed, auditdomain.ActionOrderFulfilled, events.TypeOrderStatusChanged, "completed", map[string]any{
			"from":           string(order.Status),
			"transaction_id": result.Transaction.ID.String(),
			"receipt_number": result.Transaction.ReceiptNumber,
		})
	}
	return &domain.FulfillResult{Order: *completed, Transaction: result.Transaction}, nil
}

// complete marks the order paid within tx. It refuses orders that were
// cancelled or completed since Fulfill read them.
func (s *Service) complete(ctx context.Context, tx *gorm.DB, orderID, saleID snowflake.ID) error {
	now := s.clock.Now()
	ok, err := s.repo.Complete(ctx, tx, orderID, map[string]any{
		"status":         domain.StatusCompleted,
		"payment_status": domain.PaymentStatusPaid,
		"transaction_id": saleID,
		"completed_at":   now,
		"updated_at":     now,
	})
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInvalidTransition
	}
	return nil
}

// FulfillmentKey is the idempotency key used to bill an order.
func FulfillmentKey(id snowflake.ID) string {
	return "order:" + id.String()
}

func (s *Service) record(ctx context.Context, order *domain.Order, action, eventType, lifecycle string, extra map[string]any) {
	s.metrics.RecordOrderEvent(ctx, lifecycle)

	metadata := map[string]any{
		"reference":   order.Reference,
		"customer_id": order.CustomerID.String(),
		"status":      string(order.Status),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	targetID := order.ID.String()
	_ = s.audit.AuditLog(ctx, "", nil, action, "order", &targetID, metadata)

	metadata["order_id"] = targetID
	event, err := events.New(eventType, order.CustomerID.String(), s.clock.Now(), metadata)
	if err != nil {
		s.log.Warn("event encode failed", zap.String("type", eventType), zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.log.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
