package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/quotaguard/internal/billing/billingtest"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/events"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	"github.com/smallbiznis/quotaguard/internal/order/domain"
	"github.com/smallbiznis/quotaguard/internal/order/repository"
	"github.com/smallbiznis/quotaguard/internal/order/service"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	*billingtest.Harness
	orders   domain.Service
	customer customerdomain.Customer
	cashier  customerdomain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := billingtest.New(t, config.DefaultQuotaPolicy(), &domain.Order{}, &domain.OrderItem{})
	f := &fixture{
		Harness:  h,
		customer: h.Customer(t, "1001", customerdomain.RoleCustomer),
		cashier:  h.Customer(t, "2001", customerdomain.RoleCashier),
	}
	f.orders = f.ordersWith(t, h.Billing)
	return f
}

func (f *fixture) ordersWith(t *testing.T, billing billingdomain.Service) domain.Service {
	return service.New(service.Params{
		DB:        f.DB,
		Log:       zaptest.NewLogger(t),
		GenID:     f.Node,
		Clock:     f.Clock,
		Repo:      repository.Provide(),
		Customers: f.Customers,
		Products:  f.Products,
		Inventory: f.Inventory,
		Quota:     f.Quota,
		Billing:   billing,
		Audit:     f.Audit,
		Events:    f.Events,
	})
}

// interleavedBilling runs before() ahead of every sale it forwards.
type interleavedBilling struct {
	billingdomain.Service
	before func()
}

func (b *interleavedBilling) CreateTransaction(ctx context.Context, req billingdomain.CreateTransactionRequest) (*billingdomain.CreateTransactionResult, error) {
	b.before()
	return b.Service.CreateTransaction(ctx, req)
}

func (f *fixture) order(t *testing.T, productID string, qty int64) *domain.Order {
	t.Helper()
	order, err := f.orders.Create(context.Background(), domain.CreateOrderRequest{
		CustomerUID: f.customer.UID,
		Items:       []domain.ItemRequest{{ProductID: productID, Quantity: qty}},
		DeliveryInfo: domain.DeliveryInfo{
			Address: "12 Market Road",
			City:    "Pune",
		},
	})
	require.NoError(t, err)
	return order
}

func TestCreateValidatesWithoutReserving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wine := f.Product(t, "Red", 750, 5000, 3)

	order := f.order(t, wine.ID.String(), 1)
	assert.Equal(t, domain.StatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusPending, order.PaymentStatus)
	assert.Len(t, order.Reference, 26)
	assert.Equal(t, int64(5000), order.TotalAmount)
	assert.Equal(t, int64(750), order.TotalVolumeML)
	assert.Equal(t, "Pune", order.DeliveryInfo["city"])
	_, hasState := order.DeliveryInfo["state"]
	assert.False(t, hasState)

	assert.Equal(t, int64(3), f.Stock(t, wine.ID))
	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.ConsumedML)

	byRef, err := f.orders.GetByReference(ctx, order.Reference)
	require.NoError(t, err)
	assert.Equal(t, order.ID, byRef.ID)
	require.Len(t, byRef.Items, 1)

	assert.Equal(t, []string{events.TypeOrderCreated}, f.Events.Types())
}

func TestCreateRejectsShortStockAndQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scarce := f.Product(t, "Rare", 100, 9000, 1)
	wine := f.Product(t, "Red", 700, 5000, 10)
	rum := f.Product(t, "Rum", 400, 4000, 10)

	_, err := f.orders.Create(ctx, domain.CreateOrderRequest{
		CustomerUID: f.customer.UID,
		Items:       []domain.ItemRequest{{ProductID: scarce.ID.String(), Quantity: 2}},
	})
	require.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	_, err = f.Billing.CreateTransaction(ctx, billingdomain.CreateTransactionRequest{
		CashierUID:  f.cashier.UID,
		CustomerRef: f.customer.UID,
		Items:       []billingdomain.LineItemRequest{{ProductID: wine.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.orders.Create(ctx, domain.CreateOrderRequest{
		CustomerUID: f.customer.UID,
		Items:       []domain.ItemRequest{{ProductID: rum.ID.String(), Quantity: 1}},
	})
	require.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)

	_, err = f.orders.Create(ctx, domain.CreateOrderRequest{CustomerUID: f.customer.UID})
	require.ErrorIs(t, err, domain.ErrEmptyItems)

	var count int64
	require.NoError(t, f.DB.Model(&domain.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUpdateStatusFollowsTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)
	order := f.order(t, beer.ID.String(), 1)

	updated, err := f.orders.UpdateStatus(ctx, order.ID, domain.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, updated.Status)

	updated, err = f.orders.UpdateStatus(ctx, order.ID, domain.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, updated.Status)

	_, err = f.orders.UpdateStatus(ctx, order.ID, domain.StatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.orders.UpdateStatus(ctx, order.ID, domain.StatusCompleted)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.orders.UpdateStatus(ctx, order.ID, domain.Status("shipped"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = f.orders.UpdateStatus(ctx, f.Node.Generate(), domain.StatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancelIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)
	order := f.order(t, beer.ID.String(), 1)

	cancelled, err := f.orders.Cancel(ctx, order.ID, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "changed my mind", *cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.orders.Cancel(ctx, order.ID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.orders.Fulfill(ctx, domain.FulfillRequest{OrderID: order.ID, CashierUID: f.cashier.UID})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, int64(10), f.Stock(t, beer.ID))
}

func TestFulfillCommitsThroughBilling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)
	order := f.order(t, beer.ID.String(), 2)

	result, err := f.orders.Fulfill(ctx, domain.FulfillRequest{
		OrderID:       order.ID,
		CashierUID:    f.cashier.UID,
		PaymentMethod: billingdomain.PaymentMethodUPI,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, result.Order.Status)
	assert.Equal(t, domain.PaymentStatusPaid, result.Order.PaymentStatus)
	require.NotNil(t, result.Order.TransactionID)
	assert.Equal(t, result.Transaction.ID, *result.Order.TransactionID)
	require.NotNil(t, result.Order.CompletedAt)

	assert.Equal(t, billingdomain.ChannelOrder, result.Transaction.Channel)
	require.NotNil(t, result.Transaction.OrderID)
	assert.Equal(t, order.ID, *result.Transaction.OrderID)
	require.NotNil(t, result.Transaction.IdempotencyKey)
	assert.Equal(t, service.FulfillmentKey(order.ID), *result.Transaction.IdempotencyKey)

	assert.Equal(t, int64(8), f.Stock(t, beer.ID))
	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(660), snap.ConsumedML)

	again, err := f.orders.Fulfill(ctx, domain.FulfillRequest{OrderID: order.ID, CashierUID: f.cashier.UID})
	require.NoError(t, err)
	assert.Equal(t, result.Transaction.ID, again.Transaction.ID)
	assert.Equal(t, int64(8), f.Stock(t, beer.ID))
}

func TestFulfillRechecksQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wine := f.Product(t, "Red", 700, 5000, 10)
	rum := f.Product(t, "Rum", 400, 4000, 10)

	order := f.order(t, rum.ID.String(), 1)

	_, err := f.Billing.CreateTransaction(ctx, billingdomain.CreateTransactionRequest{
		CashierUID:  f.cashier.UID,
		CustomerRef: f.customer.UID,
		Items:       []billingdomain.LineItemRequest{{ProductID: wine.ID.String(), Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.orders.Fulfill(ctx, domain.FulfillRequest{OrderID: order.ID, CashierUID: f.cashier.UID})
	require.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)

	current, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, current.Status)
	assert.Nil(t, current.TransactionID)
	assert.Equal(t, int64(10), f.Stock(t, rum.ID))
}

func TestFulfillRollsBackWhenOrderCancelledMeanwhile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)
	order := f.order(t, beer.ID.String(), 2)

	var cancelErr error
	orders := f.ordersWith(t, &interleavedBilling{
		Service: f.Billing,
		before: func() {
			_, cancelErr = f.orders.Cancel(ctx, order.ID, "no longer needed")
		},
	})

	_, err := orders.Fulfill(ctx, domain.FulfillRequest{OrderID: order.ID, CashierUID: f.cashier.UID})
	require.NoError(t, cancelErr)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	current, err := f.orders.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, current.Status)
	assert.Nil(t, current.TransactionID)

	assert.Equal(t, int64(10), f.Stock(t, beer.ID))
	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.ConsumedML)

	sales, err := f.Billing.ListByCustomer(ctx, f.customer.UID, billingdomain.ListTransactionsRequest{})
	require.NoError(t, err)
	assert.Empty(t, sales.Transactions)
}

func TestCancelRefusedOnceFulfilled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)
	order := f.order(t, beer.ID.String(), 1)

	_, err := f.orders.Fulfill(ctx, domain.FulfillRequest{OrderID: order.ID, CashierUID: f.cashier.UID})
	require.NoError(t, err)

	_, err = f.orders.Cancel(ctx, order.ID, "")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, int64(9), f.Stock(t, beer.ID))
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 100, 1500, 50)

	var created []*domain.Order
	for i := 0; i < 3; i++ {
		created = append(created, f.order(t, beer.ID.String(), 1))
		f.Clock.Advance(time.Minute)
	}
	_, err := f.orders.Cancel(ctx, created[0].ID, "")
	require.NoError(t, err)

	mine, err := f.orders.ListByCustomer(ctx, f.customer.UID, domain.ListOrdersRequest{})
	require.NoError(t, err)
	require.Len(t, mine.Orders, 3)
	assert.Equal(t, created[2].ID, mine.Orders[0].ID)

	pending, err := f.orders.ListByStatus(ctx, domain.ListOrdersRequest{Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending.Orders, 2)

	_, err = f.orders.ListByStatus(ctx, domain.ListOrdersRequest{Status: "lost"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
