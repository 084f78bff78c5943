package service_test

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/billingtest"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/service"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	"github.com/smallbiznis/quotaguard/internal/events"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	*billingtest.Harness
	customer customerdomain.Customer
	cashier  customerdomain.Customer
}

func newFixture(t *testing.T, mutate ...func(*config.QuotaPolicy)) *fixture {
	t.Helper()
	policy := config.DefaultQuotaPolicy()
	for _, fn := range mutate {
		fn(&policy)
	}
	h := billingtest.New(t, policy)
	return &fixture{
		Harness:  h,
		customer: h.Customer(t, "1001", customerdomain.RoleCustomer),
		cashier:  h.Customer(t, "2001", customerdomain.RoleCashier),
	}
}

func (f *fixture) sale(items ...domain.LineItemRequest) domain.CreateTransactionRequest {
	return domain.CreateTransactionRequest{
		CashierUID:    f.cashier.UID,
		CustomerRef:   f.customer.ID.String(),
		Items:         items,
		PaymentMethod: domain.PaymentMethodCash,
	}
}

func item(id string, qty int64) domain.LineItemRequest {
	return domain.LineItemRequest{ProductID: id, Quantity: qty}
}

func TestCreateTransactionCommits(t *testing.T) {
	f := newFixture(t, func(p *config.QuotaPolicy) { p.TaxRateBps = 1000 })
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)

	result, err := f.Billing.CreateTransaction(ctx, f.sale(item(beer.ID.String(), 2)))
	require.NoError(t, err)
	assert.False(t, result.Replayed)

	tx := result.Transaction
	assert.Equal(t, "RCP202405010001", tx.ReceiptNumber)
	assert.Equal(t, domain.TransactionStatusCompleted, tx.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, tx.PaymentStatus)
	assert.Equal(t, domain.ChannelPOS, tx.Channel)
	assert.Equal(t, int64(3000), tx.TotalAmount)
	assert.Equal(t, int64(300), tx.TaxAmount)
	assert.Equal(t, int64(3300), tx.FinalAmount)
	assert.Equal(t, int64(660), tx.TotalVolumeML)
	assert.Equal(t, int64(660), tx.QuotaUsedML)
	assert.Equal(t, int64(340), tx.QuotaRemainingML)
	require.Len(t, tx.Items, 1)
	assert.Equal(t, "Lager", tx.Items[0].Name)
	assert.Equal(t, int64(660), tx.Items[0].LineVolumeML)

	assert.Equal(t, int64(8), f.Stock(t, beer.ID))

	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(660), snap.ConsumedML)

	stored, err := f.Billing.GetByReceiptNumber(ctx, "rcp202405010001")
	require.NoError(t, err)
	assert.Equal(t, tx.ID, stored.ID)
	require.Len(t, stored.Items, 1)

	assert.Equal(t, []string{events.TypeSaleCommitted}, f.Events.Types())

	var logs []auditdomain.AuditLog
	require.NoError(t, f.DB.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.ActionSaleCommitted, logs[0].Action)
}

func TestCreateTransactionRejectsOverQuotaAndRestoresStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wine := f.Product(t, "Red", 700, 5000, 5)
	spirit := f.Product(t, "Rum", 400, 4000, 5)

	_, err := f.Billing.CreateTransaction(ctx, f.sale(item(wine.ID.String(), 1)))
	require.NoError(t, err)

	_, err = f.Billing.CreateTransaction(ctx, f.sale(item(spirit.ID.String(), 1)))
	require.ErrorIs(t, err, quotadomain.ErrQuotaExceeded)

	var quotaErr *quotadomain.QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, int64(300), quotaErr.RemainingML)
	assert.Equal(t, int64(400), quotaErr.RequestedML)

	assert.Equal(t, int64(5), f.Stock(t, spirit.ID))
	assert.Equal(t, int64(4), f.Stock(t, wine.ID))

	var count int64
	require.NoError(t, f.DB.Model(&domain.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), snap.ConsumedML)

	assert.Equal(t, []string{events.TypeSaleCommitted, events.TypeQuotaExceeded}, f.Events.Types())

	var violations int64
	require.NoError(t, f.DB.Model(&auditdomain.AuditLog{}).
		Where("action = ?", auditdomain.ActionQuotaViolation).Count(&violations).Error)
	assert.Equal(t, int64(1), violations)

	n, err := testutil.GatherAndCount(f.Registry, "quotaguard_billing_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreateTransactionRollsBackEarlierLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	plenty := f.Product(t, "Pils", 100, 500, 5)
	empty := f.Product(t, "Stout", 100, 700, 0)

	_, err := f.Billing.CreateTransaction(ctx, f.sale(
		item(plenty.ID.String(), 1),
		item(empty.ID.String(), 1),
	))
	require.ErrorIs(t, err, inventorydomain.ErrInsufficientStock)

	var stockErr *inventorydomain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, empty.ID, stockErr.ProductID)

	assert.Equal(t, int64(5), f.Stock(t, plenty.ID))
	assert.Equal(t, int64(0), f.Stock(t, empty.ID))

	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.ConsumedML)
	assert.Equal(t, []string{events.TypeStockInsufficient}, f.Events.Types())
}

func TestConcurrentSalesNeverExceedQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bottle := f.Product(t, "Wine", 600, 3000, 10)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		committed  int
		rejections []*quotadomain.QuotaExceededError
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.Billing.CreateTransaction(ctx, f.sale(item(bottle.ID.String(), 1)))
			mu.Lock()
			defer mu.Unlock()
			var quotaErr *quotadomain.QuotaExceededError
			switch {
			case err == nil:
				committed++
			case errors.As(err, &quotaErr):
				rejections = append(rejections, quotaErr)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, committed)
	require.Len(t, rejections, 1)
	assert.Equal(t, int64(400), rejections[0].RemainingML)
	assert.Equal(t, int64(600), rejections[0].ConsumedML)
	assert.Equal(t, int64(600), rejections[0].RequestedML)
	assert.Equal(t, int64(1000), rejections[0].LimitML)
	assert.Equal(t, int64(9), f.Stock(t, bottle.ID))

	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), snap.ConsumedML)
	assert.Equal(t, int64(400), snap.RemainingML)
}

func TestReceiptNumbersAreSequentialPerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mini := f.Product(t, "Miniature", 50, 300, 100)

	var numbers []string
	for i := 0; i < 3; i++ {
		result, err := f.Billing.CreateTransaction(ctx, f.sale(item(mini.ID.String(), 1)))
		require.NoError(t, err)
		numbers = append(numbers, result.Transaction.ReceiptNumber)
		f.Clock.Advance(time.Minute)
	}
	assert.Equal(t, []string{"RCP202405010001", "RCP202405010002", "RCP202405010003"}, numbers)

	f.Clock.Advance(24 * time.Hour)
	result, err := f.Billing.CreateTransaction(ctx, f.sale(item(mini.ID.String(), 1)))
	require.NoError(t, err)
	assert.Equal(t, "RCP202405020001", result.Transaction.ReceiptNumber)
}

func TestConcurrentSalesGetDistinctReceiptNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mini := f.Product(t, "Miniature", 50, 300, 100)

	const sales = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{}, sales)
	)
	for i := 0; i < sales; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.Billing.CreateTransaction(ctx, f.sale(item(mini.ID.String(), 1)))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			numbers[result.Transaction.ReceiptNumber] = struct{}{}
		}()
	}
	wg.Wait()

	require.Len(t, numbers, sales)
	for seq := 1; seq <= sales; seq++ {
		assert.Contains(t, numbers, fmt.Sprintf("RCP20240501%04d", seq))
	}
	assert.Equal(t, int64(100-sales), f.Stock(t, mini.ID))
}

func TestCreateTransactionReplaysIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)

	req := f.sale(item(beer.ID.String(), 1))
	req.IdempotencyKey = "till-7:0001"

	first, err := f.Billing.CreateTransaction(ctx, req)
	require.NoError(t, err)
	second, err := f.Billing.CreateTransaction(ctx, req)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, int64(9), f.Stock(t, beer.ID))

	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(330), snap.ConsumedML)

	other := f.Customer(t, "1002", customerdomain.RoleCustomer)
	req.CustomerRef = other.UID
	_, err = f.Billing.CreateTransaction(ctx, req)
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyConflict)
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)
	id := beer.ID.String()

	tests := []struct {
		name   string
		mutate func(*domain.CreateTransactionRequest)
		want   error
	}{
		{"no items", func(r *domain.CreateTransactionRequest) { r.Items = nil }, domain.ErrEmptyItems},
		{"zero quantity", func(r *domain.CreateTransactionRequest) { r.Items = []domain.LineItemRequest{item(id, 0)} }, domain.ErrInvalidItem},
		{"bad product id", func(r *domain.CreateTransactionRequest) { r.Items = []domain.LineItemRequest{item("abc", 1)} }, domain.ErrInvalidItem},
		{"bad payment method", func(r *domain.CreateTransactionRequest) { r.PaymentMethod = "cheque" }, domain.ErrInvalidPaymentMethod},
		{"discount above total", func(r *domain.CreateTransactionRequest) { r.Discount = 1501 }, domain.ErrInvalidDiscount},
		{"negative discount", func(r *domain.CreateTransactionRequest) { r.Discount = -1 }, domain.ErrInvalidDiscount},
		{"customer as cashier", func(r *domain.CreateTransactionRequest) { r.CashierUID = f.customer.UID }, customerdomain.ErrCashierNotFound},
		{"unknown customer", func(r *domain.CreateTransactionRequest) { r.CustomerRef = "nobody" }, customerdomain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.sale(item(id, 1))
			tt.mutate(&req)
			_, err := f.Billing.CreateTransaction(ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, int64(10), f.Stock(t, beer.ID))
}

func TestRefundIsStatusOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 500, 1500, 10)

	result, err := f.Billing.CreateTransaction(ctx, f.sale(item(beer.ID.String(), 1)))
	require.NoError(t, err)

	_, err = f.Billing.RefundTransaction(ctx, domain.RefundRequest{TransactionID: result.Transaction.ID})
	require.ErrorIs(t, err, domain.ErrInvalidRefundReason)

	refunded, err := f.Billing.RefundTransaction(ctx, domain.RefundRequest{
		TransactionID: result.Transaction.ID,
		Reason:        "broken seal",
		RefundedBy:    f.cashier.UID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, refunded.Status)
	assert.Equal(t, domain.PaymentStatusRefunded, refunded.PaymentStatus)
	require.NotNil(t, refunded.RefundReason)
	assert.Equal(t, "broken seal", *refunded.RefundReason)
	require.NotNil(t, refunded.RefundedAt)

	assert.Equal(t, int64(9), f.Stock(t, beer.ID))
	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), snap.ConsumedML)

	_, err = f.Billing.RefundTransaction(ctx, domain.RefundRequest{TransactionID: result.Transaction.ID, Reason: "again"})
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)

	_, err = f.Billing.RefundTransaction(ctx, domain.RefundRequest{TransactionID: f.Node.Generate(), Reason: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Contains(t, f.Events.Types(), events.TypeSaleRefunded)
}

func TestRefundRestocksWhenPolicyAsks(t *testing.T) {
	f := newFixture(t, func(p *config.QuotaPolicy) { p.Refund.Restock = true })
	ctx := context.Background()
	beer := f.Product(t, "Lager", 250, 1500, 10)

	result, err := f.Billing.CreateTransaction(ctx, f.sale(item(beer.ID.String(), 3)))
	require.NoError(t, err)
	assert.Equal(t, int64(7), f.Stock(t, beer.ID))

	_, err = f.Billing.RefundTransaction(ctx, domain.RefundRequest{TransactionID: result.Transaction.ID, Reason: "wrong item"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Stock(t, beer.ID))

	snap, err := f.Quota.Check(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(750), snap.ConsumedML)
}

func TestListByCustomerPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mini := f.Product(t, "Miniature", 50, 300, 100)

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := f.Billing.CreateTransaction(ctx, f.sale(item(mini.ID.String(), 1)))
		require.NoError(t, err)
		ids = append(ids, result.Transaction.ID.String())
		f.Clock.Advance(time.Minute)
	}

	page, err := f.Billing.ListByCustomer(ctx, f.customer.UID, domain.ListTransactionsRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[2], page.Transactions[0].ID.String())
	assert.Equal(t, ids[1], page.Transactions[1].ID.String())

	next, err := f.Billing.ListByCustomer(ctx, f.customer.UID, domain.ListTransactionsRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, next.Transactions, 1)
	assert.False(t, next.HasMore)
	assert.Equal(t, ids[0], next.Transactions[0].ID.String())

	_, err = f.Billing.ListByCustomer(ctx, f.customer.UID, domain.ListTransactionsRequest{
		Pagination: pagination.Pagination{PageToken: "!!"},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}

func TestRenderReceiptPDF(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	beer := f.Product(t, "Lager", 330, 1500, 10)

	result, err := f.Billing.CreateTransaction(ctx, f.sale(item(beer.ID.String(), 1)))
	require.NoError(t, err)

	reader, err := f.Billing.RenderReceiptPDF(ctx, result.Transaction.ID)
	require.NoError(t, err)
	head, err := bufio.NewReader(reader).Peek(4)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestRejectionReason(t *testing.T) {
	assert.Equal(t, "quota_exceeded", service.RejectionReason(&quotadomain.QuotaExceededError{}))
	assert.Equal(t, "insufficient_stock", service.RejectionReason(&inventorydomain.InsufficientStockError{}))
	assert.Equal(t, "conflict", service.RejectionReason(domain.ErrConcurrencyConflict))
	assert.Equal(t, "internal", service.RejectionReason(domain.ErrPersistence))
	assert.Equal(t, "invalid_request", service.RejectionReason(domain.ErrEmptyItems))
}
