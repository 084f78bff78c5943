// Package billingtest wires the sale pipeline on SQLite for package tests.
package billingtest

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	auditrepository "github.com/smallbiznis/quotaguard/internal/audit/repository"
	auditservice "github.com/smallbiznis/quotaguard/internal/audit/service"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/repository"
	"github.com/smallbiznis/quotaguard/internal/billing/service"
	"github.com/smallbiznis/quotaguard/internal/clock"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	customerrepository "github.com/smallbiznis/quotaguard/internal/customer/repository"
	customerservice "github.com/smallbiznis/quotaguard/internal/customer/service"
	"github.com/smallbiznis/quotaguard/internal/events/eventstest"
	"github.com/smallbiznis/quotaguard/internal/idempotency"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	inventoryservice "github.com/smallbiznis/quotaguard/internal/inventory/service"
	"github.com/smallbiznis/quotaguard/internal/observability/metrics"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	productrepository "github.com/smallbiznis/quotaguard/internal/product/repository"
	productservice "github.com/smallbiznis/quotaguard/internal/product/service"
	"github.com/smallbiznis/quotaguard/internal/providers/pdf"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	quotarepository "github.com/smallbiznis/quotaguard/internal/quota/repository"
	quotaservice "github.com/smallbiznis/quotaguard/internal/quota/service"
	"github.com/smallbiznis/quotaguard/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// Start is the fake clock's initial instant.
var Start = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// Models lists every table the sale pipeline touches.
func Models() []any {
	return []any{
		&customerdomain.Customer{},
		&productdomain.Product{},
		&quotadomain.DailyQuota{},
		&quotadomain.Consumption{},
		&quotadomain.Warning{},
		&domain.Transaction{},
		&domain.TransactionItem{},
		&domain.ReceiptSequence{},
		&auditdomain.AuditLog{},
	}
}

type Harness struct {
	DB        *gorm.DB
	Clock     *clock.FakeClock
	Node      *snowflake.Node
	Policy    *config.QuotaPolicyHolder
	Events    *eventstest.Recorder
	Registry  *prometheus.Registry
	Customers customerdomain.Service
	Products  productdomain.Service
	Inventory inventorydomain.Service
	Quota     quotadomain.Service
	Audit     auditdomain.Service
	Billing   domain.Service
}

// New builds the pipeline. extra models are migrated alongside the defaults.
func New(t *testing.T, policy config.QuotaPolicy, extra ...any) *Harness {
	t.Helper()

	conn := dbtest.Open(t, append(Models(), extra...)...)
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	clk := clock.NewFakeClock(Start)
	holder := config.NewQuotaPolicyHolderFrom(policy)
	recorder := &eventstest.Recorder{}
	registry := prometheus.NewRegistry()

	h := &Harness{
		DB:       conn,
		Clock:    clk,
		Node:     node,
		Policy:   holder,
		Events:   recorder,
		Registry: registry,
	}
	h.Customers = customerservice.New(customerservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: customerrepository.Provide(),
	})
	h.Products = productservice.New(productservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: productrepository.Provide(),
	})
	h.Inventory = inventoryservice.New(inventoryservice.Params{
		DB: conn, Log: log, Clock: clk,
	})
	h.Quota = quotaservice.New(quotaservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Policy: holder, Repo: quotarepository.Provide(),
	})
	h.Audit = auditservice.NewService(auditservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk, Repo: auditrepository.Provide(),
	})
	h.Billing = service.New(service.Params{
		DB:        conn,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Policy:    holder,
		Repo:      repository.Provide(),
		Customers: h.Customers,
		Products:  h.Products,
		Inventory: h.Inventory,
		Quota:     h.Quota,
		Audit:     h.Audit,
		Guard:     idempotency.NoopGuard{},
		Events:    recorder,
		PDF:       pdf.New(),
		Counters:  metrics.NewBillingMetricsForRegistry(registry, metrics.Config{ServiceName: "quotaguard-test"}),
	})
	return h
}

// Customer inserts an active, verified customer.
func (h *Harness) Customer(t *testing.T, uid string, role customerdomain.Role) customerdomain.Customer {
	t.Helper()
	c := customerdomain.Customer{
		ID:          h.Node.Generate(),
		UID:         uid,
		Name:        "Customer " + uid,
		PhoneNumber: "+9100000" + uid,
		Role:        role,
		IsActive:    true,
		IDVerified:  true,
		CreatedAt:   Start,
		UpdatedAt:   Start,
	}
	require.NoError(t, h.DB.Create(&c).Error)
	return c
}

// Product inserts an active product.
func (h *Harness) Product(t *testing.T, name string, volumeML, price, stock int64) productdomain.Product {
	t.Helper()
	id := h.Node.Generate()
	p := productdomain.Product{
		ID:             id,
		Name:           name,
		Barcode:        "BC" + id.String(),
		Category:       productdomain.CategoryBeer,
		VolumeML:       volumeML,
		AlcoholContent: 5,
		Price:          price,
		Stock:          stock,
		ReorderLevel:   productdomain.DefaultReorderLevel,
		IsActive:       true,
		CreatedAt:      Start,
		UpdatedAt:      Start,
	}
	require.NoError(t, h.DB.Create(&p).Error)
	return p
}

// Stock reads the current stock of a product.
func (h *Harness) Stock(t *testing.T, id snowflake.ID) int64 {
	t.Helper()
	var p productdomain.Product
	require.NoError(t, h.DB.First(&p, "id = ?", id).Error)
	return p.Stock
}
