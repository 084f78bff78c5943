package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/config"
	customerdomain "github.com/smallbiznis/quotaguard/internal/customer/domain"
	inventorydomain "github.com/smallbiznis/quotaguard/internal/inventory/domain"
	"github.com/smallbiznis/quotaguard/internal/observability"
	obsmiddleware "github.com/smallbiznis/quotaguard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quotaguard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quotaguard/internal/observability/tracing"
	orderdomain "github.com/smallbiznis/quotaguard/internal/order/domain"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	quotadomain "github.com/smallbiznis/quotaguard/internal/quota/domain"
	"github.com/smallbiznis/quotaguard/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(classifyErrorForLog))
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, s *Server) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	customerSvc  customerdomain.Service
	productSvc   productdomain.Service
	inventorySvc inventorydomain.Service
	quotaSvc     quotadomain.Service
	billingSvc   billingdomain.Service
	orderSvc     orderdomain.Service
	auditSvc     auditdomain.Service
	authzSvc     authorization.Service
	policy       *config.QuotaPolicyHolder
	limiter      *ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	CustomerSvc  customerdomain.Service
	ProductSvc   productdomain.Service
	InventorySvc inventorydomain.Service
	QuotaSvc     quotadomain.Service
	BillingSvc   billingdomain.Service
	OrderSvc     orderdomain.Service
	AuditSvc     auditdomain.Service
	AuthzSvc     authorization.Service
	Policy       *config.QuotaPolicyHolder
	Limiter      *ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		customerSvc:  p.CustomerSvc,
		productSvc:   p.ProductSvc,
		inventorySvc: p.InventorySvc,
		quotaSvc:     p.QuotaSvc,
		billingSvc:   p.BillingSvc,
		orderSvc:     p.OrderSvc,
		auditSvc:     p.AuditSvc,
		authzSvc:     p.AuthzSvc,
		policy:       p.Policy,
		limiter:      p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIRateLimit())

	// -------- Session --------
	api.POST("/session/sync", s.SessionRateLimit(), s.SyncSession)
	api.POST("/auth/sync-user", s.SessionRateLimit(), s.SyncSession)

	authed := api.Group("", s.Authenticated())

	// -------- Profile --------
	authed.GET("/me", s.GetMe)
	authed.PATCH("/me", s.RequirePermission(authorization.ObjectCustomer, authorization.ActionCustomerUpdateOwn), s.UpdateMe)
	authed.GET("/quota/me", s.RequirePermission(authorization.ObjectQuota, authorization.ActionQuotaViewOwn), s.GetMyQuota)
	authed.GET("/quota/me/history", s.RequirePermission(authorization.ObjectQuota, authorization.ActionQuotaViewOwn), s.GetMyQuotaHistory)
	authed.GET("/quota/exceeded", s.RequirePermission(authorization.ObjectQuota, authorization.ActionQuotaExceeded), s.ListExceededQuotas)

	// -------- Transactions --------
	authed.POST("/transactions",
		s.RequirePermission(authorization.ObjectTransaction, authorization.ActionTransactionCreate),
		s.BillingRateLimit(),
		s.CreateTransaction,
	)
	authed.GET("/transactions/:id", s.GetTransaction)
	authed.GET("/transactions/:id/receipt.pdf", s.DownloadReceipt)
	authed.POST("/transactions/:id/refund", s.RequirePermission(authorization.ObjectTransaction, authorization.ActionTransactionRefund), s.RefundTransaction)
	authed.GET("/receipts/:receiptNumber", s.RequirePermission(authorization.ObjectTransaction, authorization.ActionTransactionView), s.GetReceipt)

	// -------- Customers --------
	authed.GET("/customers/:ref", s.GetCustomer)
	authed.PATCH("/customers/:ref", s.RequirePermission(authorization.ObjectCustomer, authorization.ActionCustomerUpdate), s.UpdateCustomer)
	authed.PATCH("/customers/:ref/role", s.RequirePermission(authorization.ObjectCustomer, authorization.ActionCustomerSetRole), s.SetCustomerRole)
	authed.GET("/customers/:ref/quota", s.GetCustomerQuota)
	authed.GET("/customers/:ref/quota/history", s.GetCustomerQuotaHistory)
	authed.POST("/customers/:ref/quota/reset", s.RequirePermission(authorization.ObjectQuota, authorization.ActionQuotaReset), s.ResetCustomerQuota)
	authed.GET("/customers/:ref/transactions", s.ListCustomerTransactions)

	// -------- Products --------
	authed.GET("/products", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductView), s.ListProducts)
	authed.POST("/products", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductCreate), s.CreateProduct)
	authed.GET("/products/low-stock", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductLowStock), s.ListLowStockProducts)
	authed.GET("/products/barcode/:barcode", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductView), s.GetProductByBarcode)
	authed.GET("/products/:id", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductView), s.GetProductByID)
	authed.PATCH("/products/:id", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductUpdate), s.UpdateProduct)
	authed.DELETE("/products/:id", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductUpdate), s.DeactivateProduct)
	authed.POST("/products/:id/restock", s.RequirePermission(authorization.ObjectProduct, authorization.ActionProductRestock), s.RestockProduct)

	// -------- Orders --------
	authed.POST("/orders", s.RequirePermission(authorization.ObjectOrder, authorization.ActionOrderCreate), s.CreateOrder)
	authed.GET("/orders", s.ListOrders)
	authed.GET("/orders/:id", s.GetOrder)
	authed.PATCH("/orders/:id/status", s.RequirePermission(authorization.ObjectOrder, authorization.ActionOrderUpdateStatus), s.UpdateOrderStatus)
	authed.POST("/orders/:id/cancel", s.CancelOrder)
	authed.POST("/orders/:id/fulfill", s.RequirePermission(authorization.ObjectOrder, authorization.ActionOrderFulfill), s.FulfillOrder)

	// -------- Audit --------
	authed.GET("/audit-logs", s.RequirePermission(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
