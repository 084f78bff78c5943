package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	productdomain "github.com/smallbiznis/quotaguard/internal/product/domain"
	"go.uber.org/zap"
)

func (s *Server) CreateProduct(c *gin.Context) {
	var req productdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	resp, err := s.productSvc.Create(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditProduct(c, auditdomain.ActionProductCreated, resp.ID, map[string]any{
		"barcode": resp.Barcode,
		"stock":   resp.Stock,
	})
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		Category string `form:"category"`
		InStock  string `form:"in_stock"`
		Search   string `form:"search"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	inStock, err := parseOptionalBool(query.InStock)
	if err != nil {
		AbortWithError(c, newValidationError("in_stock", "invalid_in_stock", "invalid in_stock"))
		return
	}

	req := productdomain.ListRequest{
		Category: productdomain.Category(strings.ToLower(strings.TrimSpace(query.Category))),
		Search:   strings.TrimSpace(query.Search),
	}
	if inStock != nil {
		req.InStock = *inStock
	}

	resp, err := s.productSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProductByID(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, productdomain.ErrNotFound)
		return
	}

	resp, err := s.productSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetProductByBarcode(c *gin.Context) {
	barcode := strings.TrimSpace(c.Param("barcode"))
	if barcode == "" {
		AbortWithError(c, productdomain.ErrInvalidBarcode)
		return
	}

	resp, err := s.productSvc.GetByBarcode(c.Request.Context(), barcode)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, productdomain.ErrNotFound)
		return
	}

	var req productdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.productSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DeactivateProduct hides the product from sale. Sold items keep their
// snapshot so history is unaffected.
func (s *Server) DeactivateProduct(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, productdomain.ErrNotFound)
		return
	}

	if err := s.productSvc.Deactivate(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type restockRequest struct {
	Quantity int64 `json:"quantity"`
}

func (s *Server) RestockProduct(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, productdomain.ErrNotFound)
		return
	}

	var req restockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	stock, err := s.inventorySvc.Restock(ctx, id, req.Quantity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.auditProduct(c, auditdomain.ActionProductRestocked, id.String(), map[string]any{
		"quantity": req.Quantity,
		"stock":    stock,
	})
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"product_id": id.String(), "stock": stock}})
}

func (s *Server) ListLowStockProducts(c *gin.Context) {
	resp, err := s.productSvc.ListLowStock(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) auditProduct(c *gin.Context, action, productID string, metadata map[string]any) {
	ctx := c.Request.Context()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "product", &productID, metadata); err != nil {
		logger.WithContext(ctx, s.log).Warn("product audit failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
