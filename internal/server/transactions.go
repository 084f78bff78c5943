package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/idempotency"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
)

// HeaderIdempotencyKey lets a till retry a sale without double charging.
const HeaderIdempotencyKey = "Idempotency-Key"

type lineItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type createTransactionRequest struct {
	Customer      string            `json:"customer"`
	CustomerID    string            `json:"customer_id"`
	Items         []lineItemRequest `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Discount      int64             `json:"discount"`
	Notes         string            `json:"notes"`
	TerminalID    string            `json:"terminal_id"`
}

func (s *Server) CreateTransaction(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerRef := strings.TrimSpace(req.Customer)
	if customerRef == "" {
		customerRef = strings.TrimSpace(req.CustomerID)
	}
	if customerRef == "" {
		AbortWithError(c, newValidationError("customer", "required", "customer is required"))
		return
	}

	key, err := idempotency.NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]billingdomain.LineItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, billingdomain.LineItemRequest{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
		})
	}

	result, err := s.billingSvc.CreateTransaction(c.Request.Context(), billingdomain.CreateTransactionRequest{
		CashierUID:     actor.UID,
		CustomerRef:    customerRef,
		Items:          items,
		PaymentMethod:  billingdomain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		Discount:       req.Discount,
		Notes:          strings.TrimSpace(req.Notes),
		TerminalID:     strings.TrimSpace(req.TerminalID),
		Channel:        billingdomain.ChannelPOS,
		IdempotencyKey: key,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", result.Transaction.ReceiptNumber)
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result.Transaction, "replayed": result.Replayed})
}

func (s *Server) GetTransaction(c *gin.Context) {
	txn, err := s.loadTransaction(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) GetReceipt(c *gin.Context) {
	receiptNumber := strings.ToUpper(strings.TrimSpace(c.Param("receiptNumber")))
	if receiptNumber == "" {
		AbortWithError(c, newValidationError("receipt_number", "required", "receipt number is required"))
		return
	}

	txn, err := s.billingSvc.GetByReceiptNumber(c.Request.Context(), receiptNumber)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

func (s *Server) DownloadReceipt(c *gin.Context) {
	txn, err := s.loadTransaction(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.billingSvc.RenderReceiptPDF(c.Request.Context(), txn.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	body, err := io.ReadAll(doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", txn.ReceiptNumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", body)
}

type refundTransactionRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RefundTransaction(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid transaction id"))
		return
	}

	var req refundTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	txn, err := s.billingSvc.RefundTransaction(c.Request.Context(), billingdomain.RefundRequest{
		TransactionID: id,
		Reason:        strings.TrimSpace(req.Reason),
		RefundedBy:    actor.UID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": txn})
}

type listTransactionsQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
}

func (s *Server) ListCustomerTransactions(c *gin.Context) {
	var query listTransactionsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	target, err := s.authorizeCustomerAccess(c, c.Param("ref"),
		authorization.ObjectTransaction,
		authorization.ActionTransactionViewOwn,
		authorization.ActionTransactionView,
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.ListByCustomer(c.Request.Context(), target.ID.String(), billingdomain.ListTransactionsRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: billingdomain.TransactionStatus(strings.ToLower(strings.TrimSpace(query.Status))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Transactions, "page_info": resp.PageInfo})
}

// loadTransaction fetches the :id transaction and checks the actor may read
// it. Customers only see their own receipts.
func (s *Server) loadTransaction(c *gin.Context) (*billingdomain.Transaction, error) {
	actor, ok := actorFromContext(c)
	if !ok {
		return nil, ErrUnauthorized
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		return nil, newValidationError("id", "invalid_id", "invalid transaction id")
	}

	ctx := c.Request.Context()
	txn, err := s.billingSvc.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}

	action := authorization.ActionTransactionView
	if txn.CustomerID == actor.ID {
		action = authorization.ActionTransactionViewOwn
	}
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectTransaction, action); err != nil {
		return nil, err
	}
	return txn, nil
}
