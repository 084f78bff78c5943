package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quotaguard/internal/authorization"
	billingdomain "github.com/smallbiznis/quotaguard/internal/billing/domain"
	orderdomain "github.com/smallbiznis/quotaguard/internal/order/domain"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
)

type createOrderRequest struct {
	Items        []orderdomain.ItemRequest `json:"items"`
	DeliveryInfo orderdomain.DeliveryInfo  `json:"delivery_info"`
	Notes        string                    `json:"notes"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		CustomerUID:  actor.UID,
		Items:        req.Items,
		DeliveryInfo: req.DeliveryInfo,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": order})
}

type listOrdersQuery struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size"`
	Status    string `form:"status"`
	Customer  string `form:"customer"`
}

// ListOrders shows staff the queue (optionally per customer) and customers
// their own orders.
func (s *Server) ListOrders(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var query listOrdersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	req := orderdomain.ListOrdersRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Status: orderdomain.Status(strings.ToLower(strings.TrimSpace(query.Status))),
	}

	staff, err := s.authzSvc.Allowed(actor.Role, authorization.ObjectOrder, authorization.ActionOrderView)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var resp orderdomain.ListOrdersResponse
	switch customerRef := strings.TrimSpace(query.Customer); {
	case staff && customerRef == "":
		resp, err = s.orderSvc.ListByStatus(ctx, req)
	case staff:
		resp, err = s.orderSvc.ListByCustomer(ctx, customerRef, req)
	default:
		if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectOrder, authorization.ActionOrderViewOwn); err != nil {
			AbortWithError(c, err)
			return
		}
		resp, err = s.orderSvc.ListByCustomer(ctx, actor.ID.String(), req)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Orders, "page_info": resp.PageInfo})
}

func (s *Server) GetOrder(c *gin.Context) {
	order, err := s.loadOrder(c, authorization.ActionOrderViewOwn, authorization.ActionOrderView)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) UpdateOrderStatus(c *gin.Context) {
	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, orderdomain.ErrNotFound)
		return
	}

	var req updateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.orderSvc.UpdateStatus(c.Request.Context(), id, orderdomain.Status(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": order})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder lets customers withdraw their own pending orders. Staff may
// cancel any order that has not completed.
func (s *Server) CancelOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req cancelOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	order, err := s.loadOrder(c, authorization.ActionOrderCancelOwn, authorization.ActionOrderCancel)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if order.CustomerID == actor.ID && order.Status != orderdomain.StatusPending {
		staff, err := s.authzSvc.Allowed(actor.Role, authorization.ObjectOrder, authorization.ActionOrderCancel)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !staff {
			AbortWithError(c, orderdomain.ErrInvalidTransition)
			return
		}
	}

	cancelled, err := s.orderSvc.Cancel(c.Request.Context(), order.ID, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": cancelled})
}

type fulfillOrderRequest struct {
	PaymentMethod string `json:"payment_method"`
	TerminalID    string `json:"terminal_id"`
}

func (s *Server) FulfillOrder(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	id, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, orderdomain.ErrNotFound)
		return
	}

	var req fulfillOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.orderSvc.Fulfill(c.Request.Context(), orderdomain.FulfillRequest{
		OrderID:       id,
		CashierUID:    actor.UID,
		PaymentMethod: billingdomain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		TerminalID:    strings.TrimSpace(req.TerminalID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("receipt_number", result.Transaction.ReceiptNumber)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// loadOrder accepts either the numeric id or the public reference.
func (s *Server) loadOrder(c *gin.Context, ownAction, staffAction string) (*orderdomain.Order, error) {
	actor, ok := actorFromContext(c)
	if !ok {
		return nil, ErrUnauthorized
	}

	ctx := c.Request.Context()
	raw := strings.TrimSpace(c.Param("id"))

	var (
		order *orderdomain.Order
		err   error
	)
	if id, parseErr := parseSnowflakeID(raw); parseErr == nil {
		order, err = s.orderSvc.Get(ctx, id)
	} else {
		order, err = s.orderSvc.GetByReference(ctx, raw)
	}
	if err != nil {
		return nil, err
	}

	action := staffAction
	if order.CustomerID == actor.ID {
		action = ownAction
	}
	if err := s.authzSvc.Authorize(ctx, actor, authorization.ObjectOrder, action); err != nil {
		return nil, err
	}
	return order, nil
}
