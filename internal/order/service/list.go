package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/order/domain"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
)

func (s *Service) ListByCustomer(ctx context.Context, customerRef string, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	customer, err := s.customers.ResolveCustomer(ctx, customerRef)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}
	return s.list(ctx, domain.ListFilter{CustomerID: customer.ID, Status: req.Status}, req.Pagination)
}

// ListByStatus is the staff queue view; an empty status lists every order.
func (s *Service) ListByStatus(ctx context.Context, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return domain.ListOrdersResponse{}, domain.ErrInvalidStatus
	}
	return s.list(ctx, domain.ListFilter{Status: req.Status}, req.Pagination)
}

func (s *Service) list(ctx context.Context, filter domain.ListFilter, page pagination.Pagination) (domain.ListOrdersResponse, error) {
	filter.Limit = page.Size()
	if page.PageToken != "" {
		raw, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return domain.ListOrdersResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(raw.ID)
		if err != nil {
			return domain.ListOrdersResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
		if err != nil {
			return domain.ListOrdersResponse{}, domain.ErrInvalidPageToken
		}
		filter.Cursor = &domain.Cursor{ID: id, CreatedAt: createdAt}
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, page.Size(), func(o *domain.Order) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        o.ID.String(),
			CreatedAt: o.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		orders = append(orders, *item)
	}
	resp := domain.ListOrdersResponse{Orders: orders}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
