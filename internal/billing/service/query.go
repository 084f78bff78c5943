package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/pkg/db/pagination"
)

func (s *Service) GetTransaction(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	tx, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, domain.ErrNotFound
	}
	return tx, nil
}

func (s *Service) GetByReceiptNumber(ctx context.Context, receiptNumber string) (*domain.Transaction, error) {
	receiptNumber = strings.ToUpper(strings.TrimSpace(receiptNumber))
	if receiptNumber == "" {
		return nil, domain.ErrNotFound
	}
	tx, err := s.repo.FindByReceiptNumber(ctx, s.db, receiptNumber)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, domain.ErrNotFound
	}
	return tx, nil
}

// ListByCustomer pages a customer's transactions newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerRef string, req domain.ListTransactionsRequest) (domain.ListTransactionsResponse, error) {
	customer, err := s.customers.ResolveCustomer(ctx, customerRef)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}

	filter := domain.ListFilter{
		CustomerID: customer.ID,
		Status:     req.Status,
		Limit:      req.Size(),
	}
	if req.PageToken != "" {
		cursor, err := decodeCursor(req.PageToken)
		if err != nil {
			return domain.ListTransactionsResponse{}, err
		}
		filter.Cursor = cursor
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListTransactionsResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, req.Size(), func(tx *domain.Transaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        tx.ID.String(),
			CreatedAt: tx.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	resp := domain.ListTransactionsResponse{Transactions: out}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func decodeCursor(token string) (*domain.Cursor, error) {
	raw, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(raw.ID)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, raw.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.Cursor{ID: id, CreatedAt: createdAt}, nil
}
