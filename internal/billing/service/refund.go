package service

import (
	"context"
	"strings"
	"unicode/utf8"

	auditdomain "github.com/smallbiznis/quotaguard/internal/audit/domain"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/events"
	"github.com/smallbiznis/quotaguard/internal/observability/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxRefundReasonLength = 500

// RefundTransaction marks a completed sale refunded. Consumed quota stays
// consumed; stock comes back only when the refund policy says so.
func (s *Service) RefundTransaction(ctx context.Context, req domain.RefundRequest) (*domain.Transaction, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxRefundReasonLength {
		return nil, domain.ErrInvalidRefundReason
	}

	var refundedBy *string
	if by := strings.TrimSpace(req.RefundedBy); by != "" {
		refundedBy = &by
	}

	restock := s.policy.Get().Refund.Restock
	now := s.clock.Now()

	var refunded *domain.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByID(ctx, tx, req.TransactionID)
		if err != nil {
			return err
		}
		if current == nil {
			return domain.ErrNotFound
		}
		switch current.Status {
		case domain.TransactionStatusRefunded:
			return domain.ErrAlreadyRefunded
		case domain.TransactionStatusCompleted:
		default:
			return domain.ErrNotRefundable
		}

		ok, err := s.repo.MarkRefunded(ctx, tx, current.ID, reason, refundedBy, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyRefunded
		}

		if restock {
			inventory := s.inventory.WithTx(tx)
			for _, item := range current.Items {
				if err := inventory.Release(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}
		}

		refunded, err = s.repo.FindByID(ctx, tx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.WithContext(ctx, s.log).Info("sale refunded",
		zap.String("receipt_number", refunded.ReceiptNumber),
		zap.String("transaction_id", refunded.ID.String()),
		zap.Bool("restocked", restock),
	)
	s.metrics.RecordRefund(ctx, string(refunded.PaymentMethod))

	targetID := refunded.ID.String()
	_ = s.audit.AuditLog(ctx, string(auditdomain.ActorTypeCashier), refundedBy, auditdomain.ActionSaleRefunded, "transaction", &targetID, map[string]any{
		"receipt_number": refunded.ReceiptNumber,
		"reason":         reason,
		"restocked":      restock,
		"final_amount":   refunded.FinalAmount,
	})
	s.publish(ctx, events.TypeSaleRefunded, refunded.CustomerID.String(), map[string]any{
		"transaction_id": targetID,
		"receipt_number": refunded.ReceiptNumber,
		"customer_id":    refunded.CustomerID.String(),
		"reason":         reason,
		"restocked":      restock,
	})
	return refunded, nil
}
