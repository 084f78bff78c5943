package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotaguard/internal/billing/domain"
	"github.com/smallbiznis/quotaguard/internal/config"
	"github.com/smallbiznis/quotaguard/internal/providers/pdf"
)

const (
	receiptStoreName = "QuotaGuard Retail"
	receiptFooter    = "Daily purchase limits apply per customer. Keep this receipt for returns."
)

func (s *Service) RenderReceiptPDF(ctx context.Context, id snowflake.ID) (io.Reader, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.pdf.GenerateReceipt(ctx, receiptData(tx, s.policy.Get().Location()))
}

func receiptData(tx *domain.Transaction, loc *time.Location) pdf.ReceiptData {
	items := make([]pdf.ReceiptItem, 0, len(tx.Items))
	for _, item := range tx.Items {
		items = append(items, pdf.ReceiptItem{
			Description: item.Name,
			Qty:         item.Quantity,
			Volume:      formatLiters(item.LineVolumeML),
			UnitPrice:   formatMoney(item.UnitPrice),
			Amount:      formatMoney(item.LineAmount),
		})
	}
	return pdf.ReceiptData{
		StoreName:      receiptStoreName,
		ReceiptNumber:  tx.ReceiptNumber,
		SoldAt:         tx.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		Status:         string(tx.Status),
		CustomerName:   tx.CustomerName,
		CashierUID:     tx.CashierUID,
		PaymentMethod:  string(tx.PaymentMethod),
		Items:          items,
		Subtotal:       formatMoney(tx.TotalAmount),
		Tax:            formatMoney(tx.TaxAmount),
		Discount:       formatMoney(tx.DiscountAmount),
		Total:          formatMoney(tx.FinalAmount),
		TotalVolume:    formatLiters(tx.TotalVolumeML),
		QuotaUsed:      formatLiters(tx.QuotaUsedML),
		QuotaRemaining: formatLiters(tx.QuotaRemainingML),
		Footer:         receiptFooter,
	}
}

func formatMoney(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func formatLiters(ml int64) string {
	return fmt.Sprintf("%.2f L", config.MLToLiters(ml))
}
