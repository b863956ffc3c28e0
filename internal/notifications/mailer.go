package notifications

import (
	"context"
	"fmt"

	"github.com/auroralabs/storefront-backend/pkg/config"
	"github.com/auroralabs/storefront-backend/pkg/db/models"
	"github.com/auroralabs/storefront-backend/pkg/logger"
)

// Mailer sends transactional storefront mail. Callers treat failures as
// best-effort: a send error is logged, never propagated into the transaction
// that produced the order.
type Mailer interface {
	OrderConfirmation(ctx context.Context, order *models.Order) error
	OrderCancelled(ctx context.Context, order *models.Order) error
}

type logMailer struct {
	logg *logger.Logger
	from string
}

// NewLogMailer returns a Mailer that records sends in the structured log.
// Stands in for a real provider in dev and test environments.
func NewLogMailer(logg *logger.Logger, cfg config.MailConfig) (Mailer, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &logMailer{logg: logg, from: cfg.FromAddress}, nil
}

func (m *logMailer) OrderConfirmation(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"user_id":     order.UserID.String(),
		"total_cents": order.TotalCents,
		"mail_from":   m.from,
	})
	m.logg.Info(ctx, "order confirmation mail queued")
	return nil
}

func (m *logMailer) OrderCancelled(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order required")
	}
	ctx = m.logg.WithFields(ctx, map[string]any{
		"order_id":  order.ID.String(),
		"user_id":   order.UserID.String(),
		"mail_from": m.from,
	})
	m.logg.Info(ctx, "order cancellation mail queued")
	return nil
}
