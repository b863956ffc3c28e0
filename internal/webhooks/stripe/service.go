package stripewebhook

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/auroralabs/storefront-backend/internal/checkout"
	"github.com/auroralabs/storefront-backend/internal/notifications"
	"github.com/auroralabs/storefront-backend/internal/orders"
	"github.com/auroralabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
	"github.com/auroralabs/storefront-backend/pkg/logger"
)

type orderFinalizer interface {
	MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) (bool, error)
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error
}

// ServiceParams bundles the webhook service dependencies.
type ServiceParams struct {
	OrderRepo   orders.Repository
	OrderSvc    orderFinalizer
	SessionRepo checkout.SessionRepository
	Mailer      notifications.Mailer
	Logger      *logger.Logger
}

// Service applies payment outcomes delivered by Stripe to local orders.
type Service struct {
	orderRepo orders.Repository
	orderSvc  orderFinalizer
	sessions  checkout.SessionRepository
	mailer    notifications.Mailer
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrderRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order repo required")
	}
	if params.OrderSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.SessionRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session repo required")
	}
	if params.Mailer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "mailer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		orderRepo: params.OrderRepo,
		orderSvc:  params.OrderSvc,
		sessions:  params.SessionRepo,
		mailer:    params.Mailer,
		logg:      params.Logger,
	}, nil
}

// HandleEvent dispatches on the event type. Unknown types are accepted and
// ignored so Stripe does not retry them forever.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return s.handleSessionCompleted(ctx, event)
	case stripe.EventTypePaymentIntentSucceeded:
		return s.handlePaymentSucceeded(ctx, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	default:
		return nil
	}
}

// handleSessionCompleted marks the session's order paid. When the completed
// event lands before the client calls confirm there is no order yet; the
// confirm path finishes the work and this delivery is a no-op.
func (s *Service) handleSessionCompleted(ctx context.Context, event *stripe.Event) error {
	sessionID := event.GetObjectValue("id")
	if sessionID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session id missing from event")
	}

	record, err := s.sessions.FindByStripeSessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "stripe_session_id", sessionID), "completed event for unknown session")
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if record.OrderID == nil {
		return nil
	}

	paymentRef := event.GetObjectValue("payment_intent")
	if paymentRef == "" {
		paymentRef = sessionID
	}
	if err := s.markPaidAndNotify(ctx, *record.OrderID, paymentRef); err != nil {
		return err
	}
	return nil
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	intentID := event.GetObjectValue("id")
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing from event")
	}

	order, err := s.resolveOrder(ctx, event, intentID)
	if err != nil || order == nil {
		return err
	}
	return s.markPaidAndNotify(ctx, order.ID, intentID)
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *stripe.Event) error {
	intentID := event.GetObjectValue("id")
	if intentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing from event")
	}

	order, err := s.resolveOrder(ctx, event, intentID)
	if err != nil || order == nil {
		return err
	}
	if err := s.orderSvc.MarkPaymentFailed(ctx, order.ID); err != nil {
		return err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if err := s.mailer.OrderCancelled(ctx, order); err != nil {
		s.logg.Error(ctx, "order cancellation mail failed", err)
	}
	return nil
}

// resolveOrder finds the local order a payment intent refers to, via the
// order_id metadata stamped at intent creation or the stored payment ref.
// Intents this backend never issued resolve to nil and are ignored.
func (s *Service) resolveOrder(ctx context.Context, event *stripe.Event, intentID string) (*models.Order, error) {
	if raw := event.GetObjectValue("metadata", "order_id"); raw != "" {
		orderID, err := uuid.Parse(raw)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id in event metadata")
		}
		order, err := s.orderRepo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return order, nil
	}

	order, err := s.orderRepo.FindByPaymentRef(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intentID), "payment event for unknown order")
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order by payment ref")
	}
	return order, nil
}

// markPaidAndNotify records the payment and sends confirmation mail, but only
// when the order actually transitioned. Confirm, checkout.session.completed
// and payment_intent.succeeded can all land for the same order; the customer
// gets one mail.
func (s *Service) markPaidAndNotify(ctx context.Context, orderID uuid.UUID, paymentRef string) error {
	transitioned, err := s.orderSvc.MarkPaid(ctx, orderID, paymentRef)
	if err != nil {
		return err
	}
	if !transitioned {
		return nil
	}
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if err := s.mailer.OrderConfirmation(ctx, order); err != nil {
		s.logg.Error(ctx, "order confirmation mail failed", err)
	}
	return nil
}
