package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	checkoutsvc "github.com/auroralabs/storefront-backend/internal/checkout"
	"github.com/auroralabs/storefront-backend/pkg/db/models"
	"github.com/auroralabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
)

type stubCheckoutService struct {
	order    *models.Order
	initiate *checkoutsvc.InitiateResult
	confirm  *checkoutsvc.ConfirmResult
	err      error

	gotCreate    *checkoutsvc.CreateOrderInput
	gotSessionID string
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, userID uuid.UUID, input checkoutsvc.CreateOrderInput) (*models.Order, error) {
	s.gotCreate = &input
	return s.order, s.err
}

func (s *stubCheckoutService) Initiate(ctx context.Context, userID uuid.UUID, input checkoutsvc.InitiateInput) (*checkoutsvc.InitiateResult, error) {
	return s.initiate, s.err
}

func (s *stubCheckoutService) Confirm(ctx context.Context, userID uuid.UUID, stripeSessionID string) (*checkoutsvc.ConfirmResult, error) {
	s.gotSessionID = stripeSessionID
	return s.confirm, s.err
}

func withSessionID(req *http.Request, raw string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("sessionId", raw)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

func orderCreateBody(productID uuid.UUID, totalCents int) string {
	payload := map[string]any{
		"items": []map[string]any{
			{"product_id": productID.String(), "quantity": 2},
		},
		"shipping_address": map[string]any{
			"name":        "A Shopper",
			"line1":       "12 MG Road",
			"city":        "Bengaluru",
			"state":       "KA",
			"postal_code": "560001",
			"country":     "IN",
		},
		"payment_method": string(enums.PaymentMethodCOD),
		"total_cents":    totalCents,
	}
	raw, _ := json.Marshal(payload)
	return string(raw)
}

func TestOrderCreateReturnsCreated(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckoutService{order: &models.Order{ID: orderID, Status: enums.OrderStatusPending}}
	handler := OrderCreate(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", orderCreateBody(uuid.New(), 300)))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.gotCreate == nil || svc.gotCreate.ClientTotalCents != 300 {
		t.Fatalf("unexpected create input: %+v", svc.gotCreate)
	}
}

func TestOrderCreateTotalMismatch(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeValidation, "order total mismatch")}
	handler := OrderCreate(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", orderCreateBody(uuid.New(), 250)))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderCreateRejectsEmptyItems(t *testing.T) {
	svc := &stubCheckoutService{}
	handler := OrderCreate(svc, nil)

	body := `{"items":[],"shipping_address":{"line1":"x"},"payment_method":"cod","total_cents":100}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/orders", body))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.gotCreate != nil {
		t.Fatalf("service must not be called for empty order")
	}
}

func TestCheckoutInitiateReturnsHostedURL(t *testing.T) {
	svc := &stubCheckoutService{initiate: &checkoutsvc.InitiateResult{
		SessionID: "cs_test_1",
		URL:       "https://checkout.stripe.com/pay/cs_test_1",
	}}
	handler := CheckoutInitiate(svc, nil)

	body := `{"shipping_address":{"name":"A Shopper","line1":"12 MG Road","city":"Bengaluru","state":"KA","postal_code":"560001","country":"IN"}}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodPost, "/api/v1/checkout/initiate", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data checkoutsvc.InitiateResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.SessionID != "cs_test_1" || envelope.Data.URL == "" {
		t.Fatalf("unexpected initiate payload: %+v", envelope.Data)
	}
}

func TestCheckoutConfirmForwardsSessionID(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCheckoutService{confirm: &checkoutsvc.ConfirmResult{Order: &models.Order{ID: orderID}}}
	handler := CheckoutConfirm(svc, nil)

	req := withSessionID(authedRequest(http.MethodPost, "/api/v1/checkout/confirm/cs_test_1", ""), "cs_test_1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.gotSessionID != "cs_test_1" {
		t.Fatalf("session id not forwarded, got %q", svc.gotSessionID)
	}
}

func TestCheckoutConfirmUnpaidSession(t *testing.T) {
	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment not completed")}
	handler := CheckoutConfirm(svc, nil)

	req := withSessionID(authedRequest(http.MethodPost, "/api/v1/checkout/confirm/cs_test_1", ""), "cs_test_1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}
