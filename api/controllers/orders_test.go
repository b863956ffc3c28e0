package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalorders "github.com/auroralabs/storefront-backend/internal/orders"
	"github.com/auroralabs/storefront-backend/pkg/db/models"
	"github.com/auroralabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
	"github.com/auroralabs/storefront-backend/pkg/pagination"
)

type stubOrderService struct {
	list      *internalorders.OrderList
	order     *models.Order
	err       error
	gotParams pagination.Params
	gotStatus enums.OrderStatus
}

func (s *stubOrderService) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*internalorders.OrderList, error) {
	s.gotParams = params
	return s.list, s.err
}

func (s *stubOrderService) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	s.gotStatus = target
	return s.order, s.err
}

func (s *stubOrderService) MarkPaid(ctx context.Context, orderID uuid.UUID, paymentRef string) (bool, error) {
	return s.err == nil, s.err
}

func (s *stubOrderService) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID) error {
	return s.err
}

func withOrderID(req *http.Request, raw string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("orderId", raw)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

func TestOrderListForwardsPagination(t *testing.T) {
	svc := &stubOrderService{list: &internalorders.OrderList{}}
	handler := OrderList(svc, nil)

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, authedRequest(http.MethodGet, "/api/v1/orders?limit=10&cursor=abc", ""))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.gotParams.Limit != 10 || svc.gotParams.Cursor != "abc" {
		t.Fatalf("unexpected pagination params: %+v", svc.gotParams)
	}
}

func TestOrderDetailForeignOrder(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	handler := OrderDetail(svc, nil)

	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodGet, "/api/v1/orders/"+orderID, ""), orderID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestOrderCancelSuccess(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrderService{order: &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}}
	handler := OrderCancel(svc, nil)

	req := withOrderID(authedRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", ""), orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestOrderCancelAfterShipment(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled")}
	handler := OrderCancel(svc, nil)

	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodPost, "/api/v1/orders/"+orderID+"/cancel", ""), orderID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestAdminOrderStatusUpdateParsesTarget(t *testing.T) {
	orderID := uuid.New()
	svc := &stubOrderService{order: &models.Order{ID: orderID, Status: enums.OrderStatusShipped}}
	handler := AdminOrderStatusUpdate(svc, nil)

	req := withOrderID(authedRequest(http.MethodPatch, "/api/v1/orders/"+orderID.String()+"/status", `{"status":"shipped"}`), orderID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.gotStatus != enums.OrderStatusShipped {
		t.Fatalf("expected shipped target, got %s", svc.gotStatus)
	}
}

func TestAdminOrderStatusUpdateRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrderService{}
	handler := AdminOrderStatusUpdate(svc, nil)

	orderID := uuid.NewString()
	req := withOrderID(authedRequest(http.MethodPatch, "/api/v1/orders/"+orderID+"/status", `{"status":"teleported"}`), orderID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.gotStatus != "" {
		t.Fatalf("service must not be called with unknown status")
	}
}
