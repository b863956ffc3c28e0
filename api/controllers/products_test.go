package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/auroralabs/storefront-backend/pkg/db/models"
	pkgerrors "github.com/auroralabs/storefront-backend/pkg/errors"
)

type stubProductService struct {
	rows    []models.Product
	total   int64
	product *models.Product
	err     error

	gotLimit  int
	gotOffset int
}

func (s *stubProductService) List(ctx context.Context, limit, offset int) ([]models.Product, int64, error) {
	s.gotLimit = limit
	s.gotOffset = offset
	return s.rows, s.total, s.err
}

func (s *stubProductService) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.product, s.err
}

func withProductID(req *http.Request, raw string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("productId", raw)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}

func TestProductListDefaultsPaging(t *testing.T) {
	svc := &stubProductService{
		rows:  []models.Product{{ID: uuid.New(), Title: "Crew Neck Tee"}},
		total: 41,
	}
	handler := ProductList(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.gotLimit != 20 || svc.gotOffset != 0 {
		t.Fatalf("expected default paging 20/0, got %d/%d", svc.gotLimit, svc.gotOffset)
	}
	var envelope struct {
		Data productListResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Total != 41 || len(envelope.Data.Products) != 1 {
		t.Fatalf("unexpected page: %+v", envelope.Data)
	}
}

func TestProductListRejectsBadLimit(t *testing.T) {
	handler := ProductList(&stubProductService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products?limit=1000", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestProductDetailSuccess(t *testing.T) {
	productID := uuid.New()
	svc := &stubProductService{product: &models.Product{ID: productID, Title: "Crew Neck Tee", IsActive: true}}
	handler := ProductDetail(svc, nil)

	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID.String(), nil), productID.String())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var envelope struct {
		Data models.Product `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != productID {
		t.Fatalf("unexpected product id: %s", envelope.Data.ID)
	}
}

func TestProductDetailInvalidID(t *testing.T) {
	handler := ProductDetail(&stubProductService{}, nil)

	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil), "nope")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestProductDetailNotFound(t *testing.T) {
	svc := &stubProductService{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	handler := ProductDetail(svc, nil)

	productID := uuid.NewString()
	req := withProductID(httptest.NewRequest(http.MethodGet, "/api/v1/products/"+productID, nil), productID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
