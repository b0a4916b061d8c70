package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/lumamart/api/internal/domain"
	"github.com/lumamart/api/internal/services"
)

func catalogRouter(catalog services.CatalogService) chi.Router {
	r := chi.NewRouter()
	NewCatalogHandlers(catalog).Routes(r)
	return r
}

func TestGetProductEndpoint(t *testing.T) {
	router := catalogRouter(&stubCatalogService{
		getFunc: func(_ context.Context, productID string) (services.Product, error) {
			if productID != "prod_mug" {
				t.Fatalf("unexpected product id %q", productID)
			}
			return services.Product{
				ID:    "prod_mug",
				Name:  "Enamel Mug",
				Price: 4500,
				Stock: 10,
				Envelope: domain.ShippingEnvelope{
					WeightKg: 0.5,
					WidthCm:  15,
					HeightCm: 12,
					LengthCm: 20,
				},
				Active: true,
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/products/prod_mug", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	payload := decodeJSONBody(t, rec)
	product, ok := payload["product"].(map[string]any)
	if !ok {
		t.Fatalf("expected product envelope, got %v", payload)
	}
	if product["id"] != "prod_mug" || product["price"] != float64(4500) {
		t.Fatalf("unexpected product payload: %v", product)
	}
	if product["weight_kg"] != 0.5 {
		t.Fatalf("envelope not exposed: %v", product)
	}
}

func TestGetProductEndpointNotFound(t *testing.T) {
	router := catalogRouter(&stubCatalogService{
		getFunc: func(context.Context, string) (services.Product, error) {
			return services.Product{}, services.ErrProductNotFound
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/products/prod_missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	payload := decodeJSONBody(t, rec)
	if payload["error"] != "product_not_found" {
		t.Fatalf("unexpected error payload: %v", payload)
	}
}

func TestListProductsEndpointForcesActiveOnly(t *testing.T) {
	var captured services.ProductListFilter
	router := catalogRouter(&stubCatalogService{
		listFunc: func(_ context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
			captured = filter
			return domain.CursorPage[services.Product]{
				Items:         []services.Product{{ID: "prod_mug", Name: "Enamel Mug", Price: 4500}},
				NextPageToken: "tok_next",
			}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/products?page_size=10&page_token=tok", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !captured.ActiveOnly {
		t.Fatalf("expected active-only listing")
	}
	if captured.Pagination.Limit != 10 || captured.Pagination.Cursor != "tok" {
		t.Fatalf("unexpected pagination: %+v", captured.Pagination)
	}

	payload := decodeJSONBody(t, rec)
	if payload["next_page_token"] != "tok_next" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestListProductsEndpointRejectsBadPageSize(t *testing.T) {
	router := catalogRouter(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/products?page_size=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
