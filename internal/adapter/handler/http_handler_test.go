package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gasdepot/backoffice/internal/adapter/storage"
	"github.com/gasdepot/backoffice/internal/core/domain"
	"github.com/gasdepot/backoffice/internal/core/service"
)

func newTestServer() (*storage.MemoryAdapter, *http.ServeMux) {
	store := storage.NewMemoryAdapter()
	store.SeedCustomer(domain.Customer{ID: "cust-1", Code: "C001", Name: "Test Customer", Active: true})
	store.SeedWarehouse(domain.Warehouse{ID: "wh-a", Code: "A", Name: "Main", Active: true})
	store.SeedVariant(domain.CylinderVariant{ID: "var-14", Code: "14.2", Name: "14.2kg", Active: true})
	store.SeedAccount(domain.BankAccount{ID: "acc-1", Code: "A1", Name: "Operating", Active: true})
	store.SeedStock("var-14", 10, 0)

	mux := http.NewServeMux()
	NewHTTPHandler(service.NewLedger(store)).Register(mux)
	return store, mux
}

func postJSON(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRecordSaleHTTP_Success(t *testing.T) {
	_, mux := newTestServer()

	rec := postJSON(mux, "/api/sales", `{
		"customer_id": "cust-1",
		"warehouse_id": "wh-a",
		"payment_mode": "CREDIT",
		"lines": [{"variant_id": "var-14", "qty_issued": 2, "unit_price": "1100.00"}]
	}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "SAL-A-") {
		t.Errorf("expected a sale reference in response, got %s", rec.Body.String())
	}
}

func TestRecordSaleHTTP_InsufficientStock(t *testing.T) {
	_, mux := newTestServer()

	rec := postJSON(mux, "/api/sales", `{
		"customer_id": "cust-1",
		"warehouse_id": "wh-a",
		"payment_mode": "CREDIT",
		"lines": [{"variant_id": "var-14", "qty_issued": 11, "unit_price": "1100.00"}]
	}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRecordSaleHTTP_ValidationError(t *testing.T) {
	_, mux := newTestServer()

	rec := postJSON(mux, "/api/sales", `{
		"customer_id": "cust-1",
		"warehouse_id": "wh-a",
		"payment_mode": "CREDIT",
		"lines": []
	}`)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRecordSaleHTTP_CustomerNotFound(t *testing.T) {
	_, mux := newTestServer()

	rec := postJSON(mux, "/api/sales", `{
		"customer_id": "cust-missing",
		"warehouse_id": "wh-a",
		"payment_mode": "CREDIT",
		"lines": [{"variant_id": "var-14", "qty_issued": 1, "unit_price": "1100.00"}]
	}`)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRecordSaleHTTP_MethodNotAllowed(t *testing.T) {
	_, mux := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/sales", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestBankTransactionHTTP_InsufficientBalance(t *testing.T) {
	_, mux := newTestServer()

	rec := postJSON(mux, "/api/bank-transactions", `{
		"account_id": "acc-1",
		"type": "WITHDRAWAL",
		"amount": "100.00"
	}`)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStockSnapshotHTTP(t *testing.T) {
	_, mux := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/api/stock?variant_id=var-14", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"FilledQty":10`) {
		t.Errorf("expected stock payload, got %s", rec.Body.String())
	}
}

func TestHealthCheckHTTP(t *testing.T) {
	_, mux := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
