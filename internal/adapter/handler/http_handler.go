package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/core/domain"
	"github.com/gasdepot/backoffice/internal/core/service"
)

// HTTPHandler is a thin JSON adapter over the ledger orchestrator. It does
// no business validation beyond decoding; the orchestrator owns the rules.
type HTTPHandler struct {
	ledger *service.Ledger
}

func NewHTTPHandler(ledger *service.Ledger) *HTTPHandler {
	return &HTTPHandler{ledger: ledger}
}

// Register mounts all routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/sales", h.RecordSale)
	mux.HandleFunc("/api/returns", h.RecordEmptyReturn)
	mux.HandleFunc("/api/transfers", h.RecordTransfer)
	mux.HandleFunc("/api/receipts", h.RecordSupplierReceipt)
	mux.HandleFunc("/api/bank-transactions", h.RecordBankTransaction)
	mux.HandleFunc("/api/stock", h.StockSnapshot)
	mux.HandleFunc("/api/customer-balance", h.CustomerBalance)
}

type saleLineJSON struct {
	VariantID        string          `json:"variant_id"`
	QtyIssued        int             `json:"qty_issued"`
	QtyEmptyReceived int             `json:"qty_empty_received"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
}

type saleJSON struct {
	RequestID      string          `json:"request_id"`
	CustomerID     string          `json:"customer_id"`
	WarehouseID    string          `json:"warehouse_id"`
	Lines          []saleLineJSON  `json:"lines"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	PaymentMode    string          `json:"payment_mode"`
	AccountID      string          `json:"account_id"`
}

func (h *HTTPHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req saleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON("invalid request body"))
		return
	}

	saleReq := service.SaleRequest{
		RequestID:      req.RequestID,
		CustomerID:     req.CustomerID,
		WarehouseID:    req.WarehouseID,
		AmountReceived: req.AmountReceived,
		PaymentMode:    domain.PaymentMode(req.PaymentMode),
		AccountID:      req.AccountID,
	}
	for _, l := range req.Lines {
		saleReq.Lines = append(saleReq.Lines, service.SaleLineRequest{
			VariantID:        l.VariantID,
			QtyIssued:        l.QtyIssued,
			QtyEmptyReceived: l.QtyEmptyReceived,
			UnitPrice:        l.UnitPrice,
		})
	}

	res, err := h.ledger.RecordSale(r.Context(), saleReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type emptyReturnJSON struct {
	RequestID      string          `json:"request_id"`
	CustomerID     string          `json:"customer_id"`
	WarehouseID    string          `json:"warehouse_id"`
	VariantID      string          `json:"variant_id"`
	EmptyIn        int             `json:"empty_in"`
	AmountReceived decimal.Decimal `json:"amount_received"`
	AccountID      string          `json:"account_id"`
}

func (h *HTTPHandler) RecordEmptyReturn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req emptyReturnJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON("invalid request body"))
		return
	}

	res, err := h.ledger.RecordEmptyReturn(r.Context(), service.EmptyReturnRequest{
		RequestID:      req.RequestID,
		CustomerID:     req.CustomerID,
		WarehouseID:    req.WarehouseID,
		VariantID:      req.VariantID,
		EmptyIn:        req.EmptyIn,
		AmountReceived: req.AmountReceived,
		AccountID:      req.AccountID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type transferJSON struct {
	RequestID       string `json:"request_id"`
	FromWarehouseID string `json:"from_warehouse_id"`
	ToWarehouseID   string `json:"to_warehouse_id"`
	VariantID       string `json:"variant_id"`
	FilledQty       int    `json:"filled_qty"`
	EmptyQty        int    `json:"empty_qty"`
}

func (h *HTTPHandler) RecordTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transferJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON("invalid request body"))
		return
	}

	res, err := h.ledger.RecordTransfer(r.Context(), service.TransferRequest{
		RequestID:       req.RequestID,
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		VariantID:       req.VariantID,
		FilledQty:       req.FilledQty,
		EmptyQty:        req.EmptyQty,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type receiptJSON struct {
	RequestID      string          `json:"request_id"`
	WarehouseID    string          `json:"warehouse_id"`
	SupplierID     string          `json:"supplier_id"`
	VariantID      string          `json:"variant_id"`
	FilledReceived int             `json:"filled_received"`
	EmptySent      int             `json:"empty_sent"`
	Amount         decimal.Decimal `json:"amount"`
}

func (h *HTTPHandler) RecordSupplierReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req receiptJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON("invalid request body"))
		return
	}

	res, err := h.ledger.RecordSupplierReceipt(r.Context(), service.ReceiptRequest{
		RequestID:      req.RequestID,
		WarehouseID:    req.WarehouseID,
		SupplierID:     req.SupplierID,
		VariantID:      req.VariantID,
		FilledReceived: req.FilledReceived,
		EmptySent:      req.EmptySent,
		Amount:         req.Amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type bankTxJSON struct {
	RequestID string          `json:"request_id"`
	AccountID string          `json:"account_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

func (h *HTTPHandler) RecordBankTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bankTxJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON("invalid request body"))
		return
	}

	res, err := h.ledger.RecordBankTransaction(r.Context(), service.BankTxRequest{
		RequestID: req.RequestID,
		AccountID: req.AccountID,
		Type:      domain.BankTxType(req.Type),
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *HTTPHandler) StockSnapshot(w http.ResponseWriter, r *http.Request) {
	variantID := r.URL.Query().Get("variant_id")
	if variantID == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON("variant_id is required"))
		return
	}

	snap, err := h.ledger.StockSnapshot(r.Context(), variantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *HTTPHandler) CustomerBalance(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	variantID := r.URL.Query().Get("variant_id")
	if customerID == "" || variantID == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON("customer_id and variant_id are required"))
		return
	}

	balance, err := h.ledger.CustomerBalance(r.Context(), customerID, variantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"balance": balance})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *domain.ValidationError
		notFoundErr   *domain.NotFoundError
		stockErr      *domain.InsufficientStockError
		returnErr     *domain.InvalidReturnError
		balanceErr    *domain.InsufficientBalanceError
		conflictErr   *domain.ConcurrencyConflictError
	)

	switch {
	case errors.Is(err, domain.ErrDuplicateRequest):
		writeJSON(w, http.StatusConflict, errorJSON("duplicate request"))
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorJSON(validationErr.Error()))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorJSON(notFoundErr.Error()))
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorJSON(stockErr.Error()))
	case errors.As(err, &returnErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorJSON(returnErr.Error()))
	case errors.As(err, &balanceErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorJSON(balanceErr.Error()))
	case errors.As(err, &conflictErr):
		writeJSON(w, http.StatusServiceUnavailable, errorJSON("system busy, retry later"))
	default:
		writeJSON(w, http.StatusInternalServerError, errorJSON("internal error"))
	}
}

func errorJSON(message string) map[string]string {
	return map[string]string{"error": message}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
