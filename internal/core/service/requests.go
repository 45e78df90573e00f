package service

import (
	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/core/domain"
)

type SaleLineRequest struct {
	VariantID        string
	QtyIssued        int
	QtyEmptyReceived int
	UnitPrice        decimal.Decimal
}

type SaleRequest struct {
	RequestID      string
	CustomerID     string
	WarehouseID    string
	Lines          []SaleLineRequest
	AmountReceived decimal.Decimal
	PaymentMode    domain.PaymentMode
	AccountID      string
}

func (r SaleRequest) validate() error {
	if r.CustomerID == "" {
		return &domain.ValidationError{Field: "customerId", Reason: "required"}
	}
	if r.WarehouseID == "" {
		return &domain.ValidationError{Field: "warehouseId", Reason: "required"}
	}
	if len(r.Lines) == 0 {
		return &domain.ValidationError{Field: "lines", Reason: "at least one line required"}
	}
	seen := make(map[string]bool, len(r.Lines))
	for _, l := range r.Lines {
		if l.VariantID == "" {
			return &domain.ValidationError{Field: "lines.variantId", Reason: "required"}
		}
		if seen[l.VariantID] {
			return &domain.ValidationError{Field: "lines.variantId", Reason: "duplicate variant " + l.VariantID}
		}
		seen[l.VariantID] = true
		if l.QtyIssued <= 0 {
			return &domain.ValidationError{Field: "lines.qtyIssued", Reason: "must be positive"}
		}
		if l.QtyEmptyReceived < 0 {
			return &domain.ValidationError{Field: "lines.qtyEmptyReceived", Reason: "must not be negative"}
		}
		if l.UnitPrice.IsNegative() {
			return &domain.ValidationError{Field: "lines.unitPrice", Reason: "must not be negative"}
		}
	}
	if r.AmountReceived.IsNegative() {
		return &domain.ValidationError{Field: "amountReceived", Reason: "must not be negative"}
	}
	switch r.PaymentMode {
	case domain.PaymentCash, domain.PaymentBank, domain.PaymentCredit:
	default:
		return &domain.ValidationError{Field: "paymentMode", Reason: "unknown mode"}
	}
	if r.AmountReceived.IsPositive() && r.AccountID == "" {
		return &domain.ValidationError{Field: "accountId", Reason: "required when amountReceived > 0"}
	}
	return nil
}

type SaleResult struct {
	Sale          *domain.Sale
	Reference     string
	Stock         []domain.InventoryStock
	LedgerEntries []domain.CustomerCylinderLedgerEntry
	BankEntry     *domain.BankLedgerEntry
}

type EmptyReturnRequest struct {
	RequestID      string
	CustomerID     string
	WarehouseID    string
	VariantID      string
	EmptyIn        int
	AmountReceived decimal.Decimal
	AccountID      string
}

func (r EmptyReturnRequest) validate() error {
	if r.CustomerID == "" {
		return &domain.ValidationError{Field: "customerId", Reason: "required"}
	}
	if r.WarehouseID == "" {
		return &domain.ValidationError{Field: "warehouseId", Reason: "required"}
	}
	if r.VariantID == "" {
		return &domain.ValidationError{Field: "variantId", Reason: "required"}
	}
	if r.EmptyIn <= 0 {
		return &domain.ValidationError{Field: "emptyIn", Reason: "must be positive"}
	}
	if r.AmountReceived.IsNegative() {
		return &domain.ValidationError{Field: "amountReceived", Reason: "must not be negative"}
	}
	if r.AmountReceived.IsPositive() && r.AccountID == "" {
		return &domain.ValidationError{Field: "accountId", Reason: "required when amountReceived > 0"}
	}
	return nil
}

type LedgerResult struct {
	Entry     *domain.CustomerCylinderLedgerEntry
	Reference string
	Stock     *domain.InventoryStock
	BankEntry *domain.BankLedgerEntry
}

type TransferRequest struct {
	RequestID       string
	FromWarehouseID string
	ToWarehouseID   string
	VariantID       string
	FilledQty       int
	EmptyQty        int
}

func (r TransferRequest) validate() error {
	if r.FromWarehouseID == "" {
		return &domain.ValidationError{Field: "fromWarehouseId", Reason: "required"}
	}
	if r.ToWarehouseID == "" {
		return &domain.ValidationError{Field: "toWarehouseId", Reason: "required"}
	}
	if r.FromWarehouseID == r.ToWarehouseID {
		return &domain.ValidationError{Field: "toWarehouseId", Reason: "must differ from source warehouse"}
	}
	if r.VariantID == "" {
		return &domain.ValidationError{Field: "variantId", Reason: "required"}
	}
	if r.FilledQty < 0 || r.EmptyQty < 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if r.FilledQty == 0 && r.EmptyQty == 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "nothing to transfer"}
	}
	return nil
}

type TransferResult struct {
	Transfer  *domain.WarehouseTransfer
	Reference string
	Stock     *domain.InventoryStock
}

type ReceiptRequest struct {
	RequestID      string
	WarehouseID    string
	SupplierID     string
	VariantID      string
	FilledReceived int
	EmptySent      int
	Amount         decimal.Decimal
}

func (r ReceiptRequest) validate() error {
	if r.WarehouseID == "" {
		return &domain.ValidationError{Field: "warehouseId", Reason: "required"}
	}
	if r.SupplierID == "" {
		return &domain.ValidationError{Field: "supplierId", Reason: "required"}
	}
	if r.VariantID == "" {
		return &domain.ValidationError{Field: "variantId", Reason: "required"}
	}
	if r.FilledReceived < 0 || r.EmptySent < 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if r.FilledReceived == 0 && r.EmptySent == 0 {
		return &domain.ValidationError{Field: "quantity", Reason: "nothing received or sent"}
	}
	if r.Amount.IsNegative() {
		return &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	return nil
}

type ReceiptResult struct {
	Receipt   *domain.SupplierReceipt
	Reference string
	Stock     *domain.InventoryStock
}

type BankTxRequest struct {
	RequestID string
	AccountID string
	Type      domain.BankTxType
	Amount    decimal.Decimal
	Reference string
}

func (r BankTxRequest) validate() error {
	if r.AccountID == "" {
		return &domain.ValidationError{Field: "accountId", Reason: "required"}
	}
	switch r.Type {
	case domain.BankTxDeposit, domain.BankTxWithdrawal:
		if !r.Amount.IsPositive() {
			return &domain.ValidationError{Field: "amount", Reason: "must be positive"}
		}
	case domain.BankTxAdjustment:
		if r.Amount.IsZero() {
			return &domain.ValidationError{Field: "amount", Reason: "must not be zero"}
		}
	default:
		return &domain.ValidationError{Field: "type", Reason: "unknown transaction type"}
	}
	return nil
}

type BankLedgerResult struct {
	Entry   *domain.BankLedgerEntry
	Balance decimal.Decimal
}
