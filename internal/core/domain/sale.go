package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMode string

const (
	PaymentCash   PaymentMode = "CASH"
	PaymentBank   PaymentMode = "BANK"
	PaymentCredit PaymentMode = "CREDIT"
)

// Sale is a persisted sale document with its line items. A sale either
// reaches persisted state as a whole or leaves no trace.
type Sale struct {
	ID             string
	Reference      string
	CustomerID     string
	WarehouseID    string
	Lines          []SaleLine
	TotalAmount    decimal.Decimal
	AmountReceived decimal.Decimal
	PaymentMode    PaymentMode
	AccountID      string // destination account when AmountReceived > 0
	CreatedAt      time.Time
}

// SaleLine issues filled cylinders of one variant and collects empties.
type SaleLine struct {
	ID               string
	SaleID           string
	VariantID        string
	QtyIssued        int
	QtyEmptyReceived int
	UnitPrice        decimal.Decimal
}

// LineTotal is QtyIssued * UnitPrice.
func (l SaleLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.QtyIssued)))
}

// WarehouseTransfer records a filled/empty movement between two warehouses.
// Stock is variant-global, so a transfer validates availability and records
// the movement without changing the global counters.
type WarehouseTransfer struct {
	ID              string
	Reference       string
	FromWarehouseID string
	ToWarehouseID   string
	VariantID       string
	FilledQty       int
	EmptyQty        int
	CreatedAt       time.Time
}

// SupplierReceipt records filled cylinders received from a supplier against
// empties sent back for refilling.
type SupplierReceipt struct {
	ID             string
	Reference      string
	WarehouseID    string
	SupplierID     string
	VariantID      string
	FilledReceived int
	EmptySent      int
	Amount         decimal.Decimal
	CreatedAt      time.Time
}
