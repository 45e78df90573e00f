package domain

import (
	"fmt"
	"time"
)

// Reference number prefixes, one per transaction kind.
const (
	RefPrefixSale     = "SAL"
	RefPrefixReturn   = "RET"
	RefPrefixTransfer = "WT"
	RefPrefixReceipt  = "SR"
	RefPrefixBank     = "BNK"
)

// ReferenceSequence is the per-key counter row behind reference numbers.
// Value strictly increases on every allocation and is never reused.
type ReferenceSequence struct {
	Key       string
	Value     int64
	UpdatedAt time.Time
}

// FormatReference renders an allocated sequence value as a human-readable
// reference number, e.g. WT-A-B-202601-000001.
func FormatReference(key string, value int64) string {
	return fmt.Sprintf("%s-%06d", key, value)
}

// SaleKey builds the sequence key for sales out of a warehouse: SAL-A-202601.
func SaleKey(warehouseCode string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", RefPrefixSale, warehouseCode, at.Format("200601"))
}

// ReturnKey builds the sequence key for empty returns at a warehouse.
func ReturnKey(warehouseCode string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", RefPrefixReturn, warehouseCode, at.Format("200601"))
}

// TransferKey builds the sequence key for a warehouse pair: WT-A-B-202601.
func TransferKey(fromCode, toCode string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s", RefPrefixTransfer, fromCode, toCode, at.Format("200601"))
}

// ReceiptKey builds the sequence key for supplier receipts at a warehouse.
func ReceiptKey(warehouseCode string, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", RefPrefixReceipt, warehouseCode, at.Format("200601"))
}
