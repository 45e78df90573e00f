package domain

import "time"

// Customer is a buyer holding cylinders on loan until empties come back.
type Customer struct {
	ID        string
	Code      string
	Name      string
	Active    bool
	Version   int // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CustomerLedgerRefType names the business document a ledger entry came from.
type CustomerLedgerRefType string

const (
	RefTypeSale        CustomerLedgerRefType = "SALE"
	RefTypeEmptyReturn CustomerLedgerRefType = "EMPTY_RETURN"
	RefTypeAdjustment  CustomerLedgerRefType = "ADJUSTMENT"
)

// CustomerCylinderLedgerEntry is one append-only row of a customer's
// filled-cylinder-owed ledger for a single variant.
// Balance = previous balance + FilledOut - EmptyIn and never goes negative.
type CustomerCylinderLedgerEntry struct {
	ID         string
	CustomerID string
	VariantID  string
	Date       time.Time
	RefType    CustomerLedgerRefType
	RefID      string
	FilledOut  int
	EmptyIn    int
	Balance    int
	CreatedAt  time.Time
}
