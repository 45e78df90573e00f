package port

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/core/domain"
)

// UnitOfWork runs fn inside one atomic transactional boundary. Every write
// fn performs through ops is committed together or discarded together;
// returning a non-nil error rolls the whole unit back.
type UnitOfWork interface {
	Execute(ctx context.Context, fn func(ops TxOps) error) error
}

// TxOps exposes the transaction-scoped repositories. All methods operate
// inside the enclosing unit of work and hold any locks they take until the
// unit commits or rolls back.
type TxOps interface {
	Master() MasterRepository
	Stock() StockRepository
	CustomerLedger() CustomerLedgerRepository
	BankLedger() BankLedgerRepository
	Sequences() SequenceRepository
	Documents() DocumentRepository
}

// MasterRepository reads reference data. Lookups fail with
// domain.NotFoundError for absent ids.
type MasterRepository interface {
	// CustomerForUpdate loads a customer under an exclusive row lock.
	CustomerForUpdate(ctx context.Context, id string) (*domain.Customer, error)

	Warehouse(ctx context.Context, id string) (*domain.Warehouse, error)
	Variant(ctx context.Context, id string) (*domain.CylinderVariant, error)
	BankAccount(ctx context.Context, id string) (*domain.BankAccount, error)
}

// StockRepository mutates the per-variant filled/empty counters.
type StockRepository interface {
	// Adjust applies deltas to the variant's stock row under an exclusive
	// lock, creating the row at zero if absent. A resulting negative
	// counter fails with domain.InsufficientStockError.
	Adjust(ctx context.Context, variantID string, deltaFilled, deltaEmpty int) (*domain.InventoryStock, error)

	// GetForUpdate loads the stock row under an exclusive lock without
	// mutating it, creating it at zero if absent.
	GetForUpdate(ctx context.Context, variantID string) (*domain.InventoryStock, error)
}

// CustomerLedgerRepository appends to the per-(customer, variant) cylinder
// ledger. Appends for the same key are serialized by an exclusive lock on
// the key's balance row, so no two appends observe the same prior balance.
type CustomerLedgerRepository interface {
	// Append computes balance = prior + filledOut - emptyIn and inserts the
	// entry. Fails with domain.InvalidReturnError when emptyIn exceeds
	// prior + filledOut.
	Append(ctx context.Context, customerID, variantID string, date time.Time,
		refType domain.CustomerLedgerRefType, refID string, filledOut, emptyIn int) (*domain.CustomerCylinderLedgerEntry, error)

	// Balance returns the current running balance for (customer, variant)
	// under the same exclusive lock Append takes.
	Balance(ctx context.Context, customerID, variantID string) (int, error)
}

// BankLedgerRepository appends to an account's cash ledger and keeps the
// account's denormalized current balance in step within the same unit.
type BankLedgerRepository interface {
	// Append fails with domain.InsufficientBalanceError when the resulting
	// balance would be negative.
	Append(ctx context.Context, accountID string, txType domain.BankTxType,
		amount decimal.Decimal, saleRef, reference string) (*domain.BankLedgerEntry, error)
}

// SequenceRepository issues strictly increasing integers per key.
type SequenceRepository interface {
	// Next locks the sequence row for key (creating it at 0 if absent),
	// increments it and returns the new value. Values are never reused;
	// gaps appear only when an enclosing unit rolls back.
	Next(ctx context.Context, key string) (int64, error)
}

// DocumentRepository persists the business documents produced by the
// orchestrator.
type DocumentRepository interface {
	CreateSale(ctx context.Context, sale *domain.Sale) error
	CreateTransfer(ctx context.Context, transfer *domain.WarehouseTransfer) error
	CreateReceipt(ctx context.Context, receipt *domain.SupplierReceipt) error
}

// Store is the full storage surface the orchestrator consumes: the atomic
// unit of work plus lock-free read-side queries.
type Store interface {
	UnitOfWork

	StockSnapshot(ctx context.Context, variantID string) (*domain.InventoryStock, error)
	CustomerBalance(ctx context.Context, customerID, variantID string) (int, error)
	AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
}
