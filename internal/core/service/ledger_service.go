package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gasdepot/backoffice/internal/core/domain"
	"github.com/gasdepot/backoffice/internal/observability"
	"github.com/gasdepot/backoffice/internal/port"
)

// Transaction kinds as reported in logs and metrics.
const (
	kindSale        = "sale"
	kindEmptyReturn = "empty_return"
	kindTransfer    = "transfer"
	kindReceipt     = "supplier_receipt"
	kindBank        = "bank"
	kindReference   = "reference"
)

// Lock acquisition order, identical for every transaction kind that touches
// overlapping resources:
//
//	1. customer row
//	2. inventory stock rows, variants in ascending id order
//	3. customer cylinder ledger balance rows, same variant order
//	4. bank account row
//	5. reference sequence row
//
// Reference sequences come last so no sequence value is taken before every
// invariant check in the unit has passed.

// Ledger is the transaction orchestrator. It is the sole writer of stock
// rows, customer and bank ledgers, sequence rows and business documents;
// each exported operation is one atomic unit with no intermediate durable
// state.
type Ledger struct {
	store   port.Store
	cache   port.CacheRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

type Option func(*Ledger)

// WithCache enables the duplicate-request guard for requests carrying a
// request id.
func WithCache(cache port.CacheRepository) Option {
	return func(l *Ledger) { l.cache = cache }
}

func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store port.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AllocateReference issues the next reference number for key, e.g.
// WT-A-B-202601-000001 for key WT-A-B-202601.
func (l *Ledger) AllocateReference(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", &domain.ValidationError{Field: "key", Reason: "required"}
	}

	var ref string
	err := l.store.Execute(ctx, func(ops port.TxOps) error {
		value, err := ops.Sequences().Next(ctx, key)
		if err != nil {
			return err
		}
		ref = domain.FormatReference(key, value)
		return nil
	})
	return ref, l.finish(kindReference, l.now(), err)
}

// RecordSale issues filled cylinders to a customer, collects empties,
// optionally banks the received amount, and persists the sale document under
// a freshly allocated reference number. Any failing step discards the whole
// unit.
func (l *Ledger) RecordSale(ctx context.Context, req SaleRequest) (*SaleResult, error) {
	started := l.now()
	if err := req.validate(); err != nil {
		return nil, l.finish(kindSale, started, err)
	}
	if err := l.guard(ctx, kindSale, req.RequestID); err != nil {
		return nil, l.finish(kindSale, started, err)
	}

	lines := make([]SaleLineRequest, len(req.Lines))
	copy(lines, req.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })

	res := &SaleResult{}
	err := l.store.Execute(ctx, func(ops port.TxOps) error {
		if _, err := activeCustomer(ctx, ops, req.CustomerID); err != nil {
			return err
		}
		warehouse, err := activeWarehouse(ctx, ops, req.WarehouseID)
		if err != nil {
			return err
		}
		if req.AmountReceived.IsPositive() {
			account, err := ops.Master().BankAccount(ctx, req.AccountID)
			if err != nil {
				return err
			}
			if !account.Active {
				return &domain.ValidationError{Field: "accountId", Reason: "account is inactive"}
			}
		}

		now := l.now()
		sale := &domain.Sale{
			ID:             uuid.NewString(),
			CustomerID:     req.CustomerID,
			WarehouseID:    req.WarehouseID,
			AmountReceived: req.AmountReceived,
			PaymentMode:    req.PaymentMode,
			AccountID:      req.AccountID,
			CreatedAt:      now,
		}

		total := decimal.Zero
		for _, line := range lines {
			if _, err := activeVariant(ctx, ops, line.VariantID); err != nil {
				return err
			}
			snap, err := ops.Stock().Adjust(ctx, line.VariantID, -line.QtyIssued, line.QtyEmptyReceived)
			if err != nil {
				return err
			}
			res.Stock = append(res.Stock, *snap)

			saleLine := domain.SaleLine{
				ID:               uuid.NewString(),
				SaleID:           sale.ID,
				VariantID:        line.VariantID,
				QtyIssued:        line.QtyIssued,
				QtyEmptyReceived: line.QtyEmptyReceived,
				UnitPrice:        line.UnitPrice,
			}
			sale.Lines = append(sale.Lines, saleLine)
			total = total.Add(saleLine.LineTotal())
		}
		sale.TotalAmount = total

		for _, line := range lines {
			entry, err := ops.CustomerLedger().Append(ctx, req.CustomerID, line.VariantID,
				now, domain.RefTypeSale, sale.ID, line.QtyIssued, line.QtyEmptyReceived)
			if err != nil {
				return err
			}
			res.LedgerEntries = append(res.LedgerEntries, *entry)
		}

		if req.AmountReceived.IsPositive() {
			entry, err := ops.BankLedger().Append(ctx, req.AccountID, domain.BankTxDeposit,
				req.AmountReceived, sale.ID, "")
			if err != nil {
				return err
			}
			res.BankEntry = entry
		}

		value, err := ops.Sequences().Next(ctx, domain.SaleKey(warehouse.Code, now))
		if err != nil {
			return err
		}
		sale.Reference = domain.FormatReference(domain.SaleKey(warehouse.Code, now), value)

		if err := ops.Documents().CreateSale(ctx, sale); err != nil {
			return err
		}
		res.Sale = sale
		res.Reference = sale.Reference
		return nil
	})
	if err != nil {
		return nil, l.finish(kindSale, started, err)
	}
	return res, l.finish(kindSale, started, nil)
}

// RecordEmptyReturn takes empties back from a customer, reducing the
// customer's outstanding cylinder balance, and optionally banks a payment
// received alongside.
func (l *Ledger) RecordEmptyReturn(ctx context.Context, req EmptyReturnRequest) (*LedgerResult, error) {
	started := l.now()
	if err := req.validate(); err != nil {
		return nil, l.finish(kindEmptyReturn, started, err)
	}
	if err := l.guard(ctx, kindEmptyReturn, req.RequestID); err != nil {
		return nil, l.finish(kindEmptyReturn, started, err)
	}

	res := &LedgerResult{}
	err := l.store.Execute(ctx, func(ops port.TxOps) error {
		if _, err := activeCustomer(ctx, ops, req.CustomerID); err != nil {
			return err
		}
		warehouse, err := activeWarehouse(ctx, ops, req.WarehouseID)
		if err != nil {
			return err
		}
		if _, err := activeVariant(ctx, ops, req.VariantID); err != nil {
			return err
		}

		now := l.now()
		snap, err := ops.Stock().Adjust(ctx, req.VariantID, 0, req.EmptyIn)
		if err != nil {
			return err
		}
		res.Stock = snap

		returnID := uuid.NewString()
		entry, err := ops.CustomerLedger().Append(ctx, req.CustomerID, req.VariantID,
			now, domain.RefTypeEmptyReturn, returnID, 0, req.EmptyIn)
		if err != nil {
			return err
		}
		res.Entry = entry

		if req.AmountReceived.IsPositive() {
			bankEntry, err := ops.BankLedger().Append(ctx, req.AccountID, domain.BankTxDeposit,
				req.AmountReceived, "", returnID)
			if err != nil {
				return err
			}
			res.BankEntry = bankEntry
		}

		key := domain.ReturnKey(warehouse.Code, now)
		value, err := ops.Sequences().Next(ctx, key)
		if err != nil {
			return err
		}
		res.Reference = domain.FormatReference(key, value)
		return nil
	})
	if err != nil {
		return nil, l.finish(kindEmptyReturn, started, err)
	}
	return res, l.finish(kindEmptyReturn, started, nil)
}

// RecordTransfer moves cylinders between two warehouses. Stock is tracked
// per variant globally, so the unit validates availability under lock and
// records the movement document; the global counters are unchanged.
func (l *Ledger) RecordTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	started := l.now()
	if err := req.validate(); err != nil {
		return nil, l.finish(kindTransfer, started, err)
	}
	if err := l.guard(ctx, kindTransfer, req.RequestID); err != nil {
		return nil, l.finish(kindTransfer, started, err)
	}

	res := &TransferResult{}
	err := l.store.Execute(ctx, func(ops port.TxOps) error {
		from, err := activeWarehouse(ctx, ops, req.FromWarehouseID)
		if err != nil {
			return err
		}
		to, err := activeWarehouse(ctx, ops, req.ToWarehouseID)
		if err != nil {
			return err
		}
		if _, err := activeVariant(ctx, ops, req.VariantID); err != nil {
			return err
		}

		snap, err := ops.Stock().GetForUpdate(ctx, req.VariantID)
		if err != nil {
			return err
		}
		if snap.FilledQty < req.FilledQty {
			return &domain.InsufficientStockError{
				VariantID: req.VariantID,
				State:     domain.CylinderFilled,
				Requested: req.FilledQty,
				Available: snap.FilledQty,
			}
		}
		if snap.EmptyQty < req.EmptyQty {
			return &domain.InsufficientStockError{
				VariantID: req.VariantID,
				State:     domain.CylinderEmpty,
				Requested: req.EmptyQty,
				Available: snap.EmptyQty,
			}
		}
		res.Stock = snap

		now := l.now()
		key := domain.TransferKey(from.Code, to.Code, now)
		value, err := ops.Sequences().Next(ctx, key)
		if err != nil {
			return err
		}

		transfer := &domain.WarehouseTransfer{
			ID:              uuid.NewString(),
			Reference:       domain.FormatReference(key, value),
			FromWarehouseID: req.FromWarehouseID,
			ToWarehouseID:   req.ToWarehouseID,
			VariantID:       req.VariantID,
			FilledQty:       req.FilledQty,
			EmptyQty:        req.EmptyQty,
			CreatedAt:       now,
		}
		if err := ops.Documents().CreateTransfer(ctx, transfer); err != nil {
			return err
		}
		res.Transfer = transfer
		res.Reference = transfer.Reference
		return nil
	})
	if err != nil {
		return nil, l.finish(kindTransfer, started, err)
	}
	return res, l.finish(kindTransfer, started, nil)
}

// RecordSupplierReceipt books filled cylinders received from a supplier and
// the empties sent back for refilling.
func (l *Ledger) RecordSupplierReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptResult, error) {
	started := l.now()
	if err := req.validate(); err != nil {
		return nil, l.finish(kindReceipt, started, err)
	}
	if err := l.guard(ctx, kindReceipt, req.RequestID); err != nil {
		return nil, l.finish(kindReceipt, started, err)
	}

	res := &ReceiptResult{}
	err := l.store.Execute(ctx, func(ops port.TxOps) error {
		warehouse, err := activeWarehouse(ctx, ops, req.WarehouseID)
		if err != nil {
			return err
		}
		if _, err := activeVariant(ctx, ops, req.VariantID); err != nil {
			return err
		}

		snap, err := ops.Stock().Adjust(ctx, req.VariantID, req.FilledReceived, -req.EmptySent)
		if err != nil {
			return err
		}
		res.Stock = snap

		now := l.now()
		key := domain.ReceiptKey(warehouse.Code, now)
		value, err := ops.Sequences().Next(ctx, key)
		if err != nil {
			return err
		}

		receipt := &domain.SupplierReceipt{
			ID:             uuid.NewString(),
			Reference:      domain.FormatReference(key, value),
			WarehouseID:    req.WarehouseID,
			SupplierID:     req.SupplierID,
			VariantID:      req.VariantID,
			FilledReceived: req.FilledReceived,
			EmptySent:      req.EmptySent,
			Amount:         req.Amount,
			CreatedAt:      now,
		}
		if err := ops.Documents().CreateReceipt(ctx, receipt); err != nil {
			return err
		}
		res.Receipt = receipt
		res.Reference = receipt.Reference
		return nil
	})
	if err != nil {
		return nil, l.finish(kindReceipt, started, err)
	}
	return res, l.finish(kindReceipt, started, nil)
}

// RecordBankTransaction appends a deposit, withdrawal or adjustment to an
// account's cash ledger.
func (l *Ledger) RecordBankTransaction(ctx context.Context, req BankTxRequest) (*BankLedgerResult, error) {
	started := l.now()
	if err := req.validate(); err != nil {
		return nil, l.finish(kindBank, started, err)
	}
	if err := l.guard(ctx, kindBank, req.RequestID); err != nil {
		return nil, l.finish(kindBank, started, err)
	}

	res := &BankLedgerResult{}
	err := l.store.Execute(ctx, func(ops port.TxOps) error {
		entry, err := ops.BankLedger().Append(ctx, req.AccountID, req.Type, req.Amount, "", req.Reference)
		if err != nil {
			return err
		}
		res.Entry = entry
		res.Balance = entry.BalanceAfter
		return nil
	})
	if err != nil {
		return nil, l.finish(kindBank, started, err)
	}
	return res, l.finish(kindBank, started, nil)
}

// CustomerBalance reads the current cylinder balance for (customer, variant)
// without taking locks.
func (l *Ledger) CustomerBalance(ctx context.Context, customerID, variantID string) (int, error) {
	return l.store.CustomerBalance(ctx, customerID, variantID)
}

// StockSnapshot reads the current stock counters for a variant.
func (l *Ledger) StockSnapshot(ctx context.Context, variantID string) (*domain.InventoryStock, error) {
	return l.store.StockSnapshot(ctx, variantID)
}

// AccountBalance reads an account's denormalized current balance.
func (l *Ledger) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return l.store.AccountBalance(ctx, accountID)
}

// guard rejects a request id that was already accepted. A missing cache or
// empty request id disables the check.
func (l *Ledger) guard(ctx context.Context, kind, requestID string) error {
	if l.cache == nil || requestID == "" {
		return nil
	}
	key := fmt.Sprintf("tx:%s:%s", kind, requestID)
	ok, err := l.cache.SetIdempotency(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return domain.ErrDuplicateRequest
	}
	return nil
}

func (l *Ledger) finish(kind string, started time.Time, err error) error {
	outcome := "persisted"
	switch {
	case err == nil:
	case domain.IsRetryable(err):
		outcome = "conflict"
	default:
		outcome = "rejected"
	}

	if l.metrics != nil {
		l.metrics.Transactions.WithLabelValues(kind, outcome).Inc()
		l.metrics.UnitDuration.WithLabelValues(kind).Observe(l.now().Sub(started).Seconds())
	}
	if err != nil {
		l.logger.Warn("transaction failed",
			zap.String("kind", kind), zap.String("outcome", outcome), zap.Error(err))
	} else {
		l.logger.Info("transaction persisted", zap.String("kind", kind))
	}
	return err
}

func activeCustomer(ctx context.Context, ops port.TxOps, id string) (*domain.Customer, error) {
	customer, err := ops.Master().CustomerForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !customer.Active {
		return nil, &domain.ValidationError{Field: "customerId", Reason: "customer is inactive"}
	}
	return customer, nil
}

func activeWarehouse(ctx context.Context, ops port.TxOps, id string) (*domain.Warehouse, error) {
	warehouse, err := ops.Master().Warehouse(ctx, id)
	if err != nil {
		return nil, err
	}
	if !warehouse.Active {
		return nil, &domain.ValidationError{Field: "warehouseId", Reason: "warehouse is inactive"}
	}
	return warehouse, nil
}

func activeVariant(ctx context.Context, ops port.TxOps, id string) (*domain.CylinderVariant, error) {
	variant, err := ops.Master().Variant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !variant.Active {
		return nil, &domain.ValidationError{Field: "variantId", Reason: "variant is inactive"}
	}
	return variant, nil
}
