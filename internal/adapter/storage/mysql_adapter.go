package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/core/domain"
	"github.com/gasdepot/backoffice/internal/port"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

// MySQL server error numbers surfaced as retryable conflicts.
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// MySQLAdapter implements port.Store on one MySQL database. Exclusive row
// locks are SELECT ... FOR UPDATE inside the unit's transaction; the lock
// wait bound is the server's innodb_lock_wait_timeout.
type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Execute(ctx context.Context, fn func(ops port.TxOps) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTxOps{tx: tx}); err != nil {
		return translateMySQLError(err)
	}
	if err := tx.Commit(); err != nil {
		return translateMySQLError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// translateMySQLError maps lock-wait timeouts and deadlocks onto the
// retryable conflict type; everything else passes through.
func translateMySQLError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if mysqlErr.Number == mysqlErrLockWaitTimeout || mysqlErr.Number == mysqlErrDeadlock {
			return &domain.ConcurrencyConflictError{Resource: "row lock", Err: err}
		}
	}
	return err
}

type mysqlTxOps struct {
	tx *sql.Tx
}

func (o *mysqlTxOps) Master() port.MasterRepository                 { return (*mysqlMaster)(o) }
func (o *mysqlTxOps) Stock() port.StockRepository                   { return (*mysqlStock)(o) }
func (o *mysqlTxOps) CustomerLedger() port.CustomerLedgerRepository { return (*mysqlCustomerLedger)(o) }
func (o *mysqlTxOps) BankLedger() port.BankLedgerRepository         { return (*mysqlBankLedger)(o) }
func (o *mysqlTxOps) Sequences() port.SequenceRepository            { return (*mysqlSequences)(o) }
func (o *mysqlTxOps) Documents() port.DocumentRepository            { return (*mysqlDocuments)(o) }

type mysqlMaster mysqlTxOps

func (m *mysqlMaster) CustomerForUpdate(ctx context.Context, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := m.tx.QueryRowContext(ctx, `
		SELECT id, code, name, active, version, created_at, updated_at
		FROM customers WHERE id = ? FOR UPDATE`, id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.Active, &c.Version, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "customer", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &c, nil
}

func (m *mysqlMaster) Warehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	var w domain.Warehouse
	err := m.tx.QueryRowContext(ctx, `
		SELECT id, code, name, active, version, created_at, updated_at
		FROM warehouses WHERE id = ?`, id,
	).Scan(&w.ID, &w.Code, &w.Name, &w.Active, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "warehouse", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query warehouse: %w", err)
	}
	return &w, nil
}

func (m *mysqlMaster) Variant(ctx context.Context, id string) (*domain.CylinderVariant, error) {
	var v domain.CylinderVariant
	err := m.tx.QueryRowContext(ctx, `
		SELECT id, code, name, active, version, created_at, updated_at
		FROM cylinder_variants WHERE id = ?`, id,
	).Scan(&v.ID, &v.Code, &v.Name, &v.Active, &v.Version, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "variant", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query variant: %w", err)
	}
	return &v, nil
}

func (m *mysqlMaster) BankAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	var a domain.BankAccount
	err := m.tx.QueryRowContext(ctx, `
		SELECT id, code, name, current_balance, active, version, created_at, updated_at
		FROM bank_accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.Code, &a.Name, &a.CurrentBalance, &a.Active, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "bank account", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query bank account: %w", err)
	}
	return &a, nil
}

type mysqlStock mysqlTxOps

func (s *mysqlStock) GetForUpdate(ctx context.Context, variantID string) (*domain.InventoryStock, error) {
	return s.lockRow(ctx, variantID)
}

func (s *mysqlStock) Adjust(ctx context.Context, variantID string, deltaFilled, deltaEmpty int) (*domain.InventoryStock, error) {
	snap, err := s.lockRow(ctx, variantID)
	if err != nil {
		return nil, err
	}

	filled := snap.FilledQty + deltaFilled
	empty := snap.EmptyQty + deltaEmpty
	if filled < 0 {
		return nil, &domain.InsufficientStockError{
			VariantID: variantID,
			State:     domain.CylinderFilled,
			Requested: -deltaFilled,
			Available: snap.FilledQty,
		}
	}
	if empty < 0 {
		return nil, &domain.InsufficientStockError{
			VariantID: variantID,
			State:     domain.CylinderEmpty,
			Requested: -deltaEmpty,
			Available: snap.EmptyQty,
		}
	}

	_, err = s.tx.ExecContext(ctx, `
		UPDATE inventory_stock SET filled_qty = ?, empty_qty = ?, last_updated = NOW()
		WHERE variant_id = ?`, filled, empty, variantID)
	if err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}

	snap.FilledQty = filled
	snap.EmptyQty = empty
	snap.LastUpdated = time.Now()
	return snap, nil
}

// lockRow locks the variant's stock row, creating it at zero on first use.
// Two passes: a racing creator makes our INSERT IGNORE a no-op, after which
// the SELECT FOR UPDATE blocks until the winner commits.
func (s *mysqlStock) lockRow(ctx context.Context, variantID string) (*domain.InventoryStock, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var snap domain.InventoryStock
		err := s.tx.QueryRowContext(ctx, `
			SELECT variant_id, filled_qty, empty_qty, last_updated
			FROM inventory_stock WHERE variant_id = ? FOR UPDATE`, variantID,
		).Scan(&snap.VariantID, &snap.FilledQty, &snap.EmptyQty, &snap.LastUpdated)
		if err == nil {
			return &snap, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query stock: %w", err)
		}

		_, err = s.tx.ExecContext(ctx, `
			INSERT IGNORE INTO inventory_stock (variant_id, filled_qty, empty_qty, last_updated)
			VALUES (?, 0, 0, NOW())`, variantID)
		if err != nil {
			return nil, fmt.Errorf("create stock row: %w", err)
		}
	}
	return nil, fmt.Errorf("stock row for variant %s not lockable after insert", variantID)
}

type mysqlCustomerLedger mysqlTxOps

func (c *mysqlCustomerLedger) Balance(ctx context.Context, customerID, variantID string) (int, error) {
	return c.lockBalance(ctx, customerID, variantID)
}

func (c *mysqlCustomerLedger) Append(ctx context.Context, customerID, variantID string, date time.Time,
	refType domain.CustomerLedgerRefType, refID string, filledOut, emptyIn int) (*domain.CustomerCylinderLedgerEntry, error) {

	prior, err := c.lockBalance(ctx, customerID, variantID)
	if err != nil {
		return nil, err
	}

	balance := prior + filledOut - emptyIn
	if balance < 0 {
		return nil, &domain.InvalidReturnError{
			CustomerID:  customerID,
			VariantID:   variantID,
			EmptyIn:     emptyIn,
			Outstanding: prior + filledOut,
		}
	}

	entry := &domain.CustomerCylinderLedgerEntry{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		VariantID:  variantID,
		Date:       date,
		RefType:    refType,
		RefID:      refID,
		FilledOut:  filledOut,
		EmptyIn:    emptyIn,
		Balance:    balance,
		CreatedAt:  time.Now(),
	}

	_, err = c.tx.ExecContext(ctx, `
		INSERT INTO customer_cylinder_ledger
			(id, customer_id, variant_id, entry_date, ref_type, ref_id, filled_out, empty_in, balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CustomerID, entry.VariantID, entry.Date, entry.RefType,
		entry.RefID, entry.FilledOut, entry.EmptyIn, entry.Balance, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	_, err = c.tx.ExecContext(ctx, `
		UPDATE customer_cylinder_balances SET balance = ?
		WHERE customer_id = ? AND variant_id = ?`, balance, customerID, variantID)
	if err != nil {
		return nil, fmt.Errorf("update ledger balance: %w", err)
	}
	return entry, nil
}

// lockBalance locks the per-(customer, variant) balance row, creating it at
// zero on first use. Locking this row is what serializes concurrent appends
// for the same key.
func (c *mysqlCustomerLedger) lockBalance(ctx context.Context, customerID, variantID string) (int, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var balance int
		err := c.tx.QueryRowContext(ctx, `
			SELECT balance FROM customer_cylinder_balances
			WHERE customer_id = ? AND variant_id = ? FOR UPDATE`, customerID, variantID,
		).Scan(&balance)
		if err == nil {
			return balance, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("query ledger balance: %w", err)
		}

		_, err = c.tx.ExecContext(ctx, `
			INSERT IGNORE INTO customer_cylinder_balances (customer_id, variant_id, balance)
			VALUES (?, ?, 0)`, customerID, variantID)
		if err != nil {
			return 0, fmt.Errorf("create ledger balance row: %w", err)
		}
	}
	return 0, fmt.Errorf("ledger balance row for customer %s variant %s not lockable after insert", customerID, variantID)
}

type mysqlBankLedger mysqlTxOps

func (b *mysqlBankLedger) Append(ctx context.Context, accountID string, txType domain.BankTxType,
	amount decimal.Decimal, saleRef, reference string) (*domain.BankLedgerEntry, error) {

	var balance decimal.Decimal
	var version int
	err := b.tx.QueryRowContext(ctx, `
		SELECT current_balance, version FROM bank_accounts
		WHERE id = ? FOR UPDATE`, accountID,
	).Scan(&balance, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "bank account", ID: accountID}
	}
	if err != nil {
		return nil, fmt.Errorf("query bank account: %w", err)
	}

	after := balance.Add(domain.SignedDelta(txType, amount))
	if after.IsNegative() {
		return nil, &domain.InsufficientBalanceError{
			AccountID: accountID,
			Amount:    amount,
			Balance:   balance,
		}
	}

	entry := &domain.BankLedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: after,
		SaleRef:      saleRef,
		Reference:    reference,
		CreatedAt:    time.Now(),
	}

	_, err = b.tx.ExecContext(ctx, `
		INSERT INTO bank_ledger (id, account_id, tx_type, amount, balance_after, sale_ref, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AccountID, entry.Type, entry.Amount, entry.BalanceAfter,
		entry.SaleRef, entry.Reference, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert bank ledger entry: %w", err)
	}

	result, err := b.tx.ExecContext(ctx, `
		UPDATE bank_accounts SET current_balance = ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`, entry.BalanceAfter, accountID, version)
	if err != nil {
		return nil, fmt.Errorf("update bank account: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, &domain.ConcurrencyConflictError{Resource: "bank account " + accountID, Err: ErrOptimisticLock}
	}
	return entry, nil
}

type mysqlSequences mysqlTxOps

func (s *mysqlSequences) Next(ctx context.Context, key string) (int64, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var value int64
		err := s.tx.QueryRowContext(ctx, `
			SELECT seq_value FROM reference_sequences WHERE seq_key = ? FOR UPDATE`, key,
		).Scan(&value)
		if err == nil {
			value++
			_, err = s.tx.ExecContext(ctx, `
				UPDATE reference_sequences SET seq_value = ?, updated_at = NOW()
				WHERE seq_key = ?`, value, key)
			if err != nil {
				return 0, fmt.Errorf("update sequence: %w", err)
			}
			return value, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("query sequence: %w", err)
		}

		_, err = s.tx.ExecContext(ctx, `
			INSERT IGNORE INTO reference_sequences (seq_key, seq_value, updated_at)
			VALUES (?, 0, NOW())`, key)
		if err != nil {
			return 0, fmt.Errorf("create sequence row: %w", err)
		}
	}
	return 0, fmt.Errorf("sequence row %s not lockable after insert", key)
}

type mysqlDocuments mysqlTxOps

func (d *mysqlDocuments) CreateSale(ctx context.Context, sale *domain.Sale) error {
	_, err := d.tx.ExecContext(ctx, `
		INSERT INTO sales (id, reference, customer_id, warehouse_id, total_amount,
			amount_received, payment_mode, account_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.Reference, sale.CustomerID, sale.WarehouseID, sale.TotalAmount,
		sale.AmountReceived, sale.PaymentMode, nullable(sale.AccountID), sale.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}

	for _, line := range sale.Lines {
		_, err := d.tx.ExecContext(ctx, `
			INSERT INTO sale_lines (id, sale_id, variant_id, qty_issued, qty_empty_received, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			line.ID, line.SaleID, line.VariantID, line.QtyIssued, line.QtyEmptyReceived, line.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert sale line: %w", err)
		}
	}
	return nil
}

func (d *mysqlDocuments) CreateTransfer(ctx context.Context, transfer *domain.WarehouseTransfer) error {
	_, err := d.tx.ExecContext(ctx, `
		INSERT INTO warehouse_transfers (id, reference, from_warehouse_id, to_warehouse_id,
			variant_id, filled_qty, empty_qty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		transfer.ID, transfer.Reference, transfer.FromWarehouseID, transfer.ToWarehouseID,
		transfer.VariantID, transfer.FilledQty, transfer.EmptyQty, transfer.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (d *mysqlDocuments) CreateReceipt(ctx context.Context, receipt *domain.SupplierReceipt) error {
	_, err := d.tx.ExecContext(ctx, `
		INSERT INTO supplier_receipts (id, reference, warehouse_id, supplier_id, variant_id,
			filled_received, empty_sent, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID, receipt.Reference, receipt.WarehouseID, receipt.SupplierID, receipt.VariantID,
		receipt.FilledReceived, receipt.EmptySent, receipt.Amount, receipt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert receipt: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) StockSnapshot(ctx context.Context, variantID string) (*domain.InventoryStock, error) {
	var snap domain.InventoryStock
	err := m.db.QueryRowContext(ctx, `
		SELECT variant_id, filled_qty, empty_qty, last_updated
		FROM inventory_stock WHERE variant_id = ?`, variantID,
	).Scan(&snap.VariantID, &snap.FilledQty, &snap.EmptyQty, &snap.LastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.InventoryStock{VariantID: variantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}
	return &snap, nil
}

func (m *MySQLAdapter) CustomerBalance(ctx context.Context, customerID, variantID string) (int, error) {
	var balance int
	err := m.db.QueryRowContext(ctx, `
		SELECT balance FROM customer_cylinder_balances
		WHERE customer_id = ? AND variant_id = ?`, customerID, variantID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query ledger balance: %w", err)
	}
	return balance, nil
}

func (m *MySQLAdapter) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := m.db.QueryRowContext(ctx, `
		SELECT current_balance FROM bank_accounts WHERE id = ?`, accountID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, &domain.NotFoundError{Entity: "bank account", ID: accountID}
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("query account balance: %w", err)
	}
	return balance, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
