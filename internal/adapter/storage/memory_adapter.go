package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/core/domain"
	"github.com/gasdepot/backoffice/internal/port"
)

// MemoryAdapter implements port.Store in process memory. One mutex is held
// for the whole unit of work, which makes every unit atomic and serialised;
// writes are staged on a copy of the state and swapped in on commit, so a
// failing unit leaves no partial state. Used by unit tests and the load
// generator.
type MemoryAdapter struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	customers   map[string]domain.Customer
	warehouses  map[string]domain.Warehouse
	variants    map[string]domain.CylinderVariant
	accounts    map[string]domain.BankAccount
	stock       map[string]domain.InventoryStock
	cylBalances map[string]int
	cylLedger   []domain.CustomerCylinderLedgerEntry
	bankLedger  []domain.BankLedgerEntry
	sequences   map[string]int64
	sales       map[string]domain.Sale
	transfers   map[string]domain.WarehouseTransfer
	receipts    map[string]domain.SupplierReceipt
}

func newMemState() *memState {
	return &memState{
		customers:   make(map[string]domain.Customer),
		warehouses:  make(map[string]domain.Warehouse),
		variants:    make(map[string]domain.CylinderVariant),
		accounts:    make(map[string]domain.BankAccount),
		stock:       make(map[string]domain.InventoryStock),
		cylBalances: make(map[string]int),
		sequences:   make(map[string]int64),
		sales:       make(map[string]domain.Sale),
		transfers:   make(map[string]domain.WarehouseTransfer),
		receipts:    make(map[string]domain.SupplierReceipt),
	}
}

func (s *memState) clone() *memState {
	next := &memState{
		customers:   make(map[string]domain.Customer, len(s.customers)),
		warehouses:  make(map[string]domain.Warehouse, len(s.warehouses)),
		variants:    make(map[string]domain.CylinderVariant, len(s.variants)),
		accounts:    make(map[string]domain.BankAccount, len(s.accounts)),
		stock:       make(map[string]domain.InventoryStock, len(s.stock)),
		cylBalances: make(map[string]int, len(s.cylBalances)),
		cylLedger:   make([]domain.CustomerCylinderLedgerEntry, len(s.cylLedger)),
		bankLedger:  make([]domain.BankLedgerEntry, len(s.bankLedger)),
		sequences:   make(map[string]int64, len(s.sequences)),
		sales:       make(map[string]domain.Sale, len(s.sales)),
		transfers:   make(map[string]domain.WarehouseTransfer, len(s.transfers)),
		receipts:    make(map[string]domain.SupplierReceipt, len(s.receipts)),
	}
	for k, v := range s.customers {
		next.customers[k] = v
	}
	for k, v := range s.warehouses {
		next.warehouses[k] = v
	}
	for k, v := range s.variants {
		next.variants[k] = v
	}
	for k, v := range s.accounts {
		next.accounts[k] = v
	}
	for k, v := range s.stock {
		next.stock[k] = v
	}
	for k, v := range s.cylBalances {
		next.cylBalances[k] = v
	}
	copy(next.cylLedger, s.cylLedger)
	copy(next.bankLedger, s.bankLedger)
	for k, v := range s.sequences {
		next.sequences[k] = v
	}
	for k, v := range s.sales {
		sale := v
		sale.Lines = append([]domain.SaleLine(nil), v.Lines...)
		next.sales[k] = sale
	}
	for k, v := range s.transfers {
		next.transfers[k] = v
	}
	for k, v := range s.receipts {
		next.receipts[k] = v
	}
	return next
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: newMemState()}
}

func (m *MemoryAdapter) Execute(ctx context.Context, fn func(ops port.TxOps) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &domain.ConcurrencyConflictError{Resource: "store lock", Err: err}
	}

	staged := m.state.clone()
	if err := fn(&memTxOps{state: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// Seed helpers, outside any unit of work.

func (m *MemoryAdapter) SeedCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.customers[c.ID] = c
}

func (m *MemoryAdapter) SeedWarehouse(w domain.Warehouse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.warehouses[w.ID] = w
}

func (m *MemoryAdapter) SeedVariant(v domain.CylinderVariant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.variants[v.ID] = v
}

func (m *MemoryAdapter) SeedAccount(a domain.BankAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.accounts[a.ID] = a
}

func (m *MemoryAdapter) SeedStock(variantID string, filled, empty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.stock[variantID] = domain.InventoryStock{
		VariantID:   variantID,
		FilledQty:   filled,
		EmptyQty:    empty,
		LastUpdated: time.Now(),
	}
}

// Ledger reads used by tests.

func (m *MemoryAdapter) CustomerLedgerEntries(customerID, variantID string) []domain.CustomerCylinderLedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []domain.CustomerCylinderLedgerEntry
	for _, e := range m.state.cylLedger {
		if e.CustomerID == customerID && e.VariantID == variantID {
			entries = append(entries, e)
		}
	}
	return entries
}

func (m *MemoryAdapter) BankLedgerEntries(accountID string) []domain.BankLedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var entries []domain.BankLedgerEntry
	for _, e := range m.state.bankLedger {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries
}

func (m *MemoryAdapter) Sale(id string) (domain.Sale, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.state.sales[id]
	return sale, ok
}

func (m *MemoryAdapter) StockSnapshot(ctx context.Context, variantID string) (*domain.InventoryStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.state.stock[variantID]
	if !ok {
		return &domain.InventoryStock{VariantID: variantID}, nil
	}
	return &snap, nil
}

func (m *MemoryAdapter) CustomerBalance(ctx context.Context, customerID, variantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.cylBalances[balanceKey(customerID, variantID)], nil
}

func (m *MemoryAdapter) AccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.state.accounts[accountID]
	if !ok {
		return decimal.Zero, &domain.NotFoundError{Entity: "bank account", ID: accountID}
	}
	return account.CurrentBalance, nil
}

func balanceKey(customerID, variantID string) string {
	return customerID + "|" + variantID
}

type memTxOps struct {
	state *memState
}

func (o *memTxOps) Master() port.MasterRepository                 { return (*memMaster)(o) }
func (o *memTxOps) Stock() port.StockRepository                   { return (*memStock)(o) }
func (o *memTxOps) CustomerLedger() port.CustomerLedgerRepository { return (*memCustomerLedger)(o) }
func (o *memTxOps) BankLedger() port.BankLedgerRepository         { return (*memBankLedger)(o) }
func (o *memTxOps) Sequences() port.SequenceRepository            { return (*memSequences)(o) }
func (o *memTxOps) Documents() port.DocumentRepository            { return (*memDocuments)(o) }

type memMaster memTxOps

func (m *memMaster) CustomerForUpdate(ctx context.Context, id string) (*domain.Customer, error) {
	c, ok := m.state.customers[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "customer", ID: id}
	}
	return &c, nil
}

func (m *memMaster) Warehouse(ctx context.Context, id string) (*domain.Warehouse, error) {
	w, ok := m.state.warehouses[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "warehouse", ID: id}
	}
	return &w, nil
}

func (m *memMaster) Variant(ctx context.Context, id string) (*domain.CylinderVariant, error) {
	v, ok := m.state.variants[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "variant", ID: id}
	}
	return &v, nil
}

func (m *memMaster) BankAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	a, ok := m.state.accounts[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "bank account", ID: id}
	}
	return &a, nil
}

type memStock memTxOps

func (s *memStock) GetForUpdate(ctx context.Context, variantID string) (*domain.InventoryStock, error) {
	snap, ok := s.state.stock[variantID]
	if !ok {
		snap = domain.InventoryStock{VariantID: variantID, LastUpdated: time.Now()}
		s.state.stock[variantID] = snap
	}
	return &snap, nil
}

func (s *memStock) Adjust(ctx context.Context, variantID string, deltaFilled, deltaEmpty int) (*domain.InventoryStock, error) {
	snap, err := s.GetForUpdate(ctx, variantID)
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

	next := domain.InventoryStock{
		VariantID:   variantID,
		FilledQty:   filled,
		EmptyQty:    empty,
		LastUpdated: time.Now(),
	}
	s.state.stock[variantID] = next
	return &next, nil
}

type memCustomerLedger memTxOps

func (c *memCustomerLedger) Balance(ctx context.Context, customerID, variantID string) (int, error) {
	return c.state.cylBalances[balanceKey(customerID, variantID)], nil
}

func (c *memCustomerLedger) Append(ctx context.Context, customerID, variantID string, date time.Time,
	refType domain.CustomerLedgerRefType, refID string, filledOut, emptyIn int) (*domain.CustomerCylinderLedgerEntry, error) {

	prior := c.state.cylBalances[balanceKey(customerID, variantID)]
	balance := prior + filledOut - emptyIn
	if balance < 0 {
		return nil, &domain.InvalidReturnError{
			CustomerID:  customerID,
			VariantID:   variantID,
			EmptyIn:     emptyIn,
			Outstanding: prior + filledOut,
		}
	}

	entry := domain.CustomerCylinderLedgerEntry{
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
	c.state.cylLedger = append(c.state.cylLedger, entry)
	c.state.cylBalances[balanceKey(customerID, variantID)] = balance
	return &entry, nil
}

type memBankLedger memTxOps

func (b *memBankLedger) Append(ctx context.Context, accountID string, txType domain.BankTxType,
	amount decimal.Decimal, saleRef, reference string) (*domain.BankLedgerEntry, error) {

	account, ok := b.state.accounts[accountID]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "bank account", ID: accountID}
	}

	after := account.CurrentBalance.Add(domain.SignedDelta(txType, amount))
	if after.IsNegative() {
		return nil, &domain.InsufficientBalanceError{
			AccountID: accountID,
			Amount:    amount,
			Balance:   account.CurrentBalance,
		}
	}

	entry := domain.BankLedgerEntry{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: after,
		SaleRef:      saleRef,
		Reference:    reference,
		CreatedAt:    time.Now(),
	}
	b.state.bankLedger = append(b.state.bankLedger, entry)

	account.CurrentBalance = after
	account.Version++
	account.UpdatedAt = entry.CreatedAt
	b.state.accounts[accountID] = account
	return &entry, nil
}

type memSequences memTxOps

func (s *memSequences) Next(ctx context.Context, key string) (int64, error) {
	value := s.state.sequences[key] + 1
	s.state.sequences[key] = value
	return value, nil
}

type memDocuments memTxOps

func (d *memDocuments) CreateSale(ctx context.Context, sale *domain.Sale) error {
	if _, exists := d.state.sales[sale.ID]; exists {
		return fmt.Errorf("sale %s already exists", sale.ID)
	}
	stored := *sale
	stored.Lines = append([]domain.SaleLine(nil), sale.Lines...)
	d.state.sales[sale.ID] = stored
	return nil
}

func (d *memDocuments) CreateTransfer(ctx context.Context, transfer *domain.WarehouseTransfer) error {
	if _, exists := d.state.transfers[transfer.ID]; exists {
		return fmt.Errorf("transfer %s already exists", transfer.ID)
	}
	d.state.transfers[transfer.ID] = *transfer
	return nil
}

func (d *memDocuments) CreateReceipt(ctx context.Context, receipt *domain.SupplierReceipt) error {
	if _, exists := d.state.receipts[receipt.ID]; exists {
		return fmt.Errorf("receipt %s already exists", receipt.ID)
	}
	d.state.receipts[receipt.ID] = *receipt
	return nil
}
