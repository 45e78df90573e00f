package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/adapter/storage"
	"github.com/gasdepot/backoffice/internal/core/domain"
)

var testClock = func() time.Time {
	return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
}

func newTestStore() *storage.MemoryAdapter {
	store := storage.NewMemoryAdapter()
	store.SeedCustomer(domain.Customer{ID: "cust-1", Code: "C001", Name: "Sharma Traders", Active: true})
	store.SeedCustomer(domain.Customer{ID: "cust-inactive", Code: "C002", Name: "Closed Shop", Active: false})
	store.SeedWarehouse(domain.Warehouse{ID: "wh-a", Code: "A", Name: "Main Depot", Active: true})
	store.SeedWarehouse(domain.Warehouse{ID: "wh-b", Code: "B", Name: "North Depot", Active: true})
	store.SeedVariant(domain.CylinderVariant{ID: "var-14", Code: "14.2", Name: "14.2kg Domestic", Active: true})
	store.SeedVariant(domain.CylinderVariant{ID: "var-19", Code: "19", Name: "19kg Commercial", Active: true})
	store.SeedAccount(domain.BankAccount{ID: "acc-1", Code: "HDFC-01", Name: "Operating Account", Active: true})
	return store
}

func newTestLedger(store *storage.MemoryAdapter) *Ledger {
	return NewLedger(store, WithClock(testClock))
}

// Mock cache in the idempotency guard's shape.
type mockCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMockCache() *mockCache {
	return &mockCache{seen: make(map[string]bool)}
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func TestAllocateReference_Monotonic(t *testing.T) {
	ledger := newTestLedger(newTestStore())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ref, err := ledger.AllocateReference(ctx, "SAL-A-202601")
		if err != nil {
			t.Fatalf("allocation %d failed: %v", i, err)
		}
		expected := fmt.Sprintf("SAL-A-202601-%06d", i)
		if ref != expected {
			t.Errorf("expected %s, got %s", expected, ref)
		}
	}
}

func TestAllocateReference_ConcurrentNoGaps(t *testing.T) {
	ledger := newTestLedger(newTestStore())
	ctx := context.Background()

	const total = 50
	refs := make(chan string, total)
	var wg sync.WaitGroup

	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref, err := ledger.AllocateReference(ctx, "WT-A-B-202601")
			if err != nil {
				t.Errorf("allocation failed: %v", err)
				return
			}
			refs <- ref
		}()
	}
	wg.Wait()
	close(refs)

	seen := make(map[string]bool)
	for ref := range refs {
		if seen[ref] {
			t.Errorf("duplicate reference %s", ref)
		}
		seen[ref] = true
	}
	for i := 1; i <= total; i++ {
		expected := fmt.Sprintf("WT-A-B-202601-%06d", i)
		if !seen[expected] {
			t.Errorf("missing reference %s", expected)
		}
	}
}

func TestAllocateReference_IndependentKeys(t *testing.T) {
	ledger := newTestLedger(newTestStore())
	ctx := context.Background()

	ref1, err := ledger.AllocateReference(ctx, "SAL-A-202601")
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	ref2, err := ledger.AllocateReference(ctx, "SAL-B-202601")
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}

	if ref1 != "SAL-A-202601-000001" {
		t.Errorf("unexpected reference %s", ref1)
	}
	if ref2 != "SAL-B-202601-000001" {
		t.Errorf("keys must count independently, got %s", ref2)
	}
}

func saleRequest(lines ...SaleLineRequest) SaleRequest {
	return SaleRequest{
		CustomerID:  "cust-1",
		WarehouseID: "wh-a",
		PaymentMode: domain.PaymentCredit,
		Lines:       lines,
	}
}

func TestRecordSale_Success(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 100, 10)
	ledger := newTestLedger(store)
	ctx := context.Background()

	req := saleRequest(SaleLineRequest{
		VariantID:        "var-14",
		QtyIssued:        5,
		QtyEmptyReceived: 3,
		UnitPrice:        decimal.NewFromInt(1100),
	})
	req.AmountReceived = decimal.NewFromInt(5500)
	req.PaymentMode = domain.PaymentCash
	req.AccountID = "acc-1"

	res, err := ledger.RecordSale(ctx, req)
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	if res.Reference != "SAL-A-202601-000001" {
		t.Errorf("unexpected reference %s", res.Reference)
	}
	if res.Sale.TotalAmount.Cmp(decimal.NewFromInt(5500)) != 0 {
		t.Errorf("expected total 5500, got %s", res.Sale.TotalAmount)
	}

	snap, _ := store.StockSnapshot(ctx, "var-14")
	if snap.FilledQty != 95 {
		t.Errorf("expected filled 95, got %d", snap.FilledQty)
	}
	if snap.EmptyQty != 13 {
		t.Errorf("expected empty 13, got %d", snap.EmptyQty)
	}

	if len(res.LedgerEntries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(res.LedgerEntries))
	}
	if res.LedgerEntries[0].Balance != 2 {
		t.Errorf("expected cylinder balance 2 (5 out, 3 in), got %d", res.LedgerEntries[0].Balance)
	}

	if res.BankEntry == nil {
		t.Fatal("expected a bank ledger entry")
	}
	if res.BankEntry.BalanceAfter.Cmp(decimal.NewFromInt(5500)) != 0 {
		t.Errorf("expected bank balance 5500, got %s", res.BankEntry.BalanceAfter)
	}
	accountBalance, _ := store.AccountBalance(ctx, "acc-1")
	if accountBalance.Cmp(res.BankEntry.BalanceAfter) != 0 {
		t.Errorf("denormalized balance %s diverged from ledger %s", accountBalance, res.BankEntry.BalanceAfter)
	}

	sale, ok := store.Sale(res.Sale.ID)
	if !ok {
		t.Fatal("sale document not persisted")
	}
	if len(sale.Lines) != 1 || sale.Reference != res.Reference {
		t.Errorf("persisted sale incomplete: %+v", sale)
	}
}

func TestRecordSale_MultiLine(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 50, 0)
	store.SeedStock("var-19", 30, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	res, err := ledger.RecordSale(ctx, saleRequest(
		SaleLineRequest{VariantID: "var-19", QtyIssued: 2, UnitPrice: decimal.NewFromInt(2000)},
		SaleLineRequest{VariantID: "var-14", QtyIssued: 4, QtyEmptyReceived: 4, UnitPrice: decimal.NewFromInt(1000)},
	))
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	if res.Sale.TotalAmount.Cmp(decimal.NewFromInt(8000)) != 0 {
		t.Errorf("expected total 8000, got %s", res.Sale.TotalAmount)
	}
	if len(res.LedgerEntries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(res.LedgerEntries))
	}

	snap14, _ := store.StockSnapshot(ctx, "var-14")
	if snap14.FilledQty != 46 || snap14.EmptyQty != 4 {
		t.Errorf("var-14 stock wrong: filled=%d empty=%d", snap14.FilledQty, snap14.EmptyQty)
	}
	snap19, _ := store.StockSnapshot(ctx, "var-19")
	if snap19.FilledQty != 28 {
		t.Errorf("var-19 stock wrong: filled=%d", snap19.FilledQty)
	}
}

func TestRecordSale_InsufficientStock_NoPartialWrites(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 50, 0)
	store.SeedStock("var-19", 1, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	_, err := ledger.RecordSale(ctx, saleRequest(
		SaleLineRequest{VariantID: "var-14", QtyIssued: 10, UnitPrice: decimal.NewFromInt(1000)},
		SaleLineRequest{VariantID: "var-19", QtyIssued: 2, UnitPrice: decimal.NewFromInt(2000)},
	))

	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.VariantID != "var-19" {
		t.Errorf("expected failure on var-19, got %s", stockErr.VariantID)
	}

	// The whole unit must roll back, including the var-14 decrement that
	// succeeded before var-19 failed.
	snap14, _ := store.StockSnapshot(ctx, "var-14")
	if snap14.FilledQty != 50 {
		t.Errorf("var-14 stock mutated by rejected sale: filled=%d", snap14.FilledQty)
	}
	balance, _ := store.CustomerBalance(ctx, "cust-1", "var-14")
	if balance != 0 {
		t.Errorf("customer ledger mutated by rejected sale: balance=%d", balance)
	}
	if entries := store.CustomerLedgerEntries("cust-1", "var-14"); len(entries) != 0 {
		t.Errorf("expected no ledger entries, got %d", len(entries))
	}
}

func TestRecordSale_ConcurrentNoOversell(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 5, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	var successCount, failCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.RecordSale(ctx, saleRequest(
				SaleLineRequest{VariantID: "var-14", QtyIssued: 3, UnitPrice: decimal.NewFromInt(1000)},
			))
			if err == nil {
				successCount.Add(1)
				return
			}
			var stockErr *domain.InsufficientStockError
			if errors.As(err, &stockErr) {
				failCount.Add(1)
			} else {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != 1 || failCount.Load() != 1 {
		t.Errorf("expected exactly one success and one rejection, got %d/%d",
			successCount.Load(), failCount.Load())
	}
	snap, _ := store.StockSnapshot(ctx, "var-14")
	if snap.FilledQty != 2 {
		t.Errorf("expected final stock 2, got %d", snap.FilledQty)
	}
}

func TestRecordSale_BalanceReadbackMatches(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 20, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	res, err := ledger.RecordSale(ctx, saleRequest(
		SaleLineRequest{VariantID: "var-14", QtyIssued: 7, QtyEmptyReceived: 2, UnitPrice: decimal.NewFromInt(1000)},
	))
	if err != nil {
		t.Fatalf("RecordSale failed: %v", err)
	}

	reread, err := ledger.CustomerBalance(ctx, "cust-1", "var-14")
	if err != nil {
		t.Fatalf("CustomerBalance failed: %v", err)
	}
	if reread != res.LedgerEntries[0].Balance {
		t.Errorf("fresh read %d differs from inline balance %d", reread, res.LedgerEntries[0].Balance)
	}
}

func TestRecordSale_DuplicateRequest(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 20, 0)
	ledger := NewLedger(store, WithClock(testClock), WithCache(newMockCache()))
	ctx := context.Background()

	req := saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 1, UnitPrice: decimal.NewFromInt(1000)})
	req.RequestID = "req-1"

	if _, err := ledger.RecordSale(ctx, req); err != nil {
		t.Fatalf("first sale failed: %v", err)
	}

	_, err := ledger.RecordSale(ctx, req)
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got: %v", err)
	}

	// Stock decremented exactly once.
	snap, _ := store.StockSnapshot(ctx, "var-14")
	if snap.FilledQty != 19 {
		t.Errorf("expected stock 19, got %d", snap.FilledQty)
	}
}

func TestRecordSale_Validation(t *testing.T) {
	ledger := newTestLedger(newTestStore())
	ctx := context.Background()

	cases := []struct {
		name string
		req  SaleRequest
	}{
		{"no lines", saleRequest()},
		{"zero qty", saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 0})},
		{"negative empties", saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 1, QtyEmptyReceived: -1})},
		{"duplicate variant", saleRequest(
			SaleLineRequest{VariantID: "var-14", QtyIssued: 1},
			SaleLineRequest{VariantID: "var-14", QtyIssued: 1},
		)},
		{"bad payment mode", func() SaleRequest {
			r := saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 1})
			r.PaymentMode = "BARTER"
			return r
		}()},
		{"payment without account", func() SaleRequest {
			r := saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 1})
			r.AmountReceived = decimal.NewFromInt(100)
			return r
		}()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ledger.RecordSale(ctx, tc.req)
			var validationErr *domain.ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("expected ValidationError, got: %v", err)
			}
		})
	}
}

func TestRecordSale_CustomerNotFound(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 10, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	req := saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 1, UnitPrice: decimal.NewFromInt(1000)})
	req.CustomerID = "cust-missing"

	_, err := ledger.RecordSale(ctx, req)
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got: %v", err)
	}
	if notFound.Entity != "customer" {
		t.Errorf("expected customer not found, got %s", notFound.Entity)
	}
}

func TestRecordSale_InactiveCustomer(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 10, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	req := saleRequest(SaleLineRequest{VariantID: "var-14", QtyIssued: 1, UnitPrice: decimal.NewFromInt(1000)})
	req.CustomerID = "cust-inactive"

	_, err := ledger.RecordSale(ctx, req)
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected ValidationError for inactive customer, got: %v", err)
	}
}

func TestCustomerLedger_BalanceSeries(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 100, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	// Three sales then a return: balances 4, 9, 9+6-1=14, then 14-5=9.
	issued := []int{4, 5, 6}
	empties := []int{0, 0, 1}
	want := []int{4, 9, 14}
	for i := range issued {
		res, err := ledger.RecordSale(ctx, saleRequest(SaleLineRequest{
			VariantID:        "var-14",
			QtyIssued:        issued[i],
			QtyEmptyReceived: empties[i],
			UnitPrice:        decimal.NewFromInt(1000),
		}))
		if err != nil {
			t.Fatalf("sale %d failed: %v", i, err)
		}
		if res.LedgerEntries[0].Balance != want[i] {
			t.Errorf("sale %d: expected balance %d, got %d", i, want[i], res.LedgerEntries[0].Balance)
		}
	}

	res, err := ledger.RecordEmptyReturn(ctx, EmptyReturnRequest{
		CustomerID:  "cust-1",
		WarehouseID: "wh-a",
		VariantID:   "var-14",
		EmptyIn:     5,
	})
	if err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if res.Entry.Balance != 9 {
		t.Errorf("expected balance 9 after return, got %d", res.Entry.Balance)
	}

	entries := store.CustomerLedgerEntries("cust-1", "var-14")
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	sum := 0
	for i, e := range entries {
		sum += e.FilledOut - e.EmptyIn
		if e.Balance != sum {
			t.Errorf("entry %d: balance %d does not equal running sum %d", i, e.Balance, sum)
		}
	}
}

func TestRecordEmptyReturn_Success(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 50, 5)
	ledger := newTestLedger(store)
	ctx := context.Background()

	if _, err := ledger.RecordSale(ctx, saleRequest(
		SaleLineRequest{VariantID: "var-14", QtyIssued: 8, UnitPrice: decimal.NewFromInt(1000)},
	)); err != nil {
		t.Fatalf("setup sale failed: %v", err)
	}

	res, err := ledger.RecordEmptyReturn(ctx, EmptyReturnRequest{
		CustomerID:     "cust-1",
		WarehouseID:    "wh-a",
		VariantID:      "var-14",
		EmptyIn:        3,
		AmountReceived: decimal.NewFromInt(500),
		AccountID:      "acc-1",
	})
	if err != nil {
		t.Fatalf("RecordEmptyReturn failed: %v", err)
	}

	if res.Entry.Balance != 5 {
		t.Errorf("expected balance 5, got %d", res.Entry.Balance)
	}
	if res.Entry.FilledOut != 0 {
		t.Errorf("return must not issue cylinders, filledOut=%d", res.Entry.FilledOut)
	}
	if res.Reference != "RET-A-202601-000001" {
		t.Errorf("unexpected reference %s", res.Reference)
	}
	if res.Stock.EmptyQty != 8 {
		t.Errorf("expected empty stock 8, got %d", res.Stock.EmptyQty)
	}
	if res.BankEntry == nil {
		t.Fatal("expected payment entry")
	}
	if res.BankEntry.BalanceAfter.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Errorf("expected bank balance 500, got %s", res.BankEntry.BalanceAfter)
	}
}

func TestRecordEmptyReturn_ExceedsOutstanding(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 50, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	if _, err := ledger.RecordSale(ctx, saleRequest(
		SaleLineRequest{VariantID: "var-14", QtyIssued: 2, UnitPrice: decimal.NewFromInt(1000)},
	)); err != nil {
		t.Fatalf("setup sale failed: %v", err)
	}

	_, err := ledger.RecordEmptyReturn(ctx, EmptyReturnRequest{
		CustomerID:  "cust-1",
		WarehouseID: "wh-a",
		VariantID:   "var-14",
		EmptyIn:     3,
	})
	var returnErr *domain.InvalidReturnError
	if !errors.As(err, &returnErr) {
		t.Fatalf("expected InvalidReturnError, got: %v", err)
	}
	if returnErr.Outstanding != 2 {
		t.Errorf("expected outstanding 2, got %d", returnErr.Outstanding)
	}

	// Rejected return must not touch stock.
	snap, _ := store.StockSnapshot(ctx, "var-14")
	if snap.EmptyQty != 0 {
		t.Errorf("empty stock mutated by rejected return: %d", snap.EmptyQty)
	}
}

func TestRecordTransfer_Success(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 40, 15)
	ledger := newTestLedger(store)
	ctx := context.Background()

	res, err := ledger.RecordTransfer(ctx, TransferRequest{
		FromWarehouseID: "wh-a",
		ToWarehouseID:   "wh-b",
		VariantID:       "var-14",
		FilledQty:       10,
		EmptyQty:        5,
	})
	if err != nil {
		t.Fatalf("RecordTransfer failed: %v", err)
	}

	if res.Reference != "WT-A-B-202601-000001" {
		t.Errorf("unexpected reference %s", res.Reference)
	}
	if res.Transfer.FilledQty != 10 || res.Transfer.EmptyQty != 5 {
		t.Errorf("transfer quantities wrong: %+v", res.Transfer)
	}

	// Stock is variant-global; a transfer records the movement only.
	snap, _ := store.StockSnapshot(ctx, "var-14")
	if snap.FilledQty != 40 || snap.EmptyQty != 15 {
		t.Errorf("global stock must be unchanged, got filled=%d empty=%d", snap.FilledQty, snap.EmptyQty)
	}
}

func TestRecordTransfer_InsufficientStock(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 4, 0)
	ledger := newTestLedger(store)
	ctx := context.Background()

	_, err := ledger.RecordTransfer(ctx, TransferRequest{
		FromWarehouseID: "wh-a",
		ToWarehouseID:   "wh-b",
		VariantID:       "var-14",
		FilledQty:       10,
	})
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.Available != 4 {
		t.Errorf("expected available 4, got %d", stockErr.Available)
	}
}

func TestRecordTransfer_SameWarehouse(t *testing.T) {
	ledger := newTestLedger(newTestStore())

	_, err := ledger.RecordTransfer(context.Background(), TransferRequest{
		FromWarehouseID: "wh-a",
		ToWarehouseID:   "wh-a",
		VariantID:       "var-14",
		FilledQty:       1,
	})
	var validationErr *domain.ValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("expected ValidationError, got: %v", err)
	}
}

func TestRecordSupplierReceipt_Success(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 10, 30)
	ledger := newTestLedger(store)
	ctx := context.Background()

	res, err := ledger.RecordSupplierReceipt(ctx, ReceiptRequest{
		WarehouseID:    "wh-a",
		SupplierID:     "sup-ioc",
		VariantID:      "var-14",
		FilledReceived: 25,
		EmptySent:      25,
		Amount:         decimal.NewFromInt(12500),
	})
	if err != nil {
		t.Fatalf("RecordSupplierReceipt failed: %v", err)
	}

	if res.Reference != "SR-A-202601-000001" {
		t.Errorf("unexpected reference %s", res.Reference)
	}
	if res.Stock.FilledQty != 35 {
		t.Errorf("expected filled 35, got %d", res.Stock.FilledQty)
	}
	if res.Stock.EmptyQty != 5 {
		t.Errorf("expected empty 5, got %d", res.Stock.EmptyQty)
	}
}

func TestRecordSupplierReceipt_InsufficientEmpties(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 10, 3)
	ledger := newTestLedger(store)
	ctx := context.Background()

	_, err := ledger.RecordSupplierReceipt(ctx, ReceiptRequest{
		WarehouseID:    "wh-a",
		SupplierID:     "sup-ioc",
		VariantID:      "var-14",
		FilledReceived: 10,
		EmptySent:      5,
		Amount:         decimal.NewFromInt(5000),
	})
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if stockErr.State != domain.CylinderEmpty {
		t.Errorf("expected empty-state failure, got %s", stockErr.State)
	}

	// Rejected receipt must not apply the filled increment either.
	snap, _ := store.StockSnapshot(ctx, "var-14")
	if snap.FilledQty != 10 || snap.EmptyQty != 3 {
		t.Errorf("stock mutated by rejected receipt: filled=%d empty=%d", snap.FilledQty, snap.EmptyQty)
	}
}

func TestRecordBankTransaction_DepositWithdrawal(t *testing.T) {
	store := newTestStore()
	ledger := newTestLedger(store)
	ctx := context.Background()

	deposit, err := ledger.RecordBankTransaction(ctx, BankTxRequest{
		AccountID: "acc-1",
		Type:      domain.BankTxDeposit,
		Amount:    decimal.NewFromInt(10000),
		Reference: "opening float",
	})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if deposit.Balance.Cmp(decimal.NewFromInt(10000)) != 0 {
		t.Errorf("expected balance 10000, got %s", deposit.Balance)
	}

	withdrawal, err := ledger.RecordBankTransaction(ctx, BankTxRequest{
		AccountID: "acc-1",
		Type:      domain.BankTxWithdrawal,
		Amount:    decimal.NewFromInt(2500),
	})
	if err != nil {
		t.Fatalf("withdrawal failed: %v", err)
	}
	if withdrawal.Balance.Cmp(decimal.NewFromInt(7500)) != 0 {
		t.Errorf("expected balance 7500, got %s", withdrawal.Balance)
	}

	// Denormalized balance tracks the latest ledger row.
	accountBalance, _ := store.AccountBalance(ctx, "acc-1")
	if accountBalance.Cmp(withdrawal.Balance) != 0 {
		t.Errorf("denormalized balance %s diverged from %s", accountBalance, withdrawal.Balance)
	}

	entries := store.BankLedgerEntries("acc-1")
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].BalanceAfter.Cmp(entries[0].BalanceAfter.Sub(decimal.NewFromInt(2500))) != 0 {
		t.Errorf("balance chain broken: %s then %s", entries[0].BalanceAfter, entries[1].BalanceAfter)
	}
}

func TestRecordBankTransaction_InsufficientBalance(t *testing.T) {
	ledger := newTestLedger(newTestStore())
	ctx := context.Background()

	_, err := ledger.RecordBankTransaction(ctx, BankTxRequest{
		AccountID: "acc-1",
		Type:      domain.BankTxWithdrawal,
		Amount:    decimal.NewFromInt(1),
	})
	var balanceErr *domain.InsufficientBalanceError
	if !errors.As(err, &balanceErr) {
		t.Fatalf("expected InsufficientBalanceError, got: %v", err)
	}
}

func TestRecordBankTransaction_SignedAdjustment(t *testing.T) {
	ledger := newTestLedger(newTestStore())
	ctx := context.Background()

	if _, err := ledger.RecordBankTransaction(ctx, BankTxRequest{
		AccountID: "acc-1",
		Type:      domain.BankTxDeposit,
		Amount:    decimal.NewFromInt(1000),
	}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	res, err := ledger.RecordBankTransaction(ctx, BankTxRequest{
		AccountID: "acc-1",
		Type:      domain.BankTxAdjustment,
		Amount:    decimal.NewFromInt(-300),
		Reference: "bank charges correction",
	})
	if err != nil {
		t.Fatalf("adjustment failed: %v", err)
	}
	if res.Balance.Cmp(decimal.NewFromInt(700)) != 0 {
		t.Errorf("expected balance 700, got %s", res.Balance)
	}

	_, err = ledger.RecordBankTransaction(ctx, BankTxRequest{
		AccountID: "acc-1",
		Type:      domain.BankTxAdjustment,
		Amount:    decimal.NewFromInt(-800),
	})
	var balanceErr *domain.InsufficientBalanceError
	if !errors.As(err, &balanceErr) {
		t.Errorf("expected InsufficientBalanceError on overdraw adjustment, got: %v", err)
	}
}

func TestConcurrentMixedTransactions(t *testing.T) {
	store := newTestStore()
	store.SeedStock("var-14", 200, 50)
	ledger := newTestLedger(store)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var salesOK atomic.Int32

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if id%2 == 0 {
				if _, err := ledger.RecordSale(ctx, saleRequest(SaleLineRequest{
					VariantID: "var-14", QtyIssued: 2, QtyEmptyReceived: 1, UnitPrice: decimal.NewFromInt(1000),
				})); err == nil {
					salesOK.Add(1)
				}
			} else {
				ledger.RecordSupplierReceipt(ctx, ReceiptRequest{
					WarehouseID: "wh-a", SupplierID: "sup-1", VariantID: "var-14",
					FilledReceived: 1, EmptySent: 1, Amount: decimal.NewFromInt(500),
				})
			}
		}(i)
	}
	wg.Wait()

	// Stock must reconcile: every unit either fully applied or not at all.
	snap, _ := store.StockSnapshot(ctx, "var-14")
	balance, _ := store.CustomerBalance(ctx, "cust-1", "var-14")
	entries := store.CustomerLedgerEntries("cust-1", "var-14")

	if int(salesOK.Load()) != len(entries) {
		t.Errorf("%d sales succeeded but %d ledger entries exist", salesOK.Load(), len(entries))
	}
	if balance != int(salesOK.Load()) {
		// Each sale issues 2 and takes 1 back, net +1 owed.
		t.Errorf("expected balance %d, got %d", salesOK.Load(), balance)
	}
	if snap.FilledQty < 0 || snap.EmptyQty < 0 {
		t.Errorf("negative stock observed: filled=%d empty=%d", snap.FilledQty, snap.EmptyQty)
	}
}
