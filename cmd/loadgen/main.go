package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gasdepot/backoffice/internal/adapter/storage"
	"github.com/gasdepot/backoffice/internal/core/domain"
	"github.com/gasdepot/backoffice/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Fires concurrent sales at the in-memory store and checks that exactly
// initialStock of them succeed with no oversell.
func main() {
	ctx := context.Background()

	store := storage.NewMemoryAdapter()
	store.SeedCustomer(domain.Customer{ID: "cust-1", Code: "C001", Name: "Load Test Customer", Active: true})
	store.SeedWarehouse(domain.Warehouse{ID: "wh-1", Code: "A", Name: "Main Warehouse", Active: true})
	store.SeedVariant(domain.CylinderVariant{ID: "var-14", Code: "14.2", Name: "14.2kg", Active: true})
	store.SeedStock("var-14", initialStock, 0)

	ledger := service.NewLedger(store)

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			_, err := ledger.RecordSale(ctx, service.SaleRequest{
				RequestID:   fmt.Sprintf("loadgen-%d", id),
				CustomerID:  "cust-1",
				WarehouseID: "wh-1",
				PaymentMode: domain.PaymentCredit,
				Lines: []service.SaleLineRequest{
					{VariantID: "var-14", QtyIssued: 1, UnitPrice: decimal.NewFromInt(1100)},
				},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case isInsufficientStock(err):
				soldOutCount.Add(1)
			default:
				log.Printf("request %d: unexpected error: %v", id, err)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	snap, err := store.StockSnapshot(ctx, "var-14")
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}

	log.Printf("requests=%d successes=%d sold_out=%d elapsed=%s", totalRequests, successCount.Load(), soldOutCount.Load(), elapsed)
	log.Printf("final stock: filled=%d empty=%d", snap.FilledQty, snap.EmptyQty)

	if successCount.Load() != initialStock || snap.FilledQty != 0 {
		log.Fatalf("oversell check FAILED: expected %d successes and 0 filled stock", initialStock)
	}
	log.Println("oversell check passed")
}

func isInsufficientStock(err error) bool {
	var stockErr *domain.InsufficientStockError
	return errors.As(err, &stockErr)
}
