package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/container-inventory/internal/app"
	"github.com/rl1809/container-inventory/internal/config"
	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/core/service"
	"github.com/rl1809/container-inventory/internal/logger"
)

const (
	warehouseID   = "stress-wh"
	containerID   = "stress-container"
	skuCode       = "stress-sku"
	maxCapacity   = 200
	workers       = 40
	itemsPerCall  = 5
	maxAttempts   = 20
	retryInterval = 10 * time.Millisecond
)

// Runs concurrent inbound calls against one container, then ships everything
// out again, and checks that the capacity counter matches the item count.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	ctx := context.Background()

	engine, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build engine")
	}
	defer engine.Close()
	svc := engine.Service

	run := uuid.NewString()[:8]
	container := containerID + "-" + run
	if _, err := svc.InitializeCapacity(ctx, warehouseID, container); err != nil {
		log.Fatal().Err(err).Msg("initialize capacity")
	}

	batches := make([][]string, workers)
	for w := range batches {
		ids := make([]string, itemsPerCall)
		for i := range ids {
			ids[i] = fmt.Sprintf("%s-w%d-i%d", run, w, i)
		}
		batches[w] = ids
		if _, err := svc.Add(ctx, service.AddRequest{
			WarehouseID: warehouseID,
			CompanyID:   "stress",
			SKUCode:     skuCode,
			SKUCategory: "stress",
			SKUType:     "stress",
			ItemIDs:     ids,
		}); err != nil {
			log.Fatal().Err(err).Msg("add items")
		}
	}

	var inbound, conflicts, failed atomic.Int32
	start := time.Now()
	parallel(batches, func(ids []string) {
		err := retry(func() error {
			done, err := svc.Inbound(ctx, service.InboundRequest{
				WarehouseID: warehouseID,
				ContainerID: container,
				InboundID:   "stress-in-" + run,
				SKUCode:     skuCode,
				MaxCapacity: maxCapacity,
				ItemIDs:     ids,
			})
			inbound.Add(int32(len(done)))
			return err
		}, &conflicts)
		if err != nil {
			failed.Add(1)
			log.Error().Err(err).Msg("inbound gave up")
		}
	})
	inboundTook := time.Since(start)

	afterInbound, _ := svc.GetCapacity(ctx, warehouseID, container)

	var outbound atomic.Int32
	start = time.Now()
	parallel(batches, func(ids []string) {
		err := retry(func() error {
			pending, err := svc.PendingItems(ctx, warehouseID, ids, domain.InventoryStatusOutbound)
			if err != nil || len(pending) == 0 {
				return err
			}
			done, err := svc.Outbound(ctx, service.OutboundRequest{
				WarehouseID: warehouseID,
				ContainerID: container,
				OutboundID:  "stress-out-" + run,
				OrderID:     "stress-order-" + run,
				SKUCode:     skuCode,
				MaxCapacity: maxCapacity,
				ItemIDs:     pending,
			})
			outbound.Add(int32(len(done)))
			return err
		}, &conflicts)
		if err != nil {
			failed.Add(1)
			log.Error().Err(err).Msg("outbound gave up")
		}
	})
	outboundTook := time.Since(start)

	final, _ := svc.GetCapacity(ctx, warehouseID, container)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store / Lock:      %s / %s\n", cfg.Store.Backend, cfg.Lock.Mode)
	fmt.Printf("Workers:           %d x %d items\n", workers, itemsPerCall)
	fmt.Printf("Inbound items:     %d in %v\n", inbound.Load(), inboundTook)
	fmt.Printf("Outbound items:    %d in %v\n", outbound.Load(), outboundTook)
	fmt.Printf("Conflicts retried: %d\n", conflicts.Load())
	fmt.Printf("Calls given up:    %d\n", failed.Load())
	fmt.Println("==========================================")

	want := int32(workers * itemsPerCall)
	if afterInbound != nil && afterInbound.CurrentCapacity == int(want) && inbound.Load() == want {
		fmt.Printf("PASS: capacity %d after inbound\n", want)
	} else {
		fmt.Printf("FAIL: expected capacity %d after inbound, got %+v\n", want, afterInbound)
	}
	if final != nil && final.CurrentCapacity == 0 && final.Status == domain.ContainerStatusAvailable {
		fmt.Println("PASS: container emptied")
	} else {
		fmt.Printf("FAIL: expected an empty Available container, got %+v\n", final)
	}
}

func parallel(batches [][]string, fn func([]string)) {
	var wg sync.WaitGroup
	for _, ids := range batches {
		wg.Add(1)
		go func(ids []string) {
			defer wg.Done()
			fn(ids)
		}(ids)
	}
	wg.Wait()
}

// retry repeats fn while it fails with a lost race or a retriable error.
func retry(fn func() error, conflicts *atomic.Int32) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrInconsistentState) && !domain.IsRetriable(err) {
			return err
		}
		conflicts.Add(1)
		time.Sleep(retryInterval)
	}
	return err
}
