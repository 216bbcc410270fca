package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/container-inventory/internal/adapter/lock"
	"github.com/rl1809/container-inventory/internal/adapter/storage"
	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

const (
	testWarehouse = "WH1"
	testCompany   = "CO1"
	testSKU       = "SKU-1"
)

// hookStore wraps a store and lets a test run code before each transaction.
type hookStore struct {
	port.Store
	mu         sync.Mutex
	calls      int
	onTransact func(call int, writes []domain.Write) error
}

func (h *hookStore) Transact(ctx context.Context, writes []domain.Write) error {
	h.mu.Lock()
	h.calls++
	call, hook := h.calls, h.onTransact
	h.mu.Unlock()

	if hook != nil {
		if err := hook(call, writes); err != nil {
			return err
		}
	}
	return h.Store.Transact(ctx, writes)
}

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context, ...string) (func(), error) { return nil, f.err }

func newTestStore(t *testing.T) port.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return storage.NewRedisAdapter(client, logger.Nop())
}

func newTestService(t *testing.T, store port.Store, limits domain.BatchLimits) *InventoryService {
	t.Helper()
	svc, err := NewInventoryService(store, lock.NewLocalLocker(), limits, logger.Nop())
	require.NoError(t, err)
	return svc
}

func itemIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s%d", prefix, i+1)
	}
	return ids
}

func addItems(t *testing.T, svc *InventoryService, ids ...string) {
	t.Helper()
	created, err := svc.Add(context.Background(), AddRequest{
		WarehouseID: testWarehouse,
		CompanyID:   testCompany,
		SKUCode:     testSKU,
		SKUCategory: "beverage",
		SKUType:     "bottle",
		ItemIDs:     ids,
	})
	require.NoError(t, err)
	require.Equal(t, ids, created)
}

func initContainer(t *testing.T, svc *InventoryService, containerID string) {
	t.Helper()
	_, err := svc.InitializeCapacity(context.Background(), testWarehouse, containerID)
	require.NoError(t, err)
}

func inboundReq(containerID string, maxCapacity int, ids ...string) InboundRequest {
	return InboundRequest{
		WarehouseID: testWarehouse,
		CompanyID:   testCompany,
		ContainerID: containerID,
		InboundID:   "IN-1",
		SKUCode:     testSKU,
		MaxCapacity: maxCapacity,
		ItemIDs:     ids,
	}
}

func outboundReq(containerID string, maxCapacity int, ids ...string) OutboundRequest {
	return OutboundRequest{
		WarehouseID: testWarehouse,
		CompanyID:   testCompany,
		ContainerID: containerID,
		OutboundID:  "OUT-1",
		OrderID:     "ORD-1",
		SKUCode:     testSKU,
		MaxCapacity: maxCapacity,
		ItemIDs:     ids,
	}
}

func assertCapacity(t *testing.T, svc *InventoryService, containerID string, want int, status domain.ContainerStatus) {
	t.Helper()
	c, err := svc.GetCapacity(context.Background(), testWarehouse, containerID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, want, c.CurrentCapacity, "capacity of %s", containerID)
	assert.Equal(t, status, c.Status, "status of %s", containerID)
}

func assertItem(t *testing.T, svc *InventoryService, id string, status domain.InventoryStatus, containerID string) {
	t.Helper()
	item, err := svc.GetItem(context.Background(), testWarehouse, id)
	require.NoError(t, err)
	require.NotNil(t, item, "item %s", id)
	assert.Equal(t, status, item.Status, "status of %s", id)
	assert.Equal(t, containerID, item.ContainerID, "container of %s", id)
}

func TestInventoryService_FillAndEmptyContainer(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	ids := itemIDs("P", 5)
	addItems(t, svc, ids...)

	done, err := svc.Inbound(ctx, inboundReq("C1", 5, ids[:4]...))
	require.NoError(t, err)
	assert.Equal(t, ids[:4], done)
	assertCapacity(t, svc, "C1", 4, domain.ContainerStatusPartiallyFilled)

	_, err = svc.Inbound(ctx, inboundReq("C1", 5, ids[4]))
	require.NoError(t, err)
	assertCapacity(t, svc, "C1", 5, domain.ContainerStatusFilled)
	assertItem(t, svc, "P5", domain.InventoryStatusInbound, "C1")

	_, err = svc.Outbound(ctx, outboundReq("C1", 5, ids[:4]...))
	require.NoError(t, err)
	assertCapacity(t, svc, "C1", 1, domain.ContainerStatusPartiallyFilled)

	_, err = svc.Outbound(ctx, outboundReq("C1", 5, ids[4]))
	require.NoError(t, err)
	assertCapacity(t, svc, "C1", 0, domain.ContainerStatusAvailable)

	item, err := svc.GetItem(ctx, testWarehouse, "P1")
	require.NoError(t, err)
	assert.Equal(t, domain.InventoryStatusOutbound, item.Status)
	assert.Equal(t, "OUT-1", item.OutboundID)
	assert.Equal(t, "ORD-1", item.OrderID)
	assert.Equal(t, "C1", item.ContainerID)
}

func TestInventoryService_AddDuplicatePersistsNothing(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	addItems(t, svc, "P1")

	created, err := svc.Add(ctx, AddRequest{
		WarehouseID: testWarehouse, CompanyID: testCompany, SKUCode: testSKU,
		SKUCategory: "beverage", SKUType: "bottle",
		ItemIDs: []string{"P2", "P1", "P3"},
	})
	assert.ErrorIs(t, err, domain.ErrResourceAlreadyExists)
	assert.Empty(t, created)

	for _, id := range []string{"P2", "P3"} {
		item, err := svc.GetItem(ctx, testWarehouse, id)
		require.NoError(t, err)
		assert.Nil(t, item)
	}
}

func TestInventoryService_AddReportsCreatedSubBatches(t *testing.T) {
	store := &hookStore{Store: newTestStore(t)}
	limits := domain.BatchLimits{TransactionItemCeiling: 4, AddBatchSize: 4, TransitionBatchSize: 3, MoveBatchSize: 2}
	svc := newTestService(t, store, limits)

	store.onTransact = func(call int, _ []domain.Write) error {
		if call == 2 {
			return domain.NewError(domain.KindRetriable, "test", "connection reset", nil)
		}
		return nil
	}
	ids := itemIDs("P", 6)
	created, err := svc.Add(context.Background(), AddRequest{
		WarehouseID: testWarehouse, CompanyID: testCompany, SKUCode: testSKU,
		SKUCategory: "beverage", SKUType: "bottle", ItemIDs: ids,
	})
	assert.True(t, domain.IsRetriable(err))
	assert.Equal(t, ids[:4], created)
}

func TestInventoryService_OutboundOverCapacity(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	addItems(t, svc, "P1", "P2", "P3")
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P2"))
	require.NoError(t, err)

	done, err := svc.Outbound(ctx, outboundReq("C1", 5, "P1", "P2", "P3"))
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Empty(t, done)

	assertCapacity(t, svc, "C1", 2, domain.ContainerStatusPartiallyFilled)
	assertItem(t, svc, "P1", domain.InventoryStatusInbound, "C1")
	assertItem(t, svc, "P3", domain.InventoryStatusProduction, "")
}

func TestInventoryService_InboundOverCapacity(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	initContainer(t, svc, "C1")
	addItems(t, svc, "P1", "P2", "P3")

	_, err := svc.Inbound(context.Background(), inboundReq("C1", 2, "P1", "P2", "P3"))
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assertCapacity(t, svc, "C1", 0, domain.ContainerStatusAvailable)
}

func TestInventoryService_Move(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	initContainer(t, svc, "C2")
	addItems(t, svc, "P1", "P2", "P3")
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P2", "P3"))
	require.NoError(t, err)

	done, err := svc.Move(ctx, MoveRequest{
		WarehouseID: testWarehouse, SourceContainerID: "C1", DestinationContainerID: "C2",
		SKUCode: testSKU, SourceMaxCapacity: 5, DestinationMaxCapacity: 5,
		ItemIDs: []string{"P1", "P2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, done)

	assertCapacity(t, svc, "C1", 1, domain.ContainerStatusPartiallyFilled)
	assertCapacity(t, svc, "C2", 2, domain.ContainerStatusPartiallyFilled)
	assertItem(t, svc, "P1", domain.InventoryStatusInbound, "C2")
	assertItem(t, svc, "P3", domain.InventoryStatusInbound, "C1")
}

func TestInventoryService_MoveDestinationOverflow(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	initContainer(t, svc, "C2")
	addItems(t, svc, "P1", "P2", "P3", "P4")
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P2", "P3"))
	require.NoError(t, err)
	_, err = svc.Inbound(ctx, inboundReq("C2", 3, "P4"))
	require.NoError(t, err)

	_, err = svc.Move(ctx, MoveRequest{
		WarehouseID: testWarehouse, SourceContainerID: "C1", DestinationContainerID: "C2",
		SKUCode: testSKU, SourceMaxCapacity: 5, DestinationMaxCapacity: 3,
		ItemIDs: []string{"P1", "P2", "P3"},
	})
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assertCapacity(t, svc, "C1", 3, domain.ContainerStatusPartiallyFilled)
	assertCapacity(t, svc, "C2", 1, domain.ContainerStatusPartiallyFilled)
	assertItem(t, svc, "P1", domain.InventoryStatusInbound, "C1")
}

func TestInventoryService_MoveFromWrongSource(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	for _, c := range []string{"C1", "C2", "C3"} {
		initContainer(t, svc, c)
	}
	addItems(t, svc, "P1", "P2")
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1"))
	require.NoError(t, err)
	_, err = svc.Inbound(ctx, inboundReq("C3", 5, "P2"))
	require.NoError(t, err)

	// P2 sits in C3, so moving it out of C1 must not commit.
	_, err = svc.Move(ctx, MoveRequest{
		WarehouseID: testWarehouse, SourceContainerID: "C1", DestinationContainerID: "C2",
		SKUCode: testSKU, SourceMaxCapacity: 5, DestinationMaxCapacity: 5,
		ItemIDs: []string{"P2"},
	})
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assertCapacity(t, svc, "C1", 1, domain.ContainerStatusPartiallyFilled)
	assertCapacity(t, svc, "C2", 0, domain.ContainerStatusAvailable)
}

func TestInventoryService_ConcurrentInboundRace(t *testing.T) {
	shared := newTestStore(t)
	racing := &hookStore{Store: shared}
	first := newTestService(t, racing, domain.DefaultBatchLimits())
	second := newTestService(t, shared, domain.DefaultBatchLimits())
	ctx := context.Background()

	initContainer(t, second, "C1")
	addItems(t, second, "P1", "P2", "P3")

	// The second process commits between the first one's read and its write.
	racing.onTransact = func(call int, _ []domain.Write) error {
		if call == 1 {
			_, err := second.Inbound(ctx, inboundReq("C1", 5, "P3"))
			require.NoError(t, err)
		}
		return nil
	}

	done, err := first.Inbound(ctx, inboundReq("C1", 5, "P1", "P2"))
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assert.Empty(t, done)
	assertCapacity(t, first, "C1", 1, domain.ContainerStatusPartiallyFilled)
	assertItem(t, first, "P1", domain.InventoryStatusProduction, "")

	done, err = first.Inbound(ctx, inboundReq("C1", 5, "P1", "P2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, done)
	assertCapacity(t, first, "C1", 3, domain.ContainerStatusPartiallyFilled)
}

func TestInventoryService_ParallelInboundKeepsCount(t *testing.T) {
	store := newTestStore(t)
	svc := newTestService(t, store, domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	ids := itemIDs("P", 20)
	addItems(t, svc, ids...)

	var wg sync.WaitGroup
	for _, batch := range domain.Partition(ids, 2) {
		wg.Add(1)
		go func(batch []string) {
			defer wg.Done()
			_, err := svc.Inbound(ctx, inboundReq("C1", 50, batch...))
			assert.NoError(t, err)
		}(batch)
	}
	wg.Wait()

	assertCapacity(t, svc, "C1", 20, domain.ContainerStatusPartiallyFilled)
}

func TestInventoryService_RepeatedInboundRejected(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	addItems(t, svc, "P1", "P2")

	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P2"))
	require.NoError(t, err)
	_, err = svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P2"))
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assertCapacity(t, svc, "C1", 2, domain.ContainerStatusPartiallyFilled)
}

func TestInventoryService_GuardMismatches(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	initContainer(t, svc, "C2")
	addItems(t, svc, "P1", "P2")
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1"))
	require.NoError(t, err)
	_, err = svc.Inbound(ctx, inboundReq("C2", 5, "P2"))
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() error
	}{
		{"unknown item", func() error {
			_, err := svc.Inbound(ctx, inboundReq("C1", 5, "missing"))
			return err
		}},
		{"other company", func() error {
			req := inboundReq("C1", 5, "P1")
			req.CompanyID = "CO2"
			_, err := svc.Inbound(ctx, req)
			return err
		}},
		{"other sku", func() error {
			req := outboundReq("C1", 5, "P1")
			req.SKUCode = "SKU-2"
			_, err := svc.Outbound(ctx, req)
			return err
		}},
		{"item in other container", func() error {
			_, err := svc.Outbound(ctx, outboundReq("C1", 5, "P2"))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.run(), domain.ErrInconsistentState)
		})
	}
	assertCapacity(t, svc, "C1", 1, domain.ContainerStatusPartiallyFilled)
	assertCapacity(t, svc, "C2", 1, domain.ContainerStatusPartiallyFilled)
}

func TestInventoryService_StatusJumpIsSplit(t *testing.T) {
	store := &hookStore{Store: newTestStore(t)}
	svc := newTestService(t, store, domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	ids := itemIDs("P", 5)
	addItems(t, svc, ids...)

	var statuses []string
	store.onTransact = func(_ int, writes []domain.Write) error {
		last := writes[len(writes)-1]
		statuses = append(statuses, last.Attributes[domain.AttrStatus])
		return nil
	}

	done, err := svc.Inbound(ctx, inboundReq("C1", 5, ids...))
	require.NoError(t, err)
	assert.Equal(t, ids, done)
	assertCapacity(t, svc, "C1", 5, domain.ContainerStatusFilled)

	done, err = svc.Outbound(ctx, outboundReq("C1", 5, ids...))
	require.NoError(t, err)
	assert.Equal(t, ids, done)
	assertCapacity(t, svc, "C1", 0, domain.ContainerStatusAvailable)

	assert.Equal(t, []string{"PartiallyFilled", "Filled", "PartiallyFilled", "Available"}, statuses)
}

func TestInventoryService_SingleItemStatusJump(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	initContainer(t, svc, "C1")
	addItems(t, svc, "P1")

	_, err := svc.Inbound(context.Background(), inboundReq("C1", 1, "P1"))
	assert.ErrorIs(t, err, domain.ErrNonRetriable)
	assertCapacity(t, svc, "C1", 0, domain.ContainerStatusAvailable)
}

func TestInventoryService_PartialBulkInbound(t *testing.T) {
	limits := domain.BatchLimits{TransactionItemCeiling: 4, AddBatchSize: 4, TransitionBatchSize: 3, MoveBatchSize: 2}
	svc := newTestService(t, newTestStore(t), limits)
	ctx := context.Background()
	initContainer(t, svc, "C1")
	ids := itemIDs("P", 7)
	addItems(t, svc, ids[:4]...)
	addItems(t, svc, ids[5:]...)

	done, err := svc.Inbound(ctx, inboundReq("C1", 10, ids...))
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assert.Equal(t, ids[:3], done)
	assertCapacity(t, svc, "C1", 3, domain.ContainerStatusPartiallyFilled)

	pending, err := svc.PendingItems(ctx, testWarehouse, ids, domain.InventoryStatusInbound)
	require.NoError(t, err)
	assert.Equal(t, ids[3:], pending)
}

func TestInventoryService_TransitionItem(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	addItems(t, svc, "P1")

	assert.NoError(t, svc.TransitionItem(ctx, testWarehouse, "P1", domain.InventoryStatusProduction))
	assert.ErrorIs(t, svc.TransitionItem(ctx, testWarehouse, "P1", domain.InventoryStatusOutbound), domain.ErrInconsistentState)
	// Entering a container goes through Inbound, never a bare status change.
	assert.ErrorIs(t, svc.TransitionItem(ctx, testWarehouse, "P1", domain.InventoryStatusInbound), domain.ErrInconsistentState)
	assertItem(t, svc, "P1", domain.InventoryStatusProduction, "")

	assert.ErrorIs(t, svc.TransitionItem(ctx, testWarehouse, "missing", domain.InventoryStatusInbound), domain.ErrInconsistentState)
	assert.ErrorIs(t, svc.TransitionItem(ctx, testWarehouse, "P1", "Lost"), domain.ErrNonRetriable)
}

func TestInventoryService_Capacity(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()

	c, err := svc.GetCapacity(ctx, testWarehouse, "C1")
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = svc.InitializeCapacity(ctx, testWarehouse, "C1")
	require.NoError(t, err)
	assert.Equal(t, 0, c.CurrentCapacity)
	assert.Equal(t, domain.ContainerStatusAvailable, c.Status)

	_, err = svc.InitializeCapacity(ctx, testWarehouse, "C1")
	assert.ErrorIs(t, err, domain.ErrResourceAlreadyExists)

	_, err = svc.Inbound(ctx, inboundReq("C9", 5, "P1"))
	assert.ErrorIs(t, err, domain.ErrNonRetriable)
}

func TestInventoryService_InvalidRequests(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()

	noContainer := inboundReq("", 5, "P1")
	_, err := svc.Inbound(ctx, noContainer)
	assert.ErrorIs(t, err, domain.ErrNonRetriable)

	_, err = svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P1"))
	assert.ErrorIs(t, err, domain.ErrNonRetriable)

	_, err = svc.Outbound(ctx, outboundReq("C1", 0, "P1"))
	assert.ErrorIs(t, err, domain.ErrNonRetriable)

	_, err = svc.Move(ctx, MoveRequest{
		WarehouseID: testWarehouse, SourceContainerID: "C1", DestinationContainerID: "C1",
		SKUCode: testSKU, SourceMaxCapacity: 5, DestinationMaxCapacity: 5, ItemIDs: []string{"P1"},
	})
	assert.ErrorIs(t, err, domain.ErrNonRetriable)

	_, err = svc.Add(ctx, AddRequest{WarehouseID: testWarehouse, ItemIDs: []string{"P1"}})
	assert.ErrorIs(t, err, domain.ErrNonRetriable)

	_, err = NewInventoryService(newTestStore(t), lock.NewLocalLocker(), domain.BatchLimits{}, logger.Nop())
	assert.Error(t, err)
}

func TestInventoryService_RetriableFailures(t *testing.T) {
	store := &hookStore{Store: newTestStore(t)}
	svc := newTestService(t, store, domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	addItems(t, svc, "P1")

	store.onTransact = func(int, []domain.Write) error {
		return domain.NewError(domain.KindRetriable, "redis transact", "", errors.New("connection reset"))
	}
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1"))
	assert.True(t, domain.IsRetriable(err))

	locked, err := NewInventoryService(store, failingLocker{err: errors.New("busy")}, domain.DefaultBatchLimits(), logger.Nop())
	require.NoError(t, err)
	store.onTransact = nil
	_, err = locked.Inbound(ctx, inboundReq("C1", 5, "P1"))
	assert.True(t, domain.IsRetriable(err))
	assertCapacity(t, svc, "C1", 0, domain.ContainerStatusAvailable)
}

func TestInventoryService_TransitionItemKeepsCapacityInStep(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	addItems(t, svc, "P1", "P2", "P3")
	_, err := svc.Inbound(ctx, inboundReq("C1", 5, "P1", "P2"))
	require.NoError(t, err)

	assert.NoError(t, svc.TransitionItem(ctx, testWarehouse, "P1", domain.InventoryStatusInbound))
	assert.ErrorIs(t, svc.TransitionItem(ctx, testWarehouse, "P1", domain.InventoryStatusOutbound), domain.ErrInconsistentState)
	assert.ErrorIs(t, svc.TransitionItem(ctx, testWarehouse, "P3", domain.InventoryStatusInbound), domain.ErrInconsistentState)
	assertItem(t, svc, "P1", domain.InventoryStatusInbound, "C1")
	assertItem(t, svc, "P3", domain.InventoryStatusProduction, "")
	assertCapacity(t, svc, "C1", 2, domain.ContainerStatusPartiallyFilled)

	done, err := svc.Outbound(ctx, outboundReq("C1", 5, "P1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, done)
	assertCapacity(t, svc, "C1", 1, domain.ContainerStatusPartiallyFilled)

	assert.NoError(t, svc.TransitionItem(ctx, testWarehouse, "P1", domain.InventoryStatusOutbound))
	_, err = svc.Outbound(ctx, outboundReq("C1", 5, "P1"))
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assertCapacity(t, svc, "C1", 1, domain.ContainerStatusPartiallyFilled)
}

func TestInventoryService_MoveStatusJumpIsSplit(t *testing.T) {
	store := &hookStore{Store: newTestStore(t)}
	svc := newTestService(t, store, domain.DefaultBatchLimits())
	ctx := context.Background()
	initContainer(t, svc, "C1")
	initContainer(t, svc, "C2")
	ids := itemIDs("P", 3)
	addItems(t, svc, ids...)
	_, err := svc.Inbound(ctx, inboundReq("C1", 3, ids...))
	require.NoError(t, err)
	assertCapacity(t, svc, "C1", 3, domain.ContainerStatusFilled)

	var moves int
	store.onTransact = func(int, []domain.Write) error {
		moves++
		return nil
	}
	done, err := svc.Move(ctx, MoveRequest{
		WarehouseID: testWarehouse, SourceContainerID: "C1", DestinationContainerID: "C2",
		SKUCode: testSKU, SourceMaxCapacity: 3, DestinationMaxCapacity: 3, ItemIDs: ids,
	})
	require.NoError(t, err)
	assert.Equal(t, ids, done)
	assert.Equal(t, 2, moves, "a Filled to Available jump commits in two steps")
	assertCapacity(t, svc, "C1", 0, domain.ContainerStatusAvailable)
	assertCapacity(t, svc, "C2", 3, domain.ContainerStatusFilled)
	assertItem(t, svc, "P3", domain.InventoryStatusInbound, "C2")
}

func TestInventoryService_OppositeMovesDoNotDeadlock(t *testing.T) {
	svc := newTestService(t, newTestStore(t), domain.DefaultBatchLimits())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	initContainer(t, svc, "A")
	initContainer(t, svc, "B")
	fromA, fromB := itemIDs("PA", 10), itemIDs("PB", 10)
	addItems(t, svc, fromA...)
	addItems(t, svc, fromB...)
	_, err := svc.Inbound(ctx, inboundReq("A", 50, fromA...))
	require.NoError(t, err)
	_, err = svc.Inbound(ctx, inboundReq("B", 50, fromB...))
	require.NoError(t, err)

	move := func(src, dst, id string) error {
		_, err := svc.Move(ctx, MoveRequest{
			WarehouseID: testWarehouse, SourceContainerID: src, DestinationContainerID: dst,
			SKUCode: testSKU, SourceMaxCapacity: 50, DestinationMaxCapacity: 50, ItemIDs: []string{id},
		})
		return err
	}

	var wg sync.WaitGroup
	for i := range fromA {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, move("A", "B", id))
		}(fromA[i])
		go func(id string) {
			defer wg.Done()
			assert.NoError(t, move("B", "A", id))
		}(fromB[i])
	}
	wg.Wait()
	require.NoError(t, ctx.Err(), "moves must finish before the deadline")

	assertCapacity(t, svc, "A", 10, domain.ContainerStatusPartiallyFilled)
	assertCapacity(t, svc, "B", 10, domain.ContainerStatusPartiallyFilled)
	assertItem(t, svc, "PA1", domain.InventoryStatusInbound, "B")
	assertItem(t, svc, "PB1", domain.InventoryStatusInbound, "A")
}
