package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

// InventoryService is the entry point of the engine. It partitions bulk requests,
// reads current container state under the container lock, and submits one
// transaction per sub-batch. Sub-batches are independent: a bulk call can
// partially succeed and reports the ids that committed.
type InventoryService struct {
	inventory *InventoryStore
	capacity  *CapacityStore
	locker    port.Locker
	limits    domain.BatchLimits
	validate  *validator.Validate
	log       *logger.Logger
}

func NewInventoryService(store port.Store, locker port.Locker, limits domain.BatchLimits, log *logger.Logger) (*InventoryService, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("batch limits: %w", err)
	}
	return &InventoryService{
		inventory: NewInventoryStore(store, limits.TransactionItemCeiling, log),
		capacity:  NewCapacityStore(store, log),
		locker:    locker,
		limits:    limits,
		validate:  validator.New(),
		log:       log.Component("inventory-service"),
	}, nil
}

func containerLockKey(warehouseID, containerID string) string {
	return warehouseID + "/" + containerID
}

// GetCapacity returns the container's capacity, or nil if it was never initialized.
func (s *InventoryService) GetCapacity(ctx context.Context, warehouseID, containerID string) (*domain.ContainerCapacity, error) {
	if warehouseID == "" || containerID == "" {
		return nil, domain.NewError(domain.KindNonRetriable, "get capacity", "warehouse and container ids are required", nil)
	}
	return s.capacity.Get(ctx, warehouseID, containerID)
}

// InitializeCapacity creates the zero-capacity record of a newly provisioned container.
func (s *InventoryService) InitializeCapacity(ctx context.Context, warehouseID, containerID string) (*domain.ContainerCapacity, error) {
	if warehouseID == "" || containerID == "" {
		return nil, domain.NewError(domain.KindNonRetriable, "initialize capacity", "warehouse and container ids are required", nil)
	}
	return s.capacity.Initialize(ctx, warehouseID, containerID)
}

// Add creates items in Production. The whole request is checked for existing ids
// first; a single duplicate fails the call with ResourceAlreadyExists and nothing
// is written. Returned ids are those durably created, which can be fewer than
// requested if a later sub-batch fails.
func (s *InventoryService) Add(ctx context.Context, req AddRequest) ([]string, error) {
	if err := validateRequest(s.validate, "add", req); err != nil {
		return nil, err
	}

	var existing []string
	for _, batch := range domain.Partition(req.ItemIDs, s.limits.AddBatchSize) {
		found, err := s.inventory.ExistingItems(ctx, req.WarehouseID, batch)
		if err != nil {
			return nil, err
		}
		existing = append(existing, found...)
	}
	if len(existing) > 0 {
		return nil, domain.NewError(domain.KindResourceAlreadyExists, "add",
			fmt.Sprintf("%d item ids already exist: %s", len(existing), summarize(existing)), nil)
	}

	now := time.Now().UTC()
	production := req.ProductionTime
	if production.IsZero() {
		production = now
	}

	created := make([]string, 0, len(req.ItemIDs))
	var errs []error
	for _, batch := range domain.Partition(req.ItemIDs, s.limits.AddBatchSize) {
		items := make([]domain.InventoryItem, len(batch))
		for i, id := range batch {
			items[i] = domain.InventoryItem{
				ProductID:      id,
				CompanyID:      req.CompanyID,
				WarehouseID:    req.WarehouseID,
				SKUCode:        req.SKUCode,
				SKUCategory:    req.SKUCategory,
				SKUType:        req.SKUType,
				Status:         domain.InventoryStatusProduction,
				ProductionTime: production,
				CreatedAt:      now,
				ModifiedAt:     now,
			}
		}
		if err := s.inventory.Add(ctx, items); err != nil {
			s.log.Warn().Err(err).Str("warehouse_id", req.WarehouseID).Int("batch", len(batch)).Msg("add sub-batch failed")
			errs = append(errs, err)
			continue
		}
		created = append(created, batch...)
	}
	return created, errors.Join(errs...)
}

// Inbound moves produced items into a container and raises its capacity. The
// request is rejected with CapacityExceeded before any write when it cannot fit.
// Processing stops at the first failed sub-batch; the ids already committed are returned.
func (s *InventoryService) Inbound(ctx context.Context, req InboundRequest) ([]string, error) {
	if err := validateRequest(s.validate, "inbound", req); err != nil {
		return nil, err
	}
	if err := s.precheck(ctx, "inbound", req.WarehouseID, req.ContainerID, len(req.ItemIDs), req.MaxCapacity); err != nil {
		return nil, err
	}

	return s.runBatches(ctx, req.ItemIDs, s.limits.TransitionBatchSize,
		[]string{containerLockKey(req.WarehouseID, req.ContainerID)},
		func(ctx context.Context, ids []string) ([]string, error) {
			return s.inboundLocked(ctx, req, ids)
		})
}

func (s *InventoryService) inboundLocked(ctx context.Context, req InboundRequest, ids []string) ([]string, error) {
	current, err := s.loadCapacity(ctx, "inbound", req.WarehouseID, req.ContainerID)
	if err != nil {
		return nil, err
	}
	change, err := newCapacityChange("inbound", *current, len(ids), req.MaxCapacity)
	if err != nil {
		return splitOnStatusJump(ctx, err, ids, func(ctx context.Context, part []string) ([]string, error) {
			return s.inboundLocked(ctx, req, part)
		})
	}

	err = s.inventory.Inbound(ctx, inboundBatch{
		WarehouseID: req.WarehouseID,
		CompanyID:   req.CompanyID,
		ContainerID: req.ContainerID,
		InboundID:   req.InboundID,
		SKUCode:     req.SKUCode,
		ItemIDs:     ids,
		Capacity:    change,
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Outbound ships items out of a container and lowers its capacity. A request for
// more items than the container holds is rejected with CapacityExceeded before any write.
func (s *InventoryService) Outbound(ctx context.Context, req OutboundRequest) ([]string, error) {
	if err := validateRequest(s.validate, "outbound", req); err != nil {
		return nil, err
	}
	if err := s.precheck(ctx, "outbound", req.WarehouseID, req.ContainerID, -len(req.ItemIDs), req.MaxCapacity); err != nil {
		return nil, err
	}

	return s.runBatches(ctx, req.ItemIDs, s.limits.TransitionBatchSize,
		[]string{containerLockKey(req.WarehouseID, req.ContainerID)},
		func(ctx context.Context, ids []string) ([]string, error) {
			return s.outboundLocked(ctx, req, ids)
		})
}

func (s *InventoryService) outboundLocked(ctx context.Context, req OutboundRequest, ids []string) ([]string, error) {
	current, err := s.loadCapacity(ctx, "outbound", req.WarehouseID, req.ContainerID)
	if err != nil {
		return nil, err
	}
	change, err := newCapacityChange("outbound", *current, -len(ids), req.MaxCapacity)
	if err != nil {
		return splitOnStatusJump(ctx, err, ids, func(ctx context.Context, part []string) ([]string, error) {
			return s.outboundLocked(ctx, req, part)
		})
	}

	err = s.inventory.Outbound(ctx, outboundBatch{
		WarehouseID: req.WarehouseID,
		CompanyID:   req.CompanyID,
		ContainerID: req.ContainerID,
		OutboundID:  req.OutboundID,
		OrderID:     req.OrderID,
		SKUCode:     req.SKUCode,
		ItemIDs:     ids,
		Capacity:    change,
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Move relocates items between two containers. Both capacity limits are checked
// before any write; if either fails neither container is touched.
func (s *InventoryService) Move(ctx context.Context, req MoveRequest) ([]string, error) {
	if err := validateRequest(s.validate, "move", req); err != nil {
		return nil, err
	}
	n := len(req.ItemIDs)
	if err := s.precheck(ctx, "move", req.WarehouseID, req.SourceContainerID, -n, req.SourceMaxCapacity); err != nil {
		return nil, err
	}
	if err := s.precheck(ctx, "move", req.WarehouseID, req.DestinationContainerID, n, req.DestinationMaxCapacity); err != nil {
		return nil, err
	}

	return s.runBatches(ctx, req.ItemIDs, s.limits.MoveBatchSize,
		[]string{
			containerLockKey(req.WarehouseID, req.SourceContainerID),
			containerLockKey(req.WarehouseID, req.DestinationContainerID),
		},
		func(ctx context.Context, ids []string) ([]string, error) {
			return s.moveLocked(ctx, req, ids)
		})
}

func (s *InventoryService) moveLocked(ctx context.Context, req MoveRequest, ids []string) ([]string, error) {
	source, err := s.loadCapacity(ctx, "move", req.WarehouseID, req.SourceContainerID)
	if err != nil {
		return nil, err
	}
	destination, err := s.loadCapacity(ctx, "move", req.WarehouseID, req.DestinationContainerID)
	if err != nil {
		return nil, err
	}

	split := func(ctx context.Context, part []string) ([]string, error) { return s.moveLocked(ctx, req, part) }
	srcChange, err := newCapacityChange("move", *source, -len(ids), req.SourceMaxCapacity)
	if err != nil {
		return splitOnStatusJump(ctx, err, ids, split)
	}
	dstChange, err := newCapacityChange("move", *destination, len(ids), req.DestinationMaxCapacity)
	if err != nil {
		return splitOnStatusJump(ctx, err, ids, split)
	}

	err = s.inventory.Move(ctx, moveBatch{
		WarehouseID:            req.WarehouseID,
		SourceContainerID:      req.SourceContainerID,
		DestinationContainerID: req.DestinationContainerID,
		SKUCode:                req.SKUCode,
		ItemIDs:                ids,
		Source:                 srcChange,
		Destination:            dstChange,
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// TransitionItem re-asserts a single item's status. It succeeds when the item is
// already at target and fails with InconsistentState otherwise.
func (s *InventoryService) TransitionItem(ctx context.Context, warehouseID, productID string, target domain.InventoryStatus) error {
	if warehouseID == "" || productID == "" || !target.Valid() {
		return domain.NewError(domain.KindNonRetriable, "transition item", "warehouse, product and a known status are required", nil)
	}
	return s.inventory.TransitionItem(ctx, warehouseID, productID, target)
}

// GetItem returns one item, or nil if it does not exist.
func (s *InventoryService) GetItem(ctx context.Context, warehouseID, productID string) (*domain.InventoryItem, error) {
	items, err := s.inventory.GetItems(ctx, warehouseID, []string{productID})
	if err != nil {
		return nil, err
	}
	return items[productID], nil
}

// PendingItems returns the ids that are not yet at target, including unknown ids.
// Callers use it after a partial failure to retry only what did not move.
func (s *InventoryService) PendingItems(ctx context.Context, warehouseID string, ids []string, target domain.InventoryStatus) ([]string, error) {
	pending := make([]string, 0, len(ids))
	for _, batch := range domain.Partition(ids, s.limits.AddBatchSize) {
		items, err := s.inventory.GetItems(ctx, warehouseID, batch)
		if err != nil {
			return nil, err
		}
		for _, id := range batch {
			if item, ok := items[id]; !ok || item.Status != target {
				pending = append(pending, id)
			}
		}
	}
	return pending, nil
}

// runBatches partitions ids and runs fn for each sub-batch while holding the lock
// keys. It stops at the first failure and returns the ids that committed before it.
func (s *InventoryService) runBatches(ctx context.Context, ids []string, size int, lockKeys []string, fn func(context.Context, []string) ([]string, error)) ([]string, error) {
	done := make([]string, 0, len(ids))
	for _, batch := range domain.Partition(ids, size) {
		var committed []string
		err := s.withLock(ctx, lockKeys, func() error {
			var err error
			committed, err = fn(ctx, batch)
			return err
		})
		done = append(done, committed...)
		if err != nil {
			if len(done) > 0 {
				s.log.Warn().Err(err).Int("committed", len(done)).Int("requested", len(ids)).Msg("bulk call partially applied")
			}
			return done, err
		}
	}
	return done, nil
}

func (s *InventoryService) withLock(ctx context.Context, keys []string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, keys...)
	if err != nil {
		return domain.NewError(domain.KindRetriable, "lock", strings.Join(keys, ","), err)
	}
	defer unlock()
	return fn()
}

// precheck rejects a request whose whole delta cannot fit, before any sub-batch runs.
func (s *InventoryService) precheck(ctx context.Context, op, warehouseID, containerID string, delta, maxCapacity int) error {
	current, err := s.loadCapacity(ctx, op, warehouseID, containerID)
	if err != nil {
		return err
	}
	return domain.CheckCapacity(op, containerID, current.CurrentCapacity, delta, maxCapacity)
}

func (s *InventoryService) loadCapacity(ctx context.Context, op, warehouseID, containerID string) (*domain.ContainerCapacity, error) {
	current, err := s.capacity.Get(ctx, warehouseID, containerID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.NewError(domain.KindNonRetriable, op,
			fmt.Sprintf("container %s in warehouse %s has no capacity record", containerID, warehouseID), nil)
	}
	return current, nil
}

// splitOnStatusJump handles a capacity change that would skip the intermediate
// container status (Available <-> Filled in one step). The sub-batch is split so
// the container passes through PartiallyFilled; a single item cannot be split.
// Any other error passes through unchanged.
func splitOnStatusJump(ctx context.Context, err error, ids []string, fn func(context.Context, []string) ([]string, error)) ([]string, error) {
	var jump *statusJumpError
	if !errors.As(err, &jump) {
		return nil, err
	}
	if len(ids) < 2 {
		return nil, jump.asDomain()
	}
	head, tail := ids[:len(ids)-1:len(ids)-1], ids[len(ids)-1:]
	committed, err := fn(ctx, head)
	if err != nil {
		return committed, err
	}
	rest, err := fn(ctx, tail)
	return slices.Concat(committed, rest), err
}

func summarize(ids []string) string {
	const shown = 5
	if len(ids) <= shown {
		return strings.Join(ids, ", ")
	}
	return strings.Join(ids[:shown], ", ") + fmt.Sprintf(" and %d more", len(ids)-shown)
}
