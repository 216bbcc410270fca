package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

// CapacityStore reads and initializes container capacity records.
type CapacityStore struct {
	store port.Store
	log   *logger.Logger
}

func NewCapacityStore(store port.Store, log *logger.Logger) *CapacityStore {
	return &CapacityStore{store: store, log: log.Component("capacity-store")}
}

// Get returns the capacity of a container, or nil if it was never initialized.
func (c *CapacityStore) Get(ctx context.Context, warehouseID, containerID string) (*domain.ContainerCapacity, error) {
	key := domain.CapacityKey(warehouseID, containerID)
	rec, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get capacity %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	capacity, err := domain.CapacityFromRecord(key, rec)
	if err != nil {
		return nil, domain.NewError(domain.KindNonRetriable, "get capacity", "corrupt record", err)
	}
	return capacity, nil
}

// Initialize creates an empty, Available capacity record. It fails with
// ResourceAlreadyExists when the container already has one.
func (c *CapacityStore) Initialize(ctx context.Context, warehouseID, containerID string) (*domain.ContainerCapacity, error) {
	now := time.Now().UTC()
	capacity := domain.ContainerCapacity{
		WarehouseID:     warehouseID,
		ContainerID:     containerID,
		CurrentCapacity: 0,
		Status:          domain.ContainerStatusAvailable,
		CreatedAt:       now,
		ModifiedAt:      now,
	}
	key := domain.CapacityKey(warehouseID, containerID)

	err := c.store.Put(ctx, domain.Write{Mode: domain.WriteCreate, Key: key, Attributes: capacity.Record()})
	var canceled *domain.TransactionCanceledError
	if errors.As(err, &canceled) {
		return nil, domain.NewError(domain.KindResourceAlreadyExists, "initialize capacity",
			fmt.Sprintf("container %s in warehouse %s already has a capacity record", containerID, warehouseID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize capacity %s: %w", key, err)
	}

	c.log.Info().Str("warehouse_id", warehouseID).Str("container_id", containerID).Msg("capacity initialized")
	return &capacity, nil
}

// capacityChange is the capacity half of an inventory transaction.
type capacityChange struct {
	Current     domain.ContainerCapacity
	NewCapacity int
	NewStatus   domain.ContainerStatus
}

// newCapacityChange applies delta to current and derives the resulting status.
// It fails before any write when the result leaves [0, maxCapacity] or when the
// container status graph does not allow the jump.
func newCapacityChange(op string, current domain.ContainerCapacity, delta, maxCapacity int) (capacityChange, error) {
	if err := domain.CheckCapacity(op, current.ContainerID, current.CurrentCapacity, delta, maxCapacity); err != nil {
		return capacityChange{}, err
	}
	next := current.CurrentCapacity + delta
	status := domain.DeriveContainerStatus(next, maxCapacity)
	if !status.CanTransitionFrom(current.Status) {
		return capacityChange{}, &statusJumpError{op: op, containerID: current.ContainerID, from: current.Status, to: status}
	}
	return capacityChange{Current: current, NewCapacity: next, NewStatus: status}, nil
}

// write guards on the capacity value that was read, so a concurrent change aborts the transaction.
func (c capacityChange) write(now time.Time) domain.Write {
	return domain.Write{
		Mode: domain.WriteUpdate,
		Key:  domain.CapacityKey(c.Current.WarehouseID, c.Current.ContainerID),
		Conditions: []domain.Condition{
			domain.Equals(domain.AttrCurrentCapacity, strconv.Itoa(c.Current.CurrentCapacity)),
			domain.In(domain.AttrStatus, domain.StatusValues(c.NewStatus.Predecessors())...),
		},
		Attributes: domain.Record{
			domain.AttrCurrentCapacity: strconv.Itoa(c.NewCapacity),
			domain.AttrStatus:          string(c.NewStatus),
			domain.AttrModifiedAt:      domain.FormatTime(now),
		},
	}
}

// statusJumpError reports a capacity change whose derived status is not a
// successor of the stored one, e.g. Available straight to Filled.
type statusJumpError struct {
	op          string
	containerID string
	from, to    domain.ContainerStatus
}

func (e *statusJumpError) Error() string {
	return fmt.Sprintf("%s: container %s cannot move from %s to %s", e.op, e.containerID, e.from, e.to)
}

func (e *statusJumpError) asDomain() error {
	return domain.NewError(domain.KindNonRetriable, e.op,
		fmt.Sprintf("container %s cannot move from %s to %s", e.containerID, e.from, e.to), nil)
}
