package domain

import (
	"fmt"
	"strconv"
	"time"
)

// ContainerCapacity tracks how many items currently sit in a container.
type ContainerCapacity struct {
	WarehouseID     string
	ContainerID     string
	CurrentCapacity int
	Status          ContainerStatus
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// DeriveContainerStatus maps a capacity to its container status.
// Callers must ensure 0 <= newCapacity <= maxCapacity; anything else panics.
func DeriveContainerStatus(newCapacity, maxCapacity int) ContainerStatus {
	if newCapacity < 0 || newCapacity > maxCapacity {
		panic(fmt.Sprintf("domain: capacity %d outside [0, %d]", newCapacity, maxCapacity))
	}
	switch newCapacity {
	case 0:
		return ContainerStatusAvailable
	case maxCapacity:
		return ContainerStatusFilled
	default:
		return ContainerStatusPartiallyFilled
	}
}

// CheckCapacity returns a CapacityExceeded error when applying delta to existing
// would leave the range [0, maxCapacity].
func CheckCapacity(op, containerID string, existing, delta, maxCapacity int) error {
	next := existing + delta
	if next < 0 {
		return NewError(KindCapacityExceeded, op,
			fmt.Sprintf("container %s holds %d, cannot remove %d", containerID, existing, -delta), nil)
	}
	if next > maxCapacity {
		return NewError(KindCapacityExceeded, op,
			fmt.Sprintf("container %s holds %d of %d, cannot add %d", containerID, existing, maxCapacity, delta), nil)
	}
	return nil
}

// CapacityKey addresses the capacity record of one container.
func CapacityKey(warehouseID, containerID string) Key {
	return Key{Table: TableCapacity, WarehouseID: warehouseID, ID: containerID}
}

// Record renders the capacity as store attributes.
func (c ContainerCapacity) Record() Record {
	return Record{
		AttrCurrentCapacity: strconv.Itoa(c.CurrentCapacity),
		AttrStatus:          string(c.Status),
		AttrCreatedAt:       formatTime(c.CreatedAt),
		AttrModifiedAt:      formatTime(c.ModifiedAt),
	}
}

// CapacityFromRecord parses a stored capacity record.
func CapacityFromRecord(key Key, r Record) (*ContainerCapacity, error) {
	current, err := strconv.Atoi(r[AttrCurrentCapacity])
	if err != nil {
		return nil, fmt.Errorf("parse current capacity of %s: %w", key, err)
	}
	status := ContainerStatus(r[AttrStatus])
	if !status.Valid() {
		return nil, fmt.Errorf("unknown container status %q on %s", status, key)
	}
	return &ContainerCapacity{
		WarehouseID:     key.WarehouseID,
		ContainerID:     key.ID,
		CurrentCapacity: current,
		Status:          status,
		CreatedAt:       parseTime(r[AttrCreatedAt]),
		ModifiedAt:      parseTime(r[AttrModifiedAt]),
	}, nil
}
