package domain

import "slices"

// InventoryStatus is the lifecycle state of a single inventory item.
type InventoryStatus string

const (
	InventoryStatusProduction InventoryStatus = "Production"
	InventoryStatusInbound    InventoryStatus = "Inbound"
	InventoryStatusOutbound   InventoryStatus = "Outbound"
)

// Predecessors returns the statuses from which a transition into s is accepted.
// Every status accepts itself so that re-asserting the current status is a no-op.
func (s InventoryStatus) Predecessors() []InventoryStatus {
	switch s {
	case InventoryStatusProduction:
		return []InventoryStatus{InventoryStatusProduction}
	case InventoryStatusInbound:
		return []InventoryStatus{InventoryStatusProduction, InventoryStatusInbound}
	case InventoryStatusOutbound:
		return []InventoryStatus{InventoryStatusInbound, InventoryStatusOutbound}
	}
	return nil
}

func (s InventoryStatus) Valid() bool { return s.Predecessors() != nil }

// CanTransitionFrom reports whether current may move to s.
func (s InventoryStatus) CanTransitionFrom(current InventoryStatus) bool {
	return slices.Contains(s.Predecessors(), current)
}

func (s InventoryStatus) String() string { return string(s) }

// ContainerStatus is derived from a container's current capacity, see DeriveContainerStatus.
type ContainerStatus string

const (
	ContainerStatusAvailable       ContainerStatus = "Available"
	ContainerStatusPartiallyFilled ContainerStatus = "PartiallyFilled"
	ContainerStatusFilled          ContainerStatus = "Filled"
)

func (s ContainerStatus) Predecessors() []ContainerStatus {
	switch s {
	case ContainerStatusAvailable:
		return []ContainerStatus{ContainerStatusAvailable, ContainerStatusPartiallyFilled}
	case ContainerStatusPartiallyFilled:
		return []ContainerStatus{ContainerStatusAvailable, ContainerStatusPartiallyFilled, ContainerStatusFilled}
	case ContainerStatusFilled:
		return []ContainerStatus{ContainerStatusPartiallyFilled, ContainerStatusFilled}
	}
	return nil
}

func (s ContainerStatus) Valid() bool { return s.Predecessors() != nil }

func (s ContainerStatus) CanTransitionFrom(current ContainerStatus) bool {
	return slices.Contains(s.Predecessors(), current)
}

func (s ContainerStatus) String() string { return string(s) }

// HeaderStatus is shared by inbound and outbound header records.
type HeaderStatus string

const (
	HeaderStatusActive HeaderStatus = "Active"
	HeaderStatusClosed HeaderStatus = "Closed"
)

func (s HeaderStatus) Predecessors() []HeaderStatus {
	switch s {
	case HeaderStatusActive:
		return []HeaderStatus{HeaderStatusActive}
	case HeaderStatusClosed:
		return []HeaderStatus{HeaderStatusActive, HeaderStatusClosed}
	}
	return nil
}

func (s HeaderStatus) Valid() bool { return s.Predecessors() != nil }

func (s HeaderStatus) CanTransitionFrom(current HeaderStatus) bool {
	return slices.Contains(s.Predecessors(), current)
}

func (s HeaderStatus) String() string { return string(s) }

// StatusValues renders a predecessor set for use in store conditions.
func StatusValues[S ~string](statuses []S) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
