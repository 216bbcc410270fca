package domain

import (
	"fmt"
	"time"
)

// InventoryItem is one physical unit tracked from production to outbound.
type InventoryItem struct {
	ProductID      string
	CompanyID      string
	WarehouseID    string
	SKUCode        string
	SKUCategory    string
	SKUType        string
	Status         InventoryStatus
	ContainerID    string // empty until inbound
	InboundID      string
	OutboundID     string
	OrderID        string
	ProductionTime time.Time
	CreatedAt      time.Time
	ModifiedAt     time.Time
}

func InventoryKey(warehouseID, productID string) Key {
	return Key{Table: TableInventory, WarehouseID: warehouseID, ID: productID}
}

func (i InventoryItem) Key() Key {
	return InventoryKey(i.WarehouseID, i.ProductID)
}

func (i InventoryItem) Record() Record {
	r := Record{
		AttrCompanyID:      i.CompanyID,
		AttrSKUCode:        i.SKUCode,
		AttrSKUCategory:    i.SKUCategory,
		AttrSKUType:        i.SKUType,
		AttrStatus:         string(i.Status),
		AttrProductionTime: formatTime(i.ProductionTime),
		AttrCreatedAt:      formatTime(i.CreatedAt),
		AttrModifiedAt:     formatTime(i.ModifiedAt),
	}
	optional := map[string]string{
		AttrContainerID: i.ContainerID,
		AttrInboundID:   i.InboundID,
		AttrOutboundID:  i.OutboundID,
		AttrOrderID:     i.OrderID,
	}
	for attr, v := range optional {
		if v != "" {
			r[attr] = v
		}
	}
	return r
}

func InventoryItemFromRecord(key Key, r Record) (*InventoryItem, error) {
	status := InventoryStatus(r[AttrStatus])
	if !status.Valid() {
		return nil, fmt.Errorf("unknown inventory status %q on %s", status, key)
	}
	return &InventoryItem{
		ProductID:      key.ID,
		WarehouseID:    key.WarehouseID,
		CompanyID:      r[AttrCompanyID],
		SKUCode:        r[AttrSKUCode],
		SKUCategory:    r[AttrSKUCategory],
		SKUType:        r[AttrSKUType],
		Status:         status,
		ContainerID:    r[AttrContainerID],
		InboundID:      r[AttrInboundID],
		OutboundID:     r[AttrOutboundID],
		OrderID:        r[AttrOrderID],
		ProductionTime: parseTime(r[AttrProductionTime]),
		CreatedAt:      parseTime(r[AttrCreatedAt]),
		ModifiedAt:     parseTime(r[AttrModifiedAt]),
	}, nil
}

// FormatTime renders a timestamp the way records store it.
func FormatTime(t time.Time) string { return formatTime(t) }
