package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

// InventoryStore creates inventory items and submits the atomic transactions that
// couple item transitions with capacity updates. Each call handles one sub-batch.
type InventoryStore struct {
	store   port.Store
	ceiling int
	log     *logger.Logger
}

func NewInventoryStore(store port.Store, ceiling int, log *logger.Logger) *InventoryStore {
	return &InventoryStore{store: store, ceiling: ceiling, log: log.Component("inventory-store")}
}

// inboundBatch places items into a container.
type inboundBatch struct {
	WarehouseID string
	CompanyID   string // optional ownership guard
	ContainerID string
	InboundID   string
	SKUCode     string
	ItemIDs     []string
	Capacity    capacityChange
}

// outboundBatch ships items out of a container.
type outboundBatch struct {
	WarehouseID string
	CompanyID   string
	ContainerID string
	OutboundID  string
	OrderID     string
	SKUCode     string
	ItemIDs     []string
	Capacity    capacityChange
}

// moveBatch relocates items between two containers.
type moveBatch struct {
	WarehouseID            string
	SourceContainerID      string
	DestinationContainerID string
	SKUCode                string
	ItemIDs                []string
	Source                 capacityChange
	Destination            capacityChange
}

// txIntent describes a transaction for diagnosis when it is rejected.
type txIntent struct {
	ID          string
	Op          string
	WarehouseID string
	Items       int
	Capacities  []capacityChange
}

func newIntent(op, warehouseID string, items int, capacities ...capacityChange) txIntent {
	return txIntent{ID: uuid.NewString(), Op: op, WarehouseID: warehouseID, Items: items, Capacities: capacities}
}

// ExistingItems returns the subset of ids that already exist in the warehouse.
func (s *InventoryStore) ExistingItems(ctx context.Context, warehouseID string, ids []string) ([]string, error) {
	found, err := s.GetItems(ctx, warehouseID, ids)
	if err != nil {
		return nil, err
	}
	existing := make([]string, 0, len(found))
	for _, id := range ids {
		if _, ok := found[id]; ok {
			existing = append(existing, id)
		}
	}
	return existing, nil
}

// GetItems loads the items among ids that exist, keyed by product id.
func (s *InventoryStore) GetItems(ctx context.Context, warehouseID string, ids []string) (map[string]*domain.InventoryItem, error) {
	keys := make([]domain.Key, len(ids))
	for i, id := range ids {
		keys[i] = domain.InventoryKey(warehouseID, id)
	}
	records, err := s.store.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("batch get items: %w", err)
	}

	items := make(map[string]*domain.InventoryItem, len(records))
	for key, rec := range records {
		item, err := domain.InventoryItemFromRecord(key, rec)
		if err != nil {
			return nil, domain.NewError(domain.KindNonRetriable, "get items", "corrupt record", err)
		}
		items[key.ID] = item
	}
	return items, nil
}

// Add creates items with status Production in one atomic transaction. If any of
// them exists already nothing is written and ResourceAlreadyExists is returned.
func (s *InventoryStore) Add(ctx context.Context, items []domain.InventoryItem) error {
	if len(items) == 0 {
		return nil
	}
	writes := make([]domain.Write, len(items))
	for i, item := range items {
		writes[i] = domain.Write{Mode: domain.WriteCreate, Key: item.Key(), Attributes: item.Record()}
	}

	intent := newIntent("add", items[0].WarehouseID, len(items))
	err := s.commit(ctx, intent, writes)
	if errors.Is(err, domain.ErrInconsistentState) {
		return domain.NewError(domain.KindResourceAlreadyExists, "add",
			"one or more item ids already exist (transaction "+intent.ID+")", nil)
	}
	return err
}

// TransitionItem re-asserts target on one item and only refreshes its modified
// time. The write is accepted only when the stored status already equals target:
// moving an item between statuses changes a container's capacity and must go
// through Inbound or Outbound.
func (s *InventoryStore) TransitionItem(ctx context.Context, warehouseID, productID string, target domain.InventoryStatus) error {
	write := domain.Write{
		Mode: domain.WriteUpdate,
		Key:  domain.InventoryKey(warehouseID, productID),
		Conditions: []domain.Condition{
			domain.Equals(domain.AttrStatus, string(target)),
		},
		Attributes: domain.Record{
			domain.AttrModifiedAt: domain.FormatTime(time.Now()),
		},
	}
	err := s.store.Put(ctx, write)
	var canceled *domain.TransactionCanceledError
	if errors.As(err, &canceled) {
		return domain.NewError(domain.KindInconsistentState, "transition item",
			fmt.Sprintf("item %s is missing or not in status %s", productID, target), nil)
	}
	return err
}

// Inbound sets every item to Inbound in the container and raises the container's
// capacity, all in one transaction. Items must still be unplaced, so an inbound
// repeated after it committed is rejected rather than counted twice.
func (s *InventoryStore) Inbound(ctx context.Context, b inboundBatch) error {
	now := time.Now()
	writes := make([]domain.Write, 0, len(b.ItemIDs)+1)
	for _, id := range b.ItemIDs {
		conds := []domain.Condition{
			domain.In(domain.AttrStatus, domain.StatusValues(domain.InventoryStatusInbound.Predecessors())...),
			domain.Absent(domain.AttrContainerID),
			domain.Equals(domain.AttrSKUCode, b.SKUCode),
		}
		writes = append(writes, domain.Write{
			Mode:       domain.WriteUpdate,
			Key:        domain.InventoryKey(b.WarehouseID, id),
			Conditions: withCompany(conds, b.CompanyID),
			Attributes: domain.Record{
				domain.AttrStatus:      string(domain.InventoryStatusInbound),
				domain.AttrContainerID: b.ContainerID,
				domain.AttrInboundID:   b.InboundID,
				domain.AttrModifiedAt:  domain.FormatTime(now),
			},
		})
	}
	writes = append(writes, b.Capacity.write(now))

	return s.commit(ctx, newIntent("inbound", b.WarehouseID, len(b.ItemIDs), b.Capacity), writes)
}

// Outbound sets every item to Outbound and lowers the container's capacity in
// one transaction. Items must sit in the container and not be shipped yet.
func (s *InventoryStore) Outbound(ctx context.Context, b outboundBatch) error {
	now := time.Now()
	writes := make([]domain.Write, 0, len(b.ItemIDs)+1)
	for _, id := range b.ItemIDs {
		conds := []domain.Condition{
			domain.In(domain.AttrStatus, domain.StatusValues(domain.InventoryStatusOutbound.Predecessors())...),
			domain.Equals(domain.AttrContainerID, b.ContainerID),
			domain.Absent(domain.AttrOutboundID),
			domain.Equals(domain.AttrSKUCode, b.SKUCode),
		}
		writes = append(writes, domain.Write{
			Mode:       domain.WriteUpdate,
			Key:        domain.InventoryKey(b.WarehouseID, id),
			Conditions: withCompany(conds, b.CompanyID),
			Attributes: domain.Record{
				domain.AttrStatus:     string(domain.InventoryStatusOutbound),
				domain.AttrOutboundID: b.OutboundID,
				domain.AttrOrderID:    b.OrderID,
				domain.AttrModifiedAt: domain.FormatTime(now),
			},
		})
	}
	writes = append(writes, b.Capacity.write(now))

	return s.commit(ctx, newIntent("outbound", b.WarehouseID, len(b.ItemIDs), b.Capacity), writes)
}

// Move re-points items from the source to the destination container and shifts
// the capacity between them in one transaction. Status is unchanged.
func (s *InventoryStore) Move(ctx context.Context, b moveBatch) error {
	now := time.Now()
	writes := make([]domain.Write, 0, len(b.ItemIDs)+2)
	for _, id := range b.ItemIDs {
		writes = append(writes, domain.Write{
			Mode: domain.WriteUpdate,
			Key:  domain.InventoryKey(b.WarehouseID, id),
			Conditions: []domain.Condition{
				domain.Equals(domain.AttrStatus, string(domain.InventoryStatusInbound)),
				domain.Equals(domain.AttrContainerID, b.SourceContainerID),
				domain.Equals(domain.AttrSKUCode, b.SKUCode),
			},
			Attributes: domain.Record{
				domain.AttrContainerID: b.DestinationContainerID,
				domain.AttrModifiedAt:  domain.FormatTime(now),
			},
		})
	}
	writes = append(writes, b.Source.write(now), b.Destination.write(now))

	return s.commit(ctx, newIntent("move", b.WarehouseID, len(b.ItemIDs), b.Source, b.Destination), writes)
}

func withCompany(conds []domain.Condition, companyID string) []domain.Condition {
	if companyID == "" {
		return conds
	}
	return append(conds, domain.Equals(domain.AttrCompanyID, companyID))
}

// commit submits writes as one transaction and maps a guard failure to InconsistentState.
func (s *InventoryStore) commit(ctx context.Context, intent txIntent, writes []domain.Write) error {
	if len(writes) > s.ceiling {
		return domain.NewError(domain.KindNonRetriable, intent.Op,
			fmt.Sprintf("transaction of %d records exceeds the ceiling of %d", len(writes), s.ceiling), nil)
	}

	err := s.store.Transact(ctx, writes)
	if err == nil {
		s.log.Debug().Str("tx_id", intent.ID).Str("op", intent.Op).Int("items", intent.Items).Msg("transaction committed")
		return nil
	}

	var canceled *domain.TransactionCanceledError
	if !errors.As(err, &canceled) {
		s.log.Error().Err(err).Str("tx_id", intent.ID).Str("op", intent.Op).Msg("transaction failed")
		return fmt.Errorf("%s transaction %s: %w", intent.Op, intent.ID, err)
	}

	s.logRejected(intent, canceled)
	return domain.NewError(domain.KindInconsistentState, intent.Op,
		fmt.Sprintf("transaction %s rejected: capacity changed concurrently, unknown items, or ownership mismatch", intent.ID), err)
}

func (s *InventoryStore) logRejected(intent txIntent, canceled *domain.TransactionCanceledError) {
	containers := make([]string, len(intent.Capacities))
	for i, c := range intent.Capacities {
		containers[i] = fmt.Sprintf("%s:%d->%d(%s->%s)", c.Current.ContainerID,
			c.Current.CurrentCapacity, c.NewCapacity, c.Current.Status, c.NewStatus)
	}
	s.log.Error().
		Str("tx_id", intent.ID).
		Str("op", intent.Op).
		Str("warehouse_id", intent.WarehouseID).
		Int("items", intent.Items).
		Str("capacity", strings.Join(containers, ",")).
		Int("failed_index", canceled.Index).
		Stringer("failed_key", canceled.Key).
		Msg("transaction rejected")
}
