package domain

import (
	"fmt"
	"time"
)

// Table names a record family in the store.
type Table string

const (
	TableInventory Table = "inventory"
	TableCapacity  Table = "capacity"
)

// Attribute names shared by every store implementation.
const (
	AttrCompanyID       = "company_id"
	AttrSKUCode         = "sku_code"
	AttrSKUCategory     = "sku_category"
	AttrSKUType         = "sku_type"
	AttrStatus          = "status"
	AttrContainerID     = "container_id"
	AttrInboundID       = "inbound_id"
	AttrOutboundID      = "outbound_id"
	AttrOrderID         = "order_id"
	AttrProductionTime  = "production_time"
	AttrCurrentCapacity = "current_capacity"
	AttrCreatedAt       = "created_at"
	AttrModifiedAt      = "modified_at"
)

// Key is the composite primary key of a record. Every table is partitioned by warehouse.
type Key struct {
	Table       Table
	WarehouseID string
	ID          string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Table, k.WarehouseID, k.ID)
}

// Record is the flat attribute set stored under a Key. Absent attributes are
// either missing from the map or empty.
type Record map[string]string

// Operator is the comparison a Condition applies to a stored attribute.
type Operator string

const (
	OpEquals Operator = "eq"
	OpIn     Operator = "in"
	OpAbsent Operator = "absent"
)

// Condition guards a Write on the currently stored value of one attribute.
type Condition struct {
	Attr   string
	Op     Operator
	Values []string
}

func Equals(attr, value string) Condition {
	return Condition{Attr: attr, Op: OpEquals, Values: []string{value}}
}

func In(attr string, values ...string) Condition {
	return Condition{Attr: attr, Op: OpIn, Values: values}
}

func Absent(attr string) Condition {
	return Condition{Attr: attr, Op: OpAbsent}
}

// Matches evaluates c against a stored value. It mirrors the server-side
// evaluation each store performs.
func (c Condition) Matches(current string, present bool) bool {
	switch c.Op {
	case OpEquals:
		return present && current == c.Values[0]
	case OpIn:
		if !present {
			return false
		}
		for _, v := range c.Values {
			if v == current {
				return true
			}
		}
		return false
	case OpAbsent:
		return !present || current == ""
	}
	return false
}

// WriteMode selects between creating a new record and updating an existing one.
type WriteMode string

const (
	WriteCreate WriteMode = "create"
	WriteUpdate WriteMode = "update"
)

// Write is one guarded mutation. A create requires the record to be absent; an
// update requires it to exist and every condition to hold. Attributes are
// merged into the stored record.
type Write struct {
	Mode       WriteMode
	Key        Key
	Conditions []Condition
	Attributes Record
}

// TransactionCanceledError reports that an atomic transaction was aborted
// because the write at Index failed its guard. Nothing was applied.
type TransactionCanceledError struct {
	Index int
	Key   Key
}

func (e *TransactionCanceledError) Error() string {
	return fmt.Sprintf("transaction canceled: guard failed on write %d (%s)", e.Index, e.Key)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
