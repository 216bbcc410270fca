package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/container-inventory/internal/config"
	"github.com/rl1809/container-inventory/internal/core/domain"
	"github.com/rl1809/container-inventory/internal/logger"
	"github.com/rl1809/container-inventory/internal/port"
)

var _ port.Store = (*MySQLAdapter)(nil)

//go:embed schema.sql
var schema string

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type sqlTable struct {
	name    string
	idCol   string
	columns []string
}

var sqlTables = map[domain.Table]sqlTable{
	domain.TableInventory: {
		name:  "inventory_items",
		idCol: "product_id",
		columns: []string{
			domain.AttrCompanyID, domain.AttrSKUCode, domain.AttrSKUCategory, domain.AttrSKUType,
			domain.AttrStatus, domain.AttrContainerID, domain.AttrInboundID, domain.AttrOutboundID,
			domain.AttrOrderID, domain.AttrProductionTime, domain.AttrCreatedAt, domain.AttrModifiedAt,
		},
	},
	domain.TableCapacity: {
		name:    "container_capacity",
		idCol:   "container_id",
		columns: []string{domain.AttrCurrentCapacity, domain.AttrStatus, domain.AttrCreatedAt, domain.AttrModifiedAt},
	},
}

func (t sqlTable) hasColumn(attr string) bool {
	for _, c := range t.columns {
		if c == attr {
			return true
		}
	}
	return false
}

// MySQLAdapter keeps records in one table per record family. Guards become
// WHERE clauses; a guarded UPDATE that matches no row cancels the transaction.
type MySQLAdapter struct {
	db  *sql.DB
	log *logger.Logger
}

func NewMySQLAdapter(db *sql.DB, log *logger.Logger) *MySQLAdapter {
	return &MySQLAdapter{db: db, log: log.Component("mysql-store")}
}

// OpenMySQL opens a pool whose UPDATE results report matched rows rather than
// changed rows, which the guard evaluation relies on.
func OpenMySQL(cfg config.MySQLConfig) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsn.ClientFoundRows = true

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Migrate creates the tables if they do not exist.
func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func tableFor(k domain.Key) (sqlTable, error) {
	t, ok := sqlTables[k.Table]
	if !ok {
		return sqlTable{}, domain.NewError(domain.KindNonRetriable, "mysql", fmt.Sprintf("unknown table %q", k.Table), nil)
	}
	return t, nil
}

func (m *MySQLAdapter) Get(ctx context.Context, key domain.Key) (domain.Record, bool, error) {
	t, err := tableFor(key)
	if err != nil {
		return nil, false, err
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE warehouse_id = ? AND %s = ?`,
		strings.Join(t.columns, ", "), t.name, t.idCol)
	values := make([]sql.NullString, len(t.columns))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	err = m.db.QueryRowContext(ctx, query, key.WarehouseID, key.ID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifyMySQLError("get", err)
	}
	return toRecord(t.columns, values), true, nil
}

func toRecord(columns []string, values []sql.NullString) domain.Record {
	rec := make(domain.Record, len(columns))
	for i, col := range columns {
		if values[i].Valid && values[i].String != "" {
			rec[col] = values[i].String
		}
	}
	return rec
}

func (m *MySQLAdapter) Put(ctx context.Context, write domain.Write) error {
	return m.Transact(ctx, []domain.Write{write})
}

func (m *MySQLAdapter) Transact(ctx context.Context, writes []domain.Write) error {
	if len(writes) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyMySQLError("begin tx", err)
	}
	defer tx.Rollback()

	for i, w := range writes {
		applied, err := m.apply(ctx, tx, w)
		if err != nil {
			return err
		}
		if !applied {
			m.log.Trace().Int("index", i).Stringer("key", w.Key).Msg("guard failed")
			return &domain.TransactionCanceledError{Index: i, Key: w.Key}
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyMySQLError("commit", err)
	}
	return nil
}

// apply executes one write inside tx and reports whether its guard held.
func (m *MySQLAdapter) apply(ctx context.Context, tx *sql.Tx, w domain.Write) (bool, error) {
	t, err := tableFor(w.Key)
	if err != nil {
		return false, err
	}
	attrs := sortedAttrs(w.Attributes)
	for _, a := range attrs {
		if !t.hasColumn(a) {
			return false, domain.NewError(domain.KindNonRetriable, "mysql", fmt.Sprintf("unknown attribute %q on %s", a, t.name), nil)
		}
	}

	switch w.Mode {
	case domain.WriteCreate:
		cols := append([]string{"warehouse_id", t.idCol}, attrs...)
		args := []any{w.Key.WarehouseID, w.Key.ID}
		for _, a := range attrs {
			args = append(args, nullable(w.Attributes[a]))
		}
		query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
			t.name, strings.Join(cols, ", "), placeholders(len(cols)))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			var myErr *mysql.MySQLError
			if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
				return false, nil
			}
			return false, classifyMySQLError("insert", err)
		}
		return true, nil

	case domain.WriteUpdate:
		sets := make([]string, len(attrs))
		args := make([]any, 0, len(attrs)+2)
		for i, a := range attrs {
			sets[i] = a + " = ?"
			args = append(args, nullable(w.Attributes[a]))
		}
		where := []string{"warehouse_id = ?", t.idCol + " = ?"}
		args = append(args, w.Key.WarehouseID, w.Key.ID)
		for _, c := range w.Conditions {
			if !t.hasColumn(c.Attr) {
				return false, domain.NewError(domain.KindNonRetriable, "mysql", fmt.Sprintf("unknown attribute %q on %s", c.Attr, t.name), nil)
			}
			clause, condArgs := conditionSQL(c)
			where = append(where, clause)
			args = append(args, condArgs...)
		}
		if len(sets) == 0 {
			// Guard-only write: touch the key column so the row still counts as matched.
			sets = append(sets, t.idCol+" = "+t.idCol)
		}
		query := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
			t.name, strings.Join(sets, ", "), strings.Join(where, " AND "))
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return false, classifyMySQLError("update", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return false, classifyMySQLError("rows affected", err)
		}
		return rows == 1, nil
	}
	return false, domain.NewError(domain.KindNonRetriable, "mysql", fmt.Sprintf("unknown write mode %q", w.Mode), nil)
}

func conditionSQL(c domain.Condition) (string, []any) {
	switch c.Op {
	case domain.OpEquals:
		return c.Attr + " = ?", []any{c.Values[0]}
	case domain.OpIn:
		args := make([]any, len(c.Values))
		for i, v := range c.Values {
			args[i] = v
		}
		return fmt.Sprintf("%s IN (%s)", c.Attr, placeholders(len(c.Values))), args
	case domain.OpAbsent:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", c.Attr, c.Attr), nil
	}
	// Unknown operators never hold.
	return "FALSE", nil
}

func (m *MySQLAdapter) BatchGet(ctx context.Context, keys []domain.Key) (map[domain.Key]domain.Record, error) {
	found := make(map[domain.Key]domain.Record, len(keys))

	type group struct {
		table     domain.Table
		warehouse string
	}
	groups := make(map[group][]string)
	for _, k := range keys {
		g := group{table: k.Table, warehouse: k.WarehouseID}
		groups[g] = append(groups[g], k.ID)
	}

	for g, ids := range groups {
		t, err := tableFor(domain.Key{Table: g.table})
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE warehouse_id = ? AND %s IN (%s)`,
			t.idCol, strings.Join(t.columns, ", "), t.name, t.idCol, placeholders(len(ids)))
		args := make([]any, 0, len(ids)+1)
		args = append(args, g.warehouse)
		for _, id := range ids {
			args = append(args, id)
		}

		if err := m.collect(ctx, query, args, t, g.table, g.warehouse, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (m *MySQLAdapter) collect(ctx context.Context, query string, args []any, t sqlTable, table domain.Table, warehouse string, found map[domain.Key]domain.Record) error {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return classifyMySQLError("batch get", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		values := make([]sql.NullString, len(t.columns))
		dest := []any{&id}
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return classifyMySQLError("scan", err)
		}
		found[domain.Key{Table: table, WarehouseID: warehouse, ID: id}] = toRecord(t.columns, values)
	}
	if err := rows.Err(); err != nil {
		return classifyMySQLError("batch get", err)
	}
	return nil
}

func sortedAttrs(r domain.Record) []string {
	attrs := make([]string, 0, len(r))
	for a := range r {
		attrs = append(attrs, a)
	}
	sort.Strings(attrs)
	return attrs
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func classifyMySQLError(op string, err error) error {
	if isTransientMySQLError(err) {
		return domain.NewError(domain.KindRetriable, "mysql "+op, "", err)
	}
	return domain.NewError(domain.KindNonRetriable, "mysql "+op, "", err)
}

func isTransientMySQLError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDeadlock || myErr.Number == mysqlErrLockWaitTimeout
	}
	return false
}
