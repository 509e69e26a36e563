// Package memstore is an in-process backing store. Databases are named by
// DSN and outlive the connections opened to them, so every connection to the
// same DSN sees the same tables. Rows are kept ordered by primary key.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zhangyunhao116/skipmap"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/store"
	"sharddb/pkg/types"
)

const Driver = "mem"

var ErrNoSuchSchema = errors.New("memstore: no such schema")

type orderedRows = skipmap.FuncMap[int64, []int64]

type table struct {
	columns []string
	rows    *orderedRows
}

type database struct {
	mu      sync.RWMutex
	schemas map[string]struct{}
	tables  map[string]*table
}

func newDatabase() *database {
	return &database{
		schemas: make(map[string]struct{}),
		tables:  make(map[string]*table),
	}
}

// Backend holds every named database of the process.
type Backend struct {
	mu     sync.Mutex
	dbs    map[string]*database
	faults map[string]error
}

func New() *Backend {
	return &Backend{
		dbs:    make(map[string]*database),
		faults: make(map[string]error),
	}
}

// Fail makes every subsequent Open of dsn fail with err until Heal is called.
func (b *Backend) Fail(dsn string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[dsn] = err
}

func (b *Backend) Heal(dsn string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.faults, dsn)
}

func (b *Backend) Open(ctx context.Context, shard types.Descriptor) (store.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if shard.DSN == "" {
		return nil, fmt.Errorf("%w: empty dsn for shard %s", dberrors.ErrInvalidArgument, shard.ID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.faults[shard.DSN]; err != nil {
		return nil, fmt.Errorf("memstore: open %s: %w", shard.DSN, err)
	}
	db, ok := b.dbs[shard.DSN]
	if !ok {
		db = newDatabase()
		b.dbs[shard.DSN] = db
	}
	return &conn{db: db}, nil
}

type conn struct {
	db     *database
	closed atomic.Bool
}

func (c *conn) Exec(ctx context.Context, stmt store.Statement) (int64, error) {
	if err := c.check(ctx, stmt); err != nil {
		return 0, err
	}

	switch stmt.Kind {
	case store.KindCreateSchema:
		c.db.mu.Lock()
		c.db.schemas[stmt.Schema] = struct{}{}
		c.db.mu.Unlock()
		return 0, nil
	case store.KindCreateTable:
		return 0, c.createTable(stmt)
	case store.KindInsert:
		return c.insert(stmt)
	default:
		return 0, fmt.Errorf("%w: memstore cannot exec %s", store.ErrUnsupportedStatement, stmt.Kind)
	}
}

func (c *conn) Query(ctx context.Context, stmt store.Statement) (store.Rows, error) {
	if err := c.check(ctx, stmt); err != nil {
		return nil, err
	}
	if stmt.Kind != store.KindSelectAll {
		return nil, fmt.Errorf("%w: memstore cannot query %s", store.ErrUnsupportedStatement, stmt.Kind)
	}

	t, err := c.table(stmt)
	if err != nil {
		return nil, err
	}
	projection, err := project(t.columns, stmt.Columns)
	if err != nil {
		return nil, err
	}

	out := make([][]int64, 0, t.rows.Len())
	t.rows.Range(func(_ int64, row []int64) bool {
		projected := make([]int64, len(projection))
		for i, col := range projection {
			projected[i] = row[col]
		}
		out = append(out, projected)
		return true
	})
	return store.NewSliceRows(out), nil
}

func (c *conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return dberrors.ErrClosed
	}
	return nil
}

func (c *conn) check(ctx context.Context, stmt store.Statement) error {
	if c.closed.Load() {
		return dberrors.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return stmt.Validate()
}

func (c *conn) createTable(stmt store.Statement) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if stmt.Schema != "" {
		if _, ok := c.db.schemas[stmt.Schema]; !ok {
			return fmt.Errorf("%w: %s", ErrNoSuchSchema, stmt.Schema)
		}
	}
	name := store.QualifiedName(stmt.Schema, stmt.Table)
	if _, exists := c.db.tables[name]; exists {
		return nil
	}
	c.db.tables[name] = &table{
		columns: append([]string(nil), stmt.Columns...),
		rows:    skipmap.NewFunc[int64, []int64](func(a, b int64) bool { return a < b }),
	}
	return nil
}

func (c *conn) insert(stmt store.Statement) (int64, error) {
	t, err := c.table(stmt)
	if err != nil {
		return 0, err
	}
	projection, err := project(t.columns, stmt.Columns)
	if err != nil {
		return 0, err
	}
	if len(projection) != len(t.columns) {
		return 0, fmt.Errorf("%w: insert must set all %d columns", dberrors.ErrInvalidArgument, len(t.columns))
	}

	row := make([]int64, len(t.columns))
	for i, col := range projection {
		v, err := store.Int64(stmt.Args[i])
		if err != nil {
			return 0, fmt.Errorf("column %s: %w", stmt.Columns[i], err)
		}
		row[col] = v
	}

	pk := row[0]
	if _, loaded := t.rows.LoadOrStore(pk, row); loaded {
		return 0, fmt.Errorf("%w: %s primary key %d", dberrors.ErrDuplicateKey, store.QualifiedName(stmt.Schema, stmt.Table), pk)
	}
	return 1, nil
}

func (c *conn) table(stmt store.Statement) (*table, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	name := store.QualifiedName(stmt.Schema, stmt.Table)
	t, ok := c.db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNoSuchTable, name)
	}
	return t, nil
}

// project maps requested column names to their positions in the table.
func project(tableColumns, requested []string) ([]int, error) {
	out := make([]int, len(requested))
	for i, name := range requested {
		pos := -1
		for j, col := range tableColumns {
			if col == name {
				pos = j
				break
			}
		}
		if pos < 0 {
			return nil, fmt.Errorf("%w: unknown column %q", dberrors.ErrInvalidArgument, name)
		}
		out[i] = pos
	}
	return out, nil
}
