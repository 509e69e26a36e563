// Package sqlstore reaches shards through database/sql. Postgres shards use
// lib/pq and MySQL shards use go-sql-driver/mysql.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // registers "mysql"
	_ "github.com/lib/pq"              // registers "postgres"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/store"
	"sharddb/pkg/types"
)

// Backend opens one dedicated database connection per Open call.
type Backend struct {
	driver  string
	dialect dialect
}

// New returns a backend for a registered database/sql driver name,
// "postgres" or "mysql".
func New(driver string) (*Backend, error) {
	d, err := lookupDialect(driver)
	if err != nil {
		return nil, err
	}
	return &Backend{driver: driver, dialect: d}, nil
}

func (b *Backend) Open(ctx context.Context, shard types.Descriptor) (store.Conn, error) {
	db, err := sql.Open(b.driver, shard.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", shard.ID, err)
	}
	db.SetMaxOpenConns(1)

	c, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlstore: connect %s: %w", shard.ID, err)
	}
	return &conn{db: db, conn: c, dialect: b.dialect}, nil
}

type conn struct {
	db      *sql.DB
	conn    *sql.Conn
	dialect dialect
}

func (c *conn) Exec(ctx context.Context, stmt store.Statement) (int64, error) {
	text, args, err := c.dialect.render(stmt)
	if err != nil {
		return 0, err
	}
	res, err := c.conn.ExecContext(ctx, text, args...)
	if err != nil {
		return 0, c.dialect.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// DDL on some drivers does not report affected rows.
		return 0, nil
	}
	return n, nil
}

func (c *conn) Query(ctx context.Context, stmt store.Statement) (store.Rows, error) {
	text, args, err := c.dialect.render(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := c.conn.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, c.dialect.classify(err)
	}
	return rows, nil
}

func (c *conn) Close() error {
	err := c.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		err = dberrors.ErrClosed
	}
	return errors.Join(err, c.db.Close())
}
