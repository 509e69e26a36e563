package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/store"
	"sharddb/pkg/types"
)

func open(t *testing.T, b *Backend, dsn string) store.Conn {
	t.Helper()
	c, err := b.Open(context.Background(), types.Descriptor{ID: "s", Driver: Driver, DSN: dsn})
	require.NoError(t, err)
	return c
}

func users(t *testing.T, c store.Conn, schema string) []types.Record {
	t.Helper()
	rows, err := c.Query(context.Background(), store.SelectUsers(schema))
	require.NoError(t, err)
	raw, err := store.Collect(rows, len(store.UserColumns))
	require.NoError(t, err)

	out := make([]types.Record, 0, len(raw))
	for _, r := range raw {
		out = append(out, types.Record{ID: r[0], Age: r[1]})
	}
	return out
}

func TestDataOutlivesConnections(t *testing.T) {
	ctx := context.Background()
	b := New()

	c := open(t, b, "shard1")
	_, err := c.Exec(ctx, store.CreateUsersTable(""))
	require.NoError(t, err)
	n, err := c.Exec(ctx, store.InsertUser("", types.Record{ID: 3, Age: 23}))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
	require.NoError(t, c.Close())

	c = open(t, b, "shard1")
	defer c.Close()
	require.Equal(t, []types.Record{{ID: 3, Age: 23}}, users(t, c, ""))

	other := open(t, b, "shard2")
	defer other.Close()
	_, err = other.Query(ctx, store.SelectUsers(""))
	require.ErrorIs(t, err, store.ErrNoSuchTable)
}

func TestDuplicateKeyKeepsFirstRow(t *testing.T) {
	ctx := context.Background()
	c := open(t, New(), "db")
	defer c.Close()

	_, err := c.Exec(ctx, store.CreateUsersTable(""))
	require.NoError(t, err)
	_, err = c.Exec(ctx, store.InsertUser("", types.Record{ID: 5, Age: 25}))
	require.NoError(t, err)

	_, err = c.Exec(ctx, store.InsertUser("", types.Record{ID: 5, Age: 99}))
	require.ErrorIs(t, err, dberrors.ErrDuplicateKey)

	require.Equal(t, []types.Record{{ID: 5, Age: 25}}, users(t, c, ""))
}

func TestRowsOrderedByPrimaryKey(t *testing.T) {
	ctx := context.Background()
	c := open(t, New(), "db")
	defer c.Close()

	_, err := c.Exec(ctx, store.CreateUsersTable(""))
	require.NoError(t, err)
	for _, id := range []int64{9, 1, 7, 3, 5} {
		_, err := c.Exec(ctx, store.InsertUser("", types.Record{ID: id, Age: 20 + id}))
		require.NoError(t, err)
	}

	got := users(t, c, "")
	require.Len(t, got, 5)
	for i, want := range []int64{1, 3, 5, 7, 9} {
		require.Equal(t, want, got[i].ID)
		require.Equal(t, 20+want, got[i].Age)
	}
}

func TestSchemaMustExist(t *testing.T) {
	ctx := context.Background()
	c := open(t, New(), "db")
	defer c.Close()

	_, err := c.Exec(ctx, store.CreateUsersTable("app"))
	require.ErrorIs(t, err, ErrNoSuchSchema)

	_, err = c.Exec(ctx, store.CreateSchema("app"))
	require.NoError(t, err)
	_, err = c.Exec(ctx, store.CreateUsersTable("app"))
	require.NoError(t, err)
	// IF NOT EXISTS semantics
	_, err = c.Exec(ctx, store.CreateUsersTable("app"))
	require.NoError(t, err)

	_, err = c.Exec(ctx, store.InsertUser("app", types.Record{ID: 1, Age: 2}))
	require.NoError(t, err)
	require.Len(t, users(t, c, "app"), 1)
}

func TestFaultInjection(t *testing.T) {
	b := New()
	refused := errors.New("connection refused")
	b.Fail("down", refused)

	_, err := b.Open(context.Background(), types.Descriptor{ID: "s", DSN: "down"})
	require.ErrorIs(t, err, refused)

	b.Heal("down")
	c, err := b.Open(context.Background(), types.Descriptor{ID: "s", DSN: "down"})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestClosedConnection(t *testing.T) {
	c := open(t, New(), "db")
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Close(), dberrors.ErrClosed)

	_, err := c.Exec(context.Background(), store.CreateUsersTable(""))
	require.ErrorIs(t, err, dberrors.ErrClosed)
}

func TestUnsupportedStatements(t *testing.T) {
	ctx := context.Background()
	c := open(t, New(), "db")
	defer c.Close()

	_, err := c.Exec(ctx, store.Statement{Kind: store.KindRaw, Text: "DROP TABLE users"})
	require.ErrorIs(t, err, store.ErrUnsupportedStatement)

	_, err = c.Query(ctx, store.InsertUser("", types.Record{ID: 1}))
	require.ErrorIs(t, err, store.ErrUnsupportedStatement)
}
