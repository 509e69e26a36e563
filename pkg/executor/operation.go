package executor

import (
	"iter"
	"slices"

	"sharddb/pkg/store"
	"sharddb/pkg/types"
)

// Operation is one unit of work against a single shard: Setup, Insert or
// QueryAll.
type Operation interface {
	Name() string
	statements(shard types.Descriptor) []store.Statement
}

// Setup creates the shard's schema (when one is configured) and the users
// table. It is safe to repeat.
type Setup struct{}

func (Setup) Name() string { return "setup" }

func (Setup) statements(shard types.Descriptor) []store.Statement {
	var stmts []store.Statement
	if shard.Schema != "" {
		stmts = append(stmts, store.CreateSchema(shard.Schema))
	}
	return append(stmts, store.CreateUsersTable(shard.Schema))
}

// Insert adds one record. It is not idempotent: inserting an existing ID
// fails with dberrors.ErrDuplicateKey.
type Insert struct {
	Record types.Record
}

func (Insert) Name() string { return "insert" }

func (op Insert) statements(shard types.Descriptor) []store.Statement {
	return []store.Statement{store.InsertUser(shard.Schema, op.Record)}
}

// QueryAll reads every record held by the shard.
type QueryAll struct{}

func (QueryAll) Name() string { return "query_all" }

func (QueryAll) statements(shard types.Descriptor) []store.Statement {
	return []store.Statement{store.SelectUsers(shard.Schema)}
}

// Outcome is the result of a successful operation.
type Outcome struct {
	Shard        types.ShardID
	Op           string
	RowsAffected int64
	records      []types.Record
}

// Records yields the rows read by QueryAll in primary-key order. Rows are
// read before the connection is released, so the sequence can be iterated
// any number of times.
func (o Outcome) Records() iter.Seq[types.Record] {
	return slices.Values(o.records)
}

// Len returns the number of records held by the outcome.
func (o Outcome) Len() int {
	return len(o.records)
}
