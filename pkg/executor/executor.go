// Package executor runs single operations against single shards. Every
// failure comes back as a *dberrors.ShardError value so callers working on
// other shards are never affected.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/metrics"
	"sharddb/pkg/store"
	"sharddb/pkg/types"
)

type Option func(*Executor)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithTimeout bounds each operation, connection setup included. Zero means
// no bound beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

type Executor struct {
	backend store.Backend
	logger  *slog.Logger
	timeout time.Duration
}

func New(backend store.Backend, opts ...Option) *Executor {
	e := &Executor{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e
}

// Execute opens a connection to shard, runs op and releases the connection
// on every path. Errors are always *dberrors.ShardError.
func (e *Executor) Execute(ctx context.Context, shard types.Descriptor, op Operation) (out Outcome, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out, err = Outcome{}, e.fail(shard, op, fmt.Errorf("panic: %v", r))
		}
		metrics.ObserveOperation(shard.ID, op.Name(), err, time.Since(start))
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	conn, err := e.backend.Open(ctx, shard)
	if err != nil {
		return Outcome{}, e.fail(shard, op, fmt.Errorf("open: %w", err))
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			e.logger.Warn("failed to release connection", "shard", shard.ID, "op", op.Name(), "error", cerr)
		}
	}()

	out = Outcome{Shard: shard.ID, Op: op.Name()}
	for _, stmt := range op.statements(shard) {
		if stmt.Kind == store.KindSelectAll {
			out.records, err = e.query(ctx, conn, stmt)
			if err != nil {
				return Outcome{}, e.fail(shard, op, err)
			}
			continue
		}

		n, err := conn.Exec(ctx, stmt)
		if err != nil {
			return Outcome{}, e.fail(shard, op, err)
		}
		out.RowsAffected += n
	}

	e.logger.Debug("operation complete", "shard", shard.ID, "op", op.Name(), "rows_affected", out.RowsAffected, "records", len(out.records))
	return out, nil
}

func (e *Executor) query(ctx context.Context, conn store.Conn, stmt store.Statement) ([]types.Record, error) {
	rows, err := conn.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	raw, err := store.Collect(rows, len(stmt.Columns))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	records := make([]types.Record, 0, len(raw))
	for _, r := range raw {
		records = append(records, types.Record{ID: r[0], Age: r[1]})
	}
	return records, nil
}

func (e *Executor) fail(shard types.Descriptor, op Operation, cause error) *dberrors.ShardError {
	e.logger.Warn("shard operation failed", "shard", shard.ID, "op", op.Name(), "error", cause)
	return &dberrors.ShardError{Shard: shard.ID, Op: op.Name(), Cause: cause}
}
