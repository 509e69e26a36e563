package cluster

import (
	"context"
	"errors"
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/executor"
	"sharddb/pkg/metrics"
	"sharddb/pkg/types"
)

// shardExecutor runs one operation against one shard.
type shardExecutor interface {
	Execute(ctx context.Context, shard Descriptor, op executor.Operation) (executor.Outcome, error)
}

type Option func(*ShardedDB)

// WithParallelism caps how many shards a fan-out works on at once. Zero or
// less means one goroutine per shard.
func WithParallelism(n int) Option {
	return func(db *ShardedDB) {
		db.parallelism = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(db *ShardedDB) {
		db.logger = logger
	}
}

// ShardedDB routes single-record writes through a Router and fans reads and
// setup out to every shard with partial-success semantics.
type ShardedDB struct {
	router      *Router
	exec        shardExecutor
	parallelism int
	logger      *slog.Logger
}

func NewShardedDB(router *Router, exec shardExecutor, opts ...Option) *ShardedDB {
	db := &ShardedDB{router: router, exec: exec, logger: slog.Default()}
	for _, opt := range opts {
		opt(db)
	}
	db.logger = db.logger.With("component", "sharded_db")
	return db
}

func (db *ShardedDB) Router() *Router {
	return db.router
}

// Insert routes r by its ID and inserts it into the owning shard. Routing
// errors are returned as is; execution errors are *dberrors.ShardError.
func (db *ShardedDB) Insert(ctx context.Context, r types.Record) (executor.Outcome, error) {
	shard, err := db.router.Descriptor(r.ID)
	if err != nil {
		return executor.Outcome{}, err
	}
	return db.exec.Execute(ctx, shard, executor.Insert{Record: r})
}

// RecordError is a failed insert within InsertAll.
type RecordError struct {
	Record types.Record
	Err    error
}

// InsertReport summarizes InsertAll.
type InsertReport struct {
	Inserted map[types.ShardID]int
	Failures []RecordError
}

// InsertAll routes every record and inserts them. Shards are written
// concurrently; records bound for the same shard keep their input order.
// A failing record never stops the others.
func (db *ShardedDB) InsertAll(ctx context.Context, records []types.Record) InsertReport {
	report := InsertReport{Inserted: make(map[types.ShardID]int)}

	perShard := make(map[types.ShardID][]types.Record)
	for _, r := range records {
		id, err := db.router.Resolve(r.ID)
		if err != nil {
			report.Failures = append(report.Failures, RecordError{Record: r, Err: err})
			continue
		}
		perShard[id] = append(perShard[id], r)
	}

	type shardResult struct {
		inserted int
		failures []RecordError
	}
	ids := make([]types.ShardID, 0, len(perShard))
	for id := range db.router.AllShards() {
		if len(perShard[id]) > 0 {
			ids = append(ids, id)
		}
	}
	results := make([]shardResult, len(ids))

	g := db.group()
	for i, id := range ids {
		shard, _ := db.router.Topology().Get(id)
		g.Go(func() error {
			res := &results[i]
			for _, r := range perShard[id] {
				if _, err := db.exec.Execute(ctx, shard, executor.Insert{Record: r}); err != nil {
					res.failures = append(res.failures, RecordError{Record: r, Err: err})
					continue
				}
				res.inserted++
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		report.Inserted[id] = results[i].inserted
		report.Failures = append(report.Failures, results[i].failures...)
	}
	return report
}

// Setup prepares every shard.
func (db *ShardedDB) Setup(ctx context.Context) *FanOut {
	return db.fanOut(ctx, executor.Setup{})
}

// QueryAll reads every shard.
func (db *ShardedDB) QueryAll(ctx context.Context) *FanOut {
	return db.fanOut(ctx, executor.QueryAll{})
}

func (db *ShardedDB) group() *errgroup.Group {
	g := &errgroup.Group{}
	if db.parallelism > 0 {
		g.SetLimit(db.parallelism)
	}
	return g
}

func (db *ShardedDB) fanOut(ctx context.Context, op executor.Operation) *FanOut {
	id := uuid.NewString()
	topology := db.router.Topology()
	logger := db.logger.With("fanout", id, "op", op.Name())

	type slot struct {
		outcome executor.Outcome
		err     error
	}
	slots := make([]slot, topology.Len())

	g := db.group()
	i := 0
	for shardID := range db.router.AllShards() {
		shard, _ := topology.Get(shardID)
		s := &slots[i]
		g.Go(func() error {
			s.outcome, s.err = db.exec.Execute(ctx, shard, op)
			return nil
		})
		i++
	}
	_ = g.Wait()

	res := &FanOut{
		ID:       id,
		Op:       op.Name(),
		outcomes: make(map[types.ShardID]executor.Outcome),
		errors:   make(map[types.ShardID]*dberrors.ShardError),
	}
	i = 0
	for shardID := range db.router.AllShards() {
		res.order = append(res.order, shardID)
		s := slots[i]
		i++
		if s.err != nil {
			se, ok := dberrors.AsShardError(s.err)
			if !ok {
				se = &dberrors.ShardError{Shard: shardID, Op: op.Name(), Cause: s.err}
			}
			res.errors[shardID] = se
			continue
		}
		res.outcomes[shardID] = s.outcome
	}

	metrics.ObserveFanOut(op.Name(), len(res.order), len(res.errors))
	if len(res.errors) > 0 {
		logger.Warn("fan-out finished with failed shards", "failed", len(res.errors), "total", len(res.order))
	} else {
		logger.Debug("fan-out complete", "shards", len(res.order))
	}
	return res
}

// FanOut is the per-shard result of an operation issued against every shard.
// Results are keyed by shard id so output does not depend on completion order.
type FanOut struct {
	ID string
	Op string

	order    []types.ShardID
	outcomes map[types.ShardID]executor.Outcome
	errors   map[types.ShardID]*dberrors.ShardError
}

// Shards returns every shard touched, in topology order.
func (f *FanOut) Shards() []types.ShardID {
	return append([]types.ShardID(nil), f.order...)
}

// Outcome returns the result of a shard that succeeded.
func (f *FanOut) Outcome(id types.ShardID) (executor.Outcome, bool) {
	o, ok := f.outcomes[id]
	return o, ok
}

// Error returns the failure of a shard, or nil if it succeeded.
func (f *FanOut) Error(id types.ShardID) *dberrors.ShardError {
	return f.errors[id]
}

// OK lists the shards that succeeded, in topology order.
func (f *FanOut) OK() []types.ShardID {
	var out []types.ShardID
	for _, id := range f.order {
		if _, ok := f.outcomes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Failed lists the shards that failed, in topology order.
func (f *FanOut) Failed() []types.ShardID {
	var out []types.ShardID
	for _, id := range f.order {
		if _, ok := f.errors[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Complete reports whether every shard succeeded.
func (f *FanOut) Complete() bool {
	return len(f.errors) == 0
}

// Records merges the records of every successful shard, shard by shard in
// topology order.
func (f *FanOut) Records() iter.Seq[types.Record] {
	return func(yield func(types.Record) bool) {
		for _, id := range f.order {
			o, ok := f.outcomes[id]
			if !ok {
				continue
			}
			for r := range o.Records() {
				if !yield(r) {
					return
				}
			}
		}
	}
}

// Err joins the errors of every failed shard. It is nil when all succeeded.
func (f *FanOut) Err() error {
	var errs []error
	for _, id := range f.Failed() {
		errs = append(errs, f.errors[id])
	}
	return errors.Join(errs...)
}
