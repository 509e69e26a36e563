package cluster

import (
	"fmt"
	"iter"
	"log/slog"

	"sharddb/pkg/sharding"
	"sharddb/pkg/types"
)

// Router resolves routing keys to shards of a fixed topology. Both the
// topology and the strategy are fixed at construction.
type Router struct {
	topology *Topology
	strategy sharding.Strategy
	logger   *slog.Logger
}

// NewRouter checks that strategy can route over every shard of topology.
func NewRouter(topology *Topology, strategy sharding.Strategy, logger *slog.Logger) (*Router, error) {
	if topology == nil {
		return nil, ErrEmptyTopology
	}
	if strategy == nil {
		return nil, fmt.Errorf("router: strategy is required")
	}
	if err := strategy.Check(topology.Len()); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		topology: topology,
		strategy: strategy,
		logger:   logger.With("component", "router"),
	}, nil
}

// Resolve maps key to exactly one shard id. It performs no I/O.
func (r *Router) Resolve(key types.RoutingKey) (types.ShardID, error) {
	d, err := r.Descriptor(key)
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// Descriptor resolves key and returns the owning shard's descriptor.
func (r *Router) Descriptor(key types.RoutingKey) (Descriptor, error) {
	idx, err := r.strategy.Index(key, r.topology.Len())
	if err != nil {
		return Descriptor{}, err
	}
	if idx < 0 || idx >= r.topology.Len() {
		return Descriptor{}, fmt.Errorf("router: %s strategy returned index %d for %d shards", r.strategy.Name(), idx, r.topology.Len())
	}
	d := r.topology.At(idx)
	r.logger.Debug("resolved key", "key", key, "shard", d.ID)
	return d, nil
}

// AllShards yields every shard id in topology order. The sequence is lazy,
// finite and restartable.
func (r *Router) AllShards() iter.Seq[types.ShardID] {
	return r.topology.IDs()
}

func (r *Router) Topology() *Topology {
	return r.topology
}

func (r *Router) Strategy() sharding.Strategy {
	return r.strategy
}
