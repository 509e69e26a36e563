package cluster

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"sharddb/pkg/types"
)

var (
	ErrEmptyTopology  = errors.New("cluster: topology has no shards")
	ErrDuplicateShard = errors.New("cluster: duplicate shard id")
	ErrUnknownShard   = errors.New("cluster: unknown shard")
)

// Descriptor describes how to reach one shard.
type Descriptor = types.Descriptor

// Topology is the fixed, ordered set of shards known to a router. It is
// immutable after construction.
type Topology struct {
	shards []Descriptor
	index  map[types.ShardID]int
}

// NewTopology validates descriptors and keeps them in the given order.
func NewTopology(descriptors ...Descriptor) (*Topology, error) {
	if len(descriptors) == 0 {
		return nil, ErrEmptyTopology
	}

	t := &Topology{
		shards: slices.Clone(descriptors),
		index:  make(map[types.ShardID]int, len(descriptors)),
	}
	for i, d := range t.shards {
		if d.ID == "" {
			return nil, fmt.Errorf("cluster: shard #%d has an empty id", i)
		}
		if _, dup := t.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateShard, d.ID)
		}
		t.index[d.ID] = i
	}
	return t, nil
}

// Len returns the number of shards.
func (t *Topology) Len() int {
	return len(t.shards)
}

// At returns the descriptor at position i in construction order.
func (t *Topology) At(i int) Descriptor {
	return t.shards[i]
}

// Get looks a descriptor up by id.
func (t *Topology) Get(id types.ShardID) (Descriptor, bool) {
	i, ok := t.index[id]
	if !ok {
		return Descriptor{}, false
	}
	return t.shards[i], true
}

// Descriptors returns a copy of all descriptors in construction order.
func (t *Topology) Descriptors() []Descriptor {
	return slices.Clone(t.shards)
}

// IDs yields shard ids in construction order. The sequence is restartable.
func (t *Topology) IDs() iter.Seq[types.ShardID] {
	return func(yield func(types.ShardID) bool) {
		for _, d := range t.shards {
			if !yield(d.ID) {
				return
			}
		}
	}
}
