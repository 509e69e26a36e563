package sharding

import (
	"fmt"

	"sharddb/pkg/types"
)

// Parity routes odd integer keys to the first shard and even keys to the
// second. It only routes over exactly two shards.
type Parity struct{}

func (Parity) Name() string { return "parity" }

func (Parity) Check(shardCount int) error {
	if shardCount != 2 {
		return fmt.Errorf("%w: parity needs exactly 2 shards, got %d", ErrInvalidShardCount, shardCount)
	}
	return nil
}

func (p Parity) Index(key types.RoutingKey, shardCount int) (int, error) {
	if err := p.Check(shardCount); err != nil {
		return 0, err
	}
	k, ok := asInteger(key)
	if !ok {
		return 0, unresolvable(p.Name(), key)
	}
	if k.odd() {
		return 0, nil
	}
	return 1, nil
}

// Modulo routes integer keys by their non-negative remainder.
type Modulo struct{}

func (Modulo) Name() string { return "modulo" }

func (Modulo) Check(shardCount int) error {
	return checkPositive(shardCount)
}

func (m Modulo) Index(key types.RoutingKey, shardCount int) (int, error) {
	if err := m.Check(shardCount); err != nil {
		return 0, err
	}
	k, ok := asInteger(key)
	if !ok {
		return 0, unresolvable(m.Name(), key)
	}
	return k.mod(shardCount), nil
}
