// Package sharding holds the routing strategies that map a routing key to a
// shard index. Strategies are pure: the same key and shard count always
// produce the same index.
package sharding

import (
	"errors"
	"fmt"
	"strings"

	"sharddb/pkg/dberrors"
	"sharddb/pkg/types"
)

var (
	ErrInvalidShardCount = errors.New("sharding: invalid shard count")
	ErrUnknownStrategy   = errors.New("sharding: unknown strategy")
)

// Strategy deterministically maps keys to shard indices in [0, shardCount).
type Strategy interface {
	// Name is the identifier used in configuration.
	Name() string
	// Check reports whether the strategy can route over shardCount shards.
	Check(shardCount int) error
	// Index returns the shard index for key. Keys outside the strategy's
	// domain fail with dberrors.ErrUnresolvableKey.
	Index(key types.RoutingKey, shardCount int) (int, error)
}

// Options tune strategies that need parameters.
type Options struct {
	RingReplicas int
}

// Lookup returns the strategy registered under name.
func Lookup(name string, opts Options) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "parity":
		return Parity{}, nil
	case "modulo", "mod":
		return Modulo{}, nil
	case "hash":
		return Hash{}, nil
	case "ring":
		return NewRing(opts.RingReplicas), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

func checkPositive(shardCount int) error {
	if shardCount <= 0 {
		return fmt.Errorf("%w: got %d, must be > 0", ErrInvalidShardCount, shardCount)
	}
	return nil
}

func unresolvable(strategy string, key types.RoutingKey) error {
	return fmt.Errorf("%w: %s strategy cannot route %T(%v)", dberrors.ErrUnresolvableKey, strategy, key, key)
}
