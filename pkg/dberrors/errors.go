package dberrors

import (
	"errors"
	"fmt"

	"sharddb/pkg/types"
)

var (
	ErrClosed          = errors.New("sharddb: closed")
	ErrInvalidArgument = errors.New("sharddb: invalid argument")
	// ErrUnresolvableKey is returned when a routing key lies outside the
	// domain of the routing strategy.
	ErrUnresolvableKey = errors.New("sharddb: unresolvable key")
	// ErrDuplicateKey is returned when an insert collides with an existing
	// primary key.
	ErrDuplicateKey = errors.New("sharddb: duplicate key")
)

// ShardError is a failure isolated to a single shard.
type ShardError struct {
	Shard types.ShardID
	Op    string
	Cause error
}

func (e *ShardError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("shard %s: %v", e.Shard, e.Cause)
	}
	return fmt.Sprintf("shard %s: %s: %v", e.Shard, e.Op, e.Cause)
}

func (e *ShardError) Unwrap() error {
	return e.Cause
}

// AsShardError returns the ShardError wrapped in err, if any.
func AsShardError(err error) (*ShardError, bool) {
	var se *ShardError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
