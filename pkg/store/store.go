// Package store defines the backing-store contract shards are reached
// through: open a connection to a shard, execute or query statements on it,
// close it.
package store

import (
	"context"
	"fmt"
	"sync"

	"sharddb/pkg/types"
)

// Backend opens connections to shards.
type Backend interface {
	Open(ctx context.Context, shard types.Descriptor) (Conn, error)
}

// Conn is a connection to one shard. It is used by a single operation and
// must be closed by the caller.
type Conn interface {
	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt Statement) (int64, error)
	// Query runs a statement that returns rows.
	Query(ctx context.Context, stmt Statement) (Rows, error)
	Close() error
}

// Rows is a forward-only cursor over a query result. *sql.Rows satisfies it.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, shard types.Descriptor) (Conn, error)

func (f BackendFunc) Open(ctx context.Context, shard types.Descriptor) (Conn, error) {
	return f(ctx, shard)
}

// Mux dispatches Open to the backend registered for the descriptor's driver.
type Mux struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewMux() *Mux {
	return &Mux{backends: make(map[string]Backend)}
}

// Register binds driver to backend, replacing any previous binding.
func (m *Mux) Register(driver string, backend Backend) *Mux {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backends[driver] = backend
	return m
}

func (m *Mux) Open(ctx context.Context, shard types.Descriptor) (Conn, error) {
	m.mu.RLock()
	backend, ok := m.backends[shard.Driver]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, shard.Driver)
	}
	return backend.Open(ctx, shard)
}
