package dberrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestShardErrorUnwrap(t *testing.T) {
	err := &ShardError{Shard: "shard1", Op: "insert", Cause: fmt.Errorf("users: %w", ErrDuplicateKey)}

	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("errors.Is(%v, ErrDuplicateKey) = false", err)
	}
	if got, want := err.Error(), "shard shard1: insert: users: sharddb: duplicate key"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestAsShardError(t *testing.T) {
	wrapped := fmt.Errorf("fan-out: %w", &ShardError{Shard: "shard2", Cause: errors.New("connection refused")})

	se, ok := AsShardError(wrapped)
	if !ok {
		t.Fatal("expected ShardError in chain")
	}
	if se.Shard != "shard2" {
		t.Fatalf("shard = %s, want shard2", se.Shard)
	}
	if got := se.Error(); got != "shard shard2: connection refused" {
		t.Fatalf("Error() = %q", got)
	}

	if _, ok := AsShardError(errors.New("plain")); ok {
		t.Fatal("plain error must not be a ShardError")
	}
}
