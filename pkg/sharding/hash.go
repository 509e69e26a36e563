package sharding

import (
	"encoding/binary"
	"hash/fnv"

	"sharddb/pkg/types"
)

// Hash routes integer, string and []byte keys by FNV-1a modulo the shard
// count. Integers hash over their 8-byte big-endian encoding.
type Hash struct{}

func (Hash) Name() string { return "hash" }

func (Hash) Check(shardCount int) error {
	return checkPositive(shardCount)
}

func (h Hash) Index(key types.RoutingKey, shardCount int) (int, error) {
	if err := h.Check(shardCount); err != nil {
		return 0, err
	}
	b, ok := keyBytes(key)
	if !ok {
		return 0, unresolvable(h.Name(), key)
	}
	hasher := fnv.New64a()
	_, _ = hasher.Write(b)
	return int(hasher.Sum64() % uint64(shardCount)), nil
}

func keyBytes(key types.RoutingKey) ([]byte, bool) {
	switch k := key.(type) {
	case string:
		return []byte(k), true
	case []byte:
		return k, true
	}
	i, ok := asInteger(key)
	if !ok {
		return nil, false
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], i.bits)
	return buf[:], true
}
