package sharding

import (
	"fmt"
	"hash/crc32"
	"sort"
	"strconv"
	"sync"

	"sharddb/pkg/types"
)

const DefaultRingReplicas = 128

// HashRing implements consistent hashing with virtual nodes.
type HashRing struct {
	replicas int
	nodes    []uint32          // sorted hashes
	nodeMap  map[uint32]string // hash -> node name
	mu       sync.RWMutex
}

func NewHashRing(replicas int) *HashRing {
	if replicas <= 0 {
		replicas = DefaultRingReplicas
	}
	return &HashRing{
		replicas: replicas,
		nodeMap:  make(map[uint32]string),
	}
}

func (h *HashRing) AddNode(node string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := 0; i < h.replicas; i++ {
		hash := crc32.ChecksumIEEE([]byte(node + "#" + strconv.Itoa(i)))
		if _, taken := h.nodeMap[hash]; taken {
			continue
		}
		h.nodes = append(h.nodes, hash)
		h.nodeMap[hash] = node
	}
	sort.Slice(h.nodes, func(i, j int) bool { return h.nodes[i] < h.nodes[j] })
}

// GetNode returns the node owning key, or false when the ring is empty.
func (h *HashRing) GetNode(key string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 {
		return "", false
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(h.nodes), func(i int) bool { return h.nodes[i] >= hash })
	if idx == len(h.nodes) {
		idx = 0
	}
	return h.nodeMap[h.nodes[idx]], true
}

// Ring routes keys with a consistent hash ring over shard indices. Rings are
// built once per shard count and reused.
type Ring struct {
	replicas int

	mu    sync.Mutex
	rings map[int]*HashRing
}

func NewRing(replicas int) *Ring {
	if replicas <= 0 {
		replicas = DefaultRingReplicas
	}
	return &Ring{replicas: replicas, rings: make(map[int]*HashRing)}
}

func (r *Ring) Name() string { return "ring" }

func (r *Ring) Check(shardCount int) error {
	return checkPositive(shardCount)
}

func (r *Ring) Index(key types.RoutingKey, shardCount int) (int, error) {
	if err := r.Check(shardCount); err != nil {
		return 0, err
	}
	b, ok := keyBytes(key)
	if !ok {
		return 0, unresolvable(r.Name(), key)
	}

	node, ok := r.ring(shardCount).GetNode(string(b))
	if !ok {
		return 0, fmt.Errorf("%w: ring is empty", ErrInvalidShardCount)
	}
	return strconv.Atoi(node)
}

func (r *Ring) ring(shardCount int) *HashRing {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ring, ok := r.rings[shardCount]; ok {
		return ring
	}
	ring := NewHashRing(r.replicas)
	for i := 0; i < shardCount; i++ {
		ring.AddNode(strconv.Itoa(i))
	}
	r.rings[shardCount] = ring
	return ring
}
