package sharding

import (
	"fmt"
	"math"
	"testing"
)

// ring of n nodes with the given number of virtual nodes
func makeRing(n, replicas int) *HashRing {
	r := NewHashRing(replicas)
	for i := 1; i <= n; i++ {
		r.AddNode(fmt.Sprintf("node%d:8080", i))
	}
	return r
}

func TestRing_DistributionUniformity(t *testing.T) {
	N := 3
	r := makeRing(N, 128)
	total := 60_000

	counts := map[string]int{}
	for i := 0; i < total; i++ {
		k := fmt.Sprintf("key-%d", i)
		n, ok := r.GetNode(k)
		if !ok {
			t.Fatalf("ring returned no owner for key %q", k)
		}
		counts[n]++
	}
	ideal := float64(total) / float64(N)
	tolerance := 0.2 * ideal

	for node, c := range counts {
		diff := math.Abs(float64(c) - ideal)
		if diff > tolerance {
			t.Fatalf("node %s: count=%d ideal=%.0f diff=%.0f > tol=%.0f", node, c, ideal, diff, tolerance)
		}
	}
}

func TestRing_MinimalMovementOnAdd(t *testing.T) {
	N := 3
	replicas := 128
	total := 100_000

	r := makeRing(N, replicas)
	before := make([]string, total)
	for i := 0; i < total; i++ {
		owner, ok := r.GetNode(fmt.Sprintf("k-%d", i))
		if !ok {
			t.Fatalf("no owner before add for i=%d", i)
		}
		before[i] = owner
	}

	r.AddNode("node4:8080")

	moved := 0
	for i := 0; i < total; i++ {
		now, ok := r.GetNode(fmt.Sprintf("k-%d", i))
		if !ok {
			t.Fatalf("no owner after add for i=%d", i)
		}
		if before[i] != now {
			if now != "node4:8080" {
				t.Fatalf("key k-%d moved between existing nodes: %s -> %s", i, before[i], now)
			}
			moved++
		}
	}
	frac := float64(moved) / float64(total)
	if frac < 0.15 || frac > 0.35 { // around 0.25 expected
		t.Fatalf("moved fraction %.3f out of expected range [0.15..0.35]", frac)
	}
}

func TestRing_Deterministic(t *testing.T) {
	a := makeRing(3, 128)
	b := makeRing(3, 128)
	for i := 0; i < 10_000; i++ {
		k := fmt.Sprintf("id-%d", i)
		oa, oka := a.GetNode(k)
		ob, okb := b.GetNode(k)
		if !oka || !okb || oa != ob {
			t.Fatalf("non-deterministic mapping for %s (oka=%v okb=%v oa=%q ob=%q)", k, oka, okb, oa, ob)
		}
	}
}

func TestRing_Empty(t *testing.T) {
	r := NewHashRing(16)
	if _, ok := r.GetNode("anything"); ok {
		t.Fatal("empty ring must not return an owner")
	}
}

func TestRingStrategy_IndexInRange(t *testing.T) {
	s := NewRing(64)
	for n := 1; n <= 5; n++ {
		seen := map[int]bool{}
		for k := int64(0); k < 2000; k++ {
			idx, err := s.Index(k, n)
			if err != nil {
				t.Fatalf("Index(%d, %d): %v", k, n, err)
			}
			if idx < 0 || idx >= n {
				t.Fatalf("Index(%d, %d) = %d out of range", k, n, idx)
			}
			again, _ := s.Index(k, n)
			if again != idx {
				t.Fatalf("Index(%d, %d) not deterministic: %d then %d", k, n, idx, again)
			}
			seen[idx] = true
		}
		if len(seen) != n {
			t.Fatalf("shard count %d: only %d shards received keys", n, len(seen))
		}
	}
}
