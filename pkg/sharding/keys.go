package sharding

import "sharddb/pkg/types"

// integer is an integer routing key split into sign and magnitude so that
// every Go integer kind, including uint64 above MaxInt64, maps without loss.
type integer struct {
	mag  uint64
	neg  bool
	bits uint64 // two's complement bit pattern, used for hashing
}

func fromSigned(v int64) integer {
	if v < 0 {
		return integer{mag: uint64(-(v + 1)) + 1, neg: true, bits: uint64(v)}
	}
	return integer{mag: uint64(v), bits: uint64(v)}
}

func fromUnsigned(v uint64) integer {
	return integer{mag: v, bits: v}
}

func asInteger(key types.RoutingKey) (integer, bool) {
	switch k := key.(type) {
	case int:
		return fromSigned(int64(k)), true
	case int8:
		return fromSigned(int64(k)), true
	case int16:
		return fromSigned(int64(k)), true
	case int32:
		return fromSigned(int64(k)), true
	case int64:
		return fromSigned(k), true
	case uint:
		return fromUnsigned(uint64(k)), true
	case uint8:
		return fromUnsigned(uint64(k)), true
	case uint16:
		return fromUnsigned(uint64(k)), true
	case uint32:
		return fromUnsigned(uint64(k)), true
	case uint64:
		return fromUnsigned(k), true
	default:
		return integer{}, false
	}
}

// mod returns the non-negative remainder of the key modulo n.
func (i integer) mod(n int) int {
	r := i.mag % uint64(n)
	if i.neg && r != 0 {
		r = uint64(n) - r
	}
	return int(r)
}

func (i integer) odd() bool {
	return i.mag&1 == 1
}
