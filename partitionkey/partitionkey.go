// Package partitionkey implements the DecoratedKey: a partition key
// paired with its partitioner-derived token, ordered by token then by
// raw byte order. The partitioner itself is a pluggable collaborator,
// the way davidvella/xp/partition.Record.Less delegates comparison but
// leaves the source of the ordering value external.
package partitionkey

import (
	"bytes"
	"errors"
	"math"
)

// MaxKeyLength is the largest raw key the primary index can address: a
// length prefix is a single unsigned 16-bit integer.
const MaxKeyLength = math.MaxUint16

// ErrOversizedKey is returned by Decorate when the raw key exceeds
// MaxKeyLength. Callers are expected to log and skip, not propagate,
// per the writer's error taxonomy.
var ErrOversizedKey = errors.New("partitionkey: key exceeds maximum length")

// Token is an opaque, partitioner-derived ordering value.
type Token interface {
	// Compare returns -1, 0 or 1 comparing this token against other.
	Compare(other Token) int
}

// DecoratedKey is a partition key together with its ordering token.
type DecoratedKey struct {
	Token Token
	Key   []byte
}

// Compare orders two decorated keys by token first, then by raw key
// byte order, matching spec's "compared by token then by byte order".
func (d DecoratedKey) Compare(other DecoratedKey) int {
	if c := d.Token.Compare(other.Token); c != 0 {
		return c
	}
	return bytes.Compare(d.Key, other.Key)
}

// Partitioner derives tokens from raw key bytes and orders decorated
// keys. Partitioner internals (the hash/ring algorithm itself) are a
// non-goal; only this boundary is owned by the writer.
type Partitioner interface {
	Decorate(raw []byte) (DecoratedKey, error)
	Compare(a, b DecoratedKey) int
}

// byteOrderToken is a Token that orders by the raw key bytes themselves.
type byteOrderToken struct {
	key []byte
}

func (t byteOrderToken) Compare(other Token) int {
	o, ok := other.(byteOrderToken)
	if !ok {
		return 0
	}
	return bytes.Compare(t.key, o.key)
}

// ByteOrderPartitioner is a default Partitioner whose token is the raw
// key itself, ordering partitions lexicographically. It stands in for
// Cassandra's Murmur3Partitioner at the interface boundary this writer
// owns; tests and simple deployments can use it directly.
type ByteOrderPartitioner struct{}

func (ByteOrderPartitioner) Decorate(raw []byte) (DecoratedKey, error) {
	if len(raw) > MaxKeyLength {
		return DecoratedKey{}, ErrOversizedKey
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return DecoratedKey{Token: byteOrderToken{key: cp}, Key: cp}, nil
}

func (ByteOrderPartitioner) Compare(a, b DecoratedKey) int {
	return a.Compare(b)
}
