// Package bloom builds the per-sstable Bloom filter component: a
// fixed-size bitset sized from the expected number of partition keys
// and a target false-positive rate, populated by double hashing two
// independent xxhash seeds per key the way Kirsch-Mitzenmacher derives
// k hash functions from two. The bit-twiddling here is adapted from
// And-fish-kvDB/utils.Filter (classic sizing formula, delta-stepped
// hash reuse); the underlying hash is swapped from that repo's home-
// grown Fowler/Noll/Vo-style hash to xxhash, which the same pack
// already uses for cache key hashing.
package bloom

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// legacySuffix distinguishes the second of the two hash seeds: h2 is
// the hash of the key with this byte appended, independent enough of
// h1 for Kirsch-Mitzenmacher double hashing without a second hash
// algorithm.
const legacySuffix = 0xff

// Size computes the bitset width and hash-function count for
// numElements keys at the given false-positive chance, via the
// standard m = -n*ln(p)/(ln2)^2, k = (m/n)*ln2 formulas.
func Size(numElements int64, falsePositiveChance float64) (numBits int64, numHashes int) {
	if numElements <= 0 {
		numElements = 1
	}
	if falsePositiveChance <= 0 || falsePositiveChance >= 1 {
		falsePositiveChance = 0.01
	}
	n := float64(numElements)
	ln2 := math.Ln2
	bits := math.Ceil(-n * math.Log(falsePositiveChance) / (ln2 * ln2))
	if bits < 64 {
		bits = 64
	}
	k := int(math.Round(bits / n * ln2))
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}
	return int64(bits), k
}

func hashPair(key []byte) (h1, h2 uint64) {
	h1 = xxhash.Sum64(key)
	d := xxhash.New()
	_, _ = d.Write(key)
	_, _ = d.Write([]byte{legacySuffix})
	h2 = d.Sum64()
	return h1, h2
}

// indicesFor yields the numHashes bit indices for key, combining h1
// and h2 the Kirsch-Mitzenmacher way: index_i = h1 + i*h2 (mod numBits).
// legacyHashOrder swaps which of the pair seeds the base term, matching
// sstables written by a version that combined them in the other order.
func indicesFor(key []byte, numBits int64, numHashes int, legacyHashOrder bool) []int64 {
	h1, h2 := hashPair(key)
	if legacyHashOrder {
		h1, h2 = h2, h1
	}
	out := make([]int64, numHashes)
	for i := 0; i < numHashes; i++ {
		combined := h1 + uint64(i)*h2
		out[i] = int64(combined % uint64(numBits))
	}
	return out
}

// Builder accumulates keys and produces an immutable Filter.
type Builder struct {
	numBits         int64
	numHashes       int
	legacyHashOrder bool
	bits            []byte
}

// NewBuilder sizes a filter for numElements keys at falsePositiveChance.
func NewBuilder(numElements int64, falsePositiveChance float64, legacyHashOrder bool) *Builder {
	numBits, numHashes := Size(numElements, falsePositiveChance)
	return &Builder{
		numBits:         numBits,
		numHashes:       numHashes,
		legacyHashOrder: legacyHashOrder,
		bits:            make([]byte, (numBits+7)/8),
	}
}

// Add sets this key's bits.
func (b *Builder) Add(key []byte) {
	for _, idx := range indicesFor(key, b.numBits, b.numHashes, b.legacyHashOrder) {
		b.bits[idx/8] |= 1 << (idx % 8)
	}
}

// Build finalizes the builder into a refcounted, read-only Filter.
func (b *Builder) Build() *Filter {
	f := &Filter{
		numBits:         b.numBits,
		numHashes:       b.numHashes,
		legacyHashOrder: b.legacyHashOrder,
		bits:            append([]byte(nil), b.bits...),
	}
	f.refs.Store(1)
	return f
}

// Serialize writes the filter's wire format: hash count, bit count,
// bitset byte length, legacy-order flag, then the raw bitset. Readers use this to
// reconstruct a Filter without rebuilding it from keys.
func (b *Builder) Serialize(w io.Writer) error {
	return b.Build().Serialize(w)
}

// Filter is an immutable, refcounted Bloom filter shared between a
// just-built sstable and any reader that opens it early, mirroring the
// shared-filter lifetime in Cassandra's IndexSummaryBuilder/SSTableReader
// pair: the writer's in-memory filter is handed to the reader rather
// than rebuilt from the serialized form.
type Filter struct {
	numBits         int64
	numHashes       int
	legacyHashOrder bool
	bits            []byte
	refs            atomic.Int32
}

// MayContain reports whether key could be present; false negatives are
// impossible, false positives are bounded by the configured rate.
func (f *Filter) MayContain(key []byte) bool {
	for _, idx := range indicesFor(key, f.numBits, f.numHashes, f.legacyHashOrder) {
		if f.bits[idx/8]&(1<<(idx%8)) == 0 {
			return false
		}
	}
	return true
}

// Retain increments the reference count; call before handing the
// filter to another owner (e.g. an early-opened reader).
func (f *Filter) Retain() {
	f.refs.Add(1)
}

// Release decrements the reference count, returning true once it
// reaches zero and the filter may be discarded.
func (f *Filter) Release() bool {
	return f.refs.Add(-1) == 0
}

// Serialize writes the filter's wire format: hash count, the exact bit
// count (not just the byte count, since indices are taken modulo it),
// the bitset byte length, the legacy-order flag, then the raw bitset.
func (f *Filter) Serialize(w io.Writer) error {
	var header [17]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(f.numHashes))
	binary.LittleEndian.PutUint64(header[4:12], uint64(f.numBits))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(f.bits)))
	if f.legacyHashOrder {
		header[16] = 1
	}
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("bloom: write header: %w", err)
	}
	if _, err := w.Write(f.bits); err != nil {
		return fmt.Errorf("bloom: write bitset: %w", err)
	}
	return nil
}

// Deserialize reads back a Filter written by Serialize, starting with
// a fresh reference count of 1.
func Deserialize(r io.Reader) (*Filter, error) {
	var header [17]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("bloom: read header: %w", err)
	}
	numHashes := int(binary.LittleEndian.Uint32(header[0:4]))
	numBits := int64(binary.LittleEndian.Uint64(header[4:12]))
	numBytes := binary.LittleEndian.Uint32(header[12:16])
	bits := make([]byte, numBytes)
	if _, err := io.ReadFull(r, bits); err != nil {
		return nil, fmt.Errorf("bloom: read bitset: %w", err)
	}
	f := &Filter{
		numBits:         numBits,
		numHashes:       numHashes,
		legacyHashOrder: header[16] == 1,
		bits:            bits,
	}
	f.refs.Store(1)
	return f, nil
}
