// Package statsmeta collects and serializes the per-sstable statistics
// metadata the table writer accumulates incrementally as partitions
// stream through it, rather than by a second pass over the finished
// file. Collector and ProjectingIterator are grounded in the original
// source's BigTableWriter.StatsCollector (an AlteringUnfilteredRowIterator
// subclass feeding a MetadataCollector as it forwards rows unchanged),
// translated from an iterator-subclass decorator to a plain iterator
// wrapper since this package has no class hierarchy to extend.
package statsmeta

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
)

// Collector accumulates statistics across every partition the table
// writer appends: timestamp and TTL ranges, deletion-time ranges,
// clustering-value bounds, and size/cell-count distributions.
type Collector struct {
	minTimestamp        int64
	maxTimestamp         int64
	minLocalDeletionTime int32
	maxLocalDeletionTime int32
	minTTL               int32
	maxTTL               int32
	minClustering        []byte
	maxClustering        []byte
	totalCells           int64
	totalRows            int64
	repairedAt           int64

	partitionSizes EstimatedHistogram
	cellCounts     EstimatedHistogram

	hasTimestamp bool
	hasClustering bool
}

// NewCollector returns a Collector with its min/max accumulators at
// their identity extremes.
func NewCollector() *Collector {
	return &Collector{
		minTimestamp:         math.MaxInt64,
		maxTimestamp:         math.MinInt64,
		minLocalDeletionTime: math.MaxInt32,
		maxLocalDeletionTime: math.MinInt32,
		minTTL:               math.MaxInt32,
		maxTTL:               math.MinInt32,
		partitionSizes:       NewEstimatedHistogram(defaultBucketCount),
		cellCounts:           NewEstimatedHistogram(defaultBucketCount),
	}
}

// UpdateDeletionTime folds a deletion time (partition-level, row-level,
// or range-tombstone-bound) into the min/max local-deletion-time range.
func (c *Collector) UpdateDeletionTime(dt rowindex.DeletionTime) {
	if dt.IsLive() {
		return
	}
	if dt.MarkedForDeleteAt < c.minTimestamp {
		c.minTimestamp = dt.MarkedForDeleteAt
	}
	if dt.MarkedForDeleteAt > c.maxTimestamp {
		c.maxTimestamp = dt.MarkedForDeleteAt
	}
	c.hasTimestamp = true
	if dt.LocalDeletionTime < c.minLocalDeletionTime {
		c.minLocalDeletionTime = dt.LocalDeletionTime
	}
	if dt.LocalDeletionTime > c.maxLocalDeletionTime {
		c.maxLocalDeletionTime = dt.LocalDeletionTime
	}
}

// UpdateClustering folds a clustering value into the observed range.
func (c *Collector) UpdateClustering(clustering []byte) {
	if clustering == nil {
		return
	}
	if !c.hasClustering {
		c.minClustering = clustering
		c.maxClustering = clustering
		c.hasClustering = true
		return
	}
	if compareBytes(clustering, c.minClustering) < 0 {
		c.minClustering = clustering
	}
	if compareBytes(clustering, c.maxClustering) > 0 {
		c.maxClustering = clustering
	}
}

// UpdateCell folds one cell's timestamp, TTL, and deletion time into
// the running ranges and bumps the total cell count.
func (c *Collector) UpdateCell(cell rowio.Cell) {
	c.totalCells++
	if cell.Timestamp < c.minTimestamp {
		c.minTimestamp = cell.Timestamp
	}
	if cell.Timestamp > c.maxTimestamp {
		c.maxTimestamp = cell.Timestamp
	}
	c.hasTimestamp = true
	if cell.TTLSeconds != 0 {
		if cell.TTLSeconds < c.minTTL {
			c.minTTL = cell.TTLSeconds
		}
		if cell.TTLSeconds > c.maxTTL {
			c.maxTTL = cell.TTLSeconds
		}
	}
	if cell.LocalDeletionTime != rowindex.NoDeletionTime {
		if cell.LocalDeletionTime < c.minLocalDeletionTime {
			c.minLocalDeletionTime = cell.LocalDeletionTime
		}
		if cell.LocalDeletionTime > c.maxLocalDeletionTime {
			c.maxLocalDeletionTime = cell.LocalDeletionTime
		}
	}
}

// AddPartitionSizeInBytes records one partition's encoded size.
func (c *Collector) AddPartitionSizeInBytes(size int64) {
	c.partitionSizes.Add(size)
}

// AddRow bumps the row total. totalCells is tracked separately, one
// call per cell, via UpdateCell; AddRow does not feed the cell-count
// histogram, which samples cells-per-partition rather than
// cells-per-row (see AddPartitionCellCount).
func (c *Collector) AddRow() {
	c.totalRows++
}

// AddPartitionCellCount records one partition's total cell count as a
// single cellCounts histogram sample, matching the original source's
// StatsCollector, which sums cellCount across a partition's rows and
// calls addCellPerPartitionCount once in close().
func (c *Collector) AddPartitionCellCount(cellCount int64) {
	c.cellCounts.Add(cellCount)
}

// SetRepairedAt stashes the repair timestamp the sstable is stamped
// with, carried through unchanged rather than derived from content.
func (c *Collector) SetRepairedAt(repairedAt int64) {
	c.repairedAt = repairedAt
}

// Finish produces the immutable StatsMetadata snapshot.
func (c *Collector) Finish() StatsMetadata {
	m := StatsMetadata{
		MinLocalDeletionTime: c.minLocalDeletionTime,
		MaxLocalDeletionTime: c.maxLocalDeletionTime,
		MinTTL:               c.minTTL,
		MaxTTL:               c.maxTTL,
		MinClustering:        c.minClustering,
		MaxClustering:        c.maxClustering,
		TotalCells:           c.totalCells,
		TotalRows:            c.totalRows,
		RepairedAt:           c.repairedAt,
		PartitionSizes:       c.partitionSizes,
		CellCounts:           c.cellCounts,
	}
	if c.hasTimestamp {
		m.MinTimestamp = c.minTimestamp
		m.MaxTimestamp = c.maxTimestamp
	}
	if c.minTTL == math.MaxInt32 {
		m.MinTTL = 0
	}
	if c.maxTTL == math.MinInt32 {
		m.MaxTTL = 0
	}
	return m
}

func compareBytes(a, b []byte) int {
	switch {
	case len(a) < len(b):
		if c := compareCommon(a, b); c != 0 {
			return c
		}
		return -1
	case len(a) > len(b):
		if c := compareCommon(a, b); c != 0 {
			return c
		}
		return 1
	default:
		return compareCommon(a, b)
	}
}

func compareCommon(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// StatsMetadata is the immutable result of a Collector's run, the
// payload written under the Stats MetadataKind.
type StatsMetadata struct {
	MinTimestamp          int64
	MaxTimestamp          int64
	MinLocalDeletionTime int32
	MaxLocalDeletionTime int32
	MinTTL               int32
	MaxTTL               int32
	MinClustering        []byte
	MaxClustering        []byte
	TotalCells           int64
	TotalRows            int64
	RepairedAt           int64
	FirstKey             []byte
	LastKey              []byte
	PartitionSizes       EstimatedHistogram
	CellCounts           EstimatedHistogram
}

// MetadataKind identifies one typed component of the Statistics file,
// which is serialized as a typed map MetadataKind -> Blob.
type MetadataKind int

const (
	KindValidation MetadataKind = iota
	KindStats
	KindCompaction
	KindHeader
)

func (k MetadataKind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindStats:
		return "Stats"
	case KindCompaction:
		return "Compaction"
	case KindHeader:
		return "Header"
	default:
		return fmt.Sprintf("MetadataKind(%d)", int(k))
	}
}

// Serializer writes/reads the Statistics file's typed-map layout.
type Serializer struct{}

// Serialize writes entries as a count followed by (kind, length, blob)
// triples, each blob opaque beyond StatsMetadata's own encoding.
func (Serializer) Serialize(w io.Writer, stats StatsMetadata) error {
	blob, err := encodeStats(stats)
	if err != nil {
		return fmt.Errorf("statsmeta: encode stats: %w", err)
	}
	entries := map[MetadataKind][]byte{KindStats: blob}

	if err := writeUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(KindStats)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(blob))); err != nil {
		return err
	}
	_, err = w.Write(blob)
	return err
}

// Deserialize reads back a Statistics file written by Serialize.
func (Serializer) Deserialize(r io.Reader) (StatsMetadata, error) {
	count, err := readUint32(r)
	if err != nil {
		return StatsMetadata{}, fmt.Errorf("statsmeta: read entry count: %w", err)
	}
	var stats StatsMetadata
	for i := uint32(0); i < count; i++ {
		kind, err := readUint32(r)
		if err != nil {
			return stats, fmt.Errorf("statsmeta: read kind: %w", err)
		}
		n, err := readUint32(r)
		if err != nil {
			return stats, fmt.Errorf("statsmeta: read blob length: %w", err)
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return stats, fmt.Errorf("statsmeta: read blob: %w", err)
		}
		if MetadataKind(kind) == KindStats {
			stats, err = decodeStats(blob)
			if err != nil {
				return stats, fmt.Errorf("statsmeta: decode stats: %w", err)
			}
		}
	}
	return stats, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
