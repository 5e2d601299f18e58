// Package summary builds the sparse index summary each sstable carries
// for bounding binary search, and tracks the durable "readable
// boundary" the table writer uses to decide how much of a still-open
// sstable can safely be exposed to readers. It is grounded in the same
// incremental-accumulator shape the teacher's partition writer uses
// for its offsets index (davidvella/xp/partition), generalized from a
// single offsets slice to the summary's sample-plus-boundary
// bookkeeping described by the index summary builder component.
package summary

import "errors"

// ErrMarkAfterSample is returned by Mark once the builder has accepted
// its first sampled entry. The builder's sampling decision is a pure
// function of how many partitions have been seen, so a mark taken after
// sampling has started would require persisting and restoring that
// counter; this package forbids such a mark outright instead. A mark
// taken before the first sample can always be rewound to.
var ErrMarkAfterSample = errors.New("summary: mark/resetAndTruncate not allowed after the first sampled entry")

// Offsets is the (indexEnd, dataEnd) pair recorded alongside each
// sampled key, used to compute readable-boundary advancement once
// both the index and data streams have been synced past it.
type Offsets struct {
	IndexEnd int64
	DataEnd  int64
}

// ReadableBoundary is the durable frontier across the data and index
// files: the largest prefix of appended partitions for which both
// have been fsynced.
type ReadableBoundary struct {
	LastKey           []byte
	IndexFileLength   int64
	DataFileLength    int64
	SummaryEntryCount int
}

// Mark is an opaque rewind point for Builder. Only ever non-trivial
// before the first sample is accepted; see ErrMarkAfterSample.
type Mark struct {
	count int64
}

// Builder accumulates sampled summary entries and readable-boundary
// bookkeeping as partitions are appended.
type Builder struct {
	minIndexInterval  int
	baseSamplingLevel int

	count int64 // total partitions observed, sampled or not

	keys         [][]byte
	indexOffsets []int64
	offsets      []Offsets

	indexSyncedUpTo int64
	dataSyncedUpTo  int64
	boundaryIdx     int
	boundary        *ReadableBoundary

	firstKey []byte
	lastKey  []byte

	lastIndexEnd int64
	lastDataEnd  int64
}

// NewBuilder configures a Builder. expectedKeys informs nothing beyond
// documentation intent here (the sampling stride is minIndexInterval
// until Build downsamples); it is accepted for parity with the spec's
// constructor signature and potential future stride tuning.
func NewBuilder(expectedKeys int64, minIndexInterval, baseSamplingLevel int) *Builder {
	if minIndexInterval < 1 {
		minIndexInterval = 1
	}
	if baseSamplingLevel < 1 {
		baseSamplingLevel = 1
	}
	return &Builder{
		minIndexInterval:  minIndexInterval,
		baseSamplingLevel: baseSamplingLevel,
	}
}

// MaybeAddEntry records one partition's coordinates, sampling it into
// the summary when the running count lands on the current stride.
func (b *Builder) MaybeAddEntry(key []byte, indexStart, indexEnd, dataEnd int64) {
	if b.firstKey == nil {
		b.firstKey = key
	}
	b.lastKey = key
	b.lastIndexEnd = indexEnd
	b.lastDataEnd = dataEnd

	sample := b.count%int64(b.minIndexInterval) == 0
	b.count++
	if !sample {
		return
	}
	b.keys = append(b.keys, key)
	b.indexOffsets = append(b.indexOffsets, indexStart)
	b.offsets = append(b.offsets, Offsets{IndexEnd: indexEnd, DataEnd: dataEnd})
	b.tryAdvanceBoundary()
}

// MarkIndexSynced records that the index file is durable up to offset.
func (b *Builder) MarkIndexSynced(offset int64) {
	if offset > b.indexSyncedUpTo {
		b.indexSyncedUpTo = offset
	}
	b.tryAdvanceBoundary()
}

// MarkDataSynced records that the data file is durable up to offset.
func (b *Builder) MarkDataSynced(offset int64) {
	if offset > b.dataSyncedUpTo {
		b.dataSyncedUpTo = offset
	}
	b.tryAdvanceBoundary()
}

// tryAdvanceBoundary walks forward through sampled entries, advancing
// the readable boundary past every one whose index and data offsets
// are both already durable. markIndexSynced/markDataSynced can arrive
// in either order, so this only commits an entry once both sides have
// caught up to it.
func (b *Builder) tryAdvanceBoundary() {
	for b.boundaryIdx < len(b.offsets) {
		o := b.offsets[b.boundaryIdx]
		if o.IndexEnd > b.indexSyncedUpTo || o.DataEnd > b.dataSyncedUpTo {
			return
		}
		b.boundary = &ReadableBoundary{
			LastKey:           b.keys[b.boundaryIdx],
			IndexFileLength:   o.IndexEnd,
			DataFileLength:    o.DataEnd,
			SummaryEntryCount: b.boundaryIdx + 1,
		}
		b.boundaryIdx++
	}
}

// LastReadableBoundary returns the most recently advanced boundary, if
// any partitions have become fully durable yet.
func (b *Builder) LastReadableBoundary() (ReadableBoundary, bool) {
	if b.boundary == nil {
		return ReadableBoundary{}, false
	}
	return *b.boundary, true
}

// Mark captures a rewind point. It only succeeds before the first
// sample has been accepted.
func (b *Builder) Mark() (Mark, error) {
	if len(b.keys) > 0 {
		return Mark{}, ErrMarkAfterSample
	}
	return Mark{count: b.count}, nil
}

// ResetAndTruncate rewinds to m, discarding partitions observed since.
// Mark only succeeds before the first sample, so every sample, and any
// readable boundary derived from one, postdates m and is dropped.
func (b *Builder) ResetAndTruncate(m Mark) error {
	b.count = m.count
	b.keys, b.indexOffsets, b.offsets = nil, nil, nil
	b.boundaryIdx, b.boundary = 0, nil
	b.indexSyncedUpTo, b.dataSyncedUpTo = 0, 0
	if b.count == 0 {
		b.firstKey = nil
		b.lastKey = nil
		b.lastIndexEnd, b.lastDataEnd = 0, 0
	}
	return nil
}

// Build produces the final IndexSummary. If boundary is non-nil, only
// samples covered by it are included (an early-open snapshot);
// otherwise the full accumulated set is used. When more than
// baseSamplingLevel samples are present, downsampling keeps every Nth
// sample (N = ceil(samples/baseSamplingLevel)) and drops the rest, a
// deterministic pattern that leaves at most baseSamplingLevel entries.
func (b *Builder) Build(boundary *ReadableBoundary) *IndexSummary {
	keys := b.keys
	offsets := b.indexOffsets
	firstKey := b.firstKey
	lastKey := b.lastKey
	indexFileLength := b.lastIndexEnd
	dataFileLength := b.lastDataEnd
	if boundary != nil {
		n := boundary.SummaryEntryCount
		if n > len(keys) {
			n = len(keys)
		}
		keys = keys[:n]
		offsets = offsets[:n]
		lastKey = boundary.LastKey
		indexFileLength = boundary.IndexFileLength
		dataFileLength = boundary.DataFileLength
	}

	downKeys, downOffsets, level := downsample(keys, offsets, b.baseSamplingLevel)
	return &IndexSummary{
		Keys:              downKeys,
		IndexOffsets:      downOffsets,
		SamplingLevel:     level,
		BaseSamplingLevel: b.baseSamplingLevel,
		MinIndexInterval:  b.minIndexInterval,
		FirstKey:          firstKey,
		LastKey:           lastKey,
		IndexFileLength:   indexFileLength,
		DataFileLength:    dataFileLength,
	}
}

func downsample(keys [][]byte, offsets []int64, baseSamplingLevel int) ([][]byte, []int64, int) {
	if len(keys) <= baseSamplingLevel || baseSamplingLevel <= 0 {
		return keys, offsets, clamp(len(keys), baseSamplingLevel)
	}
	keepEvery := (len(keys) + baseSamplingLevel - 1) / baseSamplingLevel
	var outKeys [][]byte
	var outOffsets []int64
	for i := range keys {
		if i%keepEvery == 0 {
			outKeys = append(outKeys, keys[i])
			outOffsets = append(outOffsets, offsets[i])
		}
	}
	return outKeys, outOffsets, clamp(len(outKeys), baseSamplingLevel)
}

func clamp(n, max int) int {
	if n < 1 {
		return 1
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
