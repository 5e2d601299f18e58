// Package config holds the tunable knobs for building an SSTable generation.
package config

import "time"

// Sizes and defaults used across the writer when a caller does not
// override them.
const (
	defaultMinIndexInterval         = 128
	defaultBaseSamplingLevel        = 128
	defaultBloomFalsePositiveChance = 0.01
	defaultLargePartitionWarning    = 100 << 20 // 100MiB
	defaultBufferSize               = 64 << 10
	defaultColumnIndexSize          = 64 << 10
	defaultCompressionChunkSize     = 64 << 10
)

// Options configures an SSTable writer. The zero value is not usable;
// construct one with Default and override individual fields.
type Options struct {
	// MinIndexInterval is the minimum number of partitions between two
	// sampled summary entries.
	MinIndexInterval int

	// BaseSamplingLevel bounds how many entries the final, downsampled
	// IndexSummary may contain.
	BaseSamplingLevel int

	// BloomFalsePositiveChance is the target false-positive rate used to
	// size the Bloom filter.
	BloomFalsePositiveChance float64

	// LegacyBloomHashOrder swaps the order in which the Bloom filter
	// combines its two per-key hash values when deriving bit positions,
	// for format-version compatibility. The serialized bit array's byte
	// layout is the same either way.
	LegacyBloomHashOrder bool

	// LargePartitionWarningBytes is the encoded-partition-size threshold
	// above which Append logs a warning instead of silently continuing.
	LargePartitionWarningBytes int64

	// BufferSize is the buffer size used by the data and index sinks.
	BufferSize int

	// ColumnIndexSize is the encoded-partition-body size above which the
	// row serializer builds an array of column-index blocks instead of
	// an inline summary.
	ColumnIndexSize int

	// Compressed enables the snappy-backed sink variant; when false the
	// sink emits a CRC sidecar instead of a CompressionInfo sidecar.
	Compressed bool

	// CompressionChunkSize is the uncompressed size of each chunk handed
	// to the compression codec.
	CompressionChunkSize int

	// FlushInterval is carried in Options but not read by the writer:
	// the writer issues no background Sync, so data and index reach disk
	// only through an explicit Writer.Sync or the commit pipeline.
	FlushInterval time.Duration

	// AssertKeyOrder panics on an out-of-order Append call instead of
	// silently trusting the caller's sort. Disable only once a caller
	// is known to feed strictly sorted input and the check's cost
	// matters.
	AssertKeyOrder bool
}

// Default returns the Options used when a caller passes nil.
func Default() *Options {
	return &Options{
		MinIndexInterval:           defaultMinIndexInterval,
		BaseSamplingLevel:          defaultBaseSamplingLevel,
		BloomFalsePositiveChance:   defaultBloomFalsePositiveChance,
		LargePartitionWarningBytes: defaultLargePartitionWarning,
		BufferSize:                 defaultBufferSize,
		ColumnIndexSize:            defaultColumnIndexSize,
		CompressionChunkSize:       defaultCompressionChunkSize,
		AssertKeyOrder:             true,
	}
}

// WithDefaults fills every zero-valued numeric field of opts from
// Default, returning opts itself; boolean fields (AssertKeyOrder,
// Compressed, LegacyBloomHashOrder) and FlushInterval are left as given.
// Passing nil returns a fresh Default().
func WithDefaults(opts *Options) *Options {
	if opts == nil {
		return Default()
	}

	d := Default()
	if opts.MinIndexInterval == 0 {
		opts.MinIndexInterval = d.MinIndexInterval
	}
	if opts.BaseSamplingLevel == 0 {
		opts.BaseSamplingLevel = d.BaseSamplingLevel
	}
	if opts.BloomFalsePositiveChance == 0 {
		opts.BloomFalsePositiveChance = d.BloomFalsePositiveChance
	}
	if opts.LargePartitionWarningBytes == 0 {
		opts.LargePartitionWarningBytes = d.LargePartitionWarningBytes
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = d.BufferSize
	}
	if opts.ColumnIndexSize == 0 {
		opts.ColumnIndexSize = d.ColumnIndexSize
	}
	if opts.CompressionChunkSize == 0 {
		opts.CompressionChunkSize = d.CompressionChunkSize
	}
	return opts
}
