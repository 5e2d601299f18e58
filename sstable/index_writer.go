package sstable

import (
	"fmt"

	"github.com/coldtable/sstable/bloom"
	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/coldtable/sstable/sink"
	"github.com/coldtable/sstable/summary"
)

// indexWriterState mirrors the per-sink two-phase lifecycle at the
// index-writer level: Open -> Preparing -> Prepared -> Committed |
// Aborted, transitions only forward. Only the move to indexAborted is
// recorded in the state field; prepare and commit go straight through
// to the index sink without updating it.
type indexWriterState int

const (
	indexOpen indexWriterState = iota
	indexPreparing
	indexPrepared
	indexCommitted
	indexAborted
)

// indexWriter is C4: it owns the primary-index sink and drives the
// summary and Bloom filter builders from the same append stream,
// rather than reaching back into its enclosing table writer the way
// an inner class would. The table writer hands it everything it needs
// explicitly at construction instead.
type indexWriter struct {
	path    string
	sink    *sink.Sink
	filter  *bloom.Builder
	summary *summary.Builder
	state   indexWriterState
}

func newIndexWriter(path string, bufferSize int, expectedKeys int64, falsePositiveChance float64, legacyHashOrder bool, minIndexInterval, baseSamplingLevel int) (*indexWriter, error) {
	s, err := sink.OpenPlain(path, bufferSize)
	if err != nil {
		return nil, fmt.Errorf("sstable: open index sink: %w", err)
	}
	return &indexWriter{
		path:    path,
		sink:    s,
		filter:  bloom.NewBuilder(expectedKeys, falsePositiveChance, legacyHashOrder),
		summary: summary.NewBuilder(expectedKeys, minIndexInterval, baseSamplingLevel),
	}, nil
}

// append records one partition's index entry: add its key to the
// filter, write the (key, RowIndexEntry) record, and offer the
// resulting offsets to the summary builder.
func (iw *indexWriter) append(key []byte, entry rowindex.RowIndexEntry, dataEnd int64) error {
	iw.filter.Add(key)

	indexStart := iw.sink.FilePointer()
	bw := rowio.NewWriter(iw.sink)
	if _, err := bw.WriteShortBytes(key); err != nil {
		return writeErr(iw.path, err)
	}
	if _, err := entry.WriteTo(iw.sink); err != nil {
		return writeErr(iw.path, err)
	}
	indexEnd := iw.sink.FilePointer()

	iw.summary.MaybeAddEntry(key, indexStart, indexEnd, dataEnd)
	return nil
}

func (iw *indexWriter) mark() (sink.Mark, error) {
	return iw.sink.Mark()
}

func (iw *indexWriter) resetAndTruncate(m sink.Mark) error {
	return iw.sink.ResetAndTruncate(m)
}

func (iw *indexWriter) abort() error {
	iw.state = indexAborted
	return iw.sink.Abort()
}
