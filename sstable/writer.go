// Package sstable is the orchestrator: it accepts a sorted stream of
// partitions, drives the data and index sinks in lockstep, collects
// statistics, and executes the transactional commit across every
// component file. It corresponds to C5 (Table Writer) and C4 (Index
// Writer) from the rest of this module, and to a minimal reader for
// early-opened and finished tables.
package sstable

import (
	"fmt"
	"strings"

	"github.com/coldtable/sstable/bloom"
	"github.com/coldtable/sstable/config"
	"github.com/coldtable/sstable/descriptor"
	"github.com/coldtable/sstable/log"
	"github.com/coldtable/sstable/partitionkey"
	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/coldtable/sstable/sink"
	"github.com/coldtable/sstable/statsmeta"
	"github.com/coldtable/sstable/summary"
	"github.com/coldtable/sstable/txlog"
)

type state int

const (
	stateOpen state = iota
	statePreparing
	statePrepared
	stateCommitted
	stateAborted
)

// Mark is a joint rewind point across the data and index sinks, the
// summary builder, and the last-key bookkeeping the out-of-order
// assertion depends on. The Bloom filter is deliberately not captured:
// stray set bits from a since-discarded partition are harmless false
// positives, never a correctness problem. The summary builder's own
// sampling decision is a pure function of partition count, so it is
// captured too; see summary.ErrMarkAfterSample for why that capture is
// only ever valid before the first sampled entry.
type Mark struct {
	data          sink.Mark
	index         sink.Mark
	summary       summary.Mark
	firstKey      []byte
	lastKey       []byte
	lastDecorated *partitionkey.DecoratedKey
}

// Writer is the table writer orchestrator. append, mark,
// resetAndTruncate, prepareToCommit, commit, and abort are not safe to
// call concurrently on the same Writer; only openEarly/openFinalEarly
// may run alongside a concurrent append from the owning goroutine,
// since they only ever observe monotonically-advancing state.
type Writer struct {
	desc          descriptor.Descriptor
	cfg           *config.Options
	partitioner   partitionkey.Partitioner
	rowSerializer rowio.RowSerializer
	tracker       *txlog.Tracker

	dataSink *sink.Sink
	idx      *indexWriter

	collector *statsmeta.Collector

	firstKey      []byte
	lastKey       []byte
	lastDecorated *partitionkey.DecoratedKey

	state state

	filterSink  *sink.Sink
	summarySink *sink.Sink
	statsSink   *sink.Sink
	tocSink     *sink.Sink

	sharedFilter *bloom.Filter
	finalSummary *summary.IndexSummary
	finalStats   statsmeta.StatsMetadata
}

// NewWriter registers desc with tracker and creates the data and index
// sinks under their temp names. Registration happens before any file
// is created so a crash between these two steps leaves a pending
// tracker entry an orphan scan will find, never an untracked temp file.
// expectedKeys sizes the Bloom filter and summary builder up front; an
// estimate that undershoots only costs a higher false-positive rate,
// never correctness.
func NewWriter(desc descriptor.Descriptor, expectedKeys int64, cfg *config.Options, partitioner partitionkey.Partitioner, rowSerializer rowio.RowSerializer, tracker *txlog.Tracker) (*Writer, error) {
	cfg = config.WithDefaults(cfg)
	if rowSerializer == nil {
		rowSerializer = rowio.DefaultRowSerializer{}
	}
	if partitioner == nil {
		partitioner = partitionkey.ByteOrderPartitioner{}
	}

	if err := tracker.TrackNew(desc); err != nil {
		return nil, fmt.Errorf("sstable: track new generation: %w", err)
	}

	w := &Writer{
		desc:          desc,
		cfg:           cfg,
		partitioner:   partitioner,
		rowSerializer: rowSerializer,
		tracker:       tracker,
		collector:     statsmeta.NewCollector(),
	}

	var err error
	if cfg.Compressed {
		w.dataSink, err = sink.OpenCompressed(desc.FilenameFor(descriptor.Data), desc.FilenameFor(descriptor.CompressionInfo), cfg.CompressionChunkSize)
	} else {
		w.dataSink, err = sink.Open(desc.FilenameFor(descriptor.Data), desc.FilenameFor(descriptor.Crc), cfg.BufferSize)
	}
	if err != nil {
		_ = tracker.Aborted(desc)
		return nil, fmt.Errorf("sstable: open data sink: %w", err)
	}

	w.idx, err = newIndexWriter(desc.FilenameFor(descriptor.PrimaryIndex), cfg.BufferSize, expectedKeys, cfg.BloomFalsePositiveChance, cfg.LegacyBloomHashOrder, cfg.MinIndexInterval, cfg.BaseSamplingLevel)
	if err != nil {
		_ = w.dataSink.Abort()
		_ = tracker.Aborted(desc)
		return nil, err
	}

	w.dataSink.SetPostFlushListener(w.idx.summary.MarkDataSynced)
	w.idx.sink.SetPostFlushListener(w.idx.summary.MarkIndexSynced)

	return w, nil
}

// Append writes one partition. It returns a nil entry (and nil error)
// if the key is oversized or the partition is empty — both are
// logged-and-skipped, not propagated as errors.
func (w *Writer) Append(iter rowio.PartitionIterator) (*rowindex.RowIndexEntry, error) {
	if w.state != stateOpen {
		return nil, fmt.Errorf("sstable: append after state %d", w.state)
	}

	key := iter.Key()
	decorated, err := w.partitioner.Decorate(key)
	if err != nil {
		log.Errorw("oversized partition key skipped", "keyLength", len(key), "maxLength", partitionkey.MaxKeyLength)
		return nil, nil
	}
	if iter.IsEmpty() {
		return nil, nil
	}

	if w.cfg.AssertKeyOrder && w.lastDecorated != nil {
		if w.partitioner.Compare(*w.lastDecorated, decorated) > 0 {
			panic(fmt.Sprintf("sstable: out-of-order append: %q after %q", key, w.lastKey))
		}
	}

	startPos := w.dataSink.FilePointer()
	proj := statsmeta.NewProjectingIterator(iter, w.collector)

	columnIndex, err := w.rowSerializer.WriteAndBuildIndex(proj, w.dataSink, rowio.SerializationHeader{Version: 1}, w.cfg.ColumnIndexSize)
	if err != nil {
		return nil, writeErr(w.desc.FilenameFor(descriptor.Data), err)
	}
	proj.Finish()

	endPos := w.dataSink.FilePointer()
	rowSize := endPos - startPos
	if rowSize > w.cfg.LargePartitionWarningBytes {
		log.Warnw("large partition", "key", string(key), "bytes", rowSize)
	}
	w.collector.AddPartitionSizeInBytes(rowSize)

	entry := rowindex.RowIndexEntry{
		Offset:       startPos,
		DeletionTime: iter.PartitionLevelDeletion(),
		Index:        columnIndex,
	}

	if err := w.idx.append(key, entry, endPos); err != nil {
		return nil, err
	}

	if w.firstKey == nil {
		w.firstKey = key
	}
	w.lastKey = key
	w.lastDecorated = &decorated

	return &entry, nil
}

// Mark captures a joint rewind point across the data and index sinks
// and the summary builder. It fails with summary.ErrMarkAfterSample
// once the summary has accepted its first sampled entry, since that
// builder cannot rewind past a sample it has already taken.
func (w *Writer) Mark() (Mark, error) {
	sm, err := w.idx.summary.Mark()
	if err != nil {
		return Mark{}, err
	}
	dm, err := w.dataSink.Mark()
	if err != nil {
		return Mark{}, err
	}
	im, err := w.idx.mark()
	if err != nil {
		return Mark{}, err
	}
	return Mark{data: dm, index: im, summary: sm, firstKey: w.firstKey, lastKey: w.lastKey, lastDecorated: w.lastDecorated}, nil
}

// ResetAndTruncate discards everything appended since m, including the
// summary's sampled entries and the last-key bookkeeping the
// out-of-order assertion uses, so an append right after a rewind is
// judged against what is actually still on disk rather than against a
// partition that got discarded.
func (w *Writer) ResetAndTruncate(m Mark) error {
	if err := w.dataSink.ResetAndTruncate(m.data); err != nil {
		return err
	}
	if err := w.idx.resetAndTruncate(m.index); err != nil {
		return err
	}
	if err := w.idx.summary.ResetAndTruncate(m.summary); err != nil {
		return err
	}
	w.firstKey = m.firstKey
	w.lastKey = m.lastKey
	w.lastDecorated = m.lastDecorated
	return nil
}

// Sync forces the data and index sinks to disk, advancing the
// readable boundary as far as the newly-durable bytes allow.
func (w *Writer) Sync() error {
	if err := w.dataSink.Sync(); err != nil {
		return err
	}
	return w.idx.sink.Sync()
}

func (w *Writer) componentKinds() []descriptor.ComponentKind {
	return descriptor.RequiredComponents(w.cfg.Compressed)
}

func writeAll(s *sink.Sink, b []byte) error {
	_, err := s.Write(b)
	return err
}

// OpenEarly returns a Reader over the durable prefix of this still-open
// writer: everything the summary's readable boundary has already
// certified as fsynced on both the data and index files. Called
// speculatively; returns ok=false if nothing is durable yet.
func (w *Writer) OpenEarly() (*Reader, bool) {
	boundary, ok := w.idx.summary.LastReadableBoundary()
	if !ok {
		return nil, false
	}
	summarySnapshot := w.idx.summary.Build(&boundary)
	w.sharedFilter = w.idx.filter.Build()
	return newReader(w.desc, w.sharedFilter, summarySnapshot, statsmeta.StatsMetadata{}, boundary.DataFileLength, boundary.IndexFileLength, w.cfg, w.partitioner, w.rowSerializer), true
}

// OpenFinalEarly returns a Reader over the fully-prepared (but not yet
// committed) table, for a caller that wants to validate the finished
// content before Commit makes it visible under its final name. It must
// be called after PrepareToCommit.
func (w *Writer) OpenFinalEarly() (*Reader, error) {
	if w.state != statePrepared {
		return nil, fmt.Errorf("sstable: open final early before prepare")
	}
	return newReader(w.desc, w.sharedFilter, w.finalSummary, w.finalStats, w.dataSink.FilePointer(), w.idx.sink.OnDiskFilePointer(), w.cfg, w.partitioner, w.rowSerializer), nil
}

// PrepareToCommit finalizes every component's content (the Bloom
// filter, the downsampled IndexSummary, the accumulated StatsMetadata,
// plus each sink's own sidecar bookkeeping) without yet renaming any
// file into place. Every step runs regardless of an earlier one's
// failure so Abort always has every opened sink to clean up.
func (w *Writer) PrepareToCommit() error {
	if w.state != stateOpen {
		return fmt.Errorf("sstable: prepare after state %d", w.state)
	}
	w.state = statePreparing

	w.finalStats = w.collector.Finish()
	w.finalStats.FirstKey = w.firstKey
	w.finalStats.LastKey = w.lastKey

	var err error
	err = accumulate(err, w.prepareFilter)
	err = accumulate(err, w.prepareIndex)
	err = accumulate(err, w.prepareSummary)
	err = accumulate(err, w.prepareData)
	err = accumulate(err, w.prepareStats)
	if err != nil {
		return err
	}

	w.state = statePrepared
	return nil
}

func (w *Writer) prepareFilter() error {
	path := w.desc.FilenameFor(descriptor.Filter)
	s, err := sink.OpenPlain(path, w.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("sstable: open filter sink: %w", err)
	}
	w.filterSink = s

	w.sharedFilter = w.idx.filter.Build()
	if err := w.sharedFilter.Serialize(s); err != nil {
		return writeErr(w.desc.FilenameFor(descriptor.Filter), err)
	}
	return s.PrepareToCommit()
}

func (w *Writer) prepareIndex() error {
	return w.idx.sink.PrepareToCommit()
}

func (w *Writer) prepareSummary() error {
	path := w.desc.FilenameFor(descriptor.Summary)
	s, err := sink.OpenPlain(path, w.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("sstable: open summary sink: %w", err)
	}
	w.summarySink = s

	w.finalSummary = w.idx.summary.Build(nil)
	if err := w.finalSummary.Serialize(s); err != nil {
		return writeErr(w.desc.FilenameFor(descriptor.Summary), err)
	}
	return s.PrepareToCommit()
}

func (w *Writer) prepareData() error {
	return w.dataSink.PrepareToCommit()
}

func (w *Writer) prepareStats() error {
	path := w.desc.FilenameFor(descriptor.Statistics)
	s, err := sink.OpenPlain(path, w.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("sstable: open stats sink: %w", err)
	}
	w.statsSink = s

	var ser statsmeta.Serializer
	if err := ser.Serialize(s, w.finalStats); err != nil {
		return writeErr(w.desc.FilenameFor(descriptor.Statistics), err)
	}
	return s.PrepareToCommit()
}

// Commit renames every component into its final, published name, in
// the order the durability invariant requires (data and its sidecar
// before the index, summary, filter and stats, which are all
// independently reconstructible), writes and commits the TOC last, and
// records the generation as committed in the tracker.
func (w *Writer) Commit() error {
	if w.state != statePrepared {
		return fmt.Errorf("sstable: commit before prepare, state %d", w.state)
	}

	var err error
	err = accumulate(err, w.dataSink.Commit)
	err = accumulate(err, w.idx.sink.Commit)
	err = accumulate(err, w.summarySink.Commit)
	err = accumulate(err, w.filterSink.Commit)
	err = accumulate(err, w.statsSink.Commit)
	if err != nil {
		w.state = stateAborted
		return err
	}

	if err := w.commitTOC(); err != nil {
		w.state = stateAborted
		return err
	}

	w.state = stateCommitted
	return w.tracker.Committed(w.desc)
}

// commitTOC writes the TOC file listing every component kind this
// generation published, then renames it into place. The TOC is
// committed last, so every other component is already durable by the
// time it is written; the tracker is marked Committed only after it
// succeeds.
func (w *Writer) commitTOC() error {
	path := w.desc.FilenameFor(descriptor.Toc)
	s, err := sink.OpenPlain(path, w.cfg.BufferSize)
	if err != nil {
		return fmt.Errorf("sstable: open TOC sink: %w", err)
	}
	w.tocSink = s

	var lines []string
	for _, kind := range w.componentKinds() {
		lines = append(lines, kind.String())
	}
	if err := writeAll(s, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
		return writeErr(w.desc.FilenameFor(descriptor.Toc), err)
	}
	if err := s.PrepareToCommit(); err != nil {
		return err
	}
	return s.Commit()
}

// Abort discards every temp file this writer created and clears its
// tracker entry; safe to call from any state short of Committed.
func (w *Writer) Abort() error {
	var err error
	err = accumulate(err, w.dataSink.Abort)
	err = accumulate(err, w.idx.abort)
	if w.summarySink != nil {
		err = accumulate(err, w.summarySink.Abort)
	}
	if w.filterSink != nil {
		err = accumulate(err, w.filterSink.Abort)
	}
	if w.statsSink != nil {
		err = accumulate(err, w.statsSink.Abort)
	}
	if w.tocSink != nil {
		err = accumulate(err, w.tocSink.Abort)
	}
	w.state = stateAborted
	return accumulate(err, func() error { return w.tracker.Aborted(w.desc) })
}
