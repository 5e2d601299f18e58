package sstable_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/coldtable/sstable/config"
	"github.com/coldtable/sstable/descriptor"
	"github.com/coldtable/sstable/log"
	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/coldtable/sstable/sstable"
	"github.com/coldtable/sstable/summary"
	"github.com/coldtable/sstable/txlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetLogger(log.NewNop())
}

func openTracker(t *testing.T) *txlog.Tracker {
	t.Helper()
	tr, err := txlog.Open(filepath.Join(t.TempDir(), "txlog"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func testDescriptor(dir string, generation int64) descriptor.Descriptor {
	return descriptor.Descriptor{
		Directory:  dir,
		Keyspace:   "ks",
		Table:      "tbl",
		Version:    "ka",
		Generation: generation,
	}
}

func simplePartition(key string, value string) rowio.PartitionIterator {
	return rowio.NewSlicePartitionIterator([]byte(key), rowindex.Live(), []rowio.Unfiltered{
		{Row: &rowio.Row{
			Clustering: []byte("c0"),
			Cells: []rowio.Cell{
				{Name: "v", Value: []byte(value), Timestamp: 1, LocalDeletionTime: rowindex.NoDeletionTime},
			},
		}},
	})
}

func TestThreeTinyPartitionsWriteAndCommit(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 3, config.Default(), nil, nil, tracker)
	require.NoError(t, err)

	for i, k := range []string{"a", "b", "c"} {
		_, err := w.Append(simplePartition(k, fmt.Sprintf("val%d", i)))
		require.NoError(t, err)
	}

	require.NoError(t, w.PrepareToCommit())
	require.NoError(t, w.Commit())

	for _, kind := range []descriptor.ComponentKind{
		descriptor.Data, descriptor.PrimaryIndex, descriptor.Summary,
		descriptor.Filter, descriptor.Statistics, descriptor.Crc, descriptor.Toc,
	} {
		path := desc.FilenameFor(kind)
		assert.FileExists(t, path)
	}
	assert.NoFileExists(t, desc.FilenameFor(descriptor.Data)+"-tmp")

	assert.Empty(t, tracker.RecoverOrphans())
}

func TestRewindDiscardsAppendedPartition(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 3, config.Default(), nil, nil, tracker)
	require.NoError(t, err)

	// The summary samples the very first partition unconditionally
	// (count%minIndexInterval==0 at count=0), so the only point at
	// which Mark can still succeed is before any partition has been
	// appended; see TestMarkAfterFirstSampleIsRejected.
	mark, err := w.Mark()
	require.NoError(t, err)

	_, err = w.Append(simplePartition("a", "v0"))
	require.NoError(t, err)
	_, err = w.Append(simplePartition("b", "v1"))
	require.NoError(t, err)

	require.NoError(t, w.ResetAndTruncate(mark))

	_, err = w.Append(simplePartition("a2", "v2"))
	require.NoError(t, err)

	require.NoError(t, w.PrepareToCommit())

	reader, err := w.OpenFinalEarly()
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Get([]byte("a"))
	assert.ErrorIs(t, err, sstable.ErrNotFound, "the discarded partition must not be readable")
	_, err = reader.Get([]byte("b"))
	assert.ErrorIs(t, err, sstable.ErrNotFound, "the discarded partition must not be readable")

	got, err := reader.Get([]byte("a2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(got.Units[0].Row.Cells[0].Value))

	require.NoError(t, w.Commit())
}

func TestMarkAfterFirstSampleIsRejected(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 3, config.Default(), nil, nil, tracker)
	require.NoError(t, err)
	defer w.Abort()

	_, err = w.Append(simplePartition("a", "v0"))
	require.NoError(t, err)

	_, err = w.Mark()
	assert.ErrorIs(t, err, summary.ErrMarkAfterSample)
}

func TestOpenEarlyReturnsNothingBeforeFirstSync(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 3, config.Default(), nil, nil, tracker)
	require.NoError(t, err)
	defer w.Abort()

	_, err = w.Append(simplePartition("a", "v0"))
	require.NoError(t, err)

	_, ok := w.OpenEarly()
	assert.False(t, ok)

	require.NoError(t, w.Sync())
	reader, ok := w.OpenEarly()
	require.True(t, ok)
	defer reader.Close()

	assert.Equal(t, "a", string(reader.First()))
}

func TestAbortLeavesNoPublishedFilesAndClearsTracker(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 3, config.Default(), nil, nil, tracker)
	require.NoError(t, err)

	_, err = w.Append(simplePartition("a", "v0"))
	require.NoError(t, err)

	require.NoError(t, w.Abort())

	assert.NoFileExists(t, desc.FilenameFor(descriptor.Data))
	assert.Empty(t, tracker.RecoverOrphans())
}

func TestLargePartitionLogsWarningButSucceeds(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	cfg := config.Default()
	cfg.LargePartitionWarningBytes = 8

	w, err := sstable.NewWriter(desc, 1, cfg, nil, nil, tracker)
	require.NoError(t, err)

	_, err = w.Append(simplePartition("a", "a long value that exceeds the tiny warning threshold"))
	require.NoError(t, err)

	require.NoError(t, w.PrepareToCommit())
	require.NoError(t, w.Commit())
}

func TestCompressedWriterRoundTripsThroughReader(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	cfg := config.Default()
	cfg.Compressed = true

	w, err := sstable.NewWriter(desc, 2, cfg, nil, nil, tracker)
	require.NoError(t, err)

	_, err = w.Append(simplePartition("a", "alpha"))
	require.NoError(t, err)
	_, err = w.Append(simplePartition("b", "beta"))
	require.NoError(t, err)

	require.NoError(t, w.PrepareToCommit())

	reader, err := w.OpenFinalEarly()
	require.NoError(t, err)
	defer reader.Close()

	got, err := reader.Get([]byte("a"))
	require.NoError(t, err)
	require.Len(t, got.Units, 1)
	assert.Equal(t, "alpha", string(got.Units[0].Row.Cells[0].Value))

	require.NoError(t, w.Commit())
}

func TestEmptyPartitionIsSkipped(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 1, config.Default(), nil, nil, tracker)
	require.NoError(t, err)

	empty := rowio.NewSlicePartitionIterator([]byte("empty"), rowindex.Live(), nil)
	entry, err := w.Append(empty)
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, w.Abort())
}

func TestOversizedKeyIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 1, config.Default(), nil, nil, tracker)
	require.NoError(t, err)

	oversized := make([]byte, 70000)
	entry, err := w.Append(rowio.NewSlicePartitionIterator(oversized, rowindex.Live(), []rowio.Unfiltered{
		{Row: &rowio.Row{Clustering: []byte("c"), Cells: []rowio.Cell{{Name: "v", Value: []byte("x")}}}},
	}))
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, w.Abort())
}

func TestOutOfOrderAppendPanicsWhenAssertionEnabled(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 2, config.Default(), nil, nil, tracker)
	require.NoError(t, err)
	defer w.Abort()

	_, err = w.Append(simplePartition("b", "v0"))
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = w.Append(simplePartition("a", "v1"))
	})
}

func TestOutOfOrderAppendToleratedWhenAssertionDisabled(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	cfg := config.Default()
	cfg.AssertKeyOrder = false

	w, err := sstable.NewWriter(desc, 2, cfg, nil, nil, tracker)
	require.NoError(t, err)

	_, err = w.Append(simplePartition("b", "v0"))
	require.NoError(t, err)
	_, err = w.Append(simplePartition("a", "v1"))
	require.NoError(t, err)

	require.NoError(t, w.Abort())
}
