package sstable_test

import (
	"testing"

	"github.com/coldtable/sstable/config"
	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/coldtable/sstable/sstable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPreparedTable(t *testing.T, dir string, generation int64, keys []string) *sstable.Writer {
	t.Helper()
	tracker := openTracker(t)
	desc := testDescriptor(dir, generation)

	w, err := sstable.NewWriter(desc, int64(len(keys)), config.Default(), nil, nil, tracker)
	require.NoError(t, err)
	for _, k := range keys {
		_, err := w.Append(simplePartition(k, k+"-value"))
		require.NoError(t, err)
	}
	require.NoError(t, w.PrepareToCommit())
	return w
}

func TestReaderGetFindsEveryAppendedKey(t *testing.T) {
	dir := t.TempDir()
	keys := []string{"a", "b", "c", "d", "e"}
	w := buildPreparedTable(t, dir, 1, keys)

	reader, err := w.OpenFinalEarly()
	require.NoError(t, err)
	defer reader.Close()

	for _, k := range keys {
		got, err := reader.Get([]byte(k))
		require.NoError(t, err)
		require.Len(t, got.Units, 1)
		assert.Equal(t, k+"-value", string(got.Units[0].Row.Cells[0].Value))
	}

	require.NoError(t, w.Commit())
}

func TestReaderGetMissingKeyReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	w := buildPreparedTable(t, dir, 1, []string{"a", "c", "e"})

	reader, err := w.OpenFinalEarly()
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Get([]byte("z"))
	assert.ErrorIs(t, err, sstable.ErrNotFound)

	require.NoError(t, w.Commit())
}

func TestReaderFirstAndLast(t *testing.T) {
	dir := t.TempDir()
	w := buildPreparedTable(t, dir, 1, []string{"a", "m", "z"})

	reader, err := w.OpenFinalEarly()
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, "a", string(reader.First()))
	assert.Equal(t, "z", string(reader.Last()))

	require.NoError(t, w.Commit())
}

func TestReaderStatsReflectAppendedCells(t *testing.T) {
	dir := t.TempDir()
	tracker := openTracker(t)
	desc := testDescriptor(dir, 1)

	w, err := sstable.NewWriter(desc, 2, config.Default(), nil, nil, tracker)
	require.NoError(t, err)

	for _, k := range []string{"a", "b"} {
		iter := rowio.NewSlicePartitionIterator([]byte(k), rowindex.Live(), []rowio.Unfiltered{
			{Row: &rowio.Row{Clustering: []byte("c0"), Cells: []rowio.Cell{
				{Name: "x", Value: []byte("1"), Timestamp: 10},
				{Name: "y", Value: []byte("2"), Timestamp: 20},
			}}},
		})
		_, err := w.Append(iter)
		require.NoError(t, err)
	}

	require.NoError(t, w.PrepareToCommit())

	reader, err := w.OpenFinalEarly()
	require.NoError(t, err)
	defer reader.Close()

	stats := reader.Stats()
	assert.Equal(t, int64(4), stats.TotalCells)
	assert.Equal(t, int64(2), stats.TotalRows)
	assert.Equal(t, "a", string(stats.FirstKey))
	assert.Equal(t, "b", string(stats.LastKey))

	require.NoError(t, w.Commit())
}
