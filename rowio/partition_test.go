package rowio_test

import (
	"bytes"
	"testing"

	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRowSerializerRoundTrip(t *testing.T) {
	units := []rowio.Unfiltered{
		{Row: &rowio.Row{
			Clustering: []byte("c1"),
			Cells: []rowio.Cell{
				{Name: "col", Value: []byte("v"), Timestamp: 1, LocalDeletionTime: rowindex.NoDeletionTime},
			},
		}},
		{Row: &rowio.Row{
			Clustering: []byte("c2"),
			Cells: []rowio.Cell{
				{Name: "col", Value: []byte("w"), Timestamp: 2, LocalDeletionTime: rowindex.NoDeletionTime},
			},
		}},
	}

	iter := rowio.NewSlicePartitionIterator([]byte("key1"), rowindex.Live(), units)

	var buf bytes.Buffer
	var ser rowio.DefaultRowSerializer
	ci, err := ser.WriteAndBuildIndex(iter, &buf, rowio.SerializationHeader{Version: 1}, 0)
	require.NoError(t, err)
	assert.Nil(t, ci, "small partition should use the inline form")

	got, err := ser.ReadPartition(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("key1"), got.Key)
	require.Len(t, got.Units, 2)
	assert.Equal(t, "c1", string(got.Units[0].Row.Clustering))
	assert.Equal(t, "c2", string(got.Units[1].Row.Clustering))
	assert.Equal(t, "v", string(got.Units[0].Row.Cells[0].Value))
}

func TestDefaultRowSerializerBuildsColumnIndexForLargePartitions(t *testing.T) {
	var units []rowio.Unfiltered
	for i := 0; i < 50; i++ {
		units = append(units, rowio.Unfiltered{Row: &rowio.Row{
			Clustering: []byte{byte(i)},
			Cells: []rowio.Cell{
				{Name: "col", Value: bytes.Repeat([]byte("x"), 64), Timestamp: int64(i), LocalDeletionTime: rowindex.NoDeletionTime},
			},
		}})
	}

	iter := rowio.NewSlicePartitionIterator([]byte("wide"), rowindex.Live(), units)

	var buf bytes.Buffer
	var ser rowio.DefaultRowSerializer
	ci, err := ser.WriteAndBuildIndex(iter, &buf, rowio.SerializationHeader{Version: 1}, 256)
	require.NoError(t, err)
	require.NotNil(t, ci)
	assert.Greater(t, len(ci.Blocks), 1)

	got, err := ser.ReadPartition(&buf)
	require.NoError(t, err)
	assert.Len(t, got.Units, 50)
}

func TestRangeTombstoneMarkerRoundTrip(t *testing.T) {
	units := []rowio.Unfiltered{
		{Marker: &rowio.RangeTombstoneMarker{
			Clustering: []byte("a"),
			IsOpen:     true,
			Open:       rowindex.DeletionTime{MarkedForDeleteAt: 5, LocalDeletionTime: 5},
			Close:      rowindex.Live(),
		}},
		{Marker: &rowio.RangeTombstoneMarker{
			Clustering: []byte("z"),
			IsOpen:     false,
			Open:       rowindex.Live(),
			Close:      rowindex.DeletionTime{MarkedForDeleteAt: 5, LocalDeletionTime: 5},
		}},
	}

	iter := rowio.NewSlicePartitionIterator([]byte("key"), rowindex.Live(), units)
	var buf bytes.Buffer
	var ser rowio.DefaultRowSerializer
	_, err := ser.WriteAndBuildIndex(iter, &buf, rowio.SerializationHeader{Version: 1}, 0)
	require.NoError(t, err)

	got, err := ser.ReadPartition(&buf)
	require.NoError(t, err)
	require.Len(t, got.Units, 2)
	assert.True(t, got.Units[0].Marker.IsOpen)
	assert.False(t, got.Units[1].Marker.IsOpen)
}
