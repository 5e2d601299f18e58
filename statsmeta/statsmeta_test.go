package statsmeta_test

import (
	"bytes"
	"testing"

	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/coldtable/sstable/statsmeta"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTracksCellAndRowCounts(t *testing.T) {
	c := statsmeta.NewCollector()
	c.UpdateCell(rowio.Cell{Timestamp: 5, LocalDeletionTime: rowindex.NoDeletionTime})
	c.UpdateCell(rowio.Cell{Timestamp: 7, LocalDeletionTime: rowindex.NoDeletionTime})
	c.AddRow()
	c.UpdateCell(rowio.Cell{Timestamp: 3, LocalDeletionTime: rowindex.NoDeletionTime})
	c.AddRow()

	stats := c.Finish()
	assert.Equal(t, int64(3), stats.TotalCells)
	assert.Equal(t, int64(2), stats.TotalRows)
	assert.Equal(t, int64(3), stats.MinTimestamp)
	assert.Equal(t, int64(7), stats.MaxTimestamp)
}

func TestCollectorRecordsOneCellCountSamplePerPartition(t *testing.T) {
	c := statsmeta.NewCollector()
	c.AddRow()
	c.AddRow()
	c.AddPartitionCellCount(5)
	c.AddRow()
	c.AddPartitionCellCount(1)

	stats := c.Finish()
	assert.Equal(t, int64(3), stats.TotalRows)
	assert.Equal(t, int64(2), stats.CellCounts.Count())
}

func TestCollectorClusteringRange(t *testing.T) {
	c := statsmeta.NewCollector()
	c.UpdateClustering([]byte("m"))
	c.UpdateClustering([]byte("a"))
	c.UpdateClustering([]byte("z"))

	stats := c.Finish()
	assert.Equal(t, "a", string(stats.MinClustering))
	assert.Equal(t, "z", string(stats.MaxClustering))
}

func TestCollectorDeletionTimeIgnoresLiveMarkers(t *testing.T) {
	c := statsmeta.NewCollector()
	c.UpdateDeletionTime(rowindex.Live())
	c.UpdateDeletionTime(rowindex.DeletionTime{MarkedForDeleteAt: 100, LocalDeletionTime: 50})

	stats := c.Finish()
	assert.Equal(t, int64(100), stats.MinTimestamp)
	assert.Equal(t, int64(100), stats.MaxTimestamp)
	assert.Equal(t, int32(50), stats.MinLocalDeletionTime)
}

func TestProjectingIteratorForwardsUnitsUnchanged(t *testing.T) {
	units := []rowio.Unfiltered{
		{Row: &rowio.Row{Clustering: []byte("c0"), Cells: []rowio.Cell{
			{Name: "a", Value: []byte("1")},
			{Name: "b", Value: []byte("2")},
		}}},
		{Row: &rowio.Row{Clustering: []byte("c1"), Cells: []rowio.Cell{
			{Name: "a", Value: []byte("3")},
		}}},
	}
	inner := rowio.NewSlicePartitionIterator([]byte("k"), rowindex.Live(), units)

	c := statsmeta.NewCollector()
	proj := statsmeta.NewProjectingIterator(inner, c)

	assert.Equal(t, []byte("k"), proj.Key())
	assert.True(t, proj.PartitionLevelDeletion().IsLive())

	var forwarded []rowio.Unfiltered
	for {
		u, ok := proj.Next()
		if !ok {
			break
		}
		forwarded = append(forwarded, u)
	}
	require.NoError(t, proj.Err())
	require.Len(t, forwarded, 2)
	proj.Finish()

	stats := c.Finish()
	assert.Equal(t, int64(2), stats.TotalRows)
	assert.Equal(t, int64(3), stats.TotalCells)
	assert.Equal(t, int64(1), stats.CellCounts.Count())
}

func TestSerializerRoundTrip(t *testing.T) {
	c := statsmeta.NewCollector()
	c.UpdateCell(rowio.Cell{Timestamp: 1, LocalDeletionTime: rowindex.NoDeletionTime})
	c.AddRow()
	c.AddPartitionCellCount(1)
	c.UpdateClustering([]byte("x"))
	c.SetRepairedAt(42)
	c.AddPartitionSizeInBytes(1024)
	stats := c.Finish()
	stats.FirstKey = []byte("first")
	stats.LastKey = []byte("last")

	var buf bytes.Buffer
	var ser statsmeta.Serializer
	require.NoError(t, ser.Serialize(&buf, stats))

	got, err := ser.Deserialize(&buf)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalCells, got.TotalCells)
	assert.Equal(t, stats.TotalRows, got.TotalRows)
	assert.Equal(t, stats.RepairedAt, got.RepairedAt)
	assert.Equal(t, "x", string(got.MinClustering))
	assert.Equal(t, "first", string(got.FirstKey))
	assert.Equal(t, "last", string(got.LastKey))
	assert.Equal(t, int64(1), got.PartitionSizes.Count())
}

func TestEstimatedHistogramPercentiles(t *testing.T) {
	h := statsmeta.NewEstimatedHistogram(90)
	for i := int64(1); i <= 100; i++ {
		h.Add(i)
	}
	assert.Equal(t, int64(100), h.Count())
	assert.GreaterOrEqual(t, h.Percentile(0.5), int64(40))
	assert.LessOrEqual(t, h.Percentile(0.5), int64(65))
	assert.GreaterOrEqual(t, h.Percentile(1.0), int64(100))
}
