package statsmeta

import (
	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
)

// ProjectingIterator wraps a rowio.PartitionIterator, forwarding every
// unit unchanged while feeding a Collector as it goes — the "stats-
// collecting projector" the table writer slots between the raw
// partition iterator and the row serializer. It is the decorator
// translation of the original source's StatsCollector
// (AlteringUnfilteredRowIterator subclass): same "observe while
// forwarding" behavior, expressed as composition instead of
// inheritance since that's how Go iterator wrapping works.
type ProjectingIterator struct {
	inner       rowio.PartitionIterator
	collector   *Collector
	sawDeletion bool

	cellsThisPartition int64
	finished           bool
}

// NewProjectingIterator wraps inner, recording into collector.
func NewProjectingIterator(inner rowio.PartitionIterator, collector *Collector) *ProjectingIterator {
	return &ProjectingIterator{inner: inner, collector: collector}
}

func (p *ProjectingIterator) Key() []byte { return p.inner.Key() }

func (p *ProjectingIterator) PartitionLevelDeletion() rowindex.DeletionTime {
	dt := p.inner.PartitionLevelDeletion()
	if !p.sawDeletion {
		p.collector.UpdateDeletionTime(dt)
		p.sawDeletion = true
	}
	return dt
}

func (p *ProjectingIterator) IsEmpty() bool { return p.inner.IsEmpty() }

func (p *ProjectingIterator) Next() (rowio.Unfiltered, bool) {
	u, ok := p.inner.Next()
	if !ok {
		return u, false
	}
	switch {
	case u.Row != nil:
		p.collector.UpdateClustering(u.Row.Clustering)
		for _, cell := range u.Row.Cells {
			p.collector.UpdateCell(cell)
		}
		p.collector.AddRow()
		p.cellsThisPartition += int64(len(u.Row.Cells))
	case u.Marker != nil:
		p.collector.UpdateClustering(u.Marker.Clustering)
		if u.Marker.IsBoundary {
			p.collector.UpdateDeletionTime(u.Marker.Open)
			p.collector.UpdateDeletionTime(u.Marker.Close)
		} else if u.Marker.IsOpen {
			p.collector.UpdateDeletionTime(u.Marker.Open)
		} else {
			p.collector.UpdateDeletionTime(u.Marker.Close)
		}
	}
	return u, true
}

func (p *ProjectingIterator) Err() error { return p.inner.Err() }

// Finish records this partition's total cell count as a single
// cellCounts histogram sample, mirroring the original source's
// StatsCollector.close(). It does not check that Next was drained; it
// records whatever count has been seen so far, and is idempotent if
// called more than once. Callers
// (the table writer) must call Finish once an iterator's Next loop has
// been exhausted; there is no implicit hook on the last Next call since
// rowio.PartitionIterator's contract has no end-of-stream callback.
func (p *ProjectingIterator) Finish() {
	if p.finished {
		return
	}
	p.finished = true
	p.collector.AddPartitionCellCount(p.cellsThisPartition)
}
