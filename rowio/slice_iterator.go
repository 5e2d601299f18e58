package rowio

import "github.com/coldtable/sstable/rowindex"

// SlicePartitionIterator is the simplest PartitionIterator: it replays a
// pre-built slice of Unfiltered units. Callers assembling partitions in
// memory (tests, simple ingestion paths) can use it directly instead of
// writing a bespoke streaming iterator.
type SlicePartitionIterator struct {
	key      []byte
	deletion rowindex.DeletionTime
	units    []Unfiltered
	pos      int
}

// NewSlicePartitionIterator builds an iterator over key with the given
// partition-level deletion time and content units.
func NewSlicePartitionIterator(key []byte, deletion rowindex.DeletionTime, units []Unfiltered) *SlicePartitionIterator {
	return &SlicePartitionIterator{key: key, deletion: deletion, units: units}
}

func (it *SlicePartitionIterator) Key() []byte { return it.key }

func (it *SlicePartitionIterator) PartitionLevelDeletion() rowindex.DeletionTime {
	return it.deletion
}

func (it *SlicePartitionIterator) IsEmpty() bool {
	return len(it.units) == 0 && it.deletion.IsLive()
}

func (it *SlicePartitionIterator) Next() (Unfiltered, bool) {
	if it.pos >= len(it.units) {
		return Unfiltered{}, false
	}
	u := it.units[it.pos]
	it.pos++
	return u, true
}

func (it *SlicePartitionIterator) Err() error { return nil }
