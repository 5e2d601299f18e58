package rowio

import (
	"fmt"
	"io"

	"github.com/coldtable/sstable/rowindex"
)

// Cell is one column value within a Row, the leaf unit of partition
// content. Its encoding is owned entirely by this package (the writer
// itself never inspects cell bytes); spec's non-goals keep cell-encoding
// internals opaque to the orchestrator.
type Cell struct {
	Name              string
	Value             []byte
	Timestamp         int64
	TTLSeconds        int32
	LocalDeletionTime int32
}

// Row is a clustering row: a clustering key and its cells.
type Row struct {
	Clustering []byte
	Cells      []Cell
}

// RangeTombstoneMarker is a range tombstone bound or boundary, the other
// kind of Unfiltered unit a partition iterator may produce.
type RangeTombstoneMarker struct {
	Clustering []byte
	IsBoundary bool
	// IsOpen is only meaningful when IsBoundary is false: true for an
	// open bound, false for a close bound.
	IsOpen bool
	Open   rowindex.DeletionTime
	Close  rowindex.DeletionTime
}

// Unfiltered is one unit flowing out of a PartitionIterator: exactly one
// of Row or Marker is non-nil.
type Unfiltered struct {
	Row    *Row
	Marker *RangeTombstoneMarker
}

// PartitionIterator streams the content of a single partition. Producing
// and decoding these is the opaque "row-serialization collaborator"
// spec.md's non-goals carve out of this subsystem's scope; the writer
// only needs to drive this interface.
type PartitionIterator interface {
	// Key returns the raw partition key bytes.
	Key() []byte
	// PartitionLevelDeletion returns the deletion time covering the
	// whole partition, Live() if undeleted.
	PartitionLevelDeletion() rowindex.DeletionTime
	// IsEmpty reports whether this partition has no content at all
	// (no rows, no markers, no partition-level deletion); such
	// partitions are not written.
	IsEmpty() bool
	// Next returns the next unit, or ok=false when exhausted.
	Next() (Unfiltered, bool)
	// Err returns any error encountered during iteration.
	Err() error
}

// SerializationHeader carries the format-version-dependent parameters
// the row serializer needs; its fields are intentionally minimal since
// the wire format of cells is a collaborator concern, not this writer's.
type SerializationHeader struct {
	Version int
}

// RowSerializer streams a partition's content into w and returns the
// column index describing it. This is the single collaborator interface
// spec.md's "Row serializer" describes: `writeAndBuildIndex(iter,
// dataSink, header, version) -> ColumnIndex`.
type RowSerializer interface {
	WriteAndBuildIndex(iter PartitionIterator, w io.Writer, header SerializationHeader, columnIndexSize int) (*rowindex.ColumnIndex, error)
}

// Partition is the fully decoded form of one partition body, used by
// DefaultRowSerializer's reader side for round-trip tests and by Reader
// (package sstable) when no custom serializer is configured. Decoding a
// partition back into this shape is not part of the writer's
// responsibility in production (the read path is out of scope); it
// exists here only because DefaultRowSerializer owns both ends of its
// own wire format.
type Partition struct {
	Key          []byte
	DeletionTime rowindex.DeletionTime
	Units        []Unfiltered
}

const (
	tagEndOfPartition = byte(0)
	tagRow            = byte(1)
	tagMarker         = byte(2)
)

// DefaultRowSerializer is the writer's built-in RowSerializer,
// generalizing davidvella/xp/recordio's flat-record codec (length-
// prefixed fields, little-endian integers) from a single record to a
// whole partition block: key length prefix, partition deletion time,
// a tagged sequence of rows/markers, end-of-partition tag. It also
// builds ColumnIndexBlocks once the encoded body crosses
// columnIndexSize, matching spec's inline-vs-blocks rule for
// RowIndexEntry.
type DefaultRowSerializer struct{}

func (DefaultRowSerializer) WriteAndBuildIndex(iter PartitionIterator, w io.Writer, header SerializationHeader, columnIndexSize int) (*rowindex.ColumnIndex, error) {
	bw := NewWriter(w)

	if _, err := bw.WriteShortBytes(iter.Key()); err != nil {
		return nil, fmt.Errorf("rowio: write partition key: %w", err)
	}
	if err := writeDeletionTime(bw, iter.PartitionLevelDeletion()); err != nil {
		return nil, fmt.Errorf("rowio: write partition deletion: %w", err)
	}

	var (
		blocks     []rowindex.ColumnIndexBlock
		blockStart int64
		blockFirst []byte
		blockLast  []byte
		blockOpen  = rowindex.Live()
		bodyOffset int64
		sinceBlock int64
	)

	flushBlock := func(last []byte) {
		if blockFirst == nil {
			return
		}
		blocks = append(blocks, rowindex.ColumnIndexBlock{
			FirstClustering: blockFirst,
			LastClustering:  last,
			Offset:          blockStart,
			Width:           bodyOffset - blockStart,
			OpenTombstone:   blockOpen,
		})
		blockFirst = nil
		sinceBlock = 0
	}

	for {
		u, ok := iter.Next()
		if !ok {
			break
		}

		var (
			n   int64
			err error
		)
		switch {
		case u.Row != nil:
			if blockFirst == nil {
				blockFirst = u.Row.Clustering
				blockStart = bodyOffset
			}
			n, err = writeTaggedRow(bw, u.Row)
			blockLast = u.Row.Clustering
		case u.Marker != nil:
			if u.Marker.IsBoundary {
				blockOpen = u.Marker.Open
			} else if u.Marker.IsOpen {
				blockOpen = u.Marker.Open
			} else {
				blockOpen = rowindex.Live()
			}
			n, err = writeTaggedMarker(bw, u.Marker)
			blockLast = u.Marker.Clustering
		}
		if err != nil {
			return nil, fmt.Errorf("rowio: write unit: %w", err)
		}

		bodyOffset += n
		sinceBlock += n
		if columnIndexSize > 0 && sinceBlock >= int64(columnIndexSize) {
			flushBlock(blockLast)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("rowio: iterate partition: %w", err)
	}

	// A body that never crossed columnIndexSize stays in the inline form.
	inline := len(blocks) == 0
	if !inline {
		flushBlock(blockLast)
	}

	if err := bw.writeByte(tagEndOfPartition); err != nil {
		return nil, fmt.Errorf("rowio: write end-of-partition tag: %w", err)
	}

	if inline {
		return nil, nil
	}
	return &rowindex.ColumnIndex{Blocks: blocks}, nil
}

// ReadPartition decodes one partition body written by
// WriteAndBuildIndex, stopping at the end-of-partition tag.
func (DefaultRowSerializer) ReadPartition(r io.Reader) (Partition, error) {
	br := NewReader(r)
	var p Partition
	var err error

	if p.Key, err = br.ReadShortBytes(); err != nil {
		return p, fmt.Errorf("rowio: read partition key: %w", err)
	}
	if p.DeletionTime, err = readDeletionTime(br); err != nil {
		return p, fmt.Errorf("rowio: read partition deletion: %w", err)
	}

	for {
		tag, err := readTag(r)
		if err != nil {
			return p, fmt.Errorf("rowio: read unit tag: %w", err)
		}
		switch tag {
		case tagEndOfPartition:
			return p, nil
		case tagRow:
			row, err := readRow(br)
			if err != nil {
				return p, fmt.Errorf("rowio: read row: %w", err)
			}
			p.Units = append(p.Units, Unfiltered{Row: &row})
		case tagMarker:
			marker, err := readMarker(br)
			if err != nil {
				return p, fmt.Errorf("rowio: read marker: %w", err)
			}
			p.Units = append(p.Units, Unfiltered{Marker: &marker})
		default:
			return p, fmt.Errorf("rowio: unknown unit tag %d", tag)
		}
	}
}

func writeDeletionTime(bw Writer, dt rowindex.DeletionTime) error {
	if _, err := bw.WriteInt64(dt.MarkedForDeleteAt); err != nil {
		return err
	}
	_, err := bw.WriteUint32(uint32(dt.LocalDeletionTime))
	return err
}

func readDeletionTime(br Reader) (rowindex.DeletionTime, error) {
	var dt rowindex.DeletionTime
	markedFor, err := br.ReadInt64()
	if err != nil {
		return dt, err
	}
	local, err := br.ReadUint32()
	if err != nil {
		return dt, err
	}
	dt.MarkedForDeleteAt = markedFor
	dt.LocalDeletionTime = int32(local)
	return dt, nil
}

func readTag(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	return b[0], err
}

func writeTaggedRow(bw Writer, row *Row) (int64, error) {
	if err := bw.writeByte(tagRow); err != nil {
		return 0, err
	}
	n, err := writeRowBody(bw, row)
	return n + 1, err
}

func writeRowBody(bw Writer, row *Row) (int64, error) {
	var total int64
	n, err := bw.WriteShortBytes(row.Clustering)
	if err != nil {
		return total, err
	}
	total += n

	n, err = bw.WriteUint32(uint32(len(row.Cells)))
	if err != nil {
		return total, err
	}
	total += n

	for _, c := range row.Cells {
		if n, err = bw.WriteString(c.Name); err != nil {
			return total, err
		}
		total += n
		if n, err = bw.WriteBytes(c.Value); err != nil {
			return total, err
		}
		total += n
		if n, err = bw.WriteInt64(c.Timestamp); err != nil {
			return total, err
		}
		total += n
		if n, err = bw.WriteUint32(uint32(c.TTLSeconds)); err != nil {
			return total, err
		}
		total += n
		if n, err = bw.WriteUint32(uint32(c.LocalDeletionTime)); err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func readRow(br Reader) (Row, error) {
	var row Row
	var err error
	if row.Clustering, err = br.ReadShortBytes(); err != nil {
		return row, err
	}
	count, err := br.ReadUint32()
	if err != nil {
		return row, err
	}
	row.Cells = make([]Cell, 0, count)
	for i := uint32(0); i < count; i++ {
		var c Cell
		if c.Name, err = br.ReadString(); err != nil {
			return row, err
		}
		if c.Value, err = br.ReadBytes(); err != nil {
			return row, err
		}
		if c.Timestamp, err = br.ReadInt64(); err != nil {
			return row, err
		}
		ttl, err := br.ReadUint32()
		if err != nil {
			return row, err
		}
		c.TTLSeconds = int32(ttl)
		localDel, err := br.ReadUint32()
		if err != nil {
			return row, err
		}
		c.LocalDeletionTime = int32(localDel)
		row.Cells = append(row.Cells, c)
	}
	return row, nil
}

func writeTaggedMarker(bw Writer, m *RangeTombstoneMarker) (int64, error) {
	if err := bw.writeByte(tagMarker); err != nil {
		return 0, err
	}
	n, err := writeMarkerBody(bw, m)
	return n + 1, err
}

func writeMarkerBody(bw Writer, m *RangeTombstoneMarker) (int64, error) {
	var total int64
	n, err := bw.WriteShortBytes(m.Clustering)
	if err != nil {
		return total, err
	}
	total += n

	flags := byte(0)
	if m.IsBoundary {
		flags |= 1
	}
	if m.IsOpen {
		flags |= 2
	}
	n, err = bw.WriteUint32(uint32(flags))
	if err != nil {
		return total, err
	}
	total += n

	if err := writeDeletionTime(bw, m.Open); err != nil {
		return total, err
	}
	total += 12
	if err := writeDeletionTime(bw, m.Close); err != nil {
		return total, err
	}
	total += 12

	return total, nil
}

func readMarker(br Reader) (RangeTombstoneMarker, error) {
	var m RangeTombstoneMarker
	var err error
	if m.Clustering, err = br.ReadShortBytes(); err != nil {
		return m, err
	}
	flags, err := br.ReadUint32()
	if err != nil {
		return m, err
	}
	m.IsBoundary = flags&1 != 0
	m.IsOpen = flags&2 != 0
	if m.Open, err = readDeletionTime(br); err != nil {
		return m, err
	}
	if m.Close, err = readDeletionTime(br); err != nil {
		return m, err
	}
	return m, nil
}
