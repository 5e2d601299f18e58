// Package rowindex defines the RowIndexEntry written to the primary
// index for every accepted partition, and the DeletionTime/ColumnIndex
// types it is built from. This mirrors BigTableWriter's RowIndexEntry /
// ColumnIndex pair (original_source's BigTableWriter.java) but keeps its
// own minimal binary codec rather than depending on rowio, so the two
// packages don't form an import cycle (rowio builds ColumnIndex values,
// the table writer wraps them in RowIndexEntry values, and rowindex only
// needs to serialize them).
package rowindex

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// DeletionTime represents a partition- or range-level deletion. A live
// (undeleted) value uses LocalDeletionTime == NoDeletionTime.
type DeletionTime struct {
	MarkedForDeleteAt int64
	LocalDeletionTime int32
}

// NoDeletionTime marks a DeletionTime as "not deleted".
const NoDeletionTime = int32(0x7FFFFFFF)

// Live returns the sentinel deletion time meaning "not deleted".
func Live() DeletionTime {
	return DeletionTime{MarkedForDeleteAt: math.MinInt64, LocalDeletionTime: NoDeletionTime}
}

// IsLive reports whether this deletion time represents no deletion.
func (d DeletionTime) IsLive() bool {
	return d.LocalDeletionTime == NoDeletionTime
}

func (d DeletionTime) writeTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, d.MarkedForDeleteAt); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, d.LocalDeletionTime)
}

func readDeletionTime(r io.Reader) (DeletionTime, error) {
	var d DeletionTime
	if err := binary.Read(r, binary.LittleEndian, &d.MarkedForDeleteAt); err != nil {
		return d, err
	}
	if err := binary.Read(r, binary.LittleEndian, &d.LocalDeletionTime); err != nil {
		return d, err
	}
	return d, nil
}

// ColumnIndexBlock describes one in-partition index block: the
// clustering range it covers, its byte offset and width within the
// partition body, and the deletion time open at its boundary.
type ColumnIndexBlock struct {
	FirstClustering []byte
	LastClustering  []byte
	Offset          int64
	Width           int64
	OpenTombstone   DeletionTime
}

func (b ColumnIndexBlock) writeTo(w io.Writer) error {
	if err := writeShortBytes(w, b.FirstClustering); err != nil {
		return err
	}
	if err := writeShortBytes(w, b.LastClustering); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.Offset); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.Width); err != nil {
		return err
	}
	return b.OpenTombstone.writeTo(w)
}

func readColumnIndexBlock(r io.Reader) (ColumnIndexBlock, error) {
	var b ColumnIndexBlock
	var err error
	if b.FirstClustering, err = readShortBytes(r); err != nil {
		return b, err
	}
	if b.LastClustering, err = readShortBytes(r); err != nil {
		return b, err
	}
	if err = binary.Read(r, binary.LittleEndian, &b.Offset); err != nil {
		return b, err
	}
	if err = binary.Read(r, binary.LittleEndian, &b.Width); err != nil {
		return b, err
	}
	if b.OpenTombstone, err = readDeletionTime(r); err != nil {
		return b, err
	}
	return b, nil
}

// ColumnIndex is the per-partition index structure returned by the row
// serializer. A nil Blocks slice means the partition was small enough
// that RowIndexEntry should be written inline with no block array, per
// spec's "inline summary for small partitions" rule.
type ColumnIndex struct {
	Blocks []ColumnIndexBlock
}

// RowIndexEntry is the record written once per accepted partition to the
// primary index: where the partition starts in the data file, its
// partition-level deletion, and (if the partition was large enough) the
// column index built while writing it.
type RowIndexEntry struct {
	Offset       int64
	DeletionTime DeletionTime
	Index        *ColumnIndex
}

// IsInline reports whether this entry has no column index blocks, i.e.
// its partition was small enough for the inline-summary form.
func (e RowIndexEntry) IsInline() bool {
	return e.Index == nil || len(e.Index.Blocks) == 0
}

// WriteTo serializes the entry: offset, deletion time, block count, then
// each block.
func (e RowIndexEntry) WriteTo(w io.Writer) (int64, error) {
	if err := binary.Write(w, binary.LittleEndian, e.Offset); err != nil {
		return 0, fmt.Errorf("rowindex: write offset: %w", err)
	}
	if err := e.DeletionTime.writeTo(w); err != nil {
		return 0, fmt.Errorf("rowindex: write deletion time: %w", err)
	}

	var blockCount int32
	if e.Index != nil {
		blockCount = int32(len(e.Index.Blocks))
	}
	if err := binary.Write(w, binary.LittleEndian, blockCount); err != nil {
		return 0, fmt.Errorf("rowindex: write block count: %w", err)
	}
	for _, b := range e.Index.blocksOrNil() {
		if err := b.writeTo(w); err != nil {
			return 0, fmt.Errorf("rowindex: write block: %w", err)
		}
	}

	return e.size(), nil
}

func (ci *ColumnIndex) blocksOrNil() []ColumnIndexBlock {
	if ci == nil {
		return nil
	}
	return ci.Blocks
}

// size returns the number of bytes WriteTo will write; used by callers
// that need to know the entry's encoded width before writing it, e.g.
// to compute the next index offset.
func (e RowIndexEntry) size() int64 {
	n := int64(8 + 8 + 4 + 4) // offset + marked-for-delete-at + local-deletion-time + block count
	for _, b := range e.Index.blocksOrNil() {
		n += 2 + int64(len(b.FirstClustering))
		n += 2 + int64(len(b.LastClustering))
		n += 8 + 8 + 8 + 4 // offset + width + deletion time
	}
	return n
}

// ReadRowIndexEntry deserializes an entry written by WriteTo.
func ReadRowIndexEntry(r io.Reader) (RowIndexEntry, error) {
	var e RowIndexEntry
	var err error

	if err = binary.Read(r, binary.LittleEndian, &e.Offset); err != nil {
		return e, fmt.Errorf("rowindex: read offset: %w", err)
	}
	if e.DeletionTime, err = readDeletionTime(r); err != nil {
		return e, fmt.Errorf("rowindex: read deletion time: %w", err)
	}

	var blockCount int32
	if err = binary.Read(r, binary.LittleEndian, &blockCount); err != nil {
		return e, fmt.Errorf("rowindex: read block count: %w", err)
	}
	if blockCount == 0 {
		return e, nil
	}

	e.Index = &ColumnIndex{Blocks: make([]ColumnIndexBlock, 0, blockCount)}
	for i := int32(0); i < blockCount; i++ {
		b, err := readColumnIndexBlock(r)
		if err != nil {
			return e, fmt.Errorf("rowindex: read block %d: %w", i, err)
		}
		e.Index.Blocks = append(e.Index.Blocks, b)
	}
	return e, nil
}

func writeShortBytes(w io.Writer, b []byte) error {
	if len(b) > 0xFFFF {
		return fmt.Errorf("rowindex: clustering value length %d exceeds uint16 max", len(b))
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readShortBytes(r io.Reader) ([]byte, error) {
	var length uint16
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	b := make([]byte, length)
	_, err := io.ReadFull(r, b)
	return b, err
}
