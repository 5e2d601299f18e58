package summary

import (
	"encoding/binary"
	"fmt"
	"io"
)

// IndexSummary is the finalized, possibly-downsampled sparse index:
// one (key, indexOffset) pair per retained sample, plus the bookkeeping
// needed to reopen it and to resume sampling at the right stride.
// IndexFileLength/DataFileLength are the segmented-file builder
// snapshot: the primary-index and data file lengths as of the instant
// this summary was built, letting a reopened table reconstruct the
// SectionReader bounds the original writer used without re-deriving
// them from a fresh scan.
type IndexSummary struct {
	Keys              [][]byte
	IndexOffsets      []int64
	SamplingLevel     int
	BaseSamplingLevel int
	MinIndexInterval  int
	FirstKey          []byte
	LastKey           []byte
	IndexFileLength   int64
	DataFileLength    int64
}

// Len reports the number of retained sample entries.
func (s *IndexSummary) Len() int { return len(s.Keys) }

// Serialize writes the Summary file layout: a header of
// (samplingLevel, minIndexInterval, baseSamplingLevel, entryCount),
// an offsets table, a packed keys region, first and last key, then the
// index and data file lengths.
func (s *IndexSummary) Serialize(w io.Writer) error {
	var header [16]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(s.SamplingLevel))
	binary.LittleEndian.PutUint32(header[4:8], uint32(s.MinIndexInterval))
	binary.LittleEndian.PutUint32(header[8:12], uint32(s.BaseSamplingLevel))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(s.Keys)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("summary: write header: %w", err)
	}

	for _, off := range s.IndexOffsets {
		if err := writeInt64(w, off); err != nil {
			return fmt.Errorf("summary: write offset: %w", err)
		}
	}
	for _, k := range s.Keys {
		if err := writeBytes(w, k); err != nil {
			return fmt.Errorf("summary: write key: %w", err)
		}
	}
	if err := writeBytes(w, s.FirstKey); err != nil {
		return fmt.Errorf("summary: write first key: %w", err)
	}
	if err := writeBytes(w, s.LastKey); err != nil {
		return fmt.Errorf("summary: write last key: %w", err)
	}
	if err := writeInt64(w, s.IndexFileLength); err != nil {
		return fmt.Errorf("summary: write index file length: %w", err)
	}
	if err := writeInt64(w, s.DataFileLength); err != nil {
		return fmt.Errorf("summary: write data file length: %w", err)
	}
	return nil
}

// Deserialize reads back an IndexSummary written by Serialize.
func Deserialize(r io.Reader) (*IndexSummary, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("summary: read header: %w", err)
	}
	s := &IndexSummary{
		SamplingLevel:     int(binary.LittleEndian.Uint32(header[0:4])),
		MinIndexInterval:  int(binary.LittleEndian.Uint32(header[4:8])),
		BaseSamplingLevel: int(binary.LittleEndian.Uint32(header[8:12])),
	}
	count := binary.LittleEndian.Uint32(header[12:16])

	s.IndexOffsets = make([]int64, count)
	for i := range s.IndexOffsets {
		off, err := readInt64(r)
		if err != nil {
			return nil, fmt.Errorf("summary: read offset: %w", err)
		}
		s.IndexOffsets[i] = off
	}
	s.Keys = make([][]byte, count)
	for i := range s.Keys {
		k, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("summary: read key: %w", err)
		}
		s.Keys[i] = k
	}
	var err error
	if s.FirstKey, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("summary: read first key: %w", err)
	}
	if s.LastKey, err = readBytes(r); err != nil {
		return nil, fmt.Errorf("summary: read last key: %w", err)
	}
	if s.IndexFileLength, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("summary: read index file length: %w", err)
	}
	if s.DataFileLength, err = readInt64(r); err != nil {
		return nil, fmt.Errorf("summary: read data file length: %w", err)
	}
	return s, nil
}

// BinarySearch returns the index of the last entry whose key is <= key
// according to cmp, or -1 if key sorts before every entry. Callers use
// this to bound where a primary-index scan for key should begin.
func (s *IndexSummary) BinarySearch(key []byte, cmp func(a, b []byte) int) int {
	lo, hi := 0, len(s.Keys)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if cmp(s.Keys[mid], key) <= 0 {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func writeBytes(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}
