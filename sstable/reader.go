package sstable

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/snappy"

	"github.com/coldtable/sstable/bloom"
	"github.com/coldtable/sstable/config"
	"github.com/coldtable/sstable/descriptor"
	"github.com/coldtable/sstable/partitionkey"
	"github.com/coldtable/sstable/rowindex"
	"github.com/coldtable/sstable/rowio"
	"github.com/coldtable/sstable/sink"
	"github.com/coldtable/sstable/statsmeta"
	"github.com/coldtable/sstable/summary"
)

// ErrNotFound is returned by Get when the key is absent, whether the
// Bloom filter ruled it out or the index scan found no match.
var ErrNotFound = errors.New("sstable: key not found")

// ErrUnsupportedSerializer is returned by Get when the writer was
// configured with a RowSerializer this Reader doesn't know how to
// decode; only rowio.DefaultRowSerializer round-trips through Get.
var ErrUnsupportedSerializer = errors.New("sstable: reader cannot decode this row serializer's format")

// Reader is the minimal collaborator interface a caller needs to
// validate a table while or after it is written: a Bloom-filtered,
// summary-guided point lookup plus the table's first/last keys. It is
// not the query engine's read path (out of scope; see package docs),
// only enough surface to exercise the writer's invariants end to end.
type Reader struct {
	desc          descriptor.Descriptor
	filter        *bloom.Filter
	summary       *summary.IndexSummary
	stats         statsmeta.StatsMetadata
	cfg           *config.Options
	rowSerializer rowio.RowSerializer

	partitioner partitionkey.Partitioner

	dataLen  int64
	indexLen int64
}

func newReader(desc descriptor.Descriptor, filter *bloom.Filter, idxSummary *summary.IndexSummary, stats statsmeta.StatsMetadata, dataLen, indexLen int64, cfg *config.Options, partitioner partitionkey.Partitioner, rowSerializer rowio.RowSerializer) *Reader {
	if filter != nil {
		filter.Retain()
	}
	return &Reader{
		desc:          desc,
		filter:        filter,
		summary:       idxSummary,
		stats:         stats,
		cfg:           cfg,
		partitioner:   partitioner,
		rowSerializer: rowSerializer,
		dataLen:       dataLen,
		indexLen:      indexLen,
	}
}

// Close releases this Reader's hold on the shared Bloom filter.
func (r *Reader) Close() {
	if r.filter != nil {
		r.filter.Release()
	}
}

// Stats returns the StatsMetadata snapshot this Reader was opened
// with; always empty for a Reader opened via OpenEarly.
func (r *Reader) Stats() statsmeta.StatsMetadata { return r.stats }

// First returns the raw bytes of the lowest key covered by this
// Reader's view, or nil if the view is empty.
func (r *Reader) First() []byte {
	if r.summary == nil {
		return nil
	}
	return r.summary.FirstKey
}

// Last returns the raw bytes of the highest key covered by this
// Reader's view, or nil if the view is empty.
func (r *Reader) Last() []byte {
	if r.summary == nil {
		return nil
	}
	return r.summary.LastKey
}

// Get looks up key: a Bloom-filter negative short-circuits to
// ErrNotFound without touching disk, otherwise the IndexSummary
// narrows a sequential scan of the primary index to a bounded range,
// and a match's RowIndexEntry.Offset drives one read from the data
// file.
func (r *Reader) Get(key []byte) (*rowio.Partition, error) {
	if r.filter != nil && !r.filter.MayContain(key) {
		return nil, ErrNotFound
	}

	dataFile, err := os.Open(r.desc.TempFilenameFor(descriptor.Data))
	if err != nil {
		return nil, fmt.Errorf("sstable: open data file: %w", err)
	}
	defer dataFile.Close()

	indexFile, err := os.Open(r.desc.TempFilenameFor(descriptor.PrimaryIndex))
	if err != nil {
		return nil, fmt.Errorf("sstable: open index file: %w", err)
	}
	defer indexFile.Close()

	startOffset := int64(0)
	if r.summary != nil {
		if idx := r.summary.BinarySearch(key, r.compareRawKeys); idx >= 0 {
			startOffset = r.summary.IndexOffsets[idx]
		}
	}

	indexSection := io.NewSectionReader(indexFile, startOffset, r.indexLen-startOffset)
	entry, found, err := r.scanIndex(indexSection, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}

	serializer, ok := r.rowSerializer.(rowio.DefaultRowSerializer)
	if !ok {
		return nil, ErrUnsupportedSerializer
	}

	var dataReaderAt io.ReaderAt = dataFile
	if r.cfg.Compressed {
		decomp, err := newDecompressingReaderAt(dataFile, r.desc.TempFilenameFor(descriptor.CompressionInfo))
		if err != nil {
			return nil, err
		}
		dataReaderAt = decomp
	}

	dataSection := io.NewSectionReader(dataReaderAt, entry.Offset, r.dataLen-entry.Offset)
	partition, err := serializer.ReadPartition(dataSection)
	if err != nil {
		return nil, fmt.Errorf("sstable: read partition at offset %d: %w", entry.Offset, err)
	}
	return &partition, nil
}

// scanIndex walks (key, RowIndexEntry) records from r until it finds
// an exact match for target, or passes where target would sort,
// whichever comes first.
func (r *Reader) scanIndex(section *io.SectionReader, target []byte) (rowindex.RowIndexEntry, bool, error) {
	br := rowio.NewReader(section)
	for {
		key, err := br.ReadShortBytes()
		if err != nil {
			if err == io.EOF {
				return rowindex.RowIndexEntry{}, false, nil
			}
			return rowindex.RowIndexEntry{}, false, fmt.Errorf("sstable: scan index key: %w", err)
		}
		entry, err := rowindex.ReadRowIndexEntry(section)
		if err != nil {
			return rowindex.RowIndexEntry{}, false, fmt.Errorf("sstable: scan index entry: %w", err)
		}
		cmp := r.compareRawKeys(key, target)
		if cmp == 0 {
			return entry, true, nil
		}
		if cmp > 0 {
			return rowindex.RowIndexEntry{}, false, nil
		}
	}
}

func (r *Reader) compareRawKeys(a, b []byte) int {
	da, errA := r.partitioner.Decorate(a)
	db, errB := r.partitioner.Decorate(b)
	if errA != nil || errB != nil {
		return 0
	}
	return r.partitioner.Compare(da, db)
}

// chunkBounds is one entry's logical-offset/on-disk-offset pair, a
// local copy of sink's CompressionInfo rows so this package doesn't
// need to name sink's unexported entry type.
type chunkBounds struct {
	uncompressedOffset int64
	compressedOffset   int64
}

// decompressingReaderAt turns a snappy-compressed data file plus its
// CompressionInfo sidecar back into a ReaderAt addressed by logical
// (uncompressed) offset, decompressing one chunk at a time on demand.
type decompressingReaderAt struct {
	f          *os.File
	fileSize   int64
	chunks     []chunkBounds
}

func newDecompressingReaderAt(f *os.File, sidecarPath string) (*decompressingReaderAt, error) {
	sidecar, err := os.Open(sidecarPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: open compression info: %w", err)
	}
	defer sidecar.Close()

	_, entries, err := sink.ReadCompressionInfo(sidecar)
	if err != nil {
		return nil, fmt.Errorf("sstable: read compression info: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("sstable: stat data file: %w", err)
	}

	chunks := make([]chunkBounds, 0, len(entries))
	for _, e := range entries {
		chunks = append(chunks, chunkBounds{uncompressedOffset: e.UncompressedOffset, compressedOffset: e.CompressedOffset})
	}
	return &decompressingReaderAt{f: f, fileSize: info.Size(), chunks: chunks}, nil
}

func (d *decompressingReaderAt) chunkEnd(idx int) int64 {
	if idx+1 < len(d.chunks) {
		return d.chunks[idx+1].compressedOffset
	}
	return d.fileSize
}

func (d *decompressingReaderAt) chunkForOffset(logicalOffset int64) int {
	lo, hi := 0, len(d.chunks)-1
	result := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if d.chunks[mid].uncompressedOffset <= logicalOffset {
			result = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return result
}

func (d *decompressingReaderAt) decompressChunk(idx int) ([]byte, error) {
	start := d.chunks[idx].compressedOffset
	end := d.chunkEnd(idx)
	compressed := make([]byte, end-start)
	if _, err := d.f.ReadAt(compressed, start); err != nil {
		return nil, fmt.Errorf("sstable: read compressed chunk %d: %w", idx, err)
	}
	return snappy.Decode(nil, compressed)
}

func (d *decompressingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		idx := d.chunkForOffset(off + int64(n))
		if idx < 0 {
			return n, io.EOF
		}
		chunk, err := d.decompressChunk(idx)
		if err != nil {
			return n, err
		}
		localOff := off + int64(n) - d.chunks[idx].uncompressedOffset
		if localOff >= int64(len(chunk)) {
			return n, io.EOF
		}
		c := copy(p[n:], chunk[localOff:])
		n += c
	}
	return n, nil
}
