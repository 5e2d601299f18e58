package sink

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"
)

// compressionEntry is one row of the CompressionInfo sidecar: where a
// chunk's uncompressed bytes begin logically, where its compressed
// bytes begin on disk, and that chunk's CRC32 for integrity checking
// on read. Grounded in dd0wney-graphdb/pkg/wal's chunked-compression
// sidecar, adapted from a WAL segment index to an SSTable component.
type compressionEntry struct {
	UncompressedOffset int64
	CompressedOffset   int64
	Checksum           uint32
}

const compressionEntrySize = 8 + 8 + 4

// compressedChunkWriter snappy-compresses each chunk the buffer hands it
// (usually buffer-sized; a single oversized write arrives as one larger
// chunk) before writing it to the data file, and records the offset mapping
// needed to seek within the compressed stream.
type compressedChunkWriter struct {
	data      *rawFile
	sidecar   *rawFile
	chunkSize int
	uncomp    int64
	comp      int64
	entries   []compressionEntry
}

func newCompressedChunkWriter(dataPath, sidecarPath string, chunkSize int) (*compressedChunkWriter, error) {
	data, err := openRawFile(dataPath)
	if err != nil {
		return nil, err
	}
	sidecar, err := openRawFile(sidecarPath)
	if err != nil {
		_ = data.abort()
		return nil, err
	}
	return &compressedChunkWriter{data: data, sidecar: sidecar, chunkSize: chunkSize}, nil
}

func (c *compressedChunkWriter) writeChunk(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	compressed := snappy.Encode(nil, p)
	if _, err := c.data.f.Write(compressed); err != nil {
		return fmt.Errorf("sink: write compressed chunk: %w", err)
	}
	c.entries = append(c.entries, compressionEntry{
		UncompressedOffset: c.uncomp,
		CompressedOffset:   c.comp,
		Checksum:           crc32.ChecksumIEEE(p),
	})
	c.uncomp += int64(len(p))
	c.comp += int64(len(compressed))
	return nil
}

func (c *compressedChunkWriter) onDiskPos() int64 { return c.comp }

func (c *compressedChunkWriter) syncAll() error {
	if err := c.data.syncToDisk(); err != nil {
		return err
	}
	return c.sidecar.syncToDisk()
}

func (c *compressedChunkWriter) truncateToMark(m Mark) error {
	keep := 0
	for keep < len(c.entries) && c.entries[keep].UncompressedOffset < m.logical {
		keep++
	}
	var compOffset int64
	if keep < len(c.entries) {
		compOffset = c.entries[keep].CompressedOffset
	} else {
		compOffset = c.comp
	}
	if err := c.data.truncate(compOffset); err != nil {
		return err
	}
	c.entries = c.entries[:keep]
	c.uncomp = m.logical
	c.comp = compOffset
	return nil
}

// finalize writes the accumulated CompressionInfo table: chunk size,
// entry count, then the entries themselves.
func (c *compressedChunkWriter) finalize() error {
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(c.chunkSize))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(c.entries)))
	if _, err := c.sidecar.f.Write(header[:]); err != nil {
		return fmt.Errorf("sink: write compression header: %w", err)
	}
	buf := make([]byte, compressionEntrySize)
	for _, e := range c.entries {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(e.UncompressedOffset))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(e.CompressedOffset))
		binary.LittleEndian.PutUint32(buf[16:20], e.Checksum)
		if _, err := c.sidecar.f.Write(buf); err != nil {
			return fmt.Errorf("sink: write compression entry: %w", err)
		}
	}
	return nil
}

func (c *compressedChunkWriter) commit() error {
	if err := c.data.commit(); err != nil {
		return err
	}
	return c.sidecar.commit()
}

func (c *compressedChunkWriter) abort() error {
	err1 := c.data.abort()
	err2 := c.sidecar.abort()
	if err1 != nil {
		return err1
	}
	return err2
}

// ReadCompressionInfo reparses a committed CompressionInfo sidecar;
// used by readers resolving a logical offset to its compressed chunk.
func ReadCompressionInfo(r io.Reader) (chunkSize int, entries []compressionEntry, err error) {
	var header [8]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return 0, nil, fmt.Errorf("sink: read compression header: %w", err)
	}
	chunkSize = int(binary.LittleEndian.Uint32(header[0:4]))
	count := binary.LittleEndian.Uint32(header[4:8])
	entries = make([]compressionEntry, 0, count)
	buf := make([]byte, compressionEntrySize)
	for i := uint32(0); i < count; i++ {
		if _, err = io.ReadFull(r, buf); err != nil {
			return 0, nil, fmt.Errorf("sink: read compression entry: %w", err)
		}
		entries = append(entries, compressionEntry{
			UncompressedOffset: int64(binary.LittleEndian.Uint64(buf[0:8])),
			CompressedOffset:   int64(binary.LittleEndian.Uint64(buf[8:16])),
			Checksum:           binary.LittleEndian.Uint32(buf[16:20]),
		})
	}
	return chunkSize, entries, nil
}
