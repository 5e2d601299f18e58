package sink

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
)

// crcChunkWriter writes raw chunks straight to the data file and
// records a (length, crc32) pair per chunk in the sidecar, matching
// spec's "Crc file captures a rolling CRC32 over each buffer-sized
// chunk; the final checksum covers the whole file". The whole-file
// trailer is computed at finalize by rehashing the retained bytes,
// which keeps truncation after a rewind trivially correct: there is
// no running hash to unwind.
type crcChunkWriter struct {
	data    *rawFile
	sidecar *rawFile
	onDisk  int64
	entries int64 // number of (length,crc) records written to the sidecar
}

const crcEntrySize = 8 // uint32 length + uint32 crc

func newCRCChunkWriter(dataPath, sidecarPath string) (*crcChunkWriter, error) {
	data, err := openRawFile(dataPath)
	if err != nil {
		return nil, err
	}
	sidecar, err := openRawFile(sidecarPath)
	if err != nil {
		_ = data.abort()
		return nil, err
	}
	return &crcChunkWriter{data: data, sidecar: sidecar}, nil
}

func (c *crcChunkWriter) writeChunk(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if _, err := c.data.f.Write(p); err != nil {
		return fmt.Errorf("sink: write data chunk: %w", err)
	}
	sum := crc32.ChecksumIEEE(p)
	var rec [crcEntrySize]byte
	binary.LittleEndian.PutUint32(rec[0:4], uint32(len(p)))
	binary.LittleEndian.PutUint32(rec[4:8], sum)
	if _, err := c.sidecar.f.Write(rec[:]); err != nil {
		return fmt.Errorf("sink: write crc entry: %w", err)
	}
	c.onDisk += int64(len(p))
	c.entries++
	return nil
}

func (c *crcChunkWriter) onDiskPos() int64 { return c.onDisk }

func (c *crcChunkWriter) syncAll() error {
	if err := c.data.syncToDisk(); err != nil {
		return err
	}
	return c.sidecar.syncToDisk()
}

func (c *crcChunkWriter) truncateToMark(m Mark) error {
	if err := c.data.truncate(m.onDisk); err != nil {
		return err
	}
	// Binary search for the mark's on-disk offset isn't needed: marks
	// only ever land on chunk boundaries (Mark always flushes first),
	// so the number of whole chunks below m.onDisk times the entry
	// size gives the sidecar's truncated length directly, provided
	// chunks up to the mark summed exactly to m.onDisk. Recompute the
	// entry count by replaying the sidecar rather than assuming it,
	// since chunk sizes can vary on the final partial chunk.
	n, err := c.recountEntriesUpTo(m.onDisk)
	if err != nil {
		return err
	}
	if err := c.sidecar.truncate(n * crcEntrySize); err != nil {
		return err
	}
	c.onDisk = m.onDisk
	c.entries = n
	return nil
}

func (c *crcChunkWriter) recountEntriesUpTo(onDisk int64) (int64, error) {
	if _, err := c.sidecar.f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	var (
		rec     [crcEntrySize]byte
		pos     int64
		entries int64
	)
	for pos < onDisk {
		if _, err := io.ReadFull(c.sidecar.f, rec[:]); err != nil {
			return 0, fmt.Errorf("sink: replay crc sidecar: %w", err)
		}
		length := binary.LittleEndian.Uint32(rec[0:4])
		pos += int64(length)
		entries++
	}
	if _, err := c.sidecar.f.Seek(0, io.SeekEnd); err != nil {
		return 0, err
	}
	return entries, nil
}

// finalize appends the whole-file CRC32 trailer to the sidecar:
// entry count followed by the checksum of the retained data bytes.
func (c *crcChunkWriter) finalize() error {
	if _, err := c.data.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	hasher := crc32.NewIEEE()
	if _, err := io.CopyN(hasher, c.data.f, c.onDisk); err != nil && err != io.EOF {
		return fmt.Errorf("sink: rehash data file: %w", err)
	}
	if _, err := c.data.f.Seek(c.onDisk, io.SeekStart); err != nil {
		return err
	}
	var trailer [crcEntrySize]byte
	binary.LittleEndian.PutUint32(trailer[0:4], uint32(c.entries))
	binary.LittleEndian.PutUint32(trailer[4:8], hasher.Sum32())
	if _, err := c.sidecar.f.Write(trailer[:]); err != nil {
		return fmt.Errorf("sink: write crc trailer: %w", err)
	}
	return nil
}

func (c *crcChunkWriter) commit() error {
	if err := c.data.commit(); err != nil {
		return err
	}
	return c.sidecar.commit()
}

func (c *crcChunkWriter) abort() error {
	err1 := c.data.abort()
	err2 := c.sidecar.abort()
	if err1 != nil {
		return err1
	}
	return err2
}
