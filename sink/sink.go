// Package sink implements the sequential file sink every durable
// component of the table writer is built on: a buffered, checksummed,
// optionally-compressed append-only stream that supports mark/rewind
// for speculative writes and a two-phase prepare/commit/abort lifecycle
// for crash safety.
//
// It generalizes davidvella/xp/sstable/buf.go's BufferReaderSeeker
// (mark via bufio position, rewind via Seek) from a read-side helper to
// a write-side one, and borrows the pending-name-until-publish rename
// discipline from davidvella/xp/storage/local.Storage.
package sink

import (
	"bufio"
	"fmt"
)

const tempSuffix = "-tmp"

// Mark is an opaque bookmark returned by Sink.Mark, consumed by
// Sink.ResetAndTruncate to discard everything written since.
type Mark struct {
	logical int64
	onDisk  int64
}

// PostFlushListener is invoked after every successful Sync with the
// logical offset up to which bytes are now durable.
type PostFlushListener func(logicalOffset int64)

// chunkWriter is the seam between Sink's buffering/mark logic and the
// two on-disk representations (checksummed raw, or compressed).
type chunkWriter interface {
	// writeChunk consumes exactly len(p) logical bytes.
	writeChunk(p []byte) error
	onDiskPos() int64
	syncAll() error
	// truncateToMark discards everything written after the mark's
	// on-disk position and restores accounting to match it.
	truncateToMark(m Mark) error
	finalize() error
	commit() error
	abort() error
}

// Sink is a single append-only output stream for one sstable component
// file: the data file with its checksum or compression-info sidecar, or
// (via OpenPlain) a component with no sidecar such as the primary index.
type Sink struct {
	cw         chunkWriter
	buf        *bufio.Writer
	logicalPos int64
	listener   PostFlushListener
	err        error
	prepared   bool
}

// Open creates an uncompressed, CRC-checksummed sink: dataPath for the
// content, sidecarPath for the rolling per-chunk CRC32 values plus a
// whole-file trailer checksum. chunkSize is the bufio buffer size; each
// buffer flush becomes one CRC chunk, so a single write larger than the
// buffer can reach the sidecar as one larger chunk.
func Open(dataPath, sidecarPath string, chunkSize int) (*Sink, error) {
	cw, err := newCRCChunkWriter(dataPath, sidecarPath)
	if err != nil {
		return nil, err
	}
	return newSink(cw, chunkSize), nil
}

// OpenCompressed creates a snappy-compressed sink: dataPath holds
// compressed chunks, sidecarPath holds the CompressionInfo table
// (uncompressed/compressed offset pairs plus per-chunk CRC32).
func OpenCompressed(dataPath, sidecarPath string, chunkSize int) (*Sink, error) {
	cw, err := newCompressedChunkWriter(dataPath, sidecarPath, chunkSize)
	if err != nil {
		return nil, err
	}
	return newSink(cw, chunkSize), nil
}

func newSink(cw chunkWriter, chunkSize int) *Sink {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	s := &Sink{cw: cw}
	s.buf = bufio.NewWriterSize(writerFunc(func(p []byte) (int, error) {
		if err := s.cw.writeChunk(p); err != nil {
			return 0, err
		}
		return len(p), nil
	}), chunkSize)
	return s
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// Write appends p to the logical stream.
func (s *Sink) Write(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := s.buf.Write(p)
	s.logicalPos += int64(n)
	if err != nil {
		s.err = fmt.Errorf("sink: write: %w", err)
		return n, s.err
	}
	return n, nil
}

// FilePointer returns the logical (uncompressed) byte offset of the
// next byte that will be written.
func (s *Sink) FilePointer() int64 {
	return s.logicalPos
}

// OnDiskFilePointer returns the physical offset of the underlying file
// as of the last flushed chunk; under compression this differs from
// FilePointer.
func (s *Sink) OnDiskFilePointer() int64 {
	return s.cw.onDiskPos()
}

// SetPostFlushListener registers cb to run after every Sync.
func (s *Sink) SetPostFlushListener(cb PostFlushListener) {
	s.listener = cb
}

// Mark captures the current logical position as a rewind point. It
// forces a flush of any buffered-but-unchunked bytes so the mark
// always lands on a chunk boundary.
func (s *Sink) Mark() (Mark, error) {
	if s.err != nil {
		return Mark{}, s.err
	}
	if err := s.buf.Flush(); err != nil {
		s.err = fmt.Errorf("sink: mark flush: %w", err)
		return Mark{}, s.err
	}
	return Mark{logical: s.logicalPos, onDisk: s.cw.onDiskPos()}, nil
}

// ResetAndTruncate discards every byte written since m was taken. No
// byte written after the mark is observable once this returns, even
// if Sync was called in between.
func (s *Sink) ResetAndTruncate(m Mark) error {
	if s.err != nil {
		return s.err
	}
	if err := s.buf.Flush(); err != nil {
		s.err = fmt.Errorf("sink: reset flush: %w", err)
		return s.err
	}
	if err := s.cw.truncateToMark(m); err != nil {
		s.err = fmt.Errorf("sink: reset truncate: %w", err)
		return s.err
	}
	s.logicalPos = m.logical
	return nil
}

// Sync flushes all buffered bytes to the chunk writer, fsyncs the
// underlying files, and notifies the post-flush listener with the
// newly-durable logical offset.
func (s *Sink) Sync() error {
	if s.err != nil {
		return s.err
	}
	if err := s.buf.Flush(); err != nil {
		s.err = fmt.Errorf("sink: sync flush: %w", err)
		return s.err
	}
	if err := s.cw.syncAll(); err != nil {
		s.err = fmt.Errorf("sink: sync: %w", err)
		return s.err
	}
	if s.listener != nil {
		s.listener(s.logicalPos)
	}
	return nil
}

// PrepareToCommit flushes all outstanding bytes and finalizes sidecar
// bookkeeping (the whole-file checksum trailer, or the CompressionInfo
// table) without yet making the files visible under their final names.
func (s *Sink) PrepareToCommit() error {
	if s.err != nil {
		return s.err
	}
	if err := s.buf.Flush(); err != nil {
		s.err = fmt.Errorf("sink: prepare flush: %w", err)
		return s.err
	}
	if err := s.cw.finalize(); err != nil {
		s.err = fmt.Errorf("sink: prepare finalize: %w", err)
		return s.err
	}
	s.prepared = true
	return nil
}

// Commit renames the data file and its sidecar into their final
// locations. PrepareToCommit must have been called first.
func (s *Sink) Commit() error {
	if !s.prepared {
		return fmt.Errorf("sink: commit before prepare")
	}
	return s.cw.commit()
}

// Abort discards the temp files without a trace.
func (s *Sink) Abort() error {
	return s.cw.abort()
}
