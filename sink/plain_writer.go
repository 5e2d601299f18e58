package sink

import "fmt"

// plainChunkWriter writes bytes straight through with no checksum or
// compression sidecar, for callers (the primary index file) that get
// their own top-level integrity protection from being re-derivable
// from the data file on recovery and don't need a standalone sidecar.
type plainChunkWriter struct {
	data   *rawFile
	onDisk int64
}

func newPlainChunkWriter(dataPath string) (*plainChunkWriter, error) {
	data, err := openRawFile(dataPath)
	if err != nil {
		return nil, err
	}
	return &plainChunkWriter{data: data}, nil
}

func (p *plainChunkWriter) writeChunk(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if _, err := p.data.f.Write(b); err != nil {
		return fmt.Errorf("sink: write chunk: %w", err)
	}
	p.onDisk += int64(len(b))
	return nil
}

func (p *plainChunkWriter) onDiskPos() int64 { return p.onDisk }

func (p *plainChunkWriter) syncAll() error { return p.data.syncToDisk() }

func (p *plainChunkWriter) truncateToMark(m Mark) error {
	if err := p.data.truncate(m.onDisk); err != nil {
		return err
	}
	p.onDisk = m.onDisk
	return nil
}

func (p *plainChunkWriter) finalize() error { return nil }

func (p *plainChunkWriter) commit() error { return p.data.commit() }

func (p *plainChunkWriter) abort() error { return p.data.abort() }

// OpenPlain creates a sink with no checksum or compression sidecar,
// for components that don't need a standalone integrity file.
func OpenPlain(dataPath string, chunkSize int) (*Sink, error) {
	cw, err := newPlainChunkWriter(dataPath)
	if err != nil {
		return nil, err
	}
	return newSink(cw, chunkSize), nil
}
