package sink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// rawFile is the two-phase-commit file primitive every sink (data,
// index, CRC, CompressionInfo) is built on: create under a temp name,
// rename into place at Commit, unlink at Abort. This is the same shape
// davidvella/xp/storage/local.Storage.Create/Publish uses for its
// pending-dir -> publishing-dir rename, collapsed here to a single
// directory with a "-tmp" suffix instead of two directories.
type rawFile struct {
	finalPath string
	tempPath  string
	f         *os.File
	committed bool
	aborted   bool
}

func openRawFile(finalPath string) (*rawFile, error) {
	tempPath := finalPath + tempSuffix
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", tempPath, err)
	}
	return &rawFile{finalPath: finalPath, tempPath: tempPath, f: f}, nil
}

func (r *rawFile) syncToDisk() error {
	return r.f.Sync()
}

func (r *rawFile) size() (int64, error) {
	info, err := r.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (r *rawFile) truncate(size int64) error {
	if err := r.f.Truncate(size); err != nil {
		return fmt.Errorf("sink: truncate %s: %w", r.tempPath, err)
	}
	_, err := r.f.Seek(size, io.SeekStart)
	return err
}

// commit fsyncs the file, renames it into place, and fsyncs the parent
// directory so the rename itself is durable.
func (r *rawFile) commit() error {
	if r.committed {
		return nil
	}
	if err := r.f.Sync(); err != nil {
		return fmt.Errorf("sink: fsync %s: %w", r.tempPath, err)
	}
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("sink: close %s: %w", r.tempPath, err)
	}
	if err := os.Rename(r.tempPath, r.finalPath); err != nil {
		return fmt.Errorf("sink: rename %s -> %s: %w", r.tempPath, r.finalPath, err)
	}
	r.committed = true
	return fsyncDir(filepath.Dir(r.finalPath))
}

func (r *rawFile) abort() error {
	if r.aborted || r.committed {
		return nil
	}
	r.aborted = true
	_ = r.f.Close()
	if err := os.Remove(r.tempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("sink: remove %s: %w", r.tempPath, err)
	}
	return nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("sink: open dir %s: %w", dir, err)
	}
	defer d.Close()
	return d.Sync()
}
