package sink_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/coldtable/sstable/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUncompressedSinkWriteCommitReadBack(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	crcPath := filepath.Join(dir, "crc.db")

	s, err := sink.Open(dataPath, crcPath, 16)
	require.NoError(t, err)

	_, err = s.Write([]byte("hello, world! this is more than sixteen bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(45), s.FilePointer())

	require.NoError(t, s.Sync())
	require.NoError(t, s.PrepareToCommit())
	require.NoError(t, s.Commit())

	got, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	assert.Equal(t, "hello, world! this is more than sixteen bytes", string(got))

	_, err = os.Stat(crcPath)
	require.NoError(t, err)
	_, err = os.Stat(dataPath + "-tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSinkMarkAndResetAndTruncateDiscardsTail(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	crcPath := filepath.Join(dir, "crc.db")

	s, err := sink.Open(dataPath, crcPath, 8)
	require.NoError(t, err)

	_, err = s.Write([]byte("keep-this"))
	require.NoError(t, err)
	mark, err := s.Mark()
	require.NoError(t, err)

	_, err = s.Write([]byte("discard-this-tail"))
	require.NoError(t, err)
	require.NoError(t, s.Sync())

	require.NoError(t, s.ResetAndTruncate(mark))
	assert.Equal(t, int64(len("keep-this")), s.FilePointer())

	_, err = s.Write([]byte("-replacement"))
	require.NoError(t, err)

	require.NoError(t, s.Sync())
	require.NoError(t, s.PrepareToCommit())
	require.NoError(t, s.Commit())

	got, err := os.ReadFile(dataPath)
	require.NoError(t, err)
	assert.Equal(t, "keep-this-replacement", string(got))
}

func TestSinkAbortLeavesNoFinalFile(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	crcPath := filepath.Join(dir, "crc.db")

	s, err := sink.Open(dataPath, crcPath, 64)
	require.NoError(t, err)

	_, err = s.Write([]byte("never committed"))
	require.NoError(t, err)
	require.NoError(t, s.Abort())

	_, err = os.Stat(dataPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dataPath + "-tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCommitWithoutPrepareFails(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	crcPath := filepath.Join(dir, "crc.db")

	s, err := sink.Open(dataPath, crcPath, 64)
	require.NoError(t, err)
	defer s.Abort()

	err = s.Commit()
	assert.Error(t, err)
}

func TestCompressedSinkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	infoPath := filepath.Join(dir, "info.db")

	s, err := sink.OpenCompressed(dataPath, infoPath, 32)
	require.NoError(t, err)

	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	_, err = s.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), s.FilePointer())

	require.NoError(t, s.Sync())
	require.NoError(t, s.PrepareToCommit())
	require.NoError(t, s.Commit())

	// Compressed, repetitive input should not expand on disk.
	assert.LessOrEqual(t, s.OnDiskFilePointer(), int64(len(payload)))

	f, err := os.Open(infoPath)
	require.NoError(t, err)
	defer f.Close()
	chunkSize, entries, err := sink.ReadCompressionInfo(f)
	require.NoError(t, err)
	assert.Equal(t, 32, chunkSize)
	assert.NotEmpty(t, entries)
	assert.Equal(t, int64(0), entries[0].UncompressedOffset)
}
