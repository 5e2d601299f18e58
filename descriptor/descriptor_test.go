package descriptor_test

import (
	"path/filepath"
	"testing"

	"github.com/coldtable/sstable/descriptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor(dir string) descriptor.Descriptor {
	return descriptor.Descriptor{
		Directory:  dir,
		Keyspace:   "ks",
		Table:      "tbl",
		Version:    "ka",
		Generation: 3,
	}
}

func TestFilenameFor(t *testing.T) {
	d := testDescriptor("/var/lib/data")

	got := d.FilenameFor(descriptor.Data)
	want := filepath.Join("/var/lib/data", "ks-tbl-ka-3-Data.db")
	assert.Equal(t, want, got)

	got = d.FilenameFor(descriptor.Toc)
	want = filepath.Join("/var/lib/data", "ks-tbl-ka-3-TOC.txt")
	assert.Equal(t, want, got)
}

func TestTempFilenameForHasSuffix(t *testing.T) {
	d := testDescriptor(t.TempDir())

	final := d.FilenameFor(descriptor.PrimaryIndex)
	temp := d.TempFilenameFor(descriptor.PrimaryIndex)

	assert.Equal(t, final+"-tmp", temp)
	assert.NotEqual(t, final, temp)
}

func TestRequiredComponents(t *testing.T) {
	uncompressed := descriptor.RequiredComponents(false)
	require.Contains(t, uncompressed, descriptor.Crc)
	require.NotContains(t, uncompressed, descriptor.CompressionInfo)

	compressed := descriptor.RequiredComponents(true)
	require.Contains(t, compressed, descriptor.CompressionInfo)
	require.NotContains(t, compressed, descriptor.Crc)

	for _, kinds := range [][]descriptor.ComponentKind{uncompressed, compressed} {
		require.Contains(t, kinds, descriptor.Data)
		require.Contains(t, kinds, descriptor.PrimaryIndex)
		require.Contains(t, kinds, descriptor.Summary)
		require.Contains(t, kinds, descriptor.Filter)
		require.Contains(t, kinds, descriptor.Statistics)
		require.Contains(t, kinds, descriptor.Toc)
	}
}
