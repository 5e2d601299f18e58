package txlog_test

import (
	"path/filepath"
	"testing"

	"github.com/coldtable/sstable/descriptor"
	"github.com/coldtable/sstable/txlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTracker(t *testing.T) *txlog.Tracker {
	t.Helper()
	dir := t.TempDir()
	tr, err := txlog.Open(filepath.Join(dir, "txlog"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTrackNewThenCommittedClearsOrphanStatus(t *testing.T) {
	tr := openTracker(t)
	d := descriptor.Descriptor{Directory: "/data", Keyspace: "ks", Table: "tbl", Version: "v1", Generation: 1}

	require.NoError(t, tr.TrackNew(d))
	assert.Len(t, tr.RecoverOrphans(), 1)

	require.NoError(t, tr.Committed(d))
	assert.Empty(t, tr.RecoverOrphans())
	assert.Equal(t, []int64{1}, tr.LiveGenerations("ks", "tbl"))
}

func TestAbortedRemovesEntry(t *testing.T) {
	tr := openTracker(t)
	d := descriptor.Descriptor{Directory: "/data", Keyspace: "ks", Table: "tbl", Version: "v1", Generation: 2}

	require.NoError(t, tr.TrackNew(d))
	require.NoError(t, tr.Aborted(d))

	assert.Empty(t, tr.LiveGenerations("ks", "tbl"))
	assert.Empty(t, tr.RecoverOrphans())
}

func TestLiveGenerationsScopedByKeyspaceAndTable(t *testing.T) {
	tr := openTracker(t)
	a := descriptor.Descriptor{Keyspace: "ks", Table: "a", Version: "v1", Generation: 1}
	b := descriptor.Descriptor{Keyspace: "ks", Table: "b", Version: "v1", Generation: 5}

	require.NoError(t, tr.TrackNew(a))
	require.NoError(t, tr.TrackNew(b))

	assert.Equal(t, []int64{1}, tr.LiveGenerations("ks", "a"))
	assert.Equal(t, []int64{5}, tr.LiveGenerations("ks", "b"))
}

func TestReopenRecoversPendingEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "txlog")

	tr, err := txlog.Open(path)
	require.NoError(t, err)
	d := descriptor.Descriptor{Keyspace: "ks", Table: "tbl", Version: "v1", Generation: 9}
	require.NoError(t, tr.TrackNew(d))
	require.NoError(t, tr.Close())

	tr2, err := txlog.Open(path)
	require.NoError(t, err)
	defer tr2.Close()

	orphans := tr2.RecoverOrphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, int64(9), orphans[0].Generation)
}
