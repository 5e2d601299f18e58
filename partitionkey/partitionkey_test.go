package partitionkey_test

import (
	"testing"

	"github.com/coldtable/sstable/partitionkey"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteOrderPartitionerOrdering(t *testing.T) {
	var p partitionkey.ByteOrderPartitioner

	a, err := p.Decorate([]byte("a"))
	require.NoError(t, err)
	b, err := p.Decorate([]byte("b"))
	require.NoError(t, err)

	assert.Negative(t, p.Compare(a, b))
	assert.Positive(t, p.Compare(b, a))
	assert.Zero(t, p.Compare(a, a))
}

func TestDecorateRejectsOversizedKey(t *testing.T) {
	var p partitionkey.ByteOrderPartitioner

	oversized := make([]byte, partitionkey.MaxKeyLength+1)
	_, err := p.Decorate(oversized)
	assert.ErrorIs(t, err, partitionkey.ErrOversizedKey)
}

func TestDecorateAcceptsMaxLength(t *testing.T) {
	var p partitionkey.ByteOrderPartitioner

	maxKey := make([]byte, partitionkey.MaxKeyLength)
	_, err := p.Decorate(maxKey)
	assert.NoError(t, err)
}
