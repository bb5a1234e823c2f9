package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkAndCheckSeen(t *testing.T) {
	s, err := NewSeenStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.IsSeen("amd-gfx", "m1"))
	require.NoError(t, s.MarkSeen("amd-gfx", "m1"))
	assert.True(t, s.IsSeen("amd-gfx", "m1"))
	assert.False(t, s.IsSeen("amd-gfx", "m2"))
	assert.False(t, s.IsSeen("linux-arch", "m1"))
}

func TestSeenSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSeenStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.MarkSeen("amd-gfx", "m1"))
	require.NoError(t, s.Close())

	reopened, err := NewSeenStore(dir)
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.IsSeen("amd-gfx", "m1"))
}

func TestSeenCountPerList(t *testing.T) {
	s, err := NewSeenStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.MarkSeen("amd-gfx", "m1"))
	require.NoError(t, s.MarkSeen("amd-gfx", "m2"))
	require.NoError(t, s.MarkSeen("amd-gfx", "m2"))
	require.NoError(t, s.MarkSeen("linux-arch", "m1"))

	n, err := s.SeenCount("amd-gfx")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.SeenCount("linux-arch")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.SeenCount("empty-list")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInvalidateAll(t *testing.T) {
	s, err := NewSeenStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.MarkSeen("amd-gfx", "m1"))
	require.NoError(t, s.InvalidateAll())
	assert.False(t, s.IsSeen("amd-gfx", "m1"))
	n, err := s.SeenCount("amd-gfx")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryOnlyMode(t *testing.T) {
	s, err := NewSeenStore("")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.MarkSeen("amd-gfx", "m1"))
	assert.True(t, s.IsSeen("amd-gfx", "m1"))
	n, err := s.SeenCount("amd-gfx")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
