package cache

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/fsys"
	"github.com/lkml-tools/patch-hub/internal/logging"
	"github.com/lkml-tools/patch-hub/internal/lore"
)

func spawnPatchForTest(t *testing.T, fs fsys.Fs, api lore.Lore) PatchCache {
	t.Helper()
	c, exited := SpawnPatchCache(fs, api, logging.NullLogger(), testCacheDir)
	t.Cleanup(func() {
		c.Close()
		<-exited
	})
	return c
}

func patchPath(list, messageID string) string {
	return filepath.Join(testCacheDir, patchDirName, sanitise(list), sanitise(messageID)+".mbox")
}

func TestGetFetchesOnceThenServesFromDisk(t *testing.T) {
	api := lore.NewMock()
	api.SetRaw("L", "mid1", []byte("mbox body"))
	for i := 0; i < lruCapacity; i++ {
		api.SetRaw("L", fmt.Sprintf("filler%02d", i), []byte("x"))
	}
	fs := fsys.NewMock(nil)
	c := spawnPatchForTest(t, fs, api)

	body, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	assert.Equal(t, []byte("mbox body"), body)
	assert.True(t, fs.Exists(patchPath("L", "mid1")))
	assert.Equal(t, 1, api.CallCount("raw L mid1"))

	// Push mid1 out of the memory tier.
	for i := 0; i < lruCapacity; i++ {
		_, err := c.Get(context.Background(), "L", fmt.Sprintf("filler%02d", i))
		require.NoError(t, err)
	}

	again, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	assert.Equal(t, body, again)
	// Disk tier served the second read; no further upstream traffic.
	assert.Equal(t, 1, api.CallCount("raw L mid1"))
}

func TestGetServesFromMemoryWithoutDisk(t *testing.T) {
	api := lore.NewMock()
	api.SetRaw("L", "mid1", []byte("body"))
	fs := fsys.NewMock(nil)
	c := spawnPatchForTest(t, fs, api)

	_, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	require.NoError(t, fs.RemoveFile(patchPath("L", "mid1")))

	body, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), body)
	assert.Equal(t, 1, api.CallCount("raw L mid1"))
}

func TestGetReadsExistingFileWithoutFetch(t *testing.T) {
	fs := fsys.NewMock(map[string][]byte{
		patchPath("L", "mid1"): []byte("persisted body"),
	})
	api := lore.NewMock()
	c := spawnPatchForTest(t, fs, api)

	body, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted body"), body)
	assert.Zero(t, api.CallCount("raw"))
}

func TestGetPropagatesUpstreamFailure(t *testing.T) {
	c := spawnPatchForTest(t, fsys.NewMock(nil), lore.NewMock())

	_, err := c.Get(context.Background(), "L", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestGetSurvivesPersistFailure(t *testing.T) {
	api := lore.NewMock()
	api.SetRaw("L", "mid1", []byte("body"))
	fs := fsys.NewMock(nil)
	fs.FailMkdir(assert.AnError)
	c := spawnPatchForTest(t, fs, api)

	body, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), body)
	assert.False(t, fs.Exists(patchPath("L", "mid1")))

	// The memory tier holds the unpersisted body; no refetch.
	again, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)
	assert.Equal(t, body, again)
	assert.Equal(t, 1, api.CallCount("raw L mid1"))
}

func TestInvalidateRemovesMemoryAndDisk(t *testing.T) {
	api := lore.NewMock()
	api.SetRaw("L", "mid1", []byte("body"))
	fs := fsys.NewMock(nil)
	c := spawnPatchForTest(t, fs, api)

	_, err := c.Get(context.Background(), "L", "mid1")
	require.NoError(t, err)

	require.NoError(t, c.Invalidate("L", "mid1"))
	assert.False(t, fs.Exists(patchPath("L", "mid1")))
	ok, err := c.IsAvailable("L", "mid1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Idempotent on an absent patch.
	require.NoError(t, c.Invalidate("L", "mid1"))
}

func TestIsAvailableChecksDiskWithoutFetch(t *testing.T) {
	fs := fsys.NewMock(map[string][]byte{
		patchPath("L", "mid1"): []byte("body"),
	})
	api := lore.NewMock()
	c := spawnPatchForTest(t, fs, api)

	ok, err := c.IsAvailable("L", "mid1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.IsAvailable("L", "other")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, api.Calls())
}

func TestSanitisedPatchPath(t *testing.T) {
	api := lore.NewMock()
	api.SetRaw("odd/list", "id/with/slash", []byte("body"))
	fs := fsys.NewMock(nil)
	c := spawnPatchForTest(t, fs, api)

	_, err := c.Get(context.Background(), "odd/list", "id/with/slash")
	require.NoError(t, err)
	assert.True(t, fs.Exists(filepath.Join(testCacheDir, patchDirName, "odd_list", "id_with_slash.mbox")))
}
