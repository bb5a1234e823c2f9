package cache

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/fsys"
	"github.com/lkml-tools/patch-hub/internal/logging"
	"github.com/lkml-tools/patch-hub/internal/lore"
)

const testCacheDir = "/cache"

func ml(name string, updated time.Time) domain.MailingList {
	return domain.MailingList{Name: name, Description: name + " list", LastUpdate: updated}
}

func spawnListsForTest(t *testing.T, fs fsys.Fs, api lore.Lore) MailingListCache {
	t.Helper()
	c, exited := SpawnMailingListCache(fs, api, logging.NullLogger(), testCacheDir)
	t.Cleanup(func() {
		c.Close()
		<-exited
	})
	return c
}

func seedListsFile(t *testing.T, fs *fsys.Mock, items []domain.MailingList) {
	t.Helper()
	data, err := json.Marshal(domain.ListsFile{HeadLastUpdate: items[0].LastUpdate, Items: items})
	require.NoError(t, err)
	require.NoError(t, fs.WriteFile(filepath.Join(testCacheDir, listsFileName), data))
}

func TestColdLoadTriggersRefreshAndSorts(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	api := lore.NewMock()
	api.SetListsPage(0, []domain.MailingList{ml("zeta", now), ml("alpha", now.Add(-time.Hour))})
	api.SetListsPage(1, []domain.MailingList{ml("mid", now.Add(-2*time.Hour))})
	fs := fsys.NewMock(nil)
	c := spawnListsForTest(t, fs, api)

	n, err := c.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	item, ok, err := c.Get(context.Background(), 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alpha", item.Name)

	// Pages 0, 1 and the terminating empty page 2.
	assert.Equal(t, 3, api.CallCount("lists"))
	assert.True(t, fs.Exists(filepath.Join(testCacheDir, listsFileName)))
}

func TestPersistedSnapshotMatchesState(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	api := lore.NewMock()
	api.SetListsPage(0, []domain.MailingList{ml("beta", now), ml("alpha", now.Add(-time.Hour))})
	fs := fsys.NewMock(nil)
	c := spawnListsForTest(t, fs, api)

	require.NoError(t, c.Refresh(context.Background()))

	data, err := fs.ReadFile(filepath.Join(testCacheDir, listsFileName))
	require.NoError(t, err)
	var file domain.ListsFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Items, 2)
	assert.Equal(t, "alpha", file.Items[0].Name)
	assert.True(t, file.HeadLastUpdate.Equal(file.Items[0].LastUpdate))
	assert.False(t, fs.Exists(filepath.Join(testCacheDir, listsFileName)+".tmp"))
}

func TestFreshSnapshotFetchesOnePage(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	items := []domain.MailingList{ml("alpha", now)}
	api := lore.NewMock()
	api.SetListsPage(0, items)
	fs := fsys.NewMock(nil)
	seedListsFile(t, fs, items)
	c := spawnListsForTest(t, fs, api)

	require.NoError(t, c.Refresh(context.Background()))

	// Head timestamps match, so the walk stops after page 0.
	assert.Equal(t, 1, api.CallCount("lists"))
}

func TestEmptyPageZeroKeepsState(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	items := []domain.MailingList{ml("alpha", now)}
	api := lore.NewMock()
	fs := fsys.NewMock(nil)
	seedListsFile(t, fs, items)
	c := spawnListsForTest(t, fs, api)

	require.NoError(t, c.Refresh(context.Background()))
	n, err := c.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGetSliceClamped(t *testing.T) {
	now := time.Now().UTC()
	api := lore.NewMock()
	api.SetListsPage(0, []domain.MailingList{ml("a", now), ml("b", now), ml("c", now)})
	c := spawnListsForTest(t, fsys.NewMock(nil), api)

	slice, err := c.GetSlice(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, slice, 2)
	assert.Equal(t, "b", slice[0].Name)

	empty, err := c.GetSlice(context.Background(), 5, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestIsAvailableNeverFetches(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	api := lore.NewMock()
	fs := fsys.NewMock(nil)
	seedListsFile(t, fs, []domain.MailingList{ml("alpha", now)})
	c := spawnListsForTest(t, fs, api)

	ok, err := c.IsAvailable(0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.IsAvailable(1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, api.CallCount("lists"))
}

func TestRefreshSurvivesPersistFailure(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	api := lore.NewMock()
	api.SetListsPage(0, []domain.MailingList{ml("alpha", now)})
	fs := fsys.NewMock(nil)
	fs.FailWrites(assert.AnError)
	c := spawnListsForTest(t, fs, api)

	require.NoError(t, c.Refresh(context.Background()))

	// Memory keeps serving even though the snapshot never hit disk.
	n, err := c.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, fs.Exists(filepath.Join(testCacheDir, listsFileName)))
}

func TestTruncatedSnapshotRepopulates(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Minute)
	api := lore.NewMock()
	api.SetListsPage(0, []domain.MailingList{ml("alpha", now)})
	fs := fsys.NewMock(nil)
	path := filepath.Join(testCacheDir, listsFileName)
	require.NoError(t, fs.WriteFile(path, nil))
	c := spawnListsForTest(t, fs, api)

	n, err := c.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	var file domain.ListsFile
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Items, 1)
	assert.Equal(t, "alpha", file.Items[0].Name)
}

func TestInvalidateDiscardsMemoryAndDisk(t *testing.T) {
	now := time.Now().UTC()
	api := lore.NewMock()
	api.SetListsPage(0, []domain.MailingList{ml("alpha", now)})
	fs := fsys.NewMock(nil)
	c := spawnListsForTest(t, fs, api)

	require.NoError(t, c.Refresh(context.Background()))
	require.True(t, fs.Exists(filepath.Join(testCacheDir, listsFileName)))

	require.NoError(t, c.Invalidate())
	assert.False(t, fs.Exists(filepath.Join(testCacheDir, listsFileName)))
	ok, err := c.IsAvailable(0)
	require.NoError(t, err)
	assert.False(t, ok)
}
