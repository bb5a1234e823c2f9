package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/env"
)

func spawnForTest(t *testing.T, vars map[string]string) (Config, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if vars == nil {
		vars = map[string]string{}
	}
	c, exited := Spawn(env.NewMock(vars))
	c.SetPath(path)
	t.Cleanup(func() {
		c.Close()
		<-exited
	})
	return c, path
}

func TestMissingFileLoadsDefaults(t *testing.T) {
	c, _ := spawnForTest(t, nil)

	require.NoError(t, c.Load())
	opts := c.Get()
	assert.Equal(t, DefaultOptions(), opts)
	assert.Empty(t, c.Warnings())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	c, _ := spawnForTest(t, nil)

	require.NoError(t, c.Load())
	require.NoError(t, c.SetInt("max_age", 7))
	c.SetLogLevel(slog.LevelDebug)
	require.NoError(t, c.Save())

	// A fresh actor against the same file sees the saved values.
	c2, exited := Spawn(env.NewMock(nil))
	c2.SetPath(c.GetPath())
	defer func() {
		c2.Close()
		<-exited
	}()
	require.NoError(t, c2.Load())
	opts := c2.Get()
	assert.Equal(t, 7, opts.MaxAge)
	assert.Equal(t, "DEBUG", opts.LogLevel)
	assert.Equal(t, DefaultOptions().CacheDir, opts.CacheDir)
}

func TestEnvOverridesSupersedeFile(t *testing.T) {
	c, _ := spawnForTest(t, nil)
	require.NoError(t, c.Load())
	require.NoError(t, c.SetInt("max_age", 5))
	require.NoError(t, c.Save())

	c2, exited := Spawn(env.NewMock(map[string]string{
		"PATCH_HUB_MAX_AGE":     "90",
		"PATCH_HUB_LOG_LEVEL":   "ERROR",
		"PATCH_HUB_LORE_DOMAIN": "https://lore.example.org",
	}))
	c2.SetPath(c.GetPath())
	defer func() {
		c2.Close()
		<-exited
	}()
	require.NoError(t, c2.Load())
	opts := c2.Get()
	assert.Equal(t, 90, opts.MaxAge)
	assert.Equal(t, "ERROR", opts.LogLevel)
	assert.Equal(t, "https://lore.example.org", opts.LoreDomain)
	assert.Equal(t, slog.LevelError, c2.LogLevel())
}

func TestBadEnvMaxAgeRejected(t *testing.T) {
	c, _ := spawnForTest(t, map[string]string{"PATCH_HUB_MAX_AGE": "soon"})

	err := c.Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfig))
}

func TestUnknownFieldWarns(t *testing.T) {
	c, path := spawnForTest(t, nil)
	require.NoError(t, os.WriteFile(path, []byte("max_age: 10\ncolor_scheme: dark\n"), 0644))

	require.NoError(t, c.Load())
	opts := c.Get()
	assert.Equal(t, 10, opts.MaxAge)
	warnings := c.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "color_scheme")
}

func TestConfigPathEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alt", "cfg.yaml")
	c, exited := Spawn(env.NewMock(map[string]string{EnvConfigPath: path}))
	defer func() {
		c.Close()
		<-exited
	}()
	assert.Equal(t, path, c.GetPath())
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	c, path := spawnForTest(t, nil)
	require.NoError(t, c.Load())
	require.NoError(t, c.Save())

	_, err := os.Stat(path)
	assert.NoError(t, err)
	_, err = os.Stat(path + ".tmp.yaml")
	assert.True(t, os.IsNotExist(err))
}

func TestIntOptionKeys(t *testing.T) {
	c, _ := spawnForTest(t, nil)
	require.NoError(t, c.Load())

	n, err := c.GetInt("max_age")
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().MaxAge, n)

	err = c.SetInt("max_age", -1)
	assert.True(t, errors.Is(err, domain.ErrConfig))
	_, err = c.GetInt("page_size")
	assert.True(t, errors.Is(err, domain.ErrConfig))
}

func TestPeerDeadAfterClose(t *testing.T) {
	c, exited := Spawn(env.NewMock(nil))
	c.Close()
	<-exited
	err := c.Load()
	assert.True(t, errors.Is(err, domain.ErrPeerDead))
}
