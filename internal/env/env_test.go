package env

import (
	"testing"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveSetGetUnset(t *testing.T) {
	e, exited := Spawn()
	defer func() {
		e.Close()
		<-exited
	}()

	require.NoError(t, e.Set("PATCH_HUB_TEST_VAR", "hello"))

	v, err := e.Get("PATCH_HUB_TEST_VAR")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	require.NoError(t, e.Unset("PATCH_HUB_TEST_VAR"))

	_, err = e.Get("PATCH_HUB_TEST_VAR")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLiveGetMissing(t *testing.T) {
	e, _ := Spawn()
	defer e.Close()

	_, err := e.Get("PATCH_HUB_DOES_NOT_EXIST")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPeerDeadAfterClose(t *testing.T) {
	e, exited := Spawn()
	e.Close()
	<-exited

	err := e.Set("K", "v")
	assert.ErrorIs(t, err, domain.ErrPeerDead)
}

func TestMock(t *testing.T) {
	m := NewMock(map[string]string{"A": "1"})

	v, err := m.Get("A")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	require.NoError(t, m.Set("B", "2"))
	v, err = m.Get("B")
	require.NoError(t, err)
	assert.Equal(t, "2", v)

	require.NoError(t, m.Unset("A"))
	_, err = m.Get("A")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
