package shell

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lkml-tools/patch-hub/internal/domain"
)

func spawnForTest(t *testing.T) Shell {
	t.Helper()
	sh, exited := Spawn()
	t.Cleanup(func() {
		sh.Close()
		<-exited
	})
	return sh
}

func TestExecuteCapturesStdout(t *testing.T) {
	sh := spawnForTest(t)

	r, err := sh.Execute(context.Background(), "sh", []string{"-c", "printf hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), r.Stdout)
	assert.Empty(t, r.Stderr)
	assert.Zero(t, r.ExitCode)
}

func TestExecuteCapturesStderr(t *testing.T) {
	sh := spawnForTest(t)

	r, err := sh.Execute(context.Background(), "sh", []string{"-c", "printf oops >&2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("oops"), r.Stderr)
	assert.Empty(t, r.Stdout)
}

func TestExecutePipesStdin(t *testing.T) {
	sh := spawnForTest(t)

	r, err := sh.Execute(context.Background(), "cat", nil, []byte("piped body"))
	require.NoError(t, err)
	assert.Equal(t, []byte("piped body"), r.Stdout)
}

func TestNonZeroExitIsNotAnError(t *testing.T) {
	sh := spawnForTest(t)

	r, err := sh.Execute(context.Background(), "sh", []string{"-c", "exit 3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, r.ExitCode)
}

func TestMissingProgramIsAnError(t *testing.T) {
	sh := spawnForTest(t)

	_, err := sh.Execute(context.Background(), "definitely-not-a-program-xyz", nil, nil)
	assert.Error(t, err)
}

func TestExecuteAfterClose(t *testing.T) {
	sh, exited := Spawn()
	sh.Close()
	<-exited

	_, err := sh.Execute(context.Background(), "sh", []string{"-c", "true"}, nil)
	assert.True(t, errors.Is(err, domain.ErrPeerDead))
}

func TestCloseIsIdempotent(t *testing.T) {
	sh, exited := Spawn()
	sh.Close()
	sh.Close()
	<-exited
}

func TestMockRecordsInvocations(t *testing.T) {
	m := NewMock()
	m.SetResult("render", Result{Stdout: []byte("<html>")})

	r, err := m.Execute(context.Background(), "render", []string{"--flavor", "mbox"}, []byte("in"))
	require.NoError(t, err)
	assert.Equal(t, []byte("<html>"), r.Stdout)

	calls := m.Invocations()
	require.Len(t, calls, 1)
	assert.Equal(t, "render", calls[0].Program)
	assert.Equal(t, []string{"--flavor", "mbox"}, calls[0].Args)
	assert.Equal(t, []byte("in"), calls[0].Stdin)
	assert.Equal(t, []string{"render --flavor mbox"}, m.Commands())
}

func TestMockUnprogrammedProgramFails(t *testing.T) {
	m := NewMock()
	_, err := m.Execute(context.Background(), "unknown", nil, nil)
	assert.Error(t, err)
}
