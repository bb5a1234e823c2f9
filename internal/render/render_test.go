package render

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/lkml-tools/patch-hub/internal/logging"
	"github.com/lkml-tools/patch-hub/internal/shell"
)

func spawnForTest(t *testing.T, sh shell.Shell, rendererCmd string) Render {
	t.Helper()
	r, exited := Spawn(sh, logging.NullLogger(), rendererCmd)
	t.Cleanup(func() {
		r.Close()
		<-exited
	})
	return r
}

func TestFallbackEscapesBody(t *testing.T) {
	r := spawnForTest(t, shell.NewMock(), "")

	out, err := r.RenderPatch(context.Background(), []byte("diff --git a<b>"))
	require.NoError(t, err)
	assert.Equal(t, "<pre>diff --git a&lt;b&gt;</pre>", out)
}

func TestRendererCommandPipesBody(t *testing.T) {
	sh := shell.NewMock()
	sh.SetResult("mbox2html", shell.Result{Stdout: []byte("<html>rendered</html>")})
	r := spawnForTest(t, sh, "mbox2html --inline-css")

	out, err := r.RenderPatch(context.Background(), []byte("From: dev\n\nbody"))
	require.NoError(t, err)
	assert.Equal(t, "<html>rendered</html>", out)

	calls := sh.Invocations()
	require.Len(t, calls, 1)
	assert.Equal(t, "mbox2html", calls[0].Program)
	assert.Equal(t, []string{"--inline-css"}, calls[0].Args)
	assert.Equal(t, []byte("From: dev\n\nbody"), calls[0].Stdin)
}

func TestRendererNonZeroExitIsAnError(t *testing.T) {
	sh := shell.NewMock()
	sh.SetResult("mbox2html", shell.Result{Stderr: []byte("parse failure"), ExitCode: 2})
	r := spawnForTest(t, sh, "mbox2html")

	_, err := r.RenderPatch(context.Background(), []byte("body"))
	assert.ErrorContains(t, err, "exited with 2")
}

func TestRendererLaunchFailurePropagates(t *testing.T) {
	sh := shell.NewMock()
	sh.FailWith("mbox2html", errors.New("executable file not found"))
	r := spawnForTest(t, sh, "mbox2html")

	_, err := r.RenderPatch(context.Background(), []byte("body"))
	assert.ErrorContains(t, err, "executable file not found")
}

func TestRenderAfterClose(t *testing.T) {
	r, exited := Spawn(shell.NewMock(), logging.NullLogger(), "")
	r.Close()
	<-exited

	_, err := r.RenderPatch(context.Background(), []byte("body"))
	assert.True(t, errors.Is(err, domain.ErrPeerDead))
}

func TestMockRecordsBodies(t *testing.T) {
	m := NewMock()
	m.SetOutput("<html>x</html>")

	out, err := m.RenderPatch(context.Background(), []byte("b1"))
	require.NoError(t, err)
	assert.Equal(t, "<html>x</html>", out)
	require.Len(t, m.Calls(), 1)
	assert.Equal(t, []byte("b1"), m.Calls()[0])
}
