package netio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lkml-tools/patch-hub/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "text/html", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n, exited := Spawn()
	defer func() {
		n.Close()
		<-exited
	}()

	resp, err := n.Get(context.Background(), srv.URL, map[string]string{"Accept": "text/html"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []byte("ok"), resp.Body)
	assert.Equal(t, "text/plain", resp.Headers.Get("Content-Type"))
}

func TestPostBody(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, _ := Spawn()
	defer n.Close()

	resp, err := n.Post(context.Background(), srv.URL, nil, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, []byte("payload"), got)
}

func TestTransportError(t *testing.T) {
	n, _ := Spawn()
	defer n.Close()

	// Closed port: connection refused.
	_, err := n.Get(context.Background(), "http://127.0.0.1:1", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestPeerDeadAfterClose(t *testing.T) {
	n, exited := Spawn()
	n.Close()
	<-exited

	_, err := n.Get(context.Background(), "http://example.invalid", nil)
	assert.ErrorIs(t, err, domain.ErrPeerDead)
}

func TestMockTable(t *testing.T) {
	m := NewMock(nil)
	m.Program("GET", "https://lore.kernel.org/?&o=0", &Response{Status: 200, Body: []byte("lists")})

	resp, err := m.Get(context.Background(), "https://lore.kernel.org/?&o=0", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("lists"), resp.Body)

	_, err = m.Get(context.Background(), "https://lore.kernel.org/unknown", nil)
	assert.ErrorIs(t, err, domain.ErrTransport)

	assert.Equal(t, []string{
		"GET https://lore.kernel.org/?&o=0",
		"GET https://lore.kernel.org/unknown",
	}, m.Requests())
}
