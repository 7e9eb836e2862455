package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junbin-yang/statesurf/pkg/machines/hsm"
	"github.com/junbin-yang/statesurf/pkg/statemachine/store"
)

// syncBuffer serve 在后台协程中写输出
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServe(t *testing.T) {
	e := newEnv(t, quietConfig)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := NewRootCmd()
	var out syncBuffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{
		"serve", "-b", "hsm",
		"--addr", "127.0.0.1:0",
		"--persist", "--store", e.db,
		"--config", e.config,
	})
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	var addr string
	require.Eventually(t, func() bool {
		_, addr, _ = strings.Cut(strings.TrimSpace(out.String()), "listening on ")
		return addr != ""
	}, 3*time.Second, 10*time.Millisecond)
	base := "http://" + addr

	req, err := http.NewRequest(http.MethodPut, base+"/machines/m1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Post(base+"/machines/m1/events/G", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}

	st, err := store.Open(e.db)
	require.NoError(t, err)
	defer st.Close()
	snap, err := st.Load("m1")
	require.NoError(t, err)
	assert.Equal(t, hsm.S11, snap.State)
}

func TestServe_Errors(t *testing.T) {
	e := newEnv(t, quietConfig)

	_, err := e.run(t, "serve")
	assert.ErrorIs(t, err, ErrNoChart)

	_, err = e.run(t, "serve", "-b", "hsm", "--addr", "256.0.0.1:bad")
	assert.Error(t, err)
}
