package e2e

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeFlow(t *testing.T) {
	home := t.TempDir()
	binaryPath := buildBinary(t)

	_, stderr, err := runFA(t, binaryPath, home, nil, "token", "set", "--value", "tok-e2e")
	require.NoError(t, err, "stderr: %s", stderr)

	stdout, stderr, err := runFA(t, binaryPath, home, nil, "journal")
	require.NoError(t, err, "stderr: %s", stderr)
	assert.Contains(t, stdout, "Journal is empty.")
}

func TestServeExposesStatus(t *testing.T) {
	home := t.TempDir()
	binaryPath := buildBinary(t)
	addr := freeAddr(t)

	env := []string{
		"FA_REALTIME_ENABLED=false",
		"FA_BROWSE_ENABLED=false",
		"FA_POSTING_ENABLED=false",
		"FA_ADMIN_LISTEN=" + addr,
	}

	serve := exec.Command(binaryPath, "serve")
	serve.Env = append(os.Environ(), append(env, "HOME="+home)...)
	serveLog := &syncBuffer{}
	serve.Stdout = serveLog
	serve.Stderr = serveLog
	require.NoError(t, serve.Start())
	t.Cleanup(func() {
		_ = serve.Process.Kill()
	})

	var stdout string
	require.Eventually(t, func() bool {
		out, _, err := runFA(t, binaryPath, home, env, "status", "--json")
		stdout = out
		return err == nil
	}, 10*time.Second, 100*time.Millisecond, "serve log: %s", serveLog.String())

	var diag map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &diag))
	assert.Equal(t, false, diag["connected"])

	require.NoError(t, serve.Process.Signal(syscall.SIGTERM))
	done := make(chan error, 1)
	go func() { done <- serve.Wait() }()
	select {
	case err := <-done:
		assert.NoError(t, err, "serve log: %s", serveLog.String())
	case <-time.After(20 * time.Second):
		t.Fatalf("serve did not stop: %s", serveLog.String())
	}
}

// syncBuffer collects the output of a child process that is read while the
// process is still writing.
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

func buildBinary(t *testing.T) string {
	t.Helper()

	binaryPath := filepath.Join(t.TempDir(), "fa-e2e")
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/fa")
	cmd.Dir = repoRoot(t)

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "build fa binary: %s", string(output))
	return binaryPath
}

func runFA(t *testing.T, binaryPath, home string, env []string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "HOME="+home)
	cmd.Env = append(cmd.Env, env...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func freeAddr(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func repoRoot(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(wd, "..", ".."))
}
