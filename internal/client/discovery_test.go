package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentdb/memory/internal/daemon"
	"github.com/agentdb/memory/internal/memerr"
	"github.com/stretchr/testify/require"
)

func TestDiscoverShortCircuitsOnLivePIDFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "memory.pid")
	require.NoError(t, daemon.WritePIDFile(pidPath, daemon.PIDFile{
		PID:     os.Getpid(), // the test process itself is always "live"
		Address: "/tmp/whatever.sock",
	}))

	socket, err := Discover(context.Background(), DiscoveryOptions{
		SocketPath: "/tmp/whatever.sock",
		PIDPath:    pidPath,
		// DaemonBinary intentionally empty: a live PID file must short-
		// circuit before auto-start is even considered.
	})

	require.NoError(t, err)
	require.Equal(t, "/tmp/whatever.sock", socket)
}

func TestDiscoverErrorsWithoutDaemonBinaryWhenNoneLive(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "memory.pid")

	_, err := Discover(context.Background(), DiscoveryOptions{
		SocketPath: filepath.Join(dir, "memory.sock"),
		PIDPath:    pidPath,
	})

	require.Error(t, err)
	var me *memerr.Error
	require.ErrorAs(t, err, &me)
	require.Equal(t, memerr.ServerNotRunning, me.Code)
}

// fakeDaemonScript writes a script masquerading as the daemon binary: it
// reads the MEMORY_SOCKET_PATH/MEMORY_PID_FILE env vars Discover's
// auto-start path is responsible for setting (since cmd/memoryd never
// parses flags) and writes a live PID file to the path it was told,
// proving the env vars — not the inert --socket/--pidfile args — are what
// actually wires the child to the caller's chosen paths.
func fakeDaemonScript(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "fake-memoryd.sh")
	script := `#!/bin/sh
cat > "$MEMORY_PID_FILE" <<EOF
{"pid": $$, "address": "$MEMORY_SOCKET_PATH", "started_at": 0, "version": "test"}
EOF
sleep 5
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDiscoverAutoStartInjectsSocketAndPIDPathsViaEnv(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "memory.pid")
	socketPath := filepath.Join(dir, "memory.sock")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	socket, err := Discover(ctx, DiscoveryOptions{
		SocketPath:   socketPath,
		PIDPath:      pidPath,
		DaemonBinary: fakeDaemonScript(t, dir),
		StartTimeout: 2 * time.Second,
	})

	require.NoError(t, err)
	require.Equal(t, socketPath, socket)

	pf, err := daemon.ReadPIDFile(pidPath)
	require.NoError(t, err)
	require.Equal(t, socketPath, pf.Address)
	require.True(t, daemon.IsLive(pf.PID))
}

func TestDiscoverAutoStartTimesOutWhenDaemonNeverWritesPIDFile(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-daemon.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755))

	_, err := Discover(context.Background(), DiscoveryOptions{
		SocketPath:   filepath.Join(dir, "memory.sock"),
		PIDPath:      filepath.Join(dir, "memory.pid"),
		DaemonBinary: script,
		StartTimeout: 150 * time.Millisecond,
	})

	require.Error(t, err)
	var me *memerr.Error
	require.ErrorAs(t, err, &me)
	require.Equal(t, memerr.Timeout, me.Code)
}
