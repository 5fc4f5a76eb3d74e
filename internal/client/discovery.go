// Package client implements the memory client SDK: daemon discovery,
// auto-start, and a reconnecting JSON-RPC connection (spec.md §4.8),
// grounded on the teacher's HTTP client wrappers in pkg/ollama.
package client

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/agentdb/memory/internal/daemon"
	"github.com/agentdb/memory/internal/memerr"
)

// DiscoveryOptions configures how Connect locates or starts a daemon.
type DiscoveryOptions struct {
	SocketPath   string
	PIDPath      string
	DaemonBinary string        // used to auto-start if no live daemon is found
	StartTimeout time.Duration // bound on readiness polling after auto-start
}

// DefaultStartTimeout bounds how long Discover waits for a freshly spawned
// daemon to become reachable over its socket.
const DefaultStartTimeout = 5 * time.Second

// Discover finds a live daemon's socket path, starting one via
// opts.DaemonBinary if none is running (spec.md §4.8 "auto-start on first
// use").
func Discover(ctx context.Context, opts DiscoveryOptions) (string, error) {
	if pf, err := daemon.ReadPIDFile(opts.PIDPath); err == nil && daemon.IsLive(pf.PID) {
		return opts.SocketPath, nil
	}

	if opts.DaemonBinary == "" {
		return "", memerr.New(memerr.ServerNotRunning, "no live daemon and no daemon binary configured for auto-start")
	}

	// cmd/memoryd reads its socket/pidfile paths from config.Load()'s env
	// vars, not flags (it never calls flag.Parse()) — set the env here
	// rather than passing flags the daemon would silently ignore.
	cmd := exec.Command(opts.DaemonBinary)
	cmd.Env = append(os.Environ(),
		"MEMORY_SOCKET_PATH="+opts.SocketPath,
		"MEMORY_PID_FILE="+opts.PIDPath,
	)
	if err := cmd.Start(); err != nil {
		return "", memerr.Wrap(memerr.ServerNotRunning, "failed to auto-start daemon", err)
	}

	timeout := opts.StartTimeout
	if timeout <= 0 {
		timeout = DefaultStartTimeout
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pf, err := daemon.ReadPIDFile(opts.PIDPath); err == nil && daemon.IsLive(pf.PID) {
			return opts.SocketPath, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return "", memerr.New(memerr.Timeout, fmt.Sprintf("daemon did not become ready within %s", timeout))
}
