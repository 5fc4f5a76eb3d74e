// Package daemon implements the memory daemon's process lifecycle and
// JSON-RPC 2.0 dispatch over a Unix domain socket (spec.md §4.7),
// grounded on the teacher's graceful-shutdown signal handling in
// cmd/api/main.go and cmd/chat/main.go.
package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"syscall"
)

// PIDFile is the on-disk discovery record (spec.md §6 "PID file format").
type PIDFile struct {
	PID       int    `json:"pid"`
	Address   string `json:"address"`
	StartedAt int64  `json:"started_at"`
	Version   string `json:"version"`
}

// WritePIDFile writes pf to path with mode 0600 (spec.md §6 "File mode
// 0600").
func WritePIDFile(path string, pf PIDFile) error {
	data, err := json.Marshal(pf)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ReadPIDFile reads and parses the PID file at path.
func ReadPIDFile(path string) (*PIDFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pf PIDFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return nil, err
	}
	return &pf, nil
}

// RemovePIDFile best-effort removes path.
func RemovePIDFile(path string) {
	_ = os.Remove(path)
}

// IsLive reports whether pid names a live process, by sending signal 0
// (spec.md §4.7 "acquire PID file (fail if an existing PID is alive)").
func IsLive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}

// AcquirePIDFile reads any existing PID file at path and fails if its PID
// is still alive; otherwise it is safe to overwrite (spec.md §4.7
// "Startup").
func AcquirePIDFile(path string) error {
	existing, err := ReadPIDFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil // corrupted PID file is treated as stale, not fatal
	}
	if IsLive(existing.PID) {
		return fmt.Errorf("daemon: existing process %d is still running", existing.PID)
	}
	return nil
}
