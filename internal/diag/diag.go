// Package diag is a narrow /proc introspection helper: confirming a PID
// is a live, real process, not a stale or recycled one, after a revival.
// Used by Peer.Diagnose and sentrymon.Diagnose.
package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Info is the subset of /proc/[pid]/status this package's callers need:
// enough to confirm a PID denotes a live, real process and to report its
// parent for revival-lineage assertions in tests.
type Info struct {
	PID   int
	Name  string
	State string
	PPid  int
}

// Alive reports whether pid refers to a process currently known to the
// kernel. Equivalent in spirit to the revival handshake's "peer is alive"
// check, but via /proc rather than sending a signal.
func Alive(pid int) bool {
	_, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil
}

// Read reads /proc/[pid]/status for the fields in Info.
func Read(pid int) (*Info, error) {
	procPath := fmt.Sprintf("/proc/%d", pid)
	data, err := os.ReadFile(filepath.Join(procPath, "status"))
	if err != nil {
		return nil, fmt.Errorf("diag: read status for pid %d: %w", pid, err)
	}

	info := &Info{PID: pid}
	for _, line := range strings.Split(string(data), "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "Name":
			info.Name = val
		case "State":
			info.State = val
		case "PPid":
			info.PPid, _ = strconv.Atoi(val)
		}
	}
	return info, nil
}
