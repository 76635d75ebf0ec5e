// Package limiter applies optional cgroup v2 resource caps to a revived
// peer process. It is adapted from the teacher's process-supervisor
// cgroup handling: the same unified-hierarchy plumbing (self-cgroup
// discovery, subtree_control delegation, per-process leaf cgroups), but
// scoped to a single revived PID passed in by the liveness protocol's
// revival handshake instead of a table of supervised services.
package limiter

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const cgroupRoot = "/sys/fs/cgroup"

// Caps describes the optional resource limits to apply to a revived peer.
// A zero value means "no limit" for that dimension.
type Caps struct {
	MemoryBytes int64
	CPUPercent  int // 100 == one full core
}

func (c Caps) any() bool { return c.MemoryBytes > 0 || c.CPUPercent > 0 }

// Manager owns the base cgroup path under which per-revival leaf cgroups
// are created. It replaces the teacher's package-level baseCgroupPath
// global with an explicit, testable value the caller constructs once at
// Begin and threads through to the revival handshake.
type Manager struct {
	log  zerolog.Logger
	base string
}

// NewManager discovers a writable cgroup v2 base and enables the
// controllers a revival leaf will need. It is best-effort: a non-nil
// error means resource capping is unavailable, not that Begin should
// fail, since capping is an optional refinement and must never block
// monitoring from starting.
func NewManager(log zerolog.Logger) (*Manager, error) {
	base, err := findWritableCgroupBase()
	if err != nil {
		return nil, err
	}
	m := &Manager{log: log.With().Str("component", "limiter").Logger(), base: base}

	controlPath := filepath.Join(base, "cgroup.subtree_control")
	if err := os.WriteFile(controlPath, []byte("+cpu +memory +pids"), 0644); err != nil {
		m.log.Debug().Err(err).Msg("controllers already enabled or unavailable")
	}
	m.log.Debug().Str("path", base).Msg("cgroup base ready")
	return m, nil
}

// Apply moves pid into a fresh leaf cgroup named after the peer role and
// applies caps, if any are set. A no-op (returns nil) when caps is zero.
func (m *Manager) Apply(leafName string, pid int, caps Caps) error {
	if !caps.any() {
		return nil
	}
	path := filepath.Join(m.base, leafName)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("limiter: create leaf cgroup: %w", err)
	}
	if caps.MemoryBytes > 0 {
		if err := os.WriteFile(filepath.Join(path, "memory.max"), []byte(strconv.FormatInt(caps.MemoryBytes, 10)), 0644); err != nil {
			return fmt.Errorf("limiter: set memory.max: %w", err)
		}
	}
	if caps.CPUPercent > 0 {
		const period = 100000
		quota := (caps.CPUPercent * period) / 100
		value := fmt.Sprintf("%d %d", quota, period)
		if err := os.WriteFile(filepath.Join(path, "cpu.max"), []byte(value), 0644); err != nil {
			return fmt.Errorf("limiter: set cpu.max: %w", err)
		}
	}
	if err := os.WriteFile(filepath.Join(path, "cgroup.procs"), []byte(strconv.Itoa(pid)), 0644); err != nil {
		return fmt.Errorf("limiter: add pid to leaf cgroup: %w", err)
	}
	m.log.Info().Str("leaf", leafName).Int("pid", pid).Int64("memory_bytes", caps.MemoryBytes).Int("cpu_percent", caps.CPUPercent).Msg("applied resource caps to revived peer")
	return nil
}

// Remove deletes a leaf cgroup created by Apply. Safe to call on a leaf
// that was never created (e.g. caps were zero).
func (m *Manager) Remove(leafName string) error {
	err := os.Remove(filepath.Join(m.base, leafName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func getSelfCgroup() (string, error) {
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(string(data))
	parts := strings.SplitN(line, "::", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("unexpected cgroup format: %s", line)
	}
	return parts[1], nil
}

// findWritableCgroupBase mirrors the teacher's discovery sequence: prefer
// the process's own (possibly delegated) cgroup, moving this process into
// a "sentrymon-self" leaf so the parent can enable controllers for siblings
// (cgroup v2's "no internal processes" rule), falling back to the root
// hierarchy for privileged, non-systemd hosts.
func findWritableCgroupBase() (string, error) {
	if selfCgroup, err := getSelfCgroup(); err == nil && selfCgroup != "" {
		parentPath := filepath.Join(cgroupRoot, selfCgroup)

		ownLeaf := filepath.Join(parentPath, "sentrymon-self")
		if err := os.MkdirAll(ownLeaf, 0755); err == nil {
			procsPath := filepath.Join(ownLeaf, "cgroup.procs")
			if err := os.WriteFile(procsPath, []byte(strconv.Itoa(os.Getpid())), 0644); err == nil {
				return parentPath, nil
			}
		}

		path := filepath.Join(parentPath, "sentrymon")
		if err := os.MkdirAll(path, 0755); err == nil {
			return path, nil
		}
	}

	path := filepath.Join(cgroupRoot, "sentrymon")
	if err := os.MkdirAll(path, 0755); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("no writable cgroup v2 location found")
}
