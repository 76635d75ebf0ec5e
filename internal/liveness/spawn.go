package liveness

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/kornnellio/sentrymon/internal/bootstrap"
)

// spawnSentinel forks+execs the sentinel binary. The child's role is
// conveyed via its own environment (PROCESS_ROLE=watchdog) rather than by
// mutating this process's environment, so a reviver's own DetectRole
// never flips mid-run.
func (p *Peer) spawnSentinel() (int, error) {
	path := p.binaries.Sentinel
	if path == "" {
		return 0, fmt.Errorf("liveness: no sentinel binary path configured")
	}
	cmd := exec.Command(path)
	cmd.Env = append(os.Environ(), bootstrap.KeyProcessRole+"=watchdog")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("liveness: exec sentinel: %w", err)
	}
	go reap(cmd)
	return cmd.Process.Pid, nil
}

// spawnApp forks+execs the application binary, reconstructing argv from
// the rendezvous store. Falls back to the configured default command
// vector when reconstruction fails (missing slot, bad count, or the
// protocol's argument limit). The child's environment overrides the
// PROCESS_ROLE=watchdog this sentinel inherited, so the revived process
// detects the application role.
func (p *Peer) spawnApp() (int, error) {
	argv, ok := bootstrap.LoadArgv(p.store)
	var args []string
	if ok && len(argv) > 0 {
		args = argv
	} else {
		p.log.Warn().Msg("argv reconstruction unavailable, falling back to default command vector")
		args = p.binaries.DefaultAppArgs
	}
	if len(args) == 0 {
		return 0, fmt.Errorf("liveness: no application argv to revive and no default command vector configured")
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Env = append(os.Environ(), bootstrap.KeyProcessRole+"=app")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("liveness: exec application: %w", err)
	}
	go reap(cmd)
	return cmd.Process.Pid, nil
}

// reap waits on a spawned peer so it never lingers as a zombie once it
// exits, independent of this process's own liveness bookkeeping.
func reap(cmd *exec.Cmd) {
	_ = cmd.Wait()
}
