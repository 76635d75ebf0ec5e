package liveness

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// sendSignal delivers sig to pid. A send to a PID that no longer exists is
// silently tolerated; the miss-counter mechanism is what actually detects
// an unresponsive or gone peer, not the send's return value. Uses
// golang.org/x/sys/unix rather than the frozen syscall package for the
// send path itself.
func sendSignal(pid int32, sig syscall.Signal) {
	if pid == 0 {
		return
	}
	_ = unix.Kill(int(pid), unix.Signal(sig))
}

// forceKill sends the uncatchable kill signal, best-effort, in case the
// peer is hung but still alive.
func forceKill(pid int32) {
	sendSignal(pid, syscall.SIGKILL)
}
