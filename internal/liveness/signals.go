package liveness

import "syscall"

// SigPing and SigDie are the two asynchronous user-level signals the
// peers exchange: one heartbeat proof, one graceful-termination request.
// os/signal.Notify requires the stdlib syscall.Signal type (the runtime
// always delivers signals as that concrete type); sending uses
// golang.org/x/sys/unix instead, see kill.go.
const (
	SigPing = syscall.SIGUSR1
	SigDie  = syscall.SIGUSR2
)
