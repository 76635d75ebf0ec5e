// Package sentrymon is the library surface of a mutual-liveness watchdog:
// an application process and a sentinel process that heartbeat each
// other and revive whichever one goes silent. Call Begin once from the
// application's main, and End before it exits.
//
// The sentinel side has no library surface of its own: cmd/sentineld is
// a thin binary that calls liveness.Bootstrap directly, since a sentinel
// process has nothing to hand back to a caller.
package sentrymon

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kornnellio/sentrymon/internal/diag"
	"github.com/kornnellio/sentrymon/internal/limiter"
	"github.com/kornnellio/sentrymon/internal/liveness"
)

// Config configures Begin.
type Config struct {
	// Interval is the heartbeat and revival-check cadence.
	Interval time.Duration
	// Threshold is the number of consecutive missed pings tolerated
	// before the peer is considered unresponsive and revived.
	Threshold int
	// SentinelPath is the sentinel binary to fork on first bootstrap
	// and whenever the sentinel needs reviving.
	SentinelPath string
	// DefaultAppArgs is the command vector to revive the application
	// with if argv reconstruction from the rendezvous store fails.
	// Defaults to os.Args if left nil.
	DefaultAppArgs []string
	// Caps optionally bounds the resources a revived peer may use.
	Caps limiter.Caps
	// Logger overrides the default stderr JSON logger.
	Logger *zerolog.Logger
}

var (
	mu      sync.Mutex
	current *liveness.Peer
)

// Begin bootstraps this process into the mutual-liveness protocol. It
// must be called from the application binary; calling it twice without
// an intervening End returns an error rather than bootstrapping twice.
func Begin(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		return fmt.Errorf("sentrymon: Begin called while already active")
	}

	defaultArgs := cfg.DefaultAppArgs
	if defaultArgs == nil {
		defaultArgs = os.Args
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	var limMgr *limiter.Manager
	if cfg.Caps != (limiter.Caps{}) {
		m, err := limiter.NewManager(log)
		if err != nil {
			log.Warn().Err(err).Msg("resource caps requested but cgroup setup failed, continuing without them")
		} else {
			limMgr = m
		}
	}

	p, err := liveness.Bootstrap(liveness.Config{
		Interval:  cfg.Interval,
		Threshold: cfg.Threshold,
		Argv:      os.Args,
		Binaries: liveness.BinaryPaths{
			Sentinel:       cfg.SentinelPath,
			DefaultAppArgs: defaultArgs,
		},
		Caps:    cfg.Caps,
		Limiter: limMgr,
		Logger:  &log,
	})
	if err != nil {
		return fmt.Errorf("sentrymon: begin: %w", err)
	}

	current = p
	return nil
}

// End runs the application's shutdown sequence: it asks the sentinel to
// stop monitoring, waits for local confirmation, and releases the
// active Peer. Calling End without an active Begin, or calling it more
// than once, is a no-op.
func End(ctx context.Context) error {
	mu.Lock()
	p := current
	current = nil
	mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Shutdown(ctx)
}

// PeerPID returns the PID this process currently believes is its live
// peer, or 0 if Begin has not been called.
func PeerPID() int32 {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return 0
	}
	return current.PeerPID()
}

// Diagnose confirms this process's currently tracked peer is a real, live
// process and reports what /proc knows about it. Returns an error if
// Begin has not been called or the tracked peer is no longer alive.
func Diagnose() (*diag.Info, error) {
	mu.Lock()
	p := current
	mu.Unlock()
	if p == nil {
		return nil, fmt.Errorf("sentrymon: Diagnose called before Begin")
	}
	return p.Diagnose()
}
