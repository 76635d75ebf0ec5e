// Package liveness implements the mutual-liveness watchdog protocol:
// two co-located processes heartbeat each other over SIGUSR1, and
// whichever one notices the other has gone silent force-kills and
// respawns it. This package supplies the shared, role-parameterized
// implementation; sentrymon.Begin/End and cmd/demoapp, cmd/sentineld
// are thin wrappers around it.
package liveness

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/kornnellio/sentrymon/internal/bootstrap"
	"github.com/kornnellio/sentrymon/internal/diag"
	"github.com/kornnellio/sentrymon/internal/limiter"
	"github.com/kornnellio/sentrymon/internal/readysem"
	"github.com/kornnellio/sentrymon/internal/scheduler"
)

const wdReadyName = "sentrymon-wd-ready"

// BinaryPaths tells a Peer what to exec when it needs to spawn a peer.
type BinaryPaths struct {
	// Sentinel is the path to the sentinel binary, used by the
	// application role whenever it forks a fresh sentinel (first
	// bootstrap or after reviving a dead one).
	Sentinel string
	// DefaultAppArgs is the command vector the sentinel falls back to
	// reviving the application with, if argv reconstruction fails.
	DefaultAppArgs []string
}

// Config configures a Peer at Bootstrap time.
type Config struct {
	Interval  time.Duration
	Threshold int
	// Argv is this process's own argv, recorded for a future revival.
	// Only meaningful when bootstrapping as the application.
	Argv []string

	Binaries BinaryPaths
	Caps     limiter.Caps
	Limiter  *limiter.Manager

	Store  bootstrap.Store // defaults to bootstrap.OSStore{}
	Logger *zerolog.Logger // defaults to a stderr JSON logger if nil
}

// Peer is one side of the mutual-liveness relationship. Both roles run
// the identical implementation below, parameterized by Role rather than
// duplicated per-role code.
type Peer struct {
	role      bootstrap.Role
	interval  time.Duration
	threshold int
	store     bootstrap.Store
	binaries  BinaryPaths
	caps      limiter.Caps
	limiterMg *limiter.Manager
	log       zerolog.Logger

	peerPID     atomic.Int32
	missCounter atomic.Int32
	stopFlag    atomic.Bool

	failedPings *semaphore.Weighted
	sched       *scheduler.Scheduler

	sigCh   chan os.Signal
	sigStop chan struct{}
}

// Bootstrap detects this process's role and performs the matching
// bootstrap sequence. The returned Peer has its scheduler already
// running on its own goroutine.
func Bootstrap(cfg Config) (*Peer, error) {
	store := cfg.Store
	if store == nil {
		store = bootstrap.OSStore{}
	}
	var log zerolog.Logger
	if cfg.Logger != nil {
		log = *cfg.Logger
	} else {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	p := &Peer{
		role:        bootstrap.DetectRole(store),
		interval:    cfg.Interval,
		threshold:   cfg.Threshold,
		store:       store,
		binaries:    cfg.Binaries,
		caps:        cfg.Caps,
		limiterMg:   cfg.Limiter,
		failedPings: semaphore.NewWeighted(1),
	}
	p.log = log.With().Str("role", p.role.String()).Logger()
	// Pre-claim the single token so failedPings starts empty: Shutdown's
	// later Acquire blocks until the do-not-revive observer task Releases it.
	_ = p.failedPings.Acquire(context.Background(), 1)

	var err error
	switch p.role {
	case bootstrap.RoleApp:
		err = p.bootstrapApp(cfg.Argv, true)
	case bootstrap.RoleSentinel:
		err = p.bootstrapSentinel()
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// bootstrapApp implements the application's bootstrap path. first
// distinguishes the very first Begin() call (which also records argv for
// a future revival) from a revival respawn.
func (p *Peer) bootstrapApp(argv []string, first bool) error {
	bootstrap.SavePID(p.store, bootstrap.KeyAppPID, os.Getpid())
	if first {
		bootstrap.SaveArgv(p.store, argv)
	}

	sentinelPID, already := bootstrap.LoadPID(p.store, bootstrap.KeySentinelPID)
	if !already {
		pid, err := p.armSpawnAndSignal(p.spawnSentinel)
		if err != nil {
			return fmt.Errorf("liveness: bootstrap app: %w", err)
		}
		p.peerPID.Store(int32(pid))
	} else {
		p.peerPID.Store(int32(sentinelPID))
		p.awaitSpawnerSignal()
	}

	p.installSignalHandlers()
	p.sched = scheduler.Create(p.log)
	p.registerTasks()
	go p.sched.Start()
	return nil
}

// bootstrapSentinel implements the sentinel's bootstrap path. A sentinel
// is always the spawned side of the handshake, whether this is the very
// first sentinel or a revival respawn, so it always waits rather than
// arms the latch itself.
func (p *Peer) bootstrapSentinel() error {
	appPID, ok := bootstrap.LoadPID(p.store, bootstrap.KeyAppPID)
	if !ok {
		return fmt.Errorf("liveness: bootstrap sentinel: %s not set", bootstrap.KeyAppPID)
	}
	p.peerPID.Store(int32(appPID))
	bootstrap.SavePID(p.store, bootstrap.KeySentinelPID, os.Getpid())

	p.awaitSpawnerSignal()

	p.installSignalHandlers()
	p.sched = scheduler.Create(p.log)
	p.registerTasks()
	go p.sched.Start()
	return nil
}

// armSpawnAndSignal takes the readiness latch, runs spawn, then posts
// regardless of outcome so anything waiting on the other end is released
// either way, and finally unlinks the latch it created. Create and Post
// always run on the same *readysem.Sem here,
// which is the only direction that actually holds and then releases a
// real lock; see internal/readysem for why the two sides aren't
// interchangeable.
func (p *Peer) armSpawnAndSignal(spawn func() (int, error)) (int, error) {
	sem, err := readysem.Create(wdReadyName)
	if err != nil {
		p.log.Warn().Err(err).Msg("readiness latch unavailable, spawn proceeds without a handshake")
	}

	pid, spawnErr := spawn()

	if sem != nil {
		if err := sem.Post(); err != nil {
			p.log.Warn().Err(err).Msg("readiness post failed")
		}
		_ = sem.Unlink()
	}
	return pid, spawnErr
}

// awaitSpawnerSignal blocks until the process that spawned this one has
// finished arming and posting the readiness latch. Called from the freshly
// exec'd side of a spawn, before that side starts its own bookkeeping.
func (p *Peer) awaitSpawnerSignal() {
	sem, err := readysem.Open(wdReadyName)
	if err != nil {
		p.log.Warn().Err(err).Msg("no pending readiness handshake found, proceeding without it")
		return
	}
	if err := sem.Wait(); err != nil {
		p.log.Warn().Err(err).Msg("readiness wait failed")
	}
	_ = sem.Close()
}

// registerTasks installs the three identical, role-agnostic tasks that
// drive this Peer: heartbeat, revival check, and do-not-revive observer.
func (p *Peer) registerTasks() {
	now := time.Now()
	p.sched.AddTask(now, p.heartbeatAction, nil, nil, nil, p.interval)
	p.sched.AddTask(now, p.revivalCheckAction, nil, nil, nil, p.interval)
	p.sched.AddTask(now, p.dnrObserverAction, nil, nil, nil, time.Second)
}

func (p *Peer) heartbeatAction(any) time.Duration {
	if p.stopFlag.Load() {
		return scheduler.Repeat
	}
	sendSignal(p.peerPID.Load(), SigPing)
	p.missCounter.Add(1)
	return scheduler.Repeat
}

func (p *Peer) revivalCheckAction(any) time.Duration {
	if p.stopFlag.Load() {
		return scheduler.Repeat
	}
	if int(p.missCounter.Load()) > p.threshold {
		p.revive()
	}
	return scheduler.Repeat
}

func (p *Peer) dnrObserverAction(any) time.Duration {
	if p.stopFlag.Load() {
		p.sched.Stop()
		if p.role == bootstrap.RoleApp {
			p.failedPings.Release(1)
		}
		return scheduler.Done
	}
	return scheduler.Repeat
}

// revive force-kills the unresponsive peer and spawns a replacement, which
// inherits this process's identity as recorded in the environment at
// bootstrap.
func (p *Peer) revive() {
	old := p.peerPID.Load()
	p.log.Warn().Int32("peer_pid", old).Int32("miss_counter", p.missCounter.Load()).Msg("peer unresponsive, reviving")
	forceKill(old)

	switch p.role {
	case bootstrap.RoleApp:
		p.reviveSentinel()
	case bootstrap.RoleSentinel:
		p.reviveApp()
	}
}

func (p *Peer) reviveSentinel() {
	pid, err := p.armSpawnAndSignal(p.spawnSentinel)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to revive sentinel, will retry next tick")
		return
	}
	p.peerPID.Store(int32(pid))
	p.missCounter.Store(0)
	p.applyCaps("sentinel-revival", pid)
}

func (p *Peer) reviveApp() {
	pid, err := p.armSpawnAndSignal(p.spawnApp)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to revive application, will retry next tick")
		return
	}
	p.peerPID.Store(int32(pid))
	p.missCounter.Store(0)
	p.applyCaps("app-revival", pid)
}

func (p *Peer) applyCaps(leaf string, pid int) {
	if p.limiterMg == nil {
		return
	}
	if err := p.limiterMg.Apply(leaf, pid, p.caps); err != nil {
		p.log.Warn().Err(err).Msg("resource caps not applied to revived peer")
	}
}

// Shutdown runs the application's End() sequence: signal the peer to stop
// its own monitoring, set the local do-not-revive flag, and wait for the
// local scheduler to drain before returning.
func (p *Peer) Shutdown(ctx context.Context) error {
	if p.role != bootstrap.RoleApp {
		return fmt.Errorf("liveness: Shutdown is only valid for the application role")
	}
	if !p.stopFlag.CompareAndSwap(false, true) {
		return nil // already shutting down, a second call is a no-op
	}

	sendSignal(p.peerPID.Load(), SigDie)

	if err := p.failedPings.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("liveness: shutdown: %w", err)
	}
	p.failedPings.Release(1)

	p.stopSignalHandlers()
	<-p.sched.Done()
	p.sched.Destroy()
	return nil
}

// PeerPID returns the currently tracked peer PID, for diagnostics and tests.
func (p *Peer) PeerPID() int32 { return p.peerPID.Load() }

// Role reports this Peer's detected role.
func (p *Peer) Role() bootstrap.Role { return p.role }

// Diagnose confirms the currently tracked peer PID still denotes a real,
// live process, and reports what /proc knows about it. Useful after a
// revival to confirm the replacement is actually running rather than a
// stale or recycled PID, and for an operator-facing debug dump.
func (p *Peer) Diagnose() (*diag.Info, error) {
	pid := int(p.peerPID.Load())
	if pid == 0 || !diag.Alive(pid) {
		return nil, fmt.Errorf("liveness: peer %d is not alive", pid)
	}
	return diag.Read(pid)
}

// Done returns a channel closed once this Peer's scheduler has stopped,
// which for the sentinel role happens when the application's Shutdown
// signals it to stop monitoring.
func (p *Peer) Done() <-chan struct{} { return p.sched.Done() }
