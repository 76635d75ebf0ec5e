// Command sentineld is the sentinel half of the mutual-liveness
// watchdog. It has no library surface of its own: it bootstraps
// straight into internal/liveness and blocks until its peer tells it
// to stop monitoring.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kornnellio/sentrymon/internal/limiter"
	"github.com/kornnellio/sentrymon/internal/liveness"
)

func main() {
	var (
		interval     time.Duration
		threshold    int
		appPath      string
		memLimitMB   int64
		cpuPercent   int
	)

	root := &cobra.Command{
		Use:   "sentineld",
		Short: "sentinel half of the sentrymon mutual-liveness watchdog",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(os.Stderr).With().Timestamp().Str("cmd", "sentineld").Logger()

			var limMgr *limiter.Manager
			caps := limiter.Caps{MemoryBytes: memLimitMB * 1024 * 1024, CPUPercent: cpuPercent}
			if memLimitMB > 0 || cpuPercent > 0 {
				m, err := limiter.NewManager(log)
				if err != nil {
					log.Warn().Err(err).Msg("resource caps requested but cgroup setup failed")
				} else {
					limMgr = m
				}
			}

			p, err := liveness.Bootstrap(liveness.Config{
				Interval:  interval,
				Threshold: threshold,
				Binaries: liveness.BinaryPaths{
					DefaultAppArgs: []string{appPath},
				},
				Caps:    caps,
				Limiter: limMgr,
				Logger:  &log,
			})
			if err != nil {
				return fmt.Errorf("sentineld: %w", err)
			}

			log.Info().Int32("peer_pid", p.PeerPID()).Msg("sentinel online")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

			select {
			case <-p.Done():
				log.Info().Msg("application requested shutdown, monitoring stopped")
			case sig := <-stop:
				log.Info().Stringer("signal", sig).Msg("sentinel terminated externally")
			}
			return nil
		},
	}

	root.Flags().DurationVar(&interval, "interval", 2*time.Second, "heartbeat and revival-check cadence")
	root.Flags().IntVar(&threshold, "threshold", 3, "consecutive missed pings tolerated before revival")
	root.Flags().StringVar(&appPath, "app-binary", "", "application binary to fall back to if argv reconstruction fails")
	root.Flags().Int64Var(&memLimitMB, "mem-limit-mb", 0, "optional memory cap applied to a revived application, in MiB")
	root.Flags().IntVar(&cpuPercent, "cpu-percent", 0, "optional CPU cap applied to a revived application (100 == one core)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
