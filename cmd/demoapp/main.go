// Command demoapp is a minimal application that links sentrymon: it
// calls Begin, does its own work on a ticker (standing in for whatever
// the real workload would be), and calls End on SIGTERM/SIGINT. It
// exists to exercise the full protocol end to end and as a reference
// for integrating sentrymon into a real binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kornnellio/sentrymon"
	"github.com/kornnellio/sentrymon/internal/limiter"
)

func main() {
	var (
		interval     time.Duration
		threshold    int
		sentinelPath string
		memLimitMB   int64
		cpuPercent   int
	)

	root := &cobra.Command{
		Use:   "demoapp",
		Short: "reference application that links the sentrymon watchdog",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(os.Stderr).With().Timestamp().Str("cmd", "demoapp").Logger()

			err := sentrymon.Begin(sentrymon.Config{
				Interval:     interval,
				Threshold:    threshold,
				SentinelPath: sentinelPath,
				Caps:         limiter.Caps{MemoryBytes: memLimitMB * 1024 * 1024, CPUPercent: cpuPercent},
				Logger:       &log,
			})
			if err != nil {
				return fmt.Errorf("demoapp: %w", err)
			}

			log.Info().Int32("peer_pid", sentrymon.PeerPID()).Msg("application online")

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

			ticker := time.NewTicker(3 * time.Second)
			defer ticker.Stop()

		loop:
			for {
				select {
				case <-ticker.C:
					log.Debug().Msg("demoapp doing its own work")
				case <-stop:
					break loop
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := sentrymon.End(ctx); err != nil {
				return fmt.Errorf("demoapp: shutdown: %w", err)
			}
			log.Info().Msg("application shut down cleanly")
			return nil
		},
	}

	root.Flags().DurationVar(&interval, "interval", 2*time.Second, "heartbeat and revival-check cadence")
	root.Flags().IntVar(&threshold, "threshold", 3, "consecutive missed pings tolerated before revival")
	root.Flags().StringVar(&sentinelPath, "sentinel-binary", "sentineld", "sentinel binary to launch")
	root.Flags().Int64Var(&memLimitMB, "mem-limit-mb", 0, "optional memory cap applied to a revived sentinel, in MiB")
	root.Flags().IntVar(&cpuPercent, "cpu-percent", 0, "optional CPU cap applied to a revived sentinel (100 == one core)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
