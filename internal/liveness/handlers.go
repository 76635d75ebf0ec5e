package liveness

import (
	"os"
	"os/signal"
)

// installSignalHandlers starts the relay goroutine that reacts to the two
// peer signals. Go cannot run arbitrary code inside a true signal handler,
// so os/signal.Notify hands delivery off to this goroutine, which does
// nothing but atomic stores before looping back to wait for the next
// signal, keeping the actual handling off any signal-delivery path.
func (p *Peer) installSignalHandlers() {
	p.sigCh = make(chan os.Signal, 4)
	p.sigStop = make(chan struct{})
	signal.Notify(p.sigCh, SigPing, SigDie)

	go func() {
		for {
			select {
			case sig := <-p.sigCh:
				switch sig {
				case SigPing:
					p.missCounter.Store(0)
				case SigDie:
					p.stopFlag.Store(true)
				}
			case <-p.sigStop:
				return
			}
		}
	}()
}

// stopSignalHandlers unregisters and stops the relay goroutine.
func (p *Peer) stopSignalHandlers() {
	signal.Stop(p.sigCh)
	close(p.sigStop)
}
