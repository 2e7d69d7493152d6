package supervisor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"pkt.systems/pslog"
)

// relaySignals are the signals logt must survive while a child runs.
var relaySignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

// relay holds back termination signals from the wrapper while a child runs.
// SIGINT, SIGQUIT and SIGHUP come from the terminal and already reach the
// child through the process group. SIGTERM is forwarded to the child.
type relay struct {
	signals chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

// newRelay starts catching signals. It must be called before the child is
// started so no signal can slip through in between.
func newRelay() *relay {
	r := &relay{
		signals: make(chan os.Signal, len(relaySignals)),
		done:    make(chan struct{}),
	}
	signal.Notify(r.signals, relaySignals...)
	return r
}

// forward passes the caught signals on to process until stop is called.
func (r *relay) forward(process *os.Process, log pslog.Logger) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case sig := <-r.signals:
				log.Debug("signal received", "signal", sig.String())
				if sig != syscall.SIGTERM {
					continue
				}
				if err := process.Signal(sig); err != nil {
					log.Debug("failed to forward signal", "signal", sig.String(), "err", err)
				}
			case <-r.done:
				return
			}
		}
	}()
}

// stop restores the default signal behaviour.
func (r *relay) stop() {
	signal.Stop(r.signals)
	close(r.done)
	r.wg.Wait()
}
