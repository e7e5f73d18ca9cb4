//go:build !windows

package hostsignal

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Signals delivers one value per SIGUSR1 until ctx is done.
func Signals(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	go func() {
		defer close(out)
		defer signal.Stop(sigs)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				notify(out)
			}
		}
	}()
	return out
}
