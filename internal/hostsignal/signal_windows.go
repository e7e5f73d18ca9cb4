//go:build windows

package hostsignal

import "context"

// Signals is a no-op on Windows, which has no SIGUSR1.
func Signals(ctx context.Context) <-chan struct{} {
	out := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}
