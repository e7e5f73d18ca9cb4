// Package hostsignal turns host "rescan requested" notifications into a
// channel the sync loop can select on. Sources are SIGUSR1 and the backend's
// /events websocket.
package hostsignal

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// EventRescan is the event type that requests a rescan.
const EventRescan = "menu-rescan"

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// notify does a non-blocking send so bursts collapse into one pending signal.
func notify(out chan<- struct{}) {
	select {
	case out <- struct{}{}:
	default:
	}
}

// EventsURL derives the websocket endpoint from an http(s) base URL.
func EventsURL(baseURL string) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/events"
}

// Events subscribes to the backend event stream and signals once per rescan
// event. The channel closes when the stream ends or ctx is done; there is no
// reconnect.
func Events(ctx context.Context, url string, log *zap.Logger) <-chan struct{} {
	if log == nil {
		log = zap.NewNop()
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		conn, resp, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				log.Debug("backend has no event stream", zap.String("url", url))
				return
			}
			if ctx.Err() == nil {
				log.Info("event stream unavailable", zap.String("url", url), zap.Error(err))
			}
			return
		}
		defer conn.CloseNow()

		for {
			var ev Event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				if ctx.Err() == nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
					log.Info("event stream closed", zap.Error(err))
				}
				return
			}
			if ev.Type == EventRescan {
				log.Debug("rescan requested by host event")
				notify(out)
			}
		}
	}()
	return out
}

// Merge fans several signal channels into one. The result closes when ctx is
// done or every input has closed.
func Merge(ctx context.Context, ins ...<-chan struct{}) <-chan struct{} {
	out := make(chan struct{}, 1)
	var wg sync.WaitGroup
	for _, in := range ins {
		if in == nil {
			continue
		}
		wg.Add(1)
		go func(in <-chan struct{}) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-in:
					if !ok {
						return
					}
					notify(out)
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
