package syncloop

import (
	"context"
	"sync"
)

// Token identifies one activation of a view. Responses carry the token they
// were requested under; only the current token's responses may be applied.
type Token struct {
	View string
	Gen  uint64
}

// ViewGuard cancels in-flight work for a view when another view replaces it.
type ViewGuard struct {
	mu     sync.Mutex
	gen    uint64
	view   string
	cancel context.CancelFunc
}

// Activate makes view current and returns a context that is cancelled when
// the next view activates.
func (g *ViewGuard) Activate(parent context.Context, view string) (context.Context, Token) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
	g.gen++
	g.view = view
	ctx, cancel := context.WithCancel(parent)
	g.cancel = cancel
	return ctx, Token{View: view, Gen: g.gen}
}

func (g *ViewGuard) Current(t Token) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return t.Gen == g.gen && t.View == g.view
}

// Stop cancels the current view's context.
func (g *ViewGuard) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}
