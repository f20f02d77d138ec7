package httpapi

import (
	"context"
	"sync"
)

// wsSession is the handle for one running WebSocket relay session. The
// session registers itself after the upstream dial succeeds and removes
// itself in its teardown, whatever way it exits. cancel asks the session to
// stop; done closes once teardown has finished.
type wsSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// sessionRegistry tracks active WebSocket sessions so shutdown can cancel
// them en masse. Its size equals the number of open sessions.
type sessionRegistry struct {
	mu sync.Mutex
	m  map[*wsSession]struct{}
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{m: make(map[*wsSession]struct{})}
}

func (r *sessionRegistry) add(s *wsSession) {
	r.mu.Lock()
	r.m[s] = struct{}{}
	r.mu.Unlock()
}

func (r *sessionRegistry) remove(s *wsSession) {
	r.mu.Lock()
	delete(r.m, s)
	r.mu.Unlock()
}

// snapshot copies the current handles so shutdown can cancel and wait
// without holding the lock while sessions mutate the registry.
func (r *sessionRegistry) snapshot() []*wsSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*wsSession, 0, len(r.m))
	for s := range r.m {
		out = append(out, s)
	}
	return out
}

func (r *sessionRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
