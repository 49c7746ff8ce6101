package network

import (
	"fmt"
	"net"
	"sync"

	"github.com/amalg/tttserver/internal/player"
)

// MaxClients is the maximum number of simultaneously connected sessions.
const MaxClients = 64

// Registry is the live set of connected sessions: it supports
// registration/unregistration, username→session lookup (logged-in sessions
// only), a consistent snapshot of logged-in players, a broadcast
// read-shutdown for graceful termination, and an "empty" barrier that
// shutdown waits on.
type Registry struct {
	mu       sync.Mutex
	cond     *sync.Cond
	sessions map[*Session]struct{}
}

// NewRegistry returns an empty client registry.
func NewRegistry() *Registry {
	r := &Registry{sessions: make(map[*Session]struct{})}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Register wraps conn in a new Session and adds it to the live set. It
// fails once MaxClients sessions are already registered; per SPEC_FULL.md
// §7 a RegistryFull condition means the caller closes the connection
// immediately without sending anything.
func (r *Registry) Register(conn net.Conn) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= MaxClients {
		return nil, fmt.Errorf("network: registry full (cap %d)", MaxClients)
	}

	s := NewSession(conn)
	r.sessions[s] = struct{}{}
	return s, nil
}

// Unregister removes s from the live set. If this is the last session, it
// releases every goroutine blocked in WaitForEmpty.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s]; !ok {
		return
	}
	delete(r.sessions, s)
	if len(r.sessions) == 0 {
		r.cond.Broadcast()
	}
}

// Lookup returns the live, logged-in session for username, if any.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(username)
}

func (r *Registry) lookupLocked(username string) (*Session, bool) {
	for s := range r.sessions {
		if p := s.Player(); p != nil && p.Name() == username {
			return s, true
		}
	}
	return nil, false
}

// TryLogin atomically checks that name has no other live session and logs s
// in as that player, the same check-then-insert-under-one-lock idiom the
// teacher's Engine.AddPlayer uses for its own player map. Holding r.mu
// across both the duplicate check and s's own login transition is what
// makes this atomic: two concurrent TryLogin calls for the same name can
// never both observe "no live session" before either claims it.
func (r *Registry) TryLogin(s *Session, players *player.Registry, name string) (*player.Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.lookupLocked(name); live {
		return nil, fmt.Errorf("network: username %q already has a live session", name)
	}
	p := players.Register(name)
	if err := s.Login(p); err != nil {
		return nil, err
	}
	return p, nil
}

// AllPlayers returns a consistent snapshot of every currently logged-in
// player, safe to use after the registry's lock is released.
func (r *Registry) AllPlayers() []*player.Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*player.Player, 0, len(r.sessions))
	for s := range r.sessions {
		if p := s.Player(); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// ShutdownAll shuts down the read half of every live connection so each
// service loop observes EOF on its next decode and terminates on its own.
// It does not unregister anything — the service loops do that themselves
// as they unwind.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	conns := make([]net.Conn, 0, len(r.sessions))
	for s := range r.sessions {
		conns = append(conns, s.Conn())
	}
	r.mu.Unlock()

	for _, c := range conns {
		shutdownRead(c)
	}
}

// shutdownRead half-closes the read side of c if it supports it (TCP
// connections do); otherwise it closes c outright, which still produces an
// EOF for any blocked reader.
func shutdownRead(c net.Conn) {
	type readCloser interface {
		CloseRead() error
	}
	if rc, ok := c.(readCloser); ok {
		_ = rc.CloseRead()
		return
	}
	_ = c.Close()
}

// WaitForEmpty blocks until the live-session count is zero. It may be
// called concurrently by any number of goroutines; all of them release
// together on the transition to empty.
func (r *Registry) WaitForEmpty() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sessions) > 0 {
		r.cond.Wait()
	}
}

// Count returns the number of currently live sessions. It exists for
// tests and diagnostics; the service loop never branches on it.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
