package player

import "sync"

// Registry is the canonical name→Player mapping. Registration is
// idempotent: the same name always resolves to the same *Player for the
// life of the process. The registry never evicts entries, matching the
// spec's "no persistence across restarts, but never forgets within a run"
// contract.
type Registry struct {
	mu      sync.Mutex
	players map[string]*Player
}

// NewRegistry returns an empty player registry.
func NewRegistry() *Registry {
	return &Registry{players: make(map[string]*Player)}
}

// Register returns the Player for name, creating one with the initial
// rating on first use. Subsequent calls with the same name return the same
// *Player, preserving whatever rating it has accumulated.
func (r *Registry) Register(name string) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.players[name]; ok {
		return p
	}
	p := newPlayer(name)
	r.players[name] = p
	return p
}

// Lookup returns the Player for name without creating one, and whether it
// was found.
func (r *Registry) Lookup(name string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[name]
	return p, ok
}

// PostResult applies one Elo rating update for a just-completed game
// between a and b, atomically with respect to any other concurrent
// PostResult call: the registry's own mutex — not a per-player lock —
// guards the whole read-modify-write, so the sum of the two deltas is zero
// and no other PostResult sees a half-applied update. Player.Rating does not
// take the registry's mutex, so a reader that fetches both ratings while
// PostResult runs can see one updated rating and the other not yet.
//
// winner is the Player that won, or nil for a draw.
func (r *Registry) PostResult(a, b, winner *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var scoreA, scoreB float64
	switch {
	case winner == nil:
		scoreA, scoreB = 0.5, 0.5
	case winner == a:
		scoreA, scoreB = 1, 0
	case winner == b:
		scoreA, scoreB = 0, 1
	default:
		panic("player: PostResult winner is neither participant")
	}

	ra, rb := a.Rating(), b.Rating()
	deltaA := eloDelta(ra, rb, scoreA)
	deltaB := eloDelta(rb, ra, scoreB)

	a.setRating(ra + deltaA)
	b.setRating(rb + deltaB)
}

// AllPlayers returns a snapshot slice of every player ever registered,
// safe to use after the registry's lock is released.
func (r *Registry) AllPlayers() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	return out
}
