package network

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amalg/tttserver/internal/player"
)

// TestRegistryConcurrentRegisterUnregisterNeverExceedsCap hammers the
// client registry from many goroutines at once, the way the concurrency
// tests in the pack's MMO-style server exercise their own session table.
func TestRegistryConcurrentRegisterUnregisterNeverExceedsCap(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var registered int

	for i := 0; i < MaxClients*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := r.Register(pipeConn(t))
			if err != nil {
				return
			}
			mu.Lock()
			registered++
			mu.Unlock()
			r.Unregister(s)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, r.Count(), MaxClients)
	require.Equal(t, 0, r.Count(), "every registered session was also unregistered")
	require.Greater(t, registered, 0, "expected at least some registrations to succeed")
}

// TestPostResultConcurrentAcrossManyPairsConservesEachPairsRatingSum checks
// that concurrent rating updates across independent player pairs never
// corrupt each other, using testify for the multi-assertion summary.
func TestPostResultConcurrentAcrossManyPairsConservesEachPairsRatingSum(t *testing.T) {
	players := player.NewRegistry()
	type pair struct{ a, b *player.Player }
	pairs := make([]pair, 10)
	for i := range pairs {
		pairs[i] = pair{
			a: players.Register(string(rune('A' + i))),
			b: players.Register(string(rune('a' + i))),
		}
	}

	var wg sync.WaitGroup
	for _, p := range pairs {
		wg.Add(1)
		go func(p pair) {
			defer wg.Done()
			players.PostResult(p.a, p.b, p.a)
		}(p)
	}
	wg.Wait()

	for _, p := range pairs {
		require.Equal(t, 2*player.InitialRating, p.a.Rating()+p.b.Rating(), "pair %s/%s should conserve total rating", p.a.Name(), p.b.Name())
	}
}
