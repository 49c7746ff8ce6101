package player

import (
	"sync"
	"testing"
)

func TestRegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	p1 := r.Register("alice")
	p2 := r.Register("alice")
	if p1 != p2 {
		t.Fatal("expected Register to return the same *Player for the same name")
	}
	if p1.Rating() != InitialRating {
		t.Errorf("expected initial rating %d, got %d", InitialRating, p1.Rating())
	}
}

func TestRegisterPreservesRatingAcrossReRegistration(t *testing.T) {
	r := NewRegistry()
	alice := r.Register("alice")
	bob := r.Register("bob")
	r.PostResult(alice, bob, alice)

	again := r.Register("alice")
	if again.Rating() != alice.Rating() {
		t.Errorf("expected re-registration to preserve rating, got %d want %d", again.Rating(), alice.Rating())
	}
}

func TestLookupMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Lookup("ghost"); ok {
		t.Fatal("expected Lookup for an unregistered name to fail")
	}
}

func TestPostResultDrawConservesRating(t *testing.T) {
	r := NewRegistry()
	alice := r.Register("alice")
	bob := r.Register("bob")

	r.PostResult(alice, bob, nil)

	if alice.Rating() != InitialRating || bob.Rating() != InitialRating {
		t.Errorf("expected both ratings unchanged at %d, got alice=%d bob=%d", InitialRating, alice.Rating(), bob.Rating())
	}
}

func TestPostResultDecisiveConservesRatingSum(t *testing.T) {
	r := NewRegistry()
	alice := r.Register("alice")
	bob := r.Register("bob")
	before := alice.Rating() + bob.Rating()

	r.PostResult(alice, bob, alice)

	after := alice.Rating() + bob.Rating()
	if after != before {
		t.Errorf("expected rating sum conservation: before=%d after=%d", before, after)
	}
	if alice.Rating() != 1516 || bob.Rating() != 1484 {
		t.Errorf("expected 1516/1484 for equal-rated K=32 decisive game, got alice=%d bob=%d", alice.Rating(), bob.Rating())
	}
}

func TestPostResultConcurrentConservesRatingSum(t *testing.T) {
	r := NewRegistry()
	alice := r.Register("alice")
	bob := r.Register("bob")
	before := alice.Rating() + bob.Rating()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.PostResult(alice, bob, alice)
			} else {
				r.PostResult(alice, bob, bob)
			}
		}(i)
	}
	wg.Wait()

	after := alice.Rating() + bob.Rating()
	if after != before {
		t.Errorf("expected rating sum conservation under concurrency: before=%d after=%d", before, after)
	}
}

func TestAllPlayersSnapshot(t *testing.T) {
	r := NewRegistry()
	r.Register("alice")
	r.Register("bob")

	all := r.AllPlayers()
	if len(all) != 2 {
		t.Fatalf("expected 2 players, got %d", len(all))
	}
}
