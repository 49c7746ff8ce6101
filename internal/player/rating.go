package player

import "math"

// eloK is the Elo coefficient applied on every rating update.
const eloK = 32

// eloDelta returns the signed rating change for a player rated `rating`
// against an opponent rated `opponentRating`, having earned `score`
// (1 = win, 0.5 = draw, 0 = loss). The expected score uses the standard
// logistic curve with denominator 400.
func eloDelta(rating, opponentRating int, score float64) int {
	expected := 1.0 / (1.0 + math.Pow(10, float64(opponentRating-rating)/400.0))
	return int(eloK * (score - expected))
}
