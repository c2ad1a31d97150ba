// Package rating computes zero-sum Elo adjustments.
package rating

import "math"

const (
	// Default is the rating given to new users.
	Default = 1200
	// KFactor bounds the change from a single game.
	KFactor = 24
)

// Expected returns the expected score of a player rated r against opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

// Decisive returns the winner's and loser's deltas for a decided game.
// The loser's delta is the exact negation of the winner's.
func Decisive(winner, loser int) (winnerDelta, loserDelta int) {
	winnerDelta = int(math.Round(KFactor * (1 - Expected(winner, loser))))
	return winnerDelta, -winnerDelta
}

// Draw returns both players' deltas for a drawn game. The lower-rated side
// gains what the higher-rated side loses.
func Draw(r1, r2 int) (d1, d2 int) {
	d1 = int(math.Round(KFactor * (0.5 - Expected(r1, r2))))
	return d1, -d1
}
