package rating

import (
	"math"

	"github.com/victornm/quizduel/internal/domain"
)

const (
	// Initial is the rating assigned to a player never seen before.
	Initial = 1000

	// k is the Elo sensitivity constant.
	k = 32
)

// update returns the new rating for one side of a match.
// actual is 1 for a win, 0.5 for a draw, 0 for a loss.
func update(own, other int, actual float64) int {
	expected := 1 / (1 + math.Pow(10, float64(other-own)/400))
	return int(math.Round(float64(own) + k*(actual-expected)))
}

// Update computes both new ratings from a single match outcome. Both sides
// are derived from the same pre-match pair, so the update is symmetric:
// neither side ever sees the other's already-updated rating.
func Update(ratingA, ratingB int, outcome domain.Outcome) (newA, newB int) {
	switch outcome {
	case domain.OutcomeWinA:
		return update(ratingA, ratingB, 1), update(ratingB, ratingA, 0)
	case domain.OutcomeWinB:
		return update(ratingA, ratingB, 0), update(ratingB, ratingA, 1)
	default:
		return update(ratingA, ratingB, 0.5), update(ratingB, ratingA, 0.5)
	}
}
