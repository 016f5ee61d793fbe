package match

import "fmt"

// Difficulty ladder for multiplayer questions, easiest first. Questions walk
// up one level every questionsPerLevel questions and stay at the last level.
var levelIDs = [...]string{
	"villager", "militia", "scout", "pikeman", "archer",
	"knight", "cavalier", "paladin", "king",
}

const questionsPerLevel = 5

// LevelForQuestion maps a 0-based question index to its difficulty level id.
func LevelForQuestion(index int) string {
	l := index / questionsPerLevel
	if l >= len(levelIDs) {
		l = len(levelIDs) - 1
	}
	return levelIDs[l]
}

// QuestionSeed derives the deterministic content seed for one question slot.
// Both clients generate identical question content from it, so the server
// never ships question content itself. The hash must stay stable across
// releases: clients on old versions still need to agree on the seed.
func QuestionSeed(sessionID string, index int) uint32 {
	s := fmt.Sprintf("%s_%d", sessionID, index)

	var h int32
	for i := 0; i < len(s); i++ {
		h = (h << 5) - h + int32(s[i])
	}
	return uint32(h)
}
