package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/victornm/quizduel/internal/match"
)

func TestLevelForQuestion(t *testing.T) {
	tests := map[string]struct {
		index int
		want  string
	}{
		"first question":        {index: 0, want: "villager"},
		"last of first level":   {index: 4, want: "villager"},
		"first of second level": {index: 5, want: "militia"},
		"last defined level":    {index: 40, want: "king"},
		"clamped past ladder":   {index: 49, want: "king"},
		"clamped far past":      {index: 500, want: "king"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, match.LevelForQuestion(test.index))
		})
	}
}

// The seed values are part of the client contract, pinned here so a refactor
// cannot silently change them.
func TestQuestionSeed_Golden(t *testing.T) {
	tests := map[string]struct {
		sessionID string
		index     int
		want      uint32
	}{
		"short id":       {sessionID: "a", index: 0, want: 96210},
		"first slot":     {sessionID: "match-7f3a", index: 0, want: 2626455382},
		"second slot":    {sessionID: "match-7f3a", index: 1, want: 2626455383},
		"last slot":      {sessionID: "match-7f3a", index: 49, want: 4110705695},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, match.QuestionSeed(test.sessionID, test.index))
		})
	}
}

func TestQuestionSeed_Deterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		assert.Equal(t, match.QuestionSeed("room", i), match.QuestionSeed("room", i))
	}
}

func TestQuestionSeed_DistinctAcrossSlots(t *testing.T) {
	seen := make(map[uint32]int)
	for i := 0; i < 50; i++ {
		s := match.QuestionSeed("room", i)
		prev, dup := seen[s]
		assert.Falsef(t, dup, "slot %d collides with slot %d", i, prev)
		seen[s] = i
	}
}
