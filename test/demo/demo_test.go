//go:build integration_test

package demo

import (
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Plays one full duel against a running server: two clients join the queue,
// get paired, confirm readiness, answer the first question divergently and
// read the final result. Run with:
//
//	go test -tags integration_test ./test/demo/...
func TestDuel(t *testing.T) {
	var (
		alice = dial(t, "alice")
		bob   = dial(t, "bob")
	)

	alice.send(t, "join_queue", map[string]any{
		"deviceId": alice.deviceID, "name": "Alice", "civId": "Britons",
	})
	bob.send(t, "join_queue", map[string]any{
		"deviceId": bob.deviceID, "name": "Bob", "civId": "Goths",
	})

	var roomID string
	for _, c := range []*client{alice, bob} {
		found := c.waitFor(t, "match_found")

		var d struct {
			RoomID   string `json:"roomId"`
			Opponent struct {
				Name string `json:"name"`
			} `json:"opponent"`
		}
		require.NoError(t, json.Unmarshal(found, &d))
		require.NotEmpty(t, d.RoomID)
		if roomID == "" {
			roomID = d.RoomID
		}
		require.Equal(t, roomID, d.RoomID, "both players must land in the same room")
		t.Logf("Client %q matched against %q in room %s", c.deviceID, d.Opponent.Name, d.RoomID)
	}

	alice.send(t, "ready", map[string]any{"roomId": roomID})
	bob.send(t, "ready", map[string]any{"roomId": roomID})

	for _, c := range []*client{alice, bob} {
		q := c.waitFor(t, "question")

		var d struct {
			QuestionIndex int    `json:"questionIndex"`
			LevelID       string `json:"levelId"`
			Seed          uint32 `json:"seed"`
		}
		require.NoError(t, json.Unmarshal(q, &d))
		require.Equal(t, 0, d.QuestionIndex)
		require.Equal(t, "villager", d.LevelID)
		require.NotZero(t, d.Seed)
	}

	// Divergent answers end the match immediately.
	var eg errgroup.Group
	eg.Go(func() error {
		alice.send(t, "answer", map[string]any{"roomId": roomID, "correct": true})
		return nil
	})
	eg.Go(func() error {
		bob.send(t, "answer", map[string]any{"roomId": roomID, "correct": false})
		return nil
	})
	require.NoError(t, eg.Wait())

	var aliceOver, bobOver struct {
		YouWon       bool `json:"youWon"`
		RatingChange int  `json:"yourRatingChange"`
		NewRating    int  `json:"newRating"`
	}
	require.NoError(t, json.Unmarshal(alice.waitFor(t, "game_over"), &aliceOver))
	require.NoError(t, json.Unmarshal(bob.waitFor(t, "game_over"), &bobOver))

	require.True(t, aliceOver.YouWon)
	require.False(t, bobOver.YouWon)
	require.Positive(t, aliceOver.RatingChange)
	require.Negative(t, bobOver.RatingChange)

	t.Logf("Alice won: %+d -> %d; Bob: %+d -> %d",
		aliceOver.RatingChange, aliceOver.NewRating, bobOver.RatingChange, bobOver.NewRating)
}

type client struct {
	deviceID string
	sock     *websocket.Conn
}

func dial(t *testing.T, name string) *client {
	t.Helper()

	addr := os.Getenv("DUEL_ADDR")
	if addr == "" {
		addr = "localhost:8080"
	}

	sock, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws", addr), nil)
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })

	return &client{
		deviceID: fmt.Sprintf("%s-%s", name, uuid.NewString()),
		sock:     sock,
	}
}

func (c *client) send(t *testing.T, event string, data any) {
	t.Helper()

	require.NoError(t, c.sock.WriteJSON(map[string]any{
		"event": event,
		"data":  data,
	}))
}

// waitFor reads until the named event arrives, failing the test on anything
// unexpected other than leaderboard pushes.
func (c *client) waitFor(t *testing.T, event string) json.RawMessage {
	t.Helper()

	require.NoError(t, c.sock.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var n struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		require.NoError(t, c.sock.ReadJSON(&n))

		if n.Event == event {
			return n.Data
		}
		require.NotEqual(t, "error", n.Event, "server rejected a step while waiting for %q", event)
	}
}
