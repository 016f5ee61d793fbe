package domain

import "time"

// Profile is the public part of a player record, safe to show to an opponent.
type Profile struct {
	Name   string `json:"name"`
	CivID  string `json:"civId"`
	Rating int    `json:"rating"`
}

// Player is the durable record of one device.
type Player struct {
	DeviceID string
	Name     string
	CivID    string
	Rating   int
}

// QueuedPlayer is a transient matchmaking entry. It lives from join_queue
// until the player is paired, leaves, or times out.
type QueuedPlayer struct {
	ConnID   string
	DeviceID string
	Name     string
	CivID    string
	// Rating is snapshotted from the player store at enqueue time.
	Rating   int
	JoinedAt time.Time
}

func (p QueuedPlayer) Profile() Profile {
	return Profile{Name: p.Name, CivID: p.CivID, Rating: p.Rating}
}

// Outcome of a finished match.
type Outcome string

const (
	OutcomeNone Outcome = ""
	OutcomeWinA Outcome = "win_a"
	OutcomeWinB Outcome = "win_b"
	OutcomeDraw Outcome = "draw"
)

// Leaderboard is the global rating board, sorted by rating descending.
type Leaderboard struct {
	Top []LeaderboardEntry
	Me  *LeaderboardEntry
}

type LeaderboardEntry struct {
	Rank     int
	DeviceID string
	Name     string
	CivID    string
	Rating   int
}
