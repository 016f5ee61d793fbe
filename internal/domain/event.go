package domain

import "time"

const (
	EventNameMatchFinished      = "match.finished"
	EventNameRatingUpdated      = "rating.updated"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

// EventMatchFinished is published once per match, after the outcome is
// decided and before the session is released.
type EventMatchFinished struct {
	SessionID string
	Outcome   Outcome
}

func (EventMatchFinished) Name() string { return EventNameMatchFinished }

// EventRatingUpdated is published once per player per finished match.
type EventRatingUpdated struct {
	DeviceID   string
	PlayerName string
	CivID      string
	Rating     int
	UpdateTime time.Time
}

func (EventRatingUpdated) Name() string { return EventNameRatingUpdated }

// EventLeaderboardUpdated carries a fresh snapshot of the global board.
type EventLeaderboardUpdated struct {
	Leaderboard Leaderboard
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
