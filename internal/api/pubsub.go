package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizduel/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		Top []LeaderboardEntry `json:"top"`
		Me  *LeaderboardEntry  `json:"me"`
	}

	LeaderboardEntry struct {
		Rank   int    `json:"rank"`
		Name   string `json:"name"`
		CivID  string `json:"civId"`
		Rating int    `json:"rating"`
	}
)

func toLeaderboard(l *domain.Leaderboard) Leaderboard {
	out := Leaderboard{Top: make([]LeaderboardEntry, 0, len(l.Top))}
	for _, e := range l.Top {
		out.Top = append(out.Top, toEntry(e))
	}
	if l.Me != nil {
		me := toEntry(*l.Me)
		out.Me = &me
	}
	return out
}

func toEntry(e domain.LeaderboardEntry) LeaderboardEntry {
	return LeaderboardEntry{Rank: e.Rank, Name: e.Name, CivID: e.CivID, Rating: e.Rating}
}

// PublishLeaderboardUpdated pushes a fresh board snapshot to every device on
// it through per-device redis channels, so idle clients showing the board
// stay current without polling.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	data := toLeaderboard(&e.Leaderboard)

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range e.Leaderboard.Top {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.DeviceID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, device, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:device:%s", a.prefix, device), b).Err()
}
