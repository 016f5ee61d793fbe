package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/event"
)

const (
	// DefaultTopLimit matches the size of the board screen in the client.
	DefaultTopLimit = 40

	publishInterval = 200 * time.Millisecond
)

// Players resolves device ids to display profiles for the read path.
type Players interface {
	GetProfiles(ctx context.Context, deviceIDs []string) (map[string]domain.Player, error)
}

type Config struct {
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	Players  Players
}

// Service keeps the global rating board in a redis sorted set, member =
// device id, score = rating. Writes arrive through rating.updated events
// published by the match finish sequence; this core never mutates the board
// from anywhere else.
type Service struct {
	eb      *event.Bus
	redis   redis.UniversalClient
	prefix  string
	players Players
}

func NewService(c Config) *Service {
	s := &Service{
		eb:      c.EventBus,
		redis:   c.Redis,
		prefix:  c.Prefix,
		players: c.Players,
	}

	s.eb.Subscribe(domain.EventNameRatingUpdated, func(ctx context.Context, e event.Event) error {
		return s.UpdateRating(ctx, e.(domain.EventRatingUpdated))
	})

	return s
}

type GetLeaderboardRequest struct {
	// DeviceID, when set, adds the caller's own entry and rank.
	DeviceID string
	Limit    int
}

// GetLeaderboard returns the top of the board plus, optionally, the caller's
// own rank. Rank counts strictly-higher ratings, so equal ratings share a
// rank.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	res, err := s.redis.ZRevRangeWithScores(ctx, s.boardKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	ids := make([]string, 0, len(res))
	for _, z := range res {
		ids = append(ids, z.Member.(string))
	}

	profiles := map[string]domain.Player{}
	if s.players != nil && len(ids) > 0 {
		profiles, err = s.players.GetProfiles(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve profiles: %w", err)
		}
	}

	l := &domain.Leaderboard{Top: make([]domain.LeaderboardEntry, 0, len(res))}
	for i, z := range res {
		id := z.Member.(string)
		e := domain.LeaderboardEntry{
			Rank:     i + 1,
			DeviceID: id,
			Name:     id,
			Rating:   int(z.Score),
		}
		if p, ok := profiles[id]; ok {
			e.Name, e.CivID = p.Name, p.CivID
		}
		l.Top = append(l.Top, e)
	}

	if req.DeviceID != "" {
		me, err := s.entryFor(ctx, req.DeviceID)
		if err != nil {
			return nil, err
		}
		l.Me = me
	}

	return l, nil
}

// Rank returns 1 + the number of players rated strictly above the given
// rating.
func (s *Service) Rank(ctx context.Context, rating int) (int, error) {
	n, err := s.redis.ZCount(ctx, s.boardKey(), "("+strconv.Itoa(rating), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("rank: %w", err)
	}
	return int(n) + 1, nil
}

func (s *Service) entryFor(ctx context.Context, deviceID string) (*domain.LeaderboardEntry, error) {
	score, err := s.redis.ZScore(ctx, s.boardKey(), deviceID).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("own score: %w", err)
	}

	rank, err := s.Rank(ctx, int(score))
	if err != nil {
		return nil, err
	}

	e := &domain.LeaderboardEntry{
		Rank:     rank,
		DeviceID: deviceID,
		Name:     deviceID,
		Rating:   int(score),
	}
	if s.players != nil {
		profiles, err := s.players.GetProfiles(ctx, []string{deviceID})
		if err != nil {
			return nil, fmt.Errorf("resolve own profile: %w", err)
		}
		if p, ok := profiles[deviceID]; ok {
			e.Name, e.CivID = p.Name, p.CivID
		}
	}

	return e, nil
}

// UpdateRating overwrites the player's score on the board.
func (s *Service) UpdateRating(ctx context.Context, e domain.EventRatingUpdated) error {
	if err := s.redis.ZAdd(ctx, s.boardKey(), redis.Z{
		Score:  float64(e.Rating),
		Member: e.DeviceID,
	}).Err(); err != nil {
		return fmt.Errorf("update leaderboard: %w", err)
	}

	return s.schedulePublish(ctx, e)
}

// schedulePublish debounces board snapshots: many ratings land in a burst
// when several matches finish together, and one snapshot per interval is
// enough for the push path.
func (s *Service) schedulePublish(ctx context.Context, e domain.EventRatingUpdated) error {
	ok, err := s.redis.SetNX(ctx, s.timeKey(), e.UpdateTime.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{})
	if err != nil {
		return fmt.Errorf("snapshot leaderboard: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})
	return nil
}

func (s *Service) boardKey() string {
	return fmt.Sprintf("%s:board", s.prefix)
}

func (s *Service) timeKey() string {
	return fmt.Sprintf("%s:board:time", s.prefix)
}
