package matchmaking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/telemetry"
)

// DefaultWaitTimeout is the maximum time a player waits in the queue before
// being told that no opponent was found.
const DefaultWaitTimeout = 2 * time.Minute

// Notifier delivers the no-opponent-found outcome to a connection.
type Notifier interface {
	NotifyQueueTimeout(connID string)
}

type Config struct {
	Clock       clockwork.Clock
	WaitTimeout time.Duration
	Notifier    Notifier

	// Alive reports whether a connection is still attached to the gateway.
	Alive func(connID string) bool
	// Seated reports whether a connection is already in a live session.
	Seated func(connID string) bool
}

// Service is the in-memory matchmaking queue. Entries are kept in enqueue
// order; every access goes through the service mutex.
type Service struct {
	clock       clockwork.Clock
	waitTimeout time.Duration
	notifier    Notifier
	alive       func(string) bool
	seated      func(string) bool

	mu      sync.Mutex
	entries []domain.QueuedPlayer
	timers  map[string]*waitTimer
}

type waitTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}

	return &Service{
		clock:       c.Clock,
		waitTimeout: c.WaitTimeout,
		notifier:    c.Notifier,
		alive:       c.Alive,
		seated:      c.Seated,
		timers:      make(map[string]*waitTimer),
	}
}

type EnqueueRequest struct {
	ConnID   string
	DeviceID string
	Name     string
	CivID    string
	Rating   int
}

type EnqueueResponse struct {
	// Matched is true when an opponent was found immediately. Both players
	// are already removed from the queue in that case.
	Matched  bool
	Player   domain.QueuedPlayer
	Opponent domain.QueuedPlayer
}

// Enqueue pairs the player with the closest-rated waiting entry, or adds the
// player to the queue and arms the wait timeout.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seated != nil && s.seated(req.ConnID) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("already in a match: conn=%s", req.ConnID))
	}
	if s.queuedLocked(req.ConnID) {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already queued: conn=%s", req.ConnID))
	}

	me := domain.QueuedPlayer{
		ConnID:   req.ConnID,
		DeviceID: req.DeviceID,
		Name:     req.Name,
		CivID:    req.CivID,
		Rating:   req.Rating,
		JoinedAt: s.clock.Now(),
	}

	if opp, ok := s.bestOpponentLocked(me); ok {
		if s.alive != nil && !s.alive(opp.ConnID) {
			// The candidate's connection vanished between enqueue and now.
			// Drop the stale entry and queue the new player normally.
			slog.InfoContext(ctx, "matchmaking: discarding stale entry",
				"conn", opp.ConnID)
			s.removeLocked(opp.ConnID)
		} else {
			s.removeLocked(opp.ConnID)
			slog.InfoContext(ctx, "matchmaking: paired",
				"conn", me.ConnID, "opponent", opp.ConnID, "queue_len", len(s.entries))
			return &EnqueueResponse{Matched: true, Player: me, Opponent: opp}, nil
		}
	}

	s.entries = append(s.entries, me)
	s.armTimeoutLocked(me.ConnID)
	telemetry.QueueDepth.Set(float64(len(s.entries)))
	slog.InfoContext(ctx, "matchmaking: queued",
		"conn", me.ConnID, "queue_len", len(s.entries))

	return &EnqueueResponse{Matched: false, Player: me}, nil
}

// Leave removes a waiting entry and cancels its timeout. No-op if the
// connection is not queued.
func (s *Service) Leave(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(connID)
}

// Len returns the number of waiting entries.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *Service) queuedLocked(connID string) bool {
	for _, e := range s.entries {
		if e.ConnID == connID {
			return true
		}
	}
	return false
}

// bestOpponentLocked picks the waiting entry whose rating is closest to the
// player's. Entries are scanned in enqueue order, so ties go to the earliest.
func (s *Service) bestOpponentLocked(me domain.QueuedPlayer) (domain.QueuedPlayer, bool) {
	var (
		best     domain.QueuedPlayer
		bestDiff int
		found    bool
	)

	for _, e := range s.entries {
		if e.ConnID == me.ConnID {
			continue
		}

		diff := e.Rating - me.Rating
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < bestDiff {
			best, bestDiff, found = e, diff, true
		}
	}

	return best, found
}

func (s *Service) removeLocked(connID string) {
	for i, e := range s.entries {
		if e.ConnID == connID {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	telemetry.QueueDepth.Set(float64(len(s.entries)))

	wt, ok := s.timers[connID]
	if !ok {
		return
	}
	delete(s.timers, connID)
	close(wt.done)
	if !wt.timer.Stop() {
		select {
		case <-wt.timer.Chan():
		default:
		}
	}
}

func (s *Service) armTimeoutLocked(connID string) {
	wt := &waitTimer{
		timer: s.clock.NewTimer(s.waitTimeout),
		done:  make(chan struct{}),
	}
	s.timers[connID] = wt

	go func() {
		select {
		case <-wt.timer.Chan():
			s.timeout(connID)
		case <-wt.done:
		}
	}()
}

func (s *Service) timeout(connID string) {
	ctx := context.Background()

	s.mu.Lock()
	if !s.queuedLocked(connID) {
		// Lost the race with Leave or a pairing.
		s.mu.Unlock()
		return
	}
	delete(s.timers, connID)
	s.removeLocked(connID)
	s.mu.Unlock()

	slog.InfoContext(ctx, "matchmaking: wait timeout", "conn", connID)
	if s.notifier != nil {
		s.notifier.NotifyQueueTimeout(connID)
	}
}
