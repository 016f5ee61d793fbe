package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/event"
	"github.com/victornm/quizduel/internal/rating"
	"github.com/victornm/quizduel/internal/telemetry"
)

const (
	// DefaultQuestionCount is the fixed match length.
	DefaultQuestionCount = 50

	// DefaultQuestionTime is the per-question time budget.
	DefaultQuestionTime = 30 * time.Second
)

// Emitter delivers outbound match events to a connection.
type Emitter interface {
	EmitMatchFound(connID string, m MatchFound)
	EmitQuestion(connID string, q Question)
	EmitGameOver(connID string, g GameOver)
}

// PlayerStore is the durable rating record consulted by the finish sequence.
type PlayerStore interface {
	GetRating(ctx context.Context, deviceID string) (int, error)
	SetRating(ctx context.Context, deviceID string, rating int) error
}

type MatchFound struct {
	RoomID   string         `json:"roomId"`
	You      domain.Profile `json:"you"`
	Opponent domain.Profile `json:"opponent"`
}

type Question struct {
	QuestionIndex int    `json:"questionIndex"`
	LevelID       string `json:"levelId"`
	Seed          uint32 `json:"seed"`
	TimeSec       int    `json:"timeSec"`
}

type GameOver struct {
	Result       domain.Outcome `json:"result"`
	YouWon       bool           `json:"youWon"`
	RatingChange int            `json:"yourRatingChange"`
	NewRating    int            `json:"newRating"`
	Opponent     domain.Profile `json:"opponent"`
}

type Config struct {
	Clock         clockwork.Clock
	Players       PlayerStore
	EventBus      *event.Bus
	Emitter       Emitter
	QuestionCount int
	QuestionTime  time.Duration
}

// Service owns all live sessions. The service mutex guards the registries
// only; each room is serialized by its own mutex, so transitions for one
// match never interleave.
type Service struct {
	clock         clockwork.Clock
	players       PlayerStore
	eb            *event.Bus
	emitter       Emitter
	questionCount int
	questionTime  time.Duration

	mu       sync.Mutex
	rooms    map[string]*room
	connRoom map[string]*room
}

func NewService(c Config) *Service {
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.QuestionCount <= 0 {
		c.QuestionCount = DefaultQuestionCount
	}
	if c.QuestionTime <= 0 {
		c.QuestionTime = DefaultQuestionTime
	}

	return &Service{
		clock:         c.Clock,
		players:       c.Players,
		eb:            c.EventBus,
		emitter:       c.Emitter,
		questionCount: c.QuestionCount,
		questionTime:  c.QuestionTime,
		rooms:         make(map[string]*room),
		connRoom:      make(map[string]*room),
	}
}

type slot int

const (
	slotA slot = iota
	slotB
)

type seat struct {
	connID   string
	deviceID string
	profile  domain.Profile
}

type room struct {
	mu sync.Mutex

	id    string
	seatA seat
	seatB seat

	index   int
	answerA *bool
	answerB *bool
	readyA  bool
	readyB  bool
	started bool

	over   bool
	result domain.Outcome

	timer *questionTimer
}

type questionTimer struct {
	timer clockwork.Timer
	done  chan struct{}
}

// Create builds a session for two freshly paired players, binds both
// connections to it, and announces the match to both sides.
func (s *Service) Create(ctx context.Context, a, b domain.QueuedPlayer) (string, error) {
	r := &room{
		id:    uuid.NewString(),
		seatA: seat{connID: a.ConnID, deviceID: a.DeviceID, profile: a.Profile()},
		seatB: seat{connID: b.ConnID, deviceID: b.DeviceID, profile: b.Profile()},
	}

	s.mu.Lock()
	if _, ok := s.connRoom[a.ConnID]; ok {
		s.mu.Unlock()
		return "", errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("connection already seated: conn=%s", a.ConnID))
	}
	if _, ok := s.connRoom[b.ConnID]; ok {
		s.mu.Unlock()
		return "", errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("connection already seated: conn=%s", b.ConnID))
	}
	s.rooms[r.id] = r
	s.connRoom[a.ConnID] = r
	s.connRoom[b.ConnID] = r
	s.mu.Unlock()

	telemetry.MatchesStarted.Inc()
	slog.InfoContext(ctx, "match: created",
		"room", r.id, "conn_a", a.ConnID, "conn_b", b.ConnID)

	s.emitter.EmitMatchFound(a.ConnID, MatchFound{
		RoomID:   r.id,
		You:      r.seatA.profile,
		Opponent: r.seatB.profile,
	})
	s.emitter.EmitMatchFound(b.ConnID, MatchFound{
		RoomID:   r.id,
		You:      r.seatB.profile,
		Opponent: r.seatA.profile,
	})

	return r.id, nil
}

// Seated reports whether a connection currently holds a seat.
func (s *Service) Seated(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.connRoom[connID]
	return ok
}

// Ready marks a seat ready. When both seats are ready the first question is
// emitted. Redundant ready signals are no-ops.
func (s *Service) Ready(ctx context.Context, connID, roomID string) error {
	r, sl, err := s.lookup(connID, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.over || r.started {
		return nil
	}

	if sl == slotA {
		r.readyA = true
	} else {
		r.readyB = true
	}

	if r.readyA && r.readyB {
		r.started = true
		slog.InfoContext(ctx, "match: both ready", "room", r.id)
		s.emitQuestionLocked(r)
	}

	return nil
}

// Answer records the seat's self-reported correctness for the current
// question. A second answer for the same question is a protocol violation
// and is ignored.
func (s *Service) Answer(ctx context.Context, connID, roomID string, correct bool) error {
	r, sl, err := s.lookup(connID, roomID)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.over || !r.started {
		r.mu.Unlock()
		return nil
	}

	recorded := &r.answerA
	if sl == slotB {
		recorded = &r.answerB
	}
	if *recorded != nil {
		r.mu.Unlock()
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("question already answered: room=%s question=%d", r.id, r.index))
	}
	*recorded = &correct

	outcome, finished := s.resolveLocked(r)
	r.mu.Unlock()

	if finished {
		s.finish(ctx, r, outcome)
	}

	return nil
}

// Disconnect forfeits the match for the dropped connection: the remaining
// seat wins immediately. Returns false when the connection holds no seat.
func (s *Service) Disconnect(ctx context.Context, connID string) bool {
	s.mu.Lock()
	r, ok := s.connRoom[connID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	r.mu.Lock()
	if r.over {
		r.mu.Unlock()
		return true
	}
	outcome := domain.OutcomeWinB
	if connID == r.seatB.connID {
		outcome = domain.OutcomeWinA
	}
	s.markOverLocked(r, outcome)
	r.mu.Unlock()

	slog.InfoContext(ctx, "match: forfeit on disconnect", "room", r.id, "conn", connID)
	s.finish(ctx, r, outcome)
	return true
}

func (s *Service) lookup(connID, roomID string) (*room, slot, error) {
	s.mu.Lock()
	r, ok := s.connRoom[connID]
	s.mu.Unlock()

	if !ok || r.id != roomID {
		return nil, 0, errors.New(errors.CodeNotFound,
			errors.WithMessagef("no such session for connection: room=%s conn=%s", roomID, connID))
	}

	sl := slotA
	if connID == r.seatB.connID {
		sl = slotB
	}
	return r, sl, nil
}

// emitQuestionLocked sends the question at the room's current index to both
// seats and arms the per-question timer. Any previous timer is cancelled
// first so a stale fire can never touch the new question.
func (s *Service) emitQuestionLocked(r *room) {
	r.cancelTimerLocked()
	r.answerA = nil
	r.answerB = nil

	q := Question{
		QuestionIndex: r.index,
		LevelID:       LevelForQuestion(r.index),
		Seed:          QuestionSeed(r.id, r.index),
		TimeSec:       int(s.questionTime / time.Second),
	}
	s.emitter.EmitQuestion(r.seatA.connID, q)
	s.emitter.EmitQuestion(r.seatB.connID, q)

	qt := &questionTimer{
		timer: s.clock.NewTimer(s.questionTime),
		done:  make(chan struct{}),
	}
	r.timer = qt

	index := r.index
	go func() {
		select {
		case <-qt.timer.Chan():
			s.questionTimeout(r, index)
		case <-qt.done:
		}
	}()
}

func (r *room) cancelTimerLocked() {
	if r.timer == nil {
		return
	}
	close(r.timer.done)
	if !r.timer.timer.Stop() {
		select {
		case <-r.timer.timer.Chan():
		default:
		}
	}
	r.timer = nil
}

// questionTimeout fires when the time budget for one question runs out.
// Still-pending slots count as incorrect, then the normal resolution rule
// applies. The index guard rejects a stale fire for an already-advanced
// question.
func (s *Service) questionTimeout(r *room, index int) {
	r.mu.Lock()
	if r.over || r.index != index || r.timer == nil {
		r.mu.Unlock()
		return
	}
	r.timer = nil

	incorrect := false
	if r.answerA == nil {
		r.answerA = &incorrect
	}
	if r.answerB == nil {
		r.answerB = &incorrect
	}

	outcome, finished := s.resolveLocked(r)
	r.mu.Unlock()

	if finished {
		s.finish(context.Background(), r, outcome)
	}
}

// resolveLocked evaluates the current question once both slots are
// non-pending. The first question where the seats diverge, or where both
// miss, ends the match; only an all-correct run to the full match length
// produces a full-length draw.
func (s *Service) resolveLocked(r *room) (domain.Outcome, bool) {
	if r.answerA == nil || r.answerB == nil {
		return domain.OutcomeNone, false
	}

	a, b := *r.answerA, *r.answerB
	switch {
	case a && b:
		r.index++
		if r.index >= s.questionCount {
			s.markOverLocked(r, domain.OutcomeDraw)
			return domain.OutcomeDraw, true
		}
		s.emitQuestionLocked(r)
		return domain.OutcomeNone, false
	case a:
		s.markOverLocked(r, domain.OutcomeWinA)
		return domain.OutcomeWinA, true
	case b:
		s.markOverLocked(r, domain.OutcomeWinB)
		return domain.OutcomeWinB, true
	default:
		s.markOverLocked(r, domain.OutcomeDraw)
		return domain.OutcomeDraw, true
	}
}

// markOverLocked flips the room into its terminal state. The caller that
// observes the flip (and only that caller) runs the finish sequence.
func (s *Service) markOverLocked(r *room, outcome domain.Outcome) {
	r.over = true
	r.result = outcome
	r.cancelTimerLocked()
}

// finish runs the finish sequence exactly once per room: read both players'
// persisted ratings, compute the paired update, persist, deliver the outcome
// to both seats, then release the session. A failed rating read or write is
// logged but never withholds the outcome from the players.
func (s *Service) finish(ctx context.Context, r *room, outcome domain.Outcome) {
	ratingA, err := s.players.GetRating(ctx, r.seatA.deviceID)
	if err != nil {
		slog.ErrorContext(ctx, "match: read rating failed", "room", r.id, "device", r.seatA.deviceID, "error", err)
		ratingA = r.seatA.profile.Rating
	}
	ratingB, err := s.players.GetRating(ctx, r.seatB.deviceID)
	if err != nil {
		slog.ErrorContext(ctx, "match: read rating failed", "room", r.id, "device", r.seatB.deviceID, "error", err)
		ratingB = r.seatB.profile.Rating
	}

	newA, newB := rating.Update(ratingA, ratingB, outcome)

	if err := s.players.SetRating(ctx, r.seatA.deviceID, newA); err != nil {
		slog.ErrorContext(ctx, "match: persist rating failed", "room", r.id, "device", r.seatA.deviceID, "error", err)
	}
	if err := s.players.SetRating(ctx, r.seatB.deviceID, newB); err != nil {
		slog.ErrorContext(ctx, "match: persist rating failed", "room", r.id, "device", r.seatB.deviceID, "error", err)
	}

	s.emitter.EmitGameOver(r.seatA.connID, GameOver{
		Result:       outcome,
		YouWon:       outcome == domain.OutcomeWinA,
		RatingChange: newA - ratingA,
		NewRating:    newA,
		Opponent:     r.seatB.profile,
	})
	s.emitter.EmitGameOver(r.seatB.connID, GameOver{
		Result:       outcome,
		YouWon:       outcome == domain.OutcomeWinB,
		RatingChange: newB - ratingB,
		NewRating:    newB,
		Opponent:     r.seatA.profile,
	})

	if s.eb != nil {
		now := s.clock.Now()
		s.eb.Publish(ctx, domain.EventMatchFinished{SessionID: r.id, Outcome: outcome})
		s.eb.Publish(ctx, domain.EventRatingUpdated{
			DeviceID:   r.seatA.deviceID,
			PlayerName: r.seatA.profile.Name,
			CivID:      r.seatA.profile.CivID,
			Rating:     newA,
			UpdateTime: now,
		})
		s.eb.Publish(ctx, domain.EventRatingUpdated{
			DeviceID:   r.seatB.deviceID,
			PlayerName: r.seatB.profile.Name,
			CivID:      r.seatB.profile.CivID,
			Rating:     newB,
			UpdateTime: now,
		})
	}

	s.mu.Lock()
	delete(s.rooms, r.id)
	delete(s.connRoom, r.seatA.connID)
	delete(s.connRoom, r.seatB.connID)
	s.mu.Unlock()

	telemetry.MatchesFinished.WithLabelValues(string(outcome)).Inc()
	slog.InfoContext(ctx, "match: finished", "room", r.id, "outcome", outcome)
}
