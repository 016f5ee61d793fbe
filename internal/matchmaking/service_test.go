package matchmaking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/matchmaking"
)

const waitTimeout = 2 * time.Minute

func TestEnqueue_PairsClosestRating(t *testing.T) {
	f := makeFixture(t)

	f.addWaiting("c1", "d1", 1000)
	f.addWaiting("c2", "d2", 1050)

	resp, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "c3", DeviceID: "d3", Name: "p3", CivID: "Goths", Rating: 1040,
	})
	require.NoError(t, err)
	require.True(t, resp.Matched)
	assert.Equal(t, "c2", resp.Opponent.ConnID, "1050 is closer to 1040 than 1000 is")

	// The 1000 entry is still waiting.
	assert.Equal(t, 1, f.service.Len())
}

func TestEnqueue_TieGoesToEarliestEntry(t *testing.T) {
	f := makeFixture(t)

	f.addWaiting("first", "d1", 1000)
	f.addWaiting("second", "d2", 1000)

	resp, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "c3", DeviceID: "d3", Rating: 1020,
	})
	require.NoError(t, err)
	require.True(t, resp.Matched)
	assert.Equal(t, "first", resp.Opponent.ConnID)
}

func TestEnqueue_RejectsDuplicateConnection(t *testing.T) {
	f := makeFixture(t)

	f.enqueue(t, "c1", "d1", 1000)

	_, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "c1", DeviceID: "d1", Rating: 1000,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)
	assert.Equal(t, 1, f.service.Len())
}

func TestEnqueue_RejectsSeatedConnection(t *testing.T) {
	f := makeFixture(t, withSeated(func(connID string) bool { return connID == "seated" }))

	_, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "seated", DeviceID: "d1", Rating: 1000,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestEnqueue_DiscardsStaleCandidate(t *testing.T) {
	f := makeFixture(t, withAlive(func(connID string) bool { return connID != "gone" }))

	f.addWaiting("gone", "d1", 1000)

	resp, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "c2", DeviceID: "d2", Rating: 1000,
	})
	require.NoError(t, err)
	assert.False(t, resp.Matched, "a vanished candidate must not produce a match")
	assert.Equal(t, 1, f.service.Len(), "only the new player should remain queued")
}

func TestLeave_RemovedEntryNeverPairs(t *testing.T) {
	f := makeFixture(t)

	f.enqueue(t, "c1", "d1", 1000)
	f.service.Leave("c1")
	assert.Equal(t, 0, f.service.Len())

	resp, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "c2", DeviceID: "d2", Rating: 1000,
	})
	require.NoError(t, err)
	assert.False(t, resp.Matched)
}

func TestLeave_IsNoOpWhenAbsent(t *testing.T) {
	f := makeFixture(t)
	f.service.Leave("never-queued")
}

func TestWaitTimeout_NotifiesAndRemoves(t *testing.T) {
	f := makeFixture(t)

	f.enqueue(t, "c1", "d1", 1000)

	f.clock.BlockUntil(1)
	f.clock.Advance(waitTimeout)

	require.Eventually(t, func() bool {
		return f.notifier.count("c1") == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.service.Len())
}

func TestWaitTimeout_CancelledByLeave(t *testing.T) {
	f := makeFixture(t)

	f.enqueue(t, "c1", "d1", 1000)
	f.service.Leave("c1")

	f.clock.Advance(waitTimeout * 2)

	// Give a stale timer every chance to misfire.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.notifier.count("c1"))
}

func TestWaitTimeout_CancelledByPairing(t *testing.T) {
	f := makeFixture(t)

	f.enqueue(t, "c1", "d1", 1000)

	resp, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID: "c2", DeviceID: "d2", Rating: 990,
	})
	require.NoError(t, err)
	require.True(t, resp.Matched)

	f.clock.Advance(waitTimeout * 2)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, f.notifier.count("c1"))
	assert.Zero(t, f.notifier.count("c2"))
}

// --- fixtures ---

type fixture struct {
	clock    *clockwork.FakeClock
	notifier *fakeNotifier
	service  *matchmaking.Service
}

type option func(*matchmaking.Config)

func withAlive(alive func(string) bool) option {
	return func(c *matchmaking.Config) { c.Alive = alive }
}

func withSeated(seated func(string) bool) option {
	return func(c *matchmaking.Config) { c.Seated = seated }
}

func makeFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	f := &fixture{
		clock:    clockwork.NewFakeClock(),
		notifier: newFakeNotifier(),
	}

	c := matchmaking.Config{
		Clock:       f.clock,
		WaitTimeout: waitTimeout,
		Notifier:    f.notifier,
	}
	for _, opt := range opts {
		opt(&c)
	}

	f.service = matchmaking.NewService(c)
	return f
}

func (f *fixture) enqueue(t *testing.T, connID, deviceID string, rating int) {
	t.Helper()

	resp, err := f.service.Enqueue(context.Background(), matchmaking.EnqueueRequest{
		ConnID:   connID,
		DeviceID: deviceID,
		Name:     "p-" + deviceID,
		CivID:    "Britons",
		Rating:   rating,
	})
	require.NoError(t, err)
	require.False(t, resp.Matched)
}

func (f *fixture) addWaiting(connID, deviceID string, rating int) {
	f.service.AddWaiting(domain.QueuedPlayer{
		ConnID:   connID,
		DeviceID: deviceID,
		Name:     "p-" + deviceID,
		CivID:    "Britons",
		Rating:   rating,
	})
}

type fakeNotifier struct {
	mu       sync.Mutex
	timeouts map[string]int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{timeouts: make(map[string]int)}
}

func (n *fakeNotifier) NotifyQueueTimeout(connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.timeouts[connID]++
}

func (n *fakeNotifier) count(connID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.timeouts[connID]
}
