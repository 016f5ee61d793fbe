package matchmaking

import "github.com/victornm/quizduel/internal/domain"

// AddWaiting inserts a waiting entry without attempting to pair it, so tests
// can build multi-entry queue states. The wait timeout is armed exactly as
// Enqueue would arm it.
func (s *Service) AddWaiting(p domain.QueuedPlayer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.clock.Now()
	}
	s.entries = append(s.entries, p)
	s.armTimeoutLocked(p.ConnID)
}
