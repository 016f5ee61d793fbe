package player

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizduel/internal/domain"
	"github.com/victornm/quizduel/internal/errors"
	"github.com/victornm/quizduel/internal/rating"
)

type Config struct {
	DB *pgxpool.Pool
}

// Store is the durable record of players, keyed by device id.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(c Config) *Store {
	return &Store{db: c.DB}
}

// Get returns the player for a device id.
func (s *Store) Get(ctx context.Context, deviceID string) (*domain.Player, error) {
	const stmt = `SELECT device_id, name, civ_id, rating FROM players WHERE device_id = $1;`

	p := domain.Player{}
	err := s.db.QueryRow(ctx, stmt, deviceID).Scan(&p.DeviceID, &p.Name, &p.CivID, &p.Rating)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New(errors.CodeNotFound,
			errors.WithMessagef("player not found: device=%s", deviceID))
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// GetRating returns the persisted rating for a device id, or the initial
// rating for a player never seen before.
func (s *Store) GetRating(ctx context.Context, deviceID string) (int, error) {
	const stmt = `SELECT rating FROM players WHERE device_id = $1;`

	var r int
	err := s.db.QueryRow(ctx, stmt, deviceID).Scan(&r)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return rating.Initial, nil
	}
	if err != nil {
		return 0, err
	}

	return r, nil
}

// UpsertProfile creates the player if absent, otherwise refreshes the
// display name and civ. The rating is never touched here.
func (s *Store) UpsertProfile(ctx context.Context, deviceID, name, civID string) error {
	const stmt = `
INSERT INTO players (device_id, name, civ_id, rating)
VALUES ($1, $2, $3, $4)
ON CONFLICT (device_id) DO UPDATE SET name = EXCLUDED.name, civ_id = EXCLUDED.civ_id;`

	_, err := s.db.Exec(ctx, stmt, deviceID, name, civID, rating.Initial)
	return err
}

// SetRating overwrites the player's rating. Only the match finish sequence
// calls this.
func (s *Store) SetRating(ctx context.Context, deviceID string, r int) error {
	const stmt = `UPDATE players SET rating = $2 WHERE device_id = $1;`

	_, err := s.db.Exec(ctx, stmt, deviceID, r)
	return err
}

// GetProfiles fetches players for a set of device ids, keyed by device id.
// Missing ids are simply absent from the result.
func (s *Store) GetProfiles(ctx context.Context, deviceIDs []string) (map[string]domain.Player, error) {
	const stmt = `SELECT device_id, name, civ_id, rating FROM players WHERE device_id = ANY($1);`

	rows, err := s.db.Query(ctx, stmt, deviceIDs)
	if err != nil {
		return nil, err
	}

	players, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Player, error) {
		var p domain.Player
		if err := r.Scan(&p.DeviceID, &p.Name, &p.CivID, &p.Rating); err != nil {
			return domain.Player{}, err
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	m := make(map[string]domain.Player, len(players))
	for _, p := range players {
		m[p.DeviceID] = p
	}

	return m, nil
}
