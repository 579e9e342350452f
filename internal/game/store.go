package game

import (
	"math/rand"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/geocontest/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Config holds the roster and zone settings for new games.
type Config struct {
	// RequiredPlayers is the roster size that starts play. Must be even and
	// at least two; half the roster lands on each role.
	RequiredPlayers int

	// DefaultRadius is the zone radius in meters when create omits one.
	DefaultRadius float64
}

// Store owns every game for the lifetime of the process. Finished games stay
// in the store for history. All methods are confined to the core loop, so the
// store carries no lock.
type Store struct {
	cfg   Config
	clock clockwork.Clock
	rng   *rand.Rand

	games  []*Game
	nextID int64
}

// NewStore creates a game store. The rand source drives the role shuffle and
// is injectable so tests can pin the partition.
func NewStore(cfg Config, clock clockwork.Clock, rng *rand.Rand) *Store {
	return &Store{
		cfg:   cfg,
		clock: clock,
		rng:   rng,
	}
}

// Create opens a new forming game owned by the token. The owner is the first
// roster entry. Fails with ErrAlreadyInGame while the owner has any
// non-finished game.
func (s *Store) Create(owner string, point protocol.Point, radius float64) (*Game, error) {
	if s.MyGame(owner) != nil {
		return nil, ErrAlreadyInGame
	}
	if radius <= 0 {
		radius = s.cfg.DefaultRadius
	}

	g := &Game{
		ID:        s.nextID,
		Owner:     owner,
		Players:   []string{owner},
		SetRole:   []string{},
		BrakeRole: []string{},
		State:     StateForming,
		CreatedAt: s.clock.Now(),
		Point:     point,
		Radius:    radius,
	}
	s.nextID++
	s.games = append(s.games, g)

	log.Info().
		Int64("game_id", g.ID).
		Str("owner", owner).
		Float64("radius_m", radius).
		Msg("game created")
	return g, nil
}

// Join adds the token to a forming game. The returned started flag is true
// when this join filled the roster and the game transitioned to active play:
// the roster is shuffled, the first half becomes the set role, the second
// half the brake role, and StartedAt is stamped. The whole transition happens
// before Join returns so no other message can observe a half-partitioned
// game.
func (s *Store) Join(token string, id int64) (g *Game, started bool, err error) {
	if s.MyGame(token) != nil {
		return nil, false, ErrAlreadyInGame
	}
	g = s.Get(id)
	if g == nil {
		return nil, false, ErrNotFound
	}
	if g.State != StateForming {
		return nil, false, ErrNotJoinable
	}

	g.Players = append(g.Players, token)
	if len(g.Players) < s.cfg.RequiredPlayers {
		return g, false, nil
	}

	shuffled := make([]string, len(g.Players))
	copy(shuffled, g.Players)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	half := len(shuffled) / 2
	g.SetRole = shuffled[:half]
	g.BrakeRole = shuffled[half:]

	now := s.clock.Now()
	g.StartedAt = &now
	g.State = StateActive

	log.Info().
		Int64("game_id", g.ID).
		Strs("set", g.SetRole).
		Strs("brake", g.BrakeRole).
		Msg("roster full, game started")
	return g, true, nil
}

// Get looks a game up by id.
func (s *Store) Get(id int64) *Game {
	for _, g := range s.games {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// MyGame returns the first non-finished game, in creation order, whose roster
// contains the token.
func (s *Store) MyGame(token string) *Game {
	for _, g := range s.games {
		if g.State != StateFinished && g.HasPlayer(token) {
			return g
		}
	}
	return nil
}

// Finish moves a game to its terminal state. Idempotent.
func (s *Store) Finish(g *Game) {
	if g.State == StateFinished {
		return
	}
	g.State = StateFinished
	log.Info().Int64("game_id", g.ID).Msg("game finished")
}

// Games returns the full game list for set_games refreshes. The slice is a
// snapshot; the games themselves are shared.
func (s *Store) Games() []*Game {
	out := make([]*Game, len(s.games))
	copy(out, s.games)
	return out
}

// Active returns the games currently in play, for the tick's lifecycle sweep.
func (s *Store) Active() []*Game {
	var out []*Game
	for _, g := range s.games {
		if g.State == StateActive {
			out = append(out, g)
		}
	}
	return out
}
