// Package archive records finished games in Postgres for history and audit.
// Live game state never touches the database; only terminal snapshots land
// here, so the server remains restart-amnesiac by design.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/mcdev12/geocontest/internal/game"
	"github.com/rs/zerolog/log"
)

const schema = `
CREATE TABLE IF NOT EXISTS finished_games (
	id          BIGINT PRIMARY KEY,
	owner_token TEXT NOT NULL,
	players     JSONB NOT NULL,
	set_role    JSONB NOT NULL,
	brake_role  JSONB NOT NULL,
	latitude    DOUBLE PRECISION NOT NULL,
	longitude   DOUBLE PRECISION NOT NULL,
	radius_m    DOUBLE PRECISION NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ NOT NULL
)`

// Store writes finished-game snapshots. A nil Store is a no-op, which is how
// deployments without an archive run.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres with the given DSN and ensures the schema. An
// empty DSN returns (nil, nil): archiving is off.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping archive database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure archive schema: %w", err)
	}

	log.Info().Msg("finished-game archive connected")
	return &Store{db: db}, nil
}

// SaveGame inserts one finished game. Safe on a nil receiver. Conflicting
// ids are overwritten; ids only collide when the same process finishes the
// same game twice, which Finish's idempotence already prevents.
func (s *Store) SaveGame(ctx context.Context, g *game.Game, finishedAt time.Time) error {
	if s == nil {
		return nil
	}

	players, err := json.Marshal(g.Players)
	if err != nil {
		return fmt.Errorf("marshal players: %w", err)
	}
	setRole, err := json.Marshal(g.SetRole)
	if err != nil {
		return fmt.Errorf("marshal set role: %w", err)
	}
	brakeRole, err := json.Marshal(g.BrakeRole)
	if err != nil {
		return fmt.Errorf("marshal brake role: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO finished_games
			(id, owner_token, players, set_role, brake_role,
			 latitude, longitude, radius_m, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at`,
		g.ID, g.Owner, players, setRole, brakeRole,
		g.Point.Latitude, g.Point.Longitude, g.Radius,
		g.CreatedAt, g.StartedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finished game: %w", err)
	}

	log.Debug().Int64("game_id", g.ID).Msg("finished game archived")
	return nil
}

// Close releases the connection pool. Safe on a nil receiver.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.db.Close()
}
