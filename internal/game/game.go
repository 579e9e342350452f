package game

import (
	"time"

	"github.com/mcdev12/geocontest/internal/protocol"
)

// State is a game's lifecycle state. The machine is strictly forward:
// forming -> active -> finished, with finished terminal.
type State string

const (
	StateForming  State = "forming"
	StateActive   State = "active"
	StateFinished State = "finished"
)

// Role is a player's side in an active game.
type Role string

const (
	RoleSet   Role = "set"
	RoleBrake Role = "brake"
	RoleNone  Role = ""
)

// Game is a single geo-anchored contest instance. Ids are monotonic from
// zero for the lifetime of the store. Role slices are empty until the roster
// fills; once active they partition Players exactly.
type Game struct {
	ID        int64          `json:"id"`
	Owner     string         `json:"owner"`
	Players   []string       `json:"players"`
	SetRole   []string       `json:"set"`
	BrakeRole []string       `json:"brake"`
	State     State          `json:"state"`
	CreatedAt time.Time      `json:"created_at"`
	StartedAt *time.Time     `json:"started_at,omitempty"`
	Point     protocol.Point `json:"point"`
	Radius    float64        `json:"radius"`
}

// Role reports which side the token plays on, or RoleNone.
func (g *Game) Role(token string) Role {
	for _, t := range g.SetRole {
		if t == token {
			return RoleSet
		}
	}
	for _, t := range g.BrakeRole {
		if t == token {
			return RoleBrake
		}
	}
	return RoleNone
}

// HasPlayer reports whether the token is on the roster.
func (g *Game) HasPlayer(token string) bool {
	for _, t := range g.Players {
		if t == token {
			return true
		}
	}
	return false
}

// Elapsed is the time since play began, or zero before the game starts.
func (g *Game) Elapsed(now time.Time) time.Duration {
	if g.StartedAt == nil {
		return 0
	}
	return now.Sub(*g.StartedAt)
}
