package contest

import (
	"math"
	"sort"
	"time"

	"github.com/mcdev12/geocontest/internal/game"
	"github.com/mcdev12/geocontest/internal/protocol"
	"github.com/rs/zerolog/log"
)

// clampMax is the terminal value for both progress counters.
const clampMax = 100

// Config holds the contest tuning knobs. The window durations come from the
// original game design: actions are rejected during the pre-play grace
// window, the set role can only build during the timeline window, and the
// brake role only acts once the buffer window has elapsed.
type Config struct {
	// Step is the progress added per qualifying action.
	Step int

	// PassiveDecay is added to every live timer's wear on each tick. Zero
	// disables passive decay.
	PassiveDecay int

	// AnchorCellDeg is the quantization cell size, in degrees, that keys
	// timers to a spatial anchor. Actions landing in the same cell reinforce
	// the same timer; distinct cells are independent contests.
	AnchorCellDeg float64

	// BeforeTimeout is the grace window after play starts during which all
	// actions are rejected.
	BeforeTimeout time.Duration

	// Timeline is the build window; set actions are rejected once
	// BeforeTimeout+Timeline has elapsed.
	Timeline time.Duration

	// BufferTimeout delays the brake role: brake actions are rejected until
	// BeforeTimeout+BufferTimeout has elapsed.
	BufferTimeout time.Duration
}

// anchor identifies the quantized geo cell a timer is keyed by.
type anchor struct {
	latCell int64
	lonCell int64
}

type gameTimers struct {
	timers  map[anchor]*Timer
	created int
}

// Engine owns every contest timer, keyed per game by spatial anchor so that
// concurrent contests at different points are tracked independently. Like the
// game store it is confined to the core loop and carries no lock.
type Engine struct {
	cfg   Config
	games map[int64]*gameTimers
}

// NewEngine creates a contest timer engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:   cfg,
		games: make(map[int64]*gameTimers),
	}
}

func (e *Engine) anchorFor(p protocol.Point) anchor {
	return anchor{
		latCell: int64(math.Floor(p.Latitude / e.cfg.AnchorCellDeg)),
		lonCell: int64(math.Floor(p.Longitude / e.cfg.AnchorCellDeg)),
	}
}

// Set applies a set-role action: create a timer at the action's anchor, or
// reinforce the one already there. Rejected during the grace window and after
// the build window closes.
func (e *Engine) Set(g *game.Game, token string, point protocol.Point, now time.Time) error {
	elapsed := g.Elapsed(now)
	if elapsed < e.cfg.BeforeTimeout {
		return game.ErrBeforeTimeout
	}
	if elapsed >= e.cfg.BeforeTimeout+e.cfg.Timeline {
		return game.ErrGameNotActive
	}

	gt := e.games[g.ID]
	if gt == nil {
		gt = &gameTimers{timers: make(map[anchor]*Timer)}
		e.games[g.ID] = gt
	}

	key := e.anchorFor(point)
	t := gt.timers[key]
	if t == nil {
		t = &Timer{
			Owner:     token,
			GameID:    g.ID,
			State:     StateBuilding,
			Build:     e.cfg.Step,
			Point:     point,
			CreatedAt: now,
		}
		gt.timers[key] = t
		gt.created++
		t.recompute()
		log.Debug().
			Int64("game_id", g.ID).
			Str("owner", token).
			Msg("contest timer created")
		return nil
	}
	if t.State == StateDestroyed {
		// Worn out but not yet swept; nothing left to reinforce.
		return nil
	}
	t.Build = clamp(t.Build + e.cfg.Step)
	t.recompute()
	return nil
}

// Brake applies a brake-role action. Rejected until the brake window opens.
// With no live timer at the action's anchor there is nothing to contest and
// the call returns nil without touching any state; otherwise the contested
// timer is returned after the wear increment.
func (e *Engine) Brake(g *game.Game, token string, point protocol.Point, now time.Time) (*Timer, error) {
	if g.Elapsed(now) < e.cfg.BeforeTimeout+e.cfg.BufferTimeout {
		return nil, game.ErrBeforeTimeout
	}

	gt := e.games[g.ID]
	if gt == nil {
		return nil, nil
	}
	t := gt.timers[e.anchorFor(point)]
	if t == nil || t.State == StateDestroyed {
		return nil, nil
	}

	t.Wear = clamp(t.Wear + e.cfg.Step)
	t.recompute()
	if t.State == StateDestroyed {
		log.Debug().
			Int64("game_id", g.ID).
			Str("breaker", token).
			Msg("contest timer destroyed")
	}
	return t, nil
}

// Tick drives the passive rules: sweep destroyed timers that were already in
// a broadcast, then apply passive decay and recompute terminal transitions.
// It returns the ids of games whose timer lists should be rebroadcast, which
// is every game that held a timer at the start of this tick.
func (e *Engine) Tick(now time.Time) []int64 {
	var affected []int64
	for id, gt := range e.games {
		if len(gt.timers) == 0 {
			continue
		}
		affected = append(affected, id)

		for key, t := range gt.timers {
			if t.synced {
				delete(gt.timers, key)
				continue
			}
			if t.State == StateDestroyed {
				// Destroyed but never shown: kept for one more broadcast.
				continue
			}
			if e.cfg.PassiveDecay > 0 {
				t.Wear = clamp(t.Wear + e.cfg.PassiveDecay)
				t.recompute()
			}
		}
	}
	sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })
	return affected
}

// MarkSynced records that the game's current timer list has just been sent
// out. A destroyed timer that has been shown once is swept on the next tick;
// one destroyed between broadcasts survives until it has been shown.
func (e *Engine) MarkSynced(gameID int64) {
	gt := e.games[gameID]
	if gt == nil {
		return
	}
	for _, t := range gt.timers {
		if t.State == StateDestroyed {
			t.synced = true
		}
	}
}

// Timers returns the game's timer list, including destroyed timers that have
// not been swept yet, ordered by creation time for stable broadcasts.
func (e *Engine) Timers(gameID int64) []*Timer {
	gt := e.games[gameID]
	if gt == nil {
		return nil
	}
	out := make([]*Timer, 0, len(gt.timers))
	for _, t := range gt.timers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// AllWornOut reports whether the game had at least one timer and every one of
// them has been destroyed. The core uses this, once the build window has
// closed, to finish the game.
func (e *Engine) AllWornOut(gameID int64) bool {
	gt := e.games[gameID]
	if gt == nil || gt.created == 0 {
		return false
	}
	for _, t := range gt.timers {
		if t.State != StateDestroyed {
			return false
		}
	}
	return true
}

// ClearGame drops all timer state for a finished game.
func (e *Engine) ClearGame(gameID int64) {
	delete(e.games, gameID)
}

func clamp(v int) int {
	if v > clampMax {
		return clampMax
	}
	return v
}
