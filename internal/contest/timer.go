package contest

import (
	"time"

	"github.com/mcdev12/geocontest/internal/protocol"
)

// TimerState is derived from the progress fields after every mutation.
// Precedence: destroyed > contested > established > building. Established is
// latched once build reaches the clamp and never regresses from further set
// actions; wear activity reports the timer as contested until it either
// drains (passive decay) or reaches the clamp and destroys the timer.
type TimerState string

const (
	StateBuilding    TimerState = "building"
	StateEstablished TimerState = "established"
	StateContested   TimerState = "contested"
	StateDestroyed   TimerState = "destroyed"
)

// Timer tracks one contested point: construction progress from the set role
// against destruction progress from the brake role. The wire tags keep the
// original client field names (set/brake) for the progress counters.
type Timer struct {
	Owner     string         `json:"owner"`
	GameID    int64          `json:"game_id"`
	State     TimerState     `json:"state"`
	Build     int            `json:"set"`
	Wear      int            `json:"brake"`
	Point     protocol.Point `json:"point"`
	CreatedAt time.Time      `json:"created_at"`

	established bool
	// synced marks a destroyed timer that has already appeared in a timer
	// broadcast; the next tick removes it.
	synced bool
}

func (t *Timer) recompute() {
	if t.Build >= clampMax {
		t.established = true
	}
	switch {
	case t.Wear >= clampMax:
		t.State = StateDestroyed
	case t.Wear > 0:
		t.State = StateContested
	case t.established:
		t.State = StateEstablished
	default:
		t.State = StateBuilding
	}
}
