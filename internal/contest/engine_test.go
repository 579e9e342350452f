package contest

import (
	"testing"
	"time"

	"github.com/mcdev12/geocontest/internal/game"
	"github.com/mcdev12/geocontest/internal/protocol"
)

var gameStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Step:          5,
		PassiveDecay:  0,
		AnchorCellDeg: 0.0005,
		BeforeTimeout: time.Minute,
		Timeline:      time.Hour,
		BufferTimeout: 10 * time.Minute,
	}
}

func activeGame() *game.Game {
	start := gameStart
	return &game.Game{
		ID:        7,
		Owner:     "A",
		Players:   []string{"A", "B"},
		SetRole:   []string{"A"},
		BrakeRole: []string{"B"},
		State:     game.StateActive,
		StartedAt: &start,
	}
}

// inPlay is a moment safely past every window: grace and buffer have elapsed,
// the build window is still open.
func inPlay() time.Time {
	return gameStart.Add(15 * time.Minute)
}

func pt(lat, lon float64) protocol.Point {
	return protocol.Point{Latitude: lat, Longitude: lon}
}

func TestSetCreatesTimer(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()

	if err := e.Set(g, "A", pt(1, 1), inPlay()); err != nil {
		t.Fatalf("set: %v", err)
	}

	timers := e.Timers(g.ID)
	if len(timers) != 1 {
		t.Fatalf("expected 1 timer, got %d", len(timers))
	}
	tm := timers[0]
	if tm.Owner != "A" || tm.GameID != g.ID {
		t.Fatalf("unexpected timer identity: %+v", tm)
	}
	if tm.State != StateBuilding || tm.Build != 5 || tm.Wear != 0 {
		t.Fatalf("unexpected fresh timer: state=%q build=%d wear=%d", tm.State, tm.Build, tm.Wear)
	}
}

func TestSetReinforcesAndClampsAtEstablished(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()

	prev := 0
	for i := 0; i < 25; i++ {
		if err := e.Set(g, "A", pt(1, 1), inPlay()); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		tm := e.Timers(g.ID)[0]
		if tm.Build < prev {
			t.Fatalf("build regressed from %d to %d", prev, tm.Build)
		}
		if tm.Build > 100 {
			t.Fatalf("build exceeded clamp: %d", tm.Build)
		}
		prev = tm.Build
	}

	tm := e.Timers(g.ID)[0]
	if tm.Build != 100 {
		t.Fatalf("expected build clamped at 100, got %d", tm.Build)
	}
	if tm.State != StateEstablished {
		t.Fatalf("expected established, got %q", tm.State)
	}

	// Further set actions never regress an established timer.
	if err := e.Set(g, "A", pt(1, 1), inPlay()); err != nil {
		t.Fatalf("set on established: %v", err)
	}
	if tm := e.Timers(g.ID)[0]; tm.State != StateEstablished || tm.Build != 100 {
		t.Fatalf("established regressed: state=%q build=%d", tm.State, tm.Build)
	}
}

func TestSetWindows(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()

	if err := e.Set(g, "A", pt(1, 1), gameStart.Add(30*time.Second)); err != game.ErrBeforeTimeout {
		t.Fatalf("expected ErrBeforeTimeout in grace window, got %v", err)
	}
	if err := e.Set(g, "A", pt(1, 1), gameStart.Add(2*time.Hour)); err != game.ErrGameNotActive {
		t.Fatalf("expected ErrGameNotActive after build window, got %v", err)
	}
	if len(e.Timers(g.ID)) != 0 {
		t.Fatal("rejected actions must not create timers")
	}
}

func TestBrakeBeforeWindowRejected(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()

	e.Set(g, "A", pt(1, 1), gameStart.Add(5*time.Minute))

	// Grace has passed but the brake buffer has not.
	if _, err := e.Brake(g, "B", pt(1, 1), gameStart.Add(5*time.Minute)); err != game.ErrBeforeTimeout {
		t.Fatalf("expected ErrBeforeTimeout before brake window, got %v", err)
	}
	if tm := e.Timers(g.ID)[0]; tm.Wear != 0 {
		t.Fatalf("rejected brake mutated wear: %d", tm.Wear)
	}
}

func TestBrakeWithoutTimerIsNoOp(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()

	tm, err := e.Brake(g, "B", pt(1, 1), inPlay())
	if err != nil {
		t.Fatalf("brake: %v", err)
	}
	if tm != nil {
		t.Fatalf("expected no-op, got timer %+v", tm)
	}
	if len(e.Timers(g.ID)) != 0 {
		t.Fatal("no-op brake created a timer")
	}
}

func TestBrakeContestsAndDestroys(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()
	now := inPlay()

	e.Set(g, "A", pt(1, 1), now)

	tm, err := e.Brake(g, "B", pt(1, 1), now)
	if err != nil {
		t.Fatalf("brake: %v", err)
	}
	if tm == nil || tm.State != StateContested || tm.Wear != 5 {
		t.Fatalf("expected contested timer with wear 5, got %+v", tm)
	}

	for i := 0; i < 30; i++ {
		tm, _ = e.Brake(g, "B", pt(1, 1), now)
		if tm == nil {
			break
		}
	}

	timers := e.Timers(g.ID)
	if len(timers) != 1 || timers[0].State != StateDestroyed || timers[0].Wear != 100 {
		t.Fatalf("expected destroyed timer at wear 100, got %+v", timers)
	}
	if !e.AllWornOut(g.ID) {
		t.Fatal("expected AllWornOut after destruction")
	}

	// The destroyed timer lives until it has appeared in a broadcast; once
	// marked synced the next tick sweeps it.
	e.Tick(now)
	if timers := e.Timers(g.ID); len(timers) != 1 {
		t.Fatalf("destroyed timer swept before any broadcast, got %d", len(timers))
	}
	e.MarkSynced(g.ID)
	e.Tick(now)
	if timers := e.Timers(g.ID); len(timers) != 0 {
		t.Fatalf("destroyed timer should be swept after being shown, got %d", len(timers))
	}
	if !e.AllWornOut(g.ID) {
		t.Fatal("sweep must not reset AllWornOut")
	}
}

func TestIndependentAnchors(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()
	now := inPlay()

	near := pt(55.7500, 37.6200)
	far := pt(55.7600, 37.6300)

	e.Set(g, "A", near, now)
	e.Set(g, "A", far, now)
	if len(e.Timers(g.ID)) != 2 {
		t.Fatalf("expected 2 independent timers, got %d", len(e.Timers(g.ID)))
	}

	// Actions within the same quantization cell reinforce, not duplicate.
	e.Set(g, "A", pt(near.Latitude+0.0001, near.Longitude), now)
	if len(e.Timers(g.ID)) != 2 {
		t.Fatalf("nearby set split the anchor, got %d timers", len(e.Timers(g.ID)))
	}

	// Wearing out one anchor leaves the other untouched.
	for i := 0; i < 20; i++ {
		e.Brake(g, "B", near, now)
	}
	var destroyed, building int
	for _, tm := range e.Timers(g.ID) {
		switch tm.State {
		case StateDestroyed:
			destroyed++
		default:
			building++
		}
	}
	if destroyed != 1 || building != 1 {
		t.Fatalf("expected exactly one destroyed and one live timer, got %d/%d", destroyed, building)
	}
	if e.AllWornOut(g.ID) {
		t.Fatal("AllWornOut must be false while a timer lives")
	}
}

func TestPassiveDecay(t *testing.T) {
	cfg := testConfig()
	cfg.PassiveDecay = 10
	e := NewEngine(cfg)
	g := activeGame()
	now := inPlay()

	e.Set(g, "A", pt(1, 1), now)

	for i := 0; i < 9; i++ {
		e.Tick(now)
	}
	tm := e.Timers(g.ID)[0]
	if tm.Wear != 90 || tm.State != StateContested {
		t.Fatalf("expected wear 90 contested, got wear=%d state=%q", tm.Wear, tm.State)
	}

	e.Tick(now)
	if tm := e.Timers(g.ID)[0]; tm.State != StateDestroyed {
		t.Fatalf("expected decay to destroy the timer, got %q", tm.State)
	}
}

func TestTickReportsAffectedGames(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()
	now := inPlay()

	if affected := e.Tick(now); len(affected) != 0 {
		t.Fatalf("expected no affected games, got %v", affected)
	}

	e.Set(g, "A", pt(1, 1), now)
	if affected := e.Tick(now); len(affected) != 1 || affected[0] != g.ID {
		t.Fatalf("expected [%d], got %v", g.ID, affected)
	}
}

func TestClearGameDropsState(t *testing.T) {
	e := NewEngine(testConfig())
	g := activeGame()

	e.Set(g, "A", pt(1, 1), inPlay())
	e.ClearGame(g.ID)
	if len(e.Timers(g.ID)) != 0 {
		t.Fatal("expected no timers after ClearGame")
	}
	if e.AllWornOut(g.ID) {
		t.Fatal("cleared game must not report worn out")
	}
}
