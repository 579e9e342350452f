// Package core runs the server's single logical thread of control: every
// inbound frame, connect/disconnect notice, and tick is serialized onto one
// goroutine, so the game store and the contest engine are mutated without
// locks and every multi-step transition is atomic as observed by any other
// message.
package core

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/geocontest/internal/archive"
	"github.com/mcdev12/geocontest/internal/contest"
	"github.com/mcdev12/geocontest/internal/feed"
	"github.com/mcdev12/geocontest/internal/game"
	"github.com/mcdev12/geocontest/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Broadcaster is what the core needs from the connection layer. The gateway
// hub implements it; tests substitute a recorder.
type Broadcaster interface {
	SendToAll(env protocol.Envelope)
	SendToAllExcept(token string, env protocol.Envelope)
	SendToOne(token string, env protocol.Envelope)
}

// Config holds the core's timing knobs. The window durations are shared with
// the contest engine; the core uses them for the lifecycle sweep.
type Config struct {
	TickInterval  time.Duration
	BeforeTimeout time.Duration
	Timeline      time.Duration
	BufferTimeout time.Duration
}

// Budget is the total active lifetime of a game; the tick finishes any
// active game past it.
func (c Config) Budget() time.Duration {
	return c.BeforeTimeout + c.Timeline + c.BufferTimeout
}

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdFrame
)

type command struct {
	kind  commandKind
	token string
	data  []byte
}

// Core is the event-driven reactor owning all mutable game state.
type Core struct {
	cfg     Config
	clock   clockwork.Clock
	store   *game.Store
	engine  *contest.Engine
	hub     Broadcaster
	feed    *feed.Publisher
	archive *archive.Store

	cmdCh chan command
}

// New wires the reactor. feed and archive may be nil; both are optional
// sinks and their methods are nil-safe.
func New(cfg Config, clock clockwork.Clock, store *game.Store, engine *contest.Engine, hub Broadcaster, fd *feed.Publisher, ar *archive.Store) *Core {
	return &Core{
		cfg:     cfg,
		clock:   clock,
		store:   store,
		engine:  engine,
		hub:     hub,
		feed:    fd,
		archive: ar,
		cmdCh:   make(chan command, 256),
	}
}

// Connected queues the post-handshake snapshot for a fresh session.
func (c *Core) Connected(token string) {
	c.cmdCh <- command{kind: cmdConnect, token: token}
}

// Disconnected queues a session teardown notice.
func (c *Core) Disconnected(token string) {
	c.cmdCh <- command{kind: cmdDisconnect, token: token}
}

// HandleFrame queues a raw inbound frame. Frames from one connection arrive
// here in read order and are processed in that order.
func (c *Core) HandleFrame(token string, data []byte) {
	c.cmdCh <- command{kind: cmdFrame, token: token, data: data}
}

// Run consumes commands and ticks until the context is cancelled.
func (c *Core) Run(ctx context.Context) error {
	ticker := c.clock.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("tick", c.cfg.TickInterval).Msg("core loop started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("core loop shutting down")
			return nil
		case cmd := <-c.cmdCh:
			switch cmd.kind {
			case cmdConnect:
				c.handleConnect(cmd.token)
			case cmdDisconnect:
				// The registry already freed the token; rosters keep the
				// absent player.
				log.Debug().Str("token", cmd.token).Msg("session gone")
			case cmdFrame:
				c.dispatch(cmd.token, cmd.data)
			}
		case <-ticker.Chan():
			c.tick()
		}
	}
}

// handleConnect sends the caller its current game (if any) and the full game
// list, in that order.
func (c *Core) handleConnect(token string) {
	if g := c.store.MyGame(token); g != nil {
		c.hub.SendToOne(token, protocol.MustEncode(protocol.TypeSetMyGame, g))
	}
	c.hub.SendToOne(token, protocol.MustEncode(protocol.TypeSetGames, c.store.Games()))
}

// tick drives passive timer rules and the lifecycle sweep.
func (c *Core) tick() {
	now := c.clock.Now()

	for _, gameID := range c.engine.Tick(now) {
		if g := c.store.Get(gameID); g != nil {
			c.syncTimers(g)
		}
	}

	buildWindow := c.cfg.BeforeTimeout + c.cfg.Timeline
	for _, g := range c.store.Active() {
		elapsed := g.Elapsed(now)
		switch {
		case elapsed >= c.cfg.Budget():
			c.finish(g)
		case elapsed >= buildWindow && c.engine.AllWornOut(g.ID):
			c.finish(g)
		}
	}
}

// finish moves a game to its terminal state and fans the change out. The
// archive write happens off the loop; the reactor never blocks on it.
func (c *Core) finish(g *game.Game) {
	c.store.Finish(g)
	c.engine.ClearGame(g.ID)

	env := protocol.MustEncode(protocol.TypeSetMyGame, g)
	for _, p := range g.Players {
		c.hub.SendToOne(p, env)
	}
	c.broadcastGames()

	c.feed.Publish(feed.EventGameFinished, g.ID, g)

	snapshot := *g
	finishedAt := c.clock.Now()
	go func() {
		if err := c.archive.SaveGame(context.Background(), &snapshot, finishedAt); err != nil {
			log.Error().Err(err).Int64("game_id", snapshot.ID).Msg("archive write failed")
		}
	}()
}

// syncTimers sends the game's current timer list to its participants. The
// engine learns the list was shown, so a destroyed timer appears in exactly
// one sync and is gone from the first tick broadcast after it.
func (c *Core) syncTimers(g *game.Game) {
	timers := c.engine.Timers(g.ID)
	if timers == nil {
		timers = []*contest.Timer{}
	}
	env := protocol.MustEncode(protocol.TypeSyncTimer, timers)
	for _, p := range g.Players {
		c.hub.SendToOne(p, env)
	}
	c.engine.MarkSynced(g.ID)
}

// broadcastGames pushes a full set_games refresh to everyone so clients never
// hold a stale game list.
func (c *Core) broadcastGames() {
	c.hub.SendToAll(protocol.MustEncode(protocol.TypeSetGames, c.store.Games()))
}

func (c *Core) sendError(token string, msg string) {
	c.hub.SendToOne(token, protocol.MustEncode(protocol.TypeError, msg))
}
