package core

import (
	"encoding/json"
	"errors"

	"github.com/mcdev12/geocontest/internal/contest"
	"github.com/mcdev12/geocontest/internal/feed"
	"github.com/mcdev12/geocontest/internal/game"
	"github.com/mcdev12/geocontest/internal/protocol"
	"github.com/rs/zerolog/log"
)

// dispatch routes one decoded frame. Failures are isolated per message: a
// malformed payload or unknown type is logged and dropped with the connection
// left open, a domain error becomes a private error reply, and a panic in a
// handler is recovered into a generic private error.
func (c *Core) dispatch(token string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("token", token).
				Interface("panic", r).
				Msg("handler panicked")
			c.sendError(token, "internal error")
		}
	}()

	env, err := protocol.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("token", token).Msg("malformed frame dropped")
		return
	}

	switch env.Type {
	case protocol.TypeChat:
		err = c.handleChat(token, env.Message)
	case protocol.TypeCreate:
		err = c.handleCreate(token, env.Message)
	case protocol.TypeJoin:
		err = c.handleJoin(token, env.Message)
	case protocol.TypeAction:
		err = c.handleAction(token, env.Message)
	case protocol.TypeGeo:
		err = c.handleGeo(token, env.Message)
	default:
		log.Warn().
			Str("token", token).
			Str("type", string(env.Type)).
			Msg("unexpected message type ignored")
		return
	}

	if err != nil {
		var perr *payloadError
		if errors.As(err, &perr) {
			log.Warn().Err(perr.err).Str("token", token).Str("type", string(env.Type)).Msg("bad payload dropped")
			return
		}
		c.sendError(token, err.Error())
	}
}

// payloadError marks a malformed payload: a protocol error, not a domain
// error, so it is logged without a reply.
type payloadError struct{ err error }

func (e *payloadError) Error() string { return e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

func (c *Core) handleChat(token string, raw json.RawMessage) error {
	var msg protocol.ChatPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &payloadError{err}
	}
	c.hub.SendToAllExcept(token, protocol.MustEncode(protocol.TypeChat, protocol.ChatBroadcast{
		Token:   token,
		Message: msg.Message,
		Dt:      c.clock.Now().UnixMilli(),
	}))
	return nil
}

func (c *Core) handleCreate(token string, raw json.RawMessage) error {
	var msg protocol.CreatePayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &payloadError{err}
	}

	g, err := c.store.Create(token, msg.Point, msg.Radius)
	if err != nil {
		return err
	}

	c.hub.SendToAll(protocol.MustEncode(protocol.TypeAddGame, g))
	c.hub.SendToOne(token, protocol.MustEncode(protocol.TypeSetMyGame, g))
	c.broadcastGames()

	c.feed.Publish(feed.EventGameCreated, g.ID, g)
	return nil
}

func (c *Core) handleJoin(token string, raw json.RawMessage) error {
	var gameID int64
	if err := json.Unmarshal(raw, &gameID); err != nil {
		return &payloadError{err}
	}

	g, started, err := c.store.Join(token, gameID)
	if err != nil {
		return err
	}

	c.hub.SendToOne(token, protocol.MustEncode(protocol.TypeSetMyGame, g))

	if started {
		// The role partition already happened inside Join; every participant
		// gets the update privately, non-participants only see the refresh.
		env := protocol.MustEncode(protocol.TypeSetMyGame, g)
		for _, p := range g.Players {
			c.hub.SendToOne(p, env)
		}
		c.feed.Publish(feed.EventGameStarted, g.ID, g)
	}

	c.broadcastGames()
	return nil
}

func (c *Core) handleAction(token string, raw json.RawMessage) error {
	var msg protocol.ActionPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &payloadError{err}
	}

	g := c.store.MyGame(token)
	if g == nil {
		return game.ErrNotFound
	}
	if g.State != game.StateActive {
		return game.ErrGameNotActive
	}

	now := c.clock.Now()
	switch g.Role(token) {
	case game.RoleSet:
		if err := c.engine.Set(g, token, msg.Point, now); err != nil {
			return err
		}
	case game.RoleBrake:
		t, err := c.engine.Brake(g, token, msg.Point, now)
		if err != nil {
			return err
		}
		if t == nil {
			// Nothing at that anchor; no state changed, nothing to sync.
			return nil
		}
		if t.State == contest.StateDestroyed {
			c.feed.Publish(feed.EventTimerDestroyed, g.ID, t)
		}
	default:
		return game.ErrNoRole
	}

	c.syncTimers(g)
	return nil
}

func (c *Core) handleGeo(token string, raw json.RawMessage) error {
	var msg protocol.GeoPayload
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &payloadError{err}
	}
	c.hub.SendToAllExcept(token, protocol.MustEncode(protocol.TypeTeam, protocol.TeamBroadcast{
		Token: token,
		Point: msg.Point,
		Dt:    c.clock.Now().UnixMilli(),
	}))
	return nil
}
