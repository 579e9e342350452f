// Package feed publishes game lifecycle events to NATS for external
// consumers (dashboards, audit pipelines). The feed is an optional sink: a
// nil Publisher is a no-op, and publish failures never reach the game loop.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Event types published on <prefix>.<type> subjects.
const (
	EventGameCreated    = "GameCreated"
	EventGameStarted    = "GameStarted"
	EventGameFinished   = "GameFinished"
	EventTimerDestroyed = "TimerDestroyed"
)

// Config holds the NATS connection settings. An empty URL disables the feed.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the disabled-by-default feed configuration.
func DefaultConfig() Config {
	return Config{
		SubjectPrefix: "contest.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// envelope is the wire format on the bus.
type envelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	GameID    int64     `json:"gameId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Publisher fans lifecycle events onto NATS subjects.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS and returns a publisher. Call on a Config with an empty
// URL returns (nil, nil): the feed is simply off.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().Str("url", cfg.URL).Str("prefix", cfg.SubjectPrefix).Msg("event feed connected")
	return &Publisher{nc: nc, prefix: cfg.SubjectPrefix}, nil
}

// Publish emits one event. Safe on a nil receiver; errors are logged and
// swallowed so the caller's control flow is never disturbed.
func (p *Publisher) Publish(eventType string, gameID int64, payload any) {
	if p == nil || p.nc == nil {
		return
	}

	data, err := json.Marshal(envelope{
		EventID:   uuid.New().String(),
		EventType: eventType,
		GameID:    gameID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal feed event")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.prefix, eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish feed event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Int64("game_id", gameID).
		Msg("feed event published")
}

// Close drains the connection. Safe on a nil receiver.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}
