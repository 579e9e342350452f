package main

import (
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/geocontest/internal/archive"
	"github.com/mcdev12/geocontest/internal/contest"
	"github.com/mcdev12/geocontest/internal/core"
	"github.com/mcdev12/geocontest/internal/feed"
	"github.com/mcdev12/geocontest/internal/game"
	"github.com/mcdev12/geocontest/internal/gateway"
)

// Services is the explicit server context: every registry is constructed once
// here and passed by reference, no package-level mutable state anywhere.
type Services struct {
	Hub     *gateway.ConnectionManager
	Handler *gateway.WebSocketHandler
	Core    *core.Core
	Feed    *feed.Publisher
	Archive *archive.Store
}

func setupServices(config Config) (*Services, error) {
	clock := clockwork.NewRealClock()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	store := game.NewStore(game.Config{
		RequiredPlayers: config.Game.RequiredPlayers,
		DefaultRadius:   config.Game.ZoneRadiusM,
	}, clock, rng)

	before := time.Duration(config.Game.BeforeTimeoutSec) * time.Second
	timeline := time.Duration(config.Game.TimelineSec) * time.Second
	buffer := time.Duration(config.Game.BufferTimeoutSec) * time.Second

	engine := contest.NewEngine(contest.Config{
		Step:          config.Contest.ProgressStep,
		PassiveDecay:  config.Contest.PassiveDecay,
		AnchorCellDeg: config.Contest.AnchorCellDeg,
		BeforeTimeout: before,
		Timeline:      timeline,
		BufferTimeout: buffer,
	})

	feedCfg := feed.DefaultConfig()
	feedCfg.URL = config.Feed.URL
	if config.Feed.SubjectPrefix != "" {
		feedCfg.SubjectPrefix = config.Feed.SubjectPrefix
	}
	publisher, err := feed.Connect(feedCfg)
	if err != nil {
		return nil, err
	}

	var archiveStore *archive.Store
	if config.Archive.Enabled {
		archiveStore, err = archive.Open(databaseConfigFromEnv().DSN())
		if err != nil {
			publisher.Close()
			return nil, err
		}
	}

	hub := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	c := core.New(core.Config{
		TickInterval:  time.Duration(config.Contest.TickMs) * time.Millisecond,
		BeforeTimeout: before,
		Timeline:      timeline,
		BufferTimeout: buffer,
	}, clock, store, engine, hub, publisher, archiveStore)
	hub.SetCore(c)

	return &Services{
		Hub:     hub,
		Handler: gateway.NewWebSocketHandler(hub),
		Core:    c,
		Feed:    publisher,
		Archive: archiveStore,
	}, nil
}
