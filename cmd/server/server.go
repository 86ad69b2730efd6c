package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	memebattle "github.com/arailymkabykenova/MemeBattle"
	"github.com/arailymkabykenova/MemeBattle/internal/auth"
	"github.com/arailymkabykenova/MemeBattle/internal/bus"
	"github.com/arailymkabykenova/MemeBattle/internal/config"
	"github.com/arailymkabykenova/MemeBattle/internal/engine"
	"github.com/arailymkabykenova/MemeBattle/internal/game"
	"github.com/arailymkabykenova/MemeBattle/internal/handlers"
	"github.com/arailymkabykenova/MemeBattle/internal/situations"
	"github.com/arailymkabykenova/MemeBattle/internal/store"
	"github.com/arailymkabykenova/MemeBattle/internal/ws"
)

// application bundles the wired service for main and holds the pieces
// with an explicit lifecycle.
type application struct {
	Router   http.Handler
	Registry *ws.Registry

	cfg     *config.ServerConfig
	log     *zap.Logger
	db      *store.Postgres
	rdb     *redis.Client
	coord   *engine.Coordinator
	workers []*situations.Worker
}

func newLogger(cfg config.ServerSettings) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	zc.Level = level
	return zc.Build()
}

// buildApplication connects Postgres and Redis and assembles the
// engine, the socket registry and the gateway on top of them.
func buildApplication(ctx context.Context, cfg *config.ServerConfig, log *zap.Logger) (*application, error) {
	db, err := store.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	b := bus.NewRedis(rdb, log)

	cat, err := game.NewManifestCatalogue(memebattle.CardManifestJSON)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load card manifest: %w", err)
	}

	locks := engine.NewLocks()
	presence := engine.NewPresence(db, b, log, cfg.Presence)
	cards := engine.NewCardService(db, cat)

	// Remote generation is optional; without an endpoint the rounds use
	// the built-in situation texts.
	var sink engine.SituationSink
	var workers []*situations.Worker
	if cfg.AI.Endpoint != "" {
		sink = situations.NewQueue(rdb, cfg.AI.QueueName, cfg.AI.Language)
		gen := situations.NewHTTPGenerator(cfg.AI.Endpoint, cfg.AI.RequestTimeout)
		for i := 0; i < cfg.AI.Workers; i++ {
			workers = append(workers, situations.NewWorker(rdb, cfg.AI.QueueName, db, b, gen, log, cfg.AI.Language))
		}
	}

	rounds := engine.NewRoundService(ctx, db, b, locks, presence, cards, sink, log, cfg.Game)
	coord := engine.NewCoordinator(ctx, db, b, locks, presence, cards, rounds, log, cfg.Game)
	rooms := engine.NewRoomService(db, b, locks, presence, log, cfg.Game)
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	registry := ws.NewRegistry(ctx, db, b, func(dctx context.Context, roomID, userID int64) {
		if _, err := presence.MarkDisconnected(dctx, roomID, userID); err != nil {
			log.Warn("mark disconnected",
				zap.Int64("room_id", roomID),
				zap.Int64("user_id", userID),
				zap.Error(err))
		}
	}, log)

	h := handlers.New(handlers.Deps{
		BaseCtx:  ctx,
		Store:    db,
		Rooms:    rooms,
		Rounds:   rounds,
		Coord:    coord,
		Presence: presence,
		Registry: registry,
		Verifier: verifier,
		Config:   cfg,
		Log:      log,
		Ready: []handlers.ReadyCheck{
			{Name: "postgres", Check: db.Ping},
			{Name: "redis", Check: func(c context.Context) error { return rdb.Ping(c).Err() }},
		},
	})

	return &application{
		Router:   handlers.NewRouter(h, nil),
		Registry: registry,
		cfg:      cfg,
		log:      log,
		db:       db,
		rdb:      rdb,
		coord:    coord,
		workers:  workers,
	}, nil
}

// Start runs the boot-time recovery pass and launches the background
// loops. They all stop when ctx is cancelled.
func (a *application) Start(ctx context.Context) {
	if err := a.coord.Recover(ctx); err != nil {
		a.log.Error("recovery pass failed", zap.Error(err))
	}
	go a.coord.RunHousekeeping(ctx, a.cfg.Presence.ScanInterval)
	for _, w := range a.workers {
		go w.Run(ctx)
	}
}

func (a *application) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}
