// Package main provides the game server binary that runs the turn engine,
// region arbitration, and the WebSocket frontend.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/turf/internal/broadcast"
	"github.com/cory-johannsen/turf/internal/config"
	"github.com/cory-johannsen/turf/internal/frontend/ws"
	"github.com/cory-johannsen/turf/internal/game/economy"
	"github.com/cory-johannsen/turf/internal/game/geo"
	"github.com/cory-johannsen/turf/internal/game/region"
	"github.com/cory-johannsen/turf/internal/game/session"
	"github.com/cory-johannsen/turf/internal/game/state"
	"github.com/cory-johannsen/turf/internal/game/turn"
	"github.com/cory-johannsen/turf/internal/gameserver"
	"github.com/cory-johannsen/turf/internal/observability"
	"github.com/cory-johannsen/turf/internal/scripting"
	"github.com/cory-johannsen/turf/internal/server"
	"github.com/cory-johannsen/turf/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	regionsDir := flag.String("regions", "", "path to region YAML files directory; overrides config")
	scriptDir := flag.String("income-scripts", "", "path to Lua income scripts directory; overrides config")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *regionsDir != "" {
		cfg.Game.RegionsDir = *regionsDir
	}
	if *scriptDir != "" {
		cfg.Game.IncomeScriptDir = *scriptDir
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.String("default_game", cfg.Game.DefaultGame),
	)

	// Load the region atlas.
	atlasStart := time.Now()
	atlas, err := geo.LoadAtlasFromDir(cfg.Game.RegionsDir)
	if err != nil {
		logger.Fatal("loading region atlas", zap.Error(err))
	}
	logger.Info("region atlas loaded",
		zap.Int("regions", atlas.Count()),
		zap.Duration("elapsed", time.Since(atlasStart)),
	)

	// Connect to PostgreSQL for game state persistence.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	userRepo := postgres.NewUserRepository(pool.DB())
	gameRepo := postgres.NewGameRepository(pool.DB())
	regionRepo := postgres.NewRegionRepository(pool.DB())
	assetRepo := postgres.NewAssetRepository(pool.DB())

	// Initialise the scripted income formula when a script directory is
	// configured; otherwise the calculator's built-in formula applies.
	var contrib economy.ContributionFunc
	if cfg.Game.IncomeScriptDir != "" {
		incomeScript, err := scripting.LoadIncomeScripts(cfg.Game.IncomeScriptDir, cfg.Game.ScriptInstructionLimit, logger)
		if err != nil {
			logger.Fatal("loading income scripts", zap.Error(err))
		}
		defer incomeScript.Close()
		contrib = incomeScript.Contribution
		logger.Info("income scripts loaded", zap.String("dir", cfg.Game.IncomeScriptDir))
	}

	costPolicy := economy.CostPolicy{
		Ceiling: cfg.Game.PopulationCeiling,
		MaxCost: cfg.Game.MaxPlacementCost,
	}
	calculator := economy.NewCalculator(assetRepo, atlas, costPolicy, contrib)

	// Create managers.
	sessMgr := session.NewManager()
	router := broadcast.NewRouter(sessMgr, logger)
	cache := state.NewCache(gameRepo)
	locks := state.NewKeyedMutex()

	arbiter := region.NewArbiter(regionRepo, atlas, userRepo, logger)
	engine := turn.NewEngine(gameRepo, calculator, cache, logger)

	gameSrv := gameserver.NewServer(cfg.Game, gameserver.Deps{
		Sessions:   sessMgr,
		Router:     router,
		Locks:      locks,
		Cache:      cache,
		Arbiter:    arbiter,
		Engine:     engine,
		Games:      gameRepo,
		Users:      userRepo,
		Assets:     assetRepo,
		Atlas:      atlas,
		Cost:       costPolicy,
		SendBuffer: cfg.WebSocket.SendBuffer,
	}, logger)

	ticker := gameserver.NewElapsedTicker(cfg.Game.TickInterval, sessMgr, cache, locks, gameRepo, router, logger)

	authenticator := ws.NewAuthenticator(cfg.Auth, cfg.Game.DefaultGame)
	acceptor := ws.NewAcceptor(cfg.WebSocket, authenticator, gameSrv, logger)

	// Wire lifecycle.
	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func() error {
			logger.Info("websocket server listening",
				zap.String("addr", cfg.WebSocket.Addr()),
				zap.String("path", cfg.WebSocket.Path),
			)
			return acceptor.ListenAndServe()
		},
		StopFn: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := acceptor.Stop(shutdownCtx); err != nil {
				logger.Warn("websocket shutdown", zap.Error(err))
			}
		},
	})

	tickCtx, stopTicks := context.WithCancel(ctx)
	lifecycle.Add("ticker", &server.FuncService{
		StartFn: func() error {
			ticker.Run(tickCtx)
			return nil
		},
		StopFn: stopTicks,
	})

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
