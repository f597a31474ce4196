package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"

	"chitbidgo/internal/bidjournal"
	"chitbidgo/internal/config"
	"chitbidgo/internal/database/db_client"
	"chitbidgo/internal/finance"
	"chitbidgo/internal/http/auctionhandler"
	"chitbidgo/internal/http/http_server"
	"chitbidgo/internal/redis/redis_client"
	"chitbidgo/internal/redis/redis_functions"
	"chitbidgo/internal/services/auction"
	"chitbidgo/internal/syncbid"
	"chitbidgo/internal/syncdb"
	"chitbidgo/internal/syncstore"
	"chitbidgo/internal/watcher/clockwatcher"
	"chitbidgo/internal/watcher/syncwatcher"
	"chitbidgo/internal/ws"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:generate go tool swag init -g main.go -o api_specs --outputTypes json,yaml

// @title			Chit Fund Live Auction API
// @version		1.0
// @description	Live reverse auction for chit fund rounds.
// @BasePath		/

var (
	Log, _ = zap.NewDevelopment()
)

const userCacheSize = 1024

func main() {
	defer Log.Sync()
	zap.ReplaceGlobals(Log)

	var err error
	var cfg *config.Config
	var redisClient *redis.Client
	var pgDb *sql.DB
	var auctionService auction.IAuctionService

	// 1. Load configuration
	cfg, err = config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	Log.Debug("Configuration loaded successfully",
		zap.String("sync_backend", cfg.SyncBackend),
		zap.String("finance_backend", cfg.FinanceBackend))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Finance records
	var directory finance.Directory
	switch cfg.FinanceBackend {
	case "postgres":
		pgDb, err = db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser,
			cfg.PostgresPassword, cfg.PostgresDb, cfg.PostgresSSLMode)
		if err != nil {
			Log.Fatal("pg-open", zap.Error(err))
		}
		defer pgDb.Close()

		directory, err = finance.NewPostgresDirectory(pgDb, userCacheSize)
		if err != nil {
			Log.Fatal("finance-directory", zap.Error(err))
		}
	default:
		directory = finance.DemoDirectory()
	}

	// 4. Shared store and bid journal
	var store syncstore.Store
	var journal bidjournal.Journal
	var redisJournal *bidjournal.RedisJournal
	switch cfg.SyncBackend {
	case "redis":
		redisClient, err = redis_client.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			Log.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		Log.Debug("Redis client created successfully")

		// Load the Redis Functions lua
		if err := redis_functions.LoadAll(ctx, redisClient); err != nil {
			Log.Fatal("load-redis-funcs", zap.Error(err))
		}
		store = syncstore.NewRedisStore(redisClient, cfg.RedisKeyPrefix, "")
		redisJournal = bidjournal.NewRedisJournal(redisClient, cfg.RedisKeyPrefix, cfg.JournalMaxLen)
		journal = redisJournal
	default:
		store = syncstore.NewMemoryBus().Open("")
		journal = bidjournal.NewMemoryJournal(int(cfg.JournalMaxLen))
	}

	// 5. Auction service
	clk := clockwork.NewRealClock()
	auctionService = auction.NewAuctionService(store, directory, journal, clk, auction.Options{
		RoundDuration: cfg.RoundDuration,
		MinIncrement:  cfg.BidMinIncrement,
		Increments:    cfg.BidIncrements,
		Defaults: auction.Config{
			Term:           cfg.DefaultTerm,
			ChitValue:      cfg.DefaultChitValue,
			CommissionRate: cfg.DefaultCommissionRate,
			RoomCode:       cfg.DefaultRoomCode,
			BatchID:        cfg.DefaultBatchID,
		},
	})
	if err := auctionService.Load(ctx); err != nil {
		Log.Fatal("auction-load", zap.Error(err))
	}
	if err := auctionService.RefreshRoster(ctx); err != nil {
		Log.Warn("auction-roster", zap.Error(err))
	}

	// 6. WebSockets hub + REST
	wsSrv := ws.NewWsServer(ws.NewHub(), auctionService, directory, cfg.RequireEligibility)
	handler := auctionhandler.New(auctionService, directory, journal, auctionhandler.Options{
		AdminToken:         cfg.AdminToken,
		RequireEligibility: cfg.RequireEligibility,
	})
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, wsSrv, handler, cfg.CorsAllowedOrigins)

	// 7. Background workers
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return clockwatcher.Run(gctx, clk, cfg.TickInterval, auctionService) })
	g.Go(func() error { return syncwatcher.Run(gctx, store, auctionService) })
	g.Go(func() error { return syncdb.Run(gctx, auctionService, directory) })
	g.Go(func() error { return wsSrv.Run(gctx) })
	if redisJournal != nil && pgDb != nil {
		archiver := syncbid.NewArchiver(redisClient, pgDb, redisJournal.Stream())
		g.Go(func() error { return archiver.Run(gctx) })
	}

	// 8. HTTP + WS server
	g.Go(httpServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		return httpServer.Dispose()
	})

	if err := g.Wait(); err != nil {
		Log.Error("shutdown", zap.Error(err))
	}
	Log.Info("bye")
}
