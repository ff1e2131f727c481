package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/m1z23r/drift/pkg/drift"
	"github.com/m1z23r/drift/pkg/middleware"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/bot"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/config"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/database"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/handlers"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/logger"
	authmw "github.com/mrleo1nid/TaxCollectionTelegramBot/internal/middleware"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/services"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/session"
	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/sse"
	"go.uber.org/zap"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.BotToken == "" {
		lg.Fatal("BOT_TOKEN is not set")
	}
	if cfg.AdminID == 0 {
		lg.Fatal("ADMIN_ID is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		lg.Fatal("failed to run migrations", zap.Error(err))
	}

	var sessions session.Store
	if cfg.RedisURL != "" {
		client, err := session.Connect(ctx, cfg.RedisURL)
		if err != nil {
			lg.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		sessions = session.NewRedisStore(client, session.DefaultTTL)
	} else {
		lg.Info("REDIS_URL not set, keeping sessions in memory")
		sessions = session.NewMemoryStore()
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		lg.Fatal("failed to connect to telegram", zap.Error(err))
	}
	lg.Info("authorized on telegram", zap.String("bot", api.Self.UserName))

	hub := sse.NewHub()
	go hub.Run()

	dispatcher := notify.NewDispatcher(bot.NewTransport(api), lg.Named("notify"))
	userService := services.NewUserService(db)
	configService := services.NewConfigService(db)
	collectionService := services.NewCollectionService(
		services.NewLedgerStore(db),
		userService,
		dispatcher,
		cfg.AdminID,
		lg.Named("collections"),
	).WithEvents(hub)
	jwtService := services.NewJWTService(cfg.JWTSecret, cfg.JWTExpiry)

	telegram := bot.New(api, collectionService, userService, configService, sessions, bot.Config{
		AdminID:              cfg.AdminID,
		InstructionText:      cfg.InstructionText,
		MaxConcurrentUpdates: cfg.BotWorkers,
	}, lg.Named("bot"))

	collectionHandler := handlers.NewCollectionHandler(collectionService, lg.Named("api"))
	sseHandler := handlers.NewSSEHandler(hub)

	app := drift.New()

	if cfg.IsProduction() {
		app.SetMode(drift.ReleaseMode)
	} else {
		app.SetMode(drift.DebugMode)
	}

	app.Use(middleware.Recovery())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       86400,
	}))
	app.Use(middleware.BodyParser())

	v1 := app.Group("/api/v1")

	v1.Get("/health", func(c *drift.Context) {
		_ = c.JSON(200, map[string]string{"status": "ok"})
	})

	protected := v1.Group("")
	protected.Use(authmw.Auth(jwtService, cfg.AdminID))

	protected.Get("/collections/active", collectionHandler.Active)
	protected.Get("/collections/last", collectionHandler.Last)
	protected.Post("/collections", collectionHandler.Create)
	protected.Post("/collections/active/finalize", collectionHandler.Finalize)
	protected.Post("/collections/active/advance", collectionHandler.Advance)
	protected.Post("/collections/active/complete", collectionHandler.Complete)
	protected.Post("/collections/active/cancel", collectionHandler.Cancel)
	protected.Get("/collections/:id", collectionHandler.Get)
	protected.Post("/collections/:id/choices", collectionHandler.RecordChoice)

	protected.Get("/events", sseHandler.Connect)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		lg.Info("admin API starting", zap.String("addr", addr))
		if err := app.Run(addr); err != nil {
			lg.Fatal("admin API failed", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	done := make(chan struct{})
	go func() {
		defer close(done)
		telegram.Run(ctx, updates)
	}()

	lg.Info("bot started", zap.Int64("admin_id", cfg.AdminID))
	<-ctx.Done()

	lg.Info("shutting down")
	api.StopReceivingUpdates()
	<-done
}
