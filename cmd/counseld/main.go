package main

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/etutorng/imara-messaging/internal/counsel/cache"
	"github.com/etutorng/imara-messaging/internal/counsel/config"
	"github.com/etutorng/imara-messaging/internal/counsel/domain"
	"github.com/etutorng/imara-messaging/internal/counsel/handler"
	"github.com/etutorng/imara-messaging/internal/counsel/repository"
	"github.com/etutorng/imara-messaging/internal/counsel/service"
	"github.com/etutorng/imara-messaging/pkg/auth"
	"github.com/etutorng/imara-messaging/pkg/database"
	pkglog "github.com/etutorng/imara-messaging/pkg/log"
	"github.com/etutorng/imara-messaging/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "counseld",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.SessionModel{}, &domain.MessageModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repositories
	sessionRepo := repository.NewGormSessionRepository(db)
	messageRepo := repository.NewGormMessageRepository(db)

	// Initialize history cache
	var historyCache cache.HistoryCache
	if cfg.Cache.Driver == "redis" {
		redisCache, err := cache.NewRedisHistoryCache(cache.RedisConfig{
			Address:  cfg.Cache.Address,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		}, "counsel:history")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		historyCache = redisCache
		logger.Info().Msg("redis history cache connected")
	} else {
		historyCache = cache.NewMemoryHistoryCache("counsel:history")
	}
	defer historyCache.Close()

	cacheTTL := time.Duration(cfg.Cache.TTL) * time.Second

	// Initialize services
	sessionService := service.NewSessionService(sessionRepo, cfg.Session.MaxOpenPerUser)
	historyService := service.NewHistoryService(sessionRepo, messageRepo, historyCache, cacheTTL)

	// Initialize auth middleware
	tokens := auth.NewManager(cfg.Auth.JWTSecret, 24*time.Hour, cfg.Auth.Issuer)
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// Initialize HTTP handler
	httpHandler := handler.NewHandler(sessionService, historyService, authMiddleware, cfg.Session.HistoryLimit)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Register routes
	httpHandler.RegisterRoutes(r)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("driver", cfg.Database.Driver).Msg("counseld starting")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
