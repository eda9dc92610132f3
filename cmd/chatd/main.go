package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/etutorng/imara-messaging/internal/chat/client"
	"github.com/etutorng/imara-messaging/internal/chat/config"
	"github.com/etutorng/imara-messaging/internal/chat/handler"
	"github.com/etutorng/imara-messaging/internal/chat/hub"
	"github.com/etutorng/imara-messaging/internal/chat/relay"
	"github.com/etutorng/imara-messaging/internal/chat/service"
	"github.com/etutorng/imara-messaging/pkg/auth"
	pkglog "github.com/etutorng/imara-messaging/pkg/log"
	"github.com/etutorng/imara-messaging/pkg/pubsub"
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
		ServiceName: "chatd",
	})
	logger := pkglog.L()

	instanceID := cfg.Server.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	// Initialize pub/sub for the peer relay. A nil bus means the
	// "none" driver: single-instance, no relay.
	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize pubsub")
	}
	if bus != nil {
		logger.Info().Str("driver", cfg.PubSub.Driver).Msg("pubsub connected")
	} else {
		logger.Info().Msg("pubsub disabled, peer relay off")
	}

	// Initialize session service client
	counselClient := client.NewCounselClient(
		cfg.Counsel.BaseURL,
		cfg.Counsel.ServiceToken,
		cfg.Counsel.Timeout,
		cfg.Counsel.CacheTTL,
	)

	// Token validation is local; tokens are issued by the platform.
	tokens := auth.NewManager(cfg.Auth.JWTSecret, 24*time.Hour, cfg.Auth.Issuer)

	// Initialize Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Initialize chat service
	chatSvc := service.NewChatService(wsHub, tokens, counselClient, bus, instanceID, cfg.Auth.VerifyParticipants)
	defer chatSvc.Stop()

	// Start the peer relay
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if bus != nil {
		peerRelay := relay.NewRelay(wsHub, bus, instanceID)
		if err := peerRelay.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to start peer relay")
		}
		defer peerRelay.Stop()
	}

	// Initialize WS handler
	wsHandler := handler.NewWSHandler(wsHub, chatSvc, cfg.WebSocket)

	// Setup HTTP server
	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      pkglog.HTTPMiddleware(logger)(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().Str("addr", server.Addr).Str("instance_id", instanceID).Msg("chatd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chatd")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chatd stopped")
}
