// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kultrip/story-travel/internal/config"
	"github.com/kultrip/story-travel/internal/events"
	"github.com/kultrip/story-travel/internal/handler"
	"github.com/kultrip/story-travel/internal/itinerary"
	"github.com/kultrip/story-travel/internal/knowledge"
	"github.com/kultrip/story-travel/internal/middleware"
	natsclient "github.com/kultrip/story-travel/internal/nats"
	"github.com/kultrip/story-travel/internal/service"
	"github.com/kultrip/story-travel/internal/session"
	"github.com/kultrip/story-travel/internal/telegram"
	"github.com/kultrip/story-travel/pkg/logger"
	"github.com/kultrip/story-travel/pkg/tracing"
)

const sweepInterval = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "story-travel", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(context.Background(), tp) }()
		}
	}

	// Knowledge base
	kb, err := knowledge.Load(cfg.KnowledgeBasePath)
	if err != nil {
		return fmt.Errorf("failed to load knowledge base: %w", err)
	}
	log.Info("knowledge base loaded", zap.Int("destinations", len(kb.Destinations())))

	var checkers []handler.Checker

	// Session store
	var store session.Store
	switch cfg.SessionStore {
	case config.StoreRedis:
		rdb, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		redisStore := session.NewRedisStore(rdb, cfg.SessionTTL)
		store = redisStore
		checkers = append(checkers, handler.Checker{Name: "redis", Check: redisStore.Ping})
	default:
		memStore := session.NewMemoryStore(cfg.SessionTTL)
		go memStore.RunSweeper(ctx, sweepInterval)
		store = memStore
	}
	log.Info("session store ready", zap.String("kind", cfg.SessionStore))

	// Events: in-process hub for live transports, plus the durable log when NATS is on.
	hub := events.NewHub(events.DefaultBuffer, log)
	sinks := []events.Sink{{Name: "hub", Publisher: hub}}

	var eventHandler *handler.EventHandler
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			return fmt.Errorf("failed to ensure stream: %w", err)
		}

		sinks = append(sinks, events.Sink{Name: "nats", Publisher: streamManager})
		checkers = append(checkers, handler.Checker{Name: "nats", Check: natsClient.Ping})
		eventHandler = handler.NewEventHandler(streamManager, log)
	}
	publisher := events.NewFanout(log, sinks...)

	// Itinerary service
	planner, err := itinerary.NewClient(cfg.ItineraryURL,
		itinerary.WithTimeout(cfg.ItineraryTimeout),
		itinerary.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("failed to create itinerary client: %w", err)
	}

	// Initialize services
	sessionSvc := service.NewSessionService(store, publisher, log)
	messageSvc := service.NewMessageService(sessionSvc, kb, planner, cfg.ThinkingDelay, log)

	issuer := middleware.NewTokenIssuer(cfg.SessionTokenSecret, cfg.SessionTokenTTL)

	router := handler.NewRouter(handler.RouterConfig{
		Health:            handler.NewHealthHandler(checkers...),
		Sessions:          handler.NewSessionHandler(sessionSvc, issuer, log),
		Messages:          handler.NewMessageHandler(messageSvc, log),
		Stream:            handler.NewStreamHandler(sessionSvc, hub, handler.DefaultHeartbeat, log),
		Websocket:         handler.NewWebsocketHandler(sessionSvc, messageSvc, hub, cfg.AllowedOrigins, log),
		Stories:           handler.NewStoryHandler(kb),
		Events:            eventHandler,
		Issuer:            issuer,
		AllowedOrigins:    cfg.AllowedOrigins,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})

	var wg sync.WaitGroup

	// Telegram
	if cfg.TelegramEnabled() {
		tg := telegram.NewHandler(sessionSvc, messageSvc, log)
		b, err := telegram.New(cfg.TelegramBotToken, tg)
		if err != nil {
			return fmt.Errorf("failed to create telegram bot: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			tg.Run(ctx, b)
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		wg.Wait()
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	log.Info("server stopped")
	return nil
}
