package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/knowandlove/classquiz-go/admission"
	"github.com/knowandlove/classquiz-go/config"
	"github.com/knowandlove/classquiz-go/db"
	"github.com/knowandlove/classquiz-go/handlers"
	"github.com/knowandlove/classquiz-go/kv"
	"github.com/knowandlove/classquiz-go/logger"
	"github.com/knowandlove/classquiz-go/queue"
	"github.com/knowandlove/classquiz-go/session"
	"github.com/knowandlove/classquiz-go/ticket"
)

const (
	reapInterval  = time.Minute
	sweepInterval = 5 * time.Minute
)

func main() {
	// Configuration problems surface once, here, before anything binds
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	if err := logger.Init(cfg.Development); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Key-value backend: Redis in deployment, in-memory when configured
	var backend kv.Store
	if cfg.UseMemoryStore {
		logger.L.Warn("using in-memory store; sessions are not shared across instances")
		backend = kv.NewMemory()
	} else {
		redisStore, err := kv.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.L.Fatal("redis unavailable", zap.Error(err))
		}
		defer redisStore.Close()
		backend = redisStore
	}

	sessions := session.NewStore(backend)

	ticketOpts := []ticket.Option{ticket.WithTTL(cfg.TicketTTL)}
	if cfg.AllowTicketReuse {
		logger.L.Warn("ticket reuse allowed; never enable outside local testing")
		ticketOpts = append(ticketOpts, ticket.WithReuseAllowed())
	}
	tickets := ticket.NewAuthenticator(ticketOpts...)

	admit := admission.NewController(cfg.MaxConnections, cfg.MaxConnectionsPerOrigin)

	// Durable participant store for pairing input
	participants, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.L.Fatal("database unavailable", zap.Error(err))
	}
	defer participants.Close()

	executor := queue.NewExecutor(participants, backend, cfg.ResultCacheTTL)

	// Broker-backed queue when NATS is configured, in-process otherwise;
	// callers see identical semantics either way
	var jobs queue.Queue
	if cfg.NATSURL != "" {
		broker, err := queue.NewBroker(cfg.NATSURL, executor, backend)
		if err != nil {
			logger.L.Fatal("nats unavailable", zap.Error(err))
		}
		defer broker.Close()
		jobs = broker
		logger.L.Info("compute queue: broker mode", zap.String("url", cfg.NATSURL))
	} else {
		jobs = queue.NewLocal(executor)
		logger.L.Info("compute queue: in-process mode")
	}

	handler := handlers.New(handlers.Options{
		Sessions:    sessions,
		Tickets:     tickets,
		Admission:   admit,
		Queue:       jobs,
		IdleTimeout: cfg.IdleTimeout,
	})

	// Background maintenance: reap evicted sessions from the active
	// registry and sweep expired tickets
	go func() {
		reap := time.NewTicker(reapInterval)
		sweep := time.NewTicker(sweepInterval)
		defer reap.Stop()
		defer sweep.Stop()

		for {
			select {
			case <-reap.C:
				if n := sessions.ReapExpired(ctx); n > 0 {
					logger.L.Info("reaped expired sessions", zap.Int("count", n))
				}
			case <-sweep.C:
				if n := tickets.Sweep(); n > 0 {
					logger.L.Info("swept expired tickets", zap.Int("count", n))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// API Routes
	api := router.Group("/api")
	{
		api.POST("/sessions", handler.CreateSession)
		api.POST("/tickets", handler.IssueTicket)

		groups := api.Group("/groups/:id")
		{
			groups.POST("/pairings", handler.EnqueueJob)
			groups.GET("/pairings", handler.PollJob)
		}
	}

	// Real-time upgrade endpoint
	router.GET("/ws", handler.WebSocketHandler)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		logger.L.Info("starting server", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("shutdown incomplete", zap.Error(err))
	}
}
