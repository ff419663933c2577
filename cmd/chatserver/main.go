// Command chatserver is a minimal example process embedding the engine: a
// "join room" / "chat message" handler pair, wired up with a gin router,
// CORS, Prometheus, liveness/readiness endpoints, and graceful shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	socketio "github.com/sio-engine/socketio"
	"github.com/sio-engine/socketio/internal/config"
	"github.com/sio-engine/socketio/internal/health"
	"github.com/sio-engine/socketio/internal/logging"
	"github.com/sio-engine/socketio/internal/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Not fatal: production deployments set real environment variables
	// instead of shipping a .env file.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Error(context.Background(), "invalid configuration", zap.Error(err))
		os.Exit(1)
	}
	if err := logging.Initialize(cfg.Development); err != nil {
		panic(err)
	}
	ctx := context.Background()

	var pinger health.Pinger
	if cfg.RedisEnabled {
		adapter, err := socketio.InstallRedisAdapter(ctx, cfg)
		if err != nil {
			logging.Error(ctx, "failed to install redis adapter", zap.Error(err))
			os.Exit(1)
		}
		defer adapter.Close()
		pinger = adapter
	}

	limiter, err := middleware.NewConnectionRateLimiter(cfg.RateLimitConnPerIP, nil)
	if err != nil {
		logging.Error(ctx, "invalid connection rate limit", zap.Error(err))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowAllOrigins = true
	router.Use(cors.New(corsCfg))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	socketio.MountHealth(router, pinger)

	srv := socketio.New(cfg, limiter)
	srv.Mount(router, "/socket.io/*any", chatHandler)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "chatserver starting", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}
}

// chatHandler registers a minimal pair of listeners: a client can join a
// named room, and a chat message is broadcast to every room the sender
// currently belongs to.
func chatHandler(s socketio.Socket) {
	s.On("join room", func(s socketio.Socket, room string) error {
		s.Join(room)
		return nil
	})

	s.On("chat message", func(s socketio.Socket, message string) error {
		for _, room := range s.Rooms() {
			s.EmitTo(room, "chat message", message)
		}
		return nil
	})
}
