package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	docs "github.com/tazhibayda/qna-service/docs"
	"github.com/tazhibayda/qna-service/internal/accounts"
	"github.com/tazhibayda/qna-service/internal/config"
	api "github.com/tazhibayda/qna-service/internal/http"
	"github.com/tazhibayda/qna-service/internal/log"
	"github.com/tazhibayda/qna-service/internal/metrics"
	"github.com/tazhibayda/qna-service/internal/queue"
	"github.com/tazhibayda/qna-service/internal/repo"
	"github.com/tazhibayda/qna-service/internal/security"
	"github.com/tazhibayda/qna-service/internal/webhook"
)

// @title QnA API
// @version 0.1.0
// @description Q&A service with external identity synchronization.
// @schemes http https
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()

	if cfg.WebhookSecret == "" {
		stdlog.Fatal("WEBHOOK_SECRET is required")
	}
	if err := webhook.ValidateSecret(cfg.WebhookSecret); err != nil {
		stdlog.Fatalf("WEBHOOK_SECRET: %v", err)
	}

	logger, err := log.Init(cfg.Env == "prod")
	if err != nil {
		stdlog.Fatalf("log init: %v", err)
	}
	defer logger.Sync()

	metrics.MustRegister()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := repo.NewStore(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal("mongo connect", zap.Error(err))
	}
	defer store.Close(context.Background())

	if err := store.EnsureIndexes(ctx); err != nil {
		logger.Fatal("ensure indexes", zap.Error(err))
	}

	var guard api.ReplayGuard
	rds := repo.NewRedis(cfg.RedisAddr)
	if err := rds.Ping(ctx); err != nil {
		// replay guard degrades to verification-only; keep serving
		logger.Warn("redis unavailable, replay guard disabled", zap.Error(err))
	} else {
		guard = rds
		defer rds.Close()
	}

	var pub queue.Publisher = queue.NewNoop()
	if cfg.RabbitURL != "" {
		pub, err = queue.NewRabbit(cfg.RabbitURL, queue.Exchange)
		if err != nil {
			logger.Fatal("rabbit connect", zap.Error(err))
		}
	}
	defer pub.Close()

	jwks := security.NewFetcher(cfg.AuthJWKSURL, time.Duration(cfg.JWKSCacheSeconds)*time.Second)

	docs.SwaggerInfo.BasePath = "/"

	sync := accounts.NewSynchronizer(store)
	h := api.NewHandler(store, sync, guard, pub, cfg.WebhookSecret)
	r := api.NewRouter(h, jwks, cfg.RateLimitPerMin)

	srvErr := make(chan error, 1)
	go func() { srvErr <- r.Run(":" + cfg.Port) }()

	logger.Info("qna-service listening", zap.String("port", cfg.Port))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info("shutting down", zap.String("signal", s.String()))
	case err := <-srvErr:
		logger.Error("server error", zap.Error(err))
	}
}
