package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/config"
	"github.com/fjod/go_storefront/internal/coupons"
	"github.com/fjod/go_storefront/internal/localstore"
	"github.com/fjod/go_storefront/internal/poller"
	"github.com/fjod/go_storefront/internal/reconcile"
	"github.com/fjod/go_storefront/internal/remote"
	"github.com/fjod/go_storefront/internal/session"
	h "github.com/fjod/go_storefront/internal/transport/http"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("failed to load config")
	}
	if level, errLevel := logrus.ParseLevel(cfg.LogLevel); errLevel == nil {
		logger.SetLevel(level)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	couponCache := cache.NewRedisCache(redisClient)

	storeClient := remote.NewClient(cfg.StoreBaseURL, remote.StaticToken(cfg.StoreAPIToken), logger)
	catalog := coupons.NewCatalog(storeClient, couponCache, logger)

	factory := func(sessionID string) *session.Controller {
		sessionLog := logger.WithField("session", sessionID)
		client := remote.NewClient(cfg.StoreBaseURL, remote.StaticToken(cfg.StoreAPIToken), sessionLog)
		engine := reconcile.NewEngine(
			remote.NewCartResource(client),
			remote.NewWishlistResource(client),
			remote.NewValidator(client),
			localstore.NewStore(),
			reconcile.DefaultOptions(),
			sessionLog,
		)
		return session.NewController(engine, nil, sessionLog)
	}
	sessions := session.NewManager(factory, cfg.SessionTTL, logger)
	defer sessions.Close()

	pollerCtx, stopPoller := context.WithCancel(context.Background())
	authPoller := poller.NewPoller(sessions, logger, cfg.KafkaBrokers...)
	go authPoller.Run(pollerCtx)

	handler := h.NewHandler(sessions, catalog, cfg.RequestTimeout, logger)
	router := h.NewRouter(handler, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "storefront"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.HTTPPort).Info("storefront starting")
		if errServe := srv.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			logger.WithError(errServe).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopPoller()
	authPoller.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("server forced to shutdown")
	}
}
