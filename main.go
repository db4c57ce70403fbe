package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"post-planner/domain/repository"
	"post-planner/infrastructure/clients/mastodon"
	"post-planner/infrastructure/configuration"
	"post-planner/infrastructure/logger"
	"post-planner/infrastructure/persistence"
	"post-planner/infrastructure/realtime"
	httpHandler "post-planner/interfaces/http"
	"post-planner/interfaces/middleware"
	"post-planner/server"
	"post-planner/usecase"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// OS env keeps precedence over files; reload config so file values apply.
	loaded := configuration.LoadEnvFromFile("config.env", ".env")
	configuration.C = configuration.Load()
	cfg := configuration.C
	logger.SetFormat(cfg.Logger.Format)
	logger.GetLogger().WithField("envFiles", loaded).Info("Environment loaded")

	checks := map[string]httpHandler.HealthCheck{}

	postRepo, db, err := initiatePostStore(cfg.Store)
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Post store initialization failed")
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		checks["postgres"] = db.PingContext
	}

	pendingRepo, redisClient := initiatePendingStore(ctx, cfg.Pending)
	if redisClient != nil {
		defer redisClient.Close()
		checks["redis"] = func(c context.Context) error { return redisClient.Ping(c).Err() }
	}

	authRepo := persistence.NewAuthFileRepository(cfg.Store.AuthFile)
	clientRepo := persistence.NewClientRegistrationFileRepository(cfg.Store.ClientsFile)

	remote := mastodon.NewClient(mastodon.Config{
		AuthTimeout:    cfg.OAuthTimeout(),
		RequestTimeout: cfg.PublishTimeout(),
		UserAgent:      cfg.OAuth.AppName,
	})

	hub := realtime.NewPostHub()
	creds := usecase.NewCredentials(authRepo, remote)
	engine := usecase.NewPostEngine(postRepo, creds, remote, usecase.EngineConfig{
		TickInterval:   cfg.SchedulerInterval(),
		PublishTimeout: cfg.PublishTimeout(),
	}).WithBroadcaster(hub.BroadcastPostEvent)
	oauthUC := usecase.NewOAuthUsecase(clientRepo, pendingRepo, creds, remote, usecase.OAuthConfig{
		AppName:                cfg.OAuth.AppName,
		Website:                cfg.OAuth.Website,
		Scopes:                 cfg.OAuth.Scopes,
		RedirectURI:            cfg.OAuth.RedirectURI,
		AllowedRedirectOrigins: cfg.Cors.AllowOrigins,
		StateTTL:               time.Duration(cfg.Pending.TTLSeconds) * time.Second,
	})

	if cfg.Scheduler.RecoverStuck {
		n, err := engine.RecoverStuck(ctx)
		if err != nil {
			logger.GetLogger().WithField("error", err).Error("Re-arming stuck posts failed")
		} else if n > 0 {
			logger.GetLogger().WithField("count", n).Warn("Re-armed posts left in sending")
		}
	}

	router := server.InitiateRouter(
		server.RouterConfig{
			AllowOrigins: cfg.Cors.AllowOrigins,
			SecretKey:    cfg.App.SecretKey,
			AuthLimiter: middleware.NewIPRateLimiter(
				cfg.RateLimit.Requests,
				time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
				cfg.RateLimit.Burst,
				10*time.Minute,
			),
		},
		httpHandler.NewPostHandler(engine, oauthUC, hub),
		httpHandler.NewAuthHandler(oauthUC),
		httpHandler.NewHealthHandler(checks),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(ctx)
	})

	app := cfg.App
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.GetLogger().WithFields(map[string]interface{}{"port": app.Port, "tls": app.TLSEnabled}).Info("Starting application")
	g.Go(func() error {
		var err error
		if app.TLSEnabled && app.TLSCertFile != "" && app.TLSKeyFile != "" {
			err = httpServer.ListenAndServeTLS(app.TLSCertFile, app.TLSKeyFile)
		} else {
			if app.TLSEnabled {
				logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
			}
			err = httpServer.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.GetLogger().Info("Application shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
	logger.GetLogger().Info("Application stopped")
}

// initiatePostStore returns the post store selected by cfg.Driver. The *sql.DB
// is non-nil only for the postgres driver.
func initiatePostStore(cfg configuration.Store) (repository.IPost, *sql.DB, error) {
	switch cfg.Driver {
	case "postgres":
		db, err := persistence.NewPostgreSQLDB(cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if err := persistence.EnsurePostSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensuring post schema: %w", err)
		}
		logger.GetLogger().WithField("host", cfg.Postgres.Host).Info("Posts stored in PostgreSQL")
		return persistence.NewPostRepository(db), db, nil
	case "", "file":
		logger.GetLogger().WithField("path", cfg.PostsFile).Info("Posts stored in JSON file")
		return persistence.NewPostFileRepository(cfg.PostsFile), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// initiatePendingStore falls back to process memory when Redis is unreachable.
func initiatePendingStore(ctx context.Context, cfg configuration.Pending) (repository.IPendingState, *redis.Client) {
	if cfg.Driver != "redis" {
		return persistence.NewPendingStateMemory(), nil
	}
	addr := fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port)
	client, err := persistence.NewRedisClient(ctx, addr, cfg.Redis.Username, cfg.Redis.Password, cfg.Redis.Database)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Redis not available - keeping authorization states in memory")
		return persistence.NewPendingStateMemory(), nil
	}
	logger.GetLogger().WithField("addr", addr).Info("Authorization states stored in Redis")
	return persistence.NewPendingStateRedis(client), client
}
