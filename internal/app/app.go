package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/campus-server/internal/auth"
	"github.com/vovakirdan/campus-server/internal/bus"
	"github.com/vovakirdan/campus-server/internal/config"
	"github.com/vovakirdan/campus-server/internal/core"
	"github.com/vovakirdan/campus-server/internal/metrics"
	"github.com/vovakirdan/campus-server/internal/ratelimit"
	"github.com/vovakirdan/campus-server/internal/service/courses"
	"github.com/vovakirdan/campus-server/internal/service/invites"
	"github.com/vovakirdan/campus-server/internal/service/storage"
	"github.com/vovakirdan/campus-server/internal/store/sqlstore"
	transporthttp "github.com/vovakirdan/campus-server/internal/transport/http"
)

const limiterSweepInterval = time.Minute

// App wires together storage, services and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           *sqlstore.Store
	redis           *redis.Client
	memLimiter      *ratelimit.Memory
	janitor         *invites.Janitor
	closeSessions   context.CancelFunc
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlstore.New(ctx, sqlstore.Options{
		Driver:       cfg.DatabaseDriver,
		DSN:          cfg.DatabaseDSN,
		MaxOpenConns: cfg.DatabaseMaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.DatabaseDriver).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	m := metrics.New()
	busOpts := bus.Options{Buffer: cfg.WSEventBuffer, OnDrop: m.Dropped}

	var (
		eventBus bus.Bus
		limiter  ratelimit.Limiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.cleanup()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		eventBus = bus.NewRedis(a.redis, logger, busOpts)
		limiter = ratelimit.NewRedis(a.redis)
		logger.Info().Str("addr", opts.Addr).Msg("using redis bus and rate limiter")
	} else {
		eventBus = bus.NewMemory(busOpts)
		a.memLimiter = ratelimit.NewMemory()
		limiter = a.memLimiter
		logger.Info().Msg("using in-process bus and rate limiter")
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	})
	inviteService := invites.New(st)

	a.janitor, err = invites.NewJanitor(inviteService, cfg.InvitePurgeCron, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	var signer transporthttp.URLSigner
	if cfg.S3Bucket != "" {
		s, err := storage.NewSigner(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			URLTTL:    cfg.S3URLTTL,
		})
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init storage signer: %w", err)
		}
		signer = s
	}

	chat := core.NewChat(core.ChatConfig{
		CommandsPerMinute: cfg.WSCommandsPerMinute,
		WriteTimeout:      cfg.WSWriteTimeout,
	}, authService, st, eventBus, m, logger)

	base, cancel := context.WithCancel(context.Background())
	a.closeSessions = cancel

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Auth:        authService,
		Courses:     courses.New(st),
		Invites:     inviteService,
		Storage:     signer,
		Chat:        chat,
		Limiter:     limiter,
		Metrics:     m,
		BaseContext: base,
	}, cfg, logger)

	return a, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and background jobs and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		a.janitor.Run(gctx)
		return nil
	})

	if a.memLimiter != nil {
		a.memLimiter.StartSweeper(limiterSweepInterval, gctx.Done())
	}

	g.Go(func() error {
		<-gctx.Done()

		// Chat sessions are hijacked connections that Shutdown does not track.
		a.closeSessions()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.closeSessions != nil {
		a.closeSessions()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
