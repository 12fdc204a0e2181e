package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/acquisitions-api/auth"
	"github.com/upb/acquisitions-api/config"
	"github.com/upb/acquisitions-api/handlers"
	"github.com/upb/acquisitions-api/middleware"
	"github.com/upb/acquisitions-api/repositories"
	"github.com/upb/acquisitions-api/repositories/memory"
	"github.com/upb/acquisitions-api/repositories/postgres"
	"github.com/upb/acquisitions-api/repositories/sqlite"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/services/detector"
	"github.com/upb/acquisitions-api/services/ratelimit"
	"github.com/upb/acquisitions-api/services/throttle"
	"github.com/upb/acquisitions-api/token"
	"go.uber.org/zap"
)

// Version is reported by GET /api/status
var Version = "dev"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *sql.DB               // nil for the memory adapter
	Redis  redis.UniversalClient // nil unless redis is configured

	// Repositories
	Repos *repositories.Repositories

	// Auth
	Codec   *token.Codec
	Carrier *auth.SessionCarrier
	Gate    *middleware.Gate

	// Throttle
	RateStore ratelimit.Store
	Throttle  *throttle.Throttle

	// Services
	Credentials *services.CredentialService
	Users       *services.UserService

	// Handlers
	AuthHandler     *handlers.AuthHandler
	UserHandler     *handlers.UserHandler
	HealthHandler   *handlers.HealthHandler
	ThrottleHandler *handlers.ThrottleHandler

	closers []func() error
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"user store", deps.initStore},
		{"redis", deps.initRedis},
		{"auth", deps.initAuth},
		{"throttle", deps.initThrottle},
		{"services", deps.initServices},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("user_store", cfg.Database.Adapter),
		zap.String("rate_store", cfg.Throttle.Backend))
	return deps, nil
}

// initStore opens the configured user store
func (d *Dependencies) initStore(ctx context.Context) error {
	cfg := d.Config.Database
	switch cfg.Adapter {
	case "postgres":
		factory, err := postgres.NewRepositoryFactory(cfg, d.Logger)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, factory.Close)
		d.DB = factory.GetDB().DB
		d.Repos = factory.NewRepositories()

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, db.Close)
		d.DB = db
		d.Repos = &repositories.Repositories{Users: sqlite.NewUserRepository(db, d.Logger)}

	case "memory":
		d.Repos = &repositories.Repositories{Users: memory.NewUserRepository()}
		d.Logger.Warn("using in-memory user store, data is lost on restart")

	default:
		return fmt.Errorf("unknown database adapter %q", cfg.Adapter)
	}

	d.Logger.Info("user store ready", zap.String("connection", cfg.LogString()))
	return nil
}

// initRedis connects to redis when an address is configured
func (d *Dependencies) initRedis(ctx context.Context) error {
	if d.Config.Redis.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     d.Config.Redis.Addr,
		Password: d.Config.Redis.Password,
		DB:       d.Config.Redis.DB,
	})
	d.closers = append(d.closers, client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	d.Redis = client
	d.Logger.Info("redis connection established", zap.String("addr", d.Config.Redis.Addr))
	return nil
}

// initAuth builds the token codec, the session cookie and the gate
func (d *Dependencies) initAuth(context.Context) error {
	codec, err := token.NewCodec(d.Config.Auth.JWTSecret, d.Config.Auth.TokenTTL, d.Config.Auth.Issuer)
	if err != nil {
		return err
	}
	d.Codec = codec
	d.Carrier = auth.NewSessionCarrier(d.Config.Auth.CookieName, d.Config.Auth.CookieMaxAge, d.Config.CookieSecure())
	d.Gate = middleware.NewGate(d.Carrier, codec, d.Logger)

	if !d.Config.CookieSecure() {
		d.Logger.Warn("session cookie Secure attribute disabled", zap.String("environment", d.Config.Environment))
	}
	return nil
}

// initThrottle builds the rate store, detector chain and throttle
func (d *Dependencies) initThrottle(context.Context) error {
	cfg := d.Config.Throttle

	switch cfg.Backend {
	case "memory":
		d.RateStore = ratelimit.NewMemoryStore(d.Logger)
	case "redis":
		if d.Redis == nil {
			return errors.New("redis rate limit backend requires REDIS_ADDR")
		}
		d.RateStore = ratelimit.NewRedisStore(d.Redis, "")
	case "postgres":
		if d.Config.Database.Adapter != "postgres" || d.DB == nil {
			return errors.New("postgres rate limit backend requires the postgres database adapter")
		}
		d.RateStore = ratelimit.NewPostgresStore(d.DB, d.Logger)
	default:
		return fmt.Errorf("unknown rate limit backend %q", cfg.Backend)
	}

	limiter, err := ratelimit.NewLimiter(d.RateStore, cfg.Window, ratelimit.Quotas{
		Guest: cfg.GuestLimit,
		User:  cfg.UserLimit,
		Admin: cfg.AdminLimit,
	})
	if err != nil {
		return err
	}

	det, err := d.buildDetector()
	if err != nil {
		return err
	}

	var stats throttle.Stats
	if cfg.StatsEnabled {
		if d.Redis != nil {
			stats = throttle.NewRedisStats(d.Redis, d.Logger)
		} else {
			stats = throttle.NewMemoryStats()
		}
	}

	d.Throttle = throttle.New(det, limiter, stats, throttle.Options{
		DetectorFailClosed: d.Config.Detector.FailClosed,
		LimiterFailClosed:  cfg.FailClosed,
	}, d.Logger)
	return nil
}

func (d *Dependencies) buildDetector() (detector.Detector, error) {
	cfg := d.Config.Detector
	var chain detector.Chain

	if cfg.HeuristicsEnabled {
		chain = append(chain, detector.NewHeuristicDetector(cfg.FlagEmptyAgent))
	}
	if cfg.Endpoint != "" {
		remote, err := detector.NewHTTPDetector(detector.HTTPConfig{
			Endpoint: cfg.Endpoint,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
			MaxRPS:   cfg.MaxRPS,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, remote)
	}

	if len(chain) == 0 {
		d.Logger.Warn("no request detectors configured")
		return detector.Noop{}, nil
	}
	return chain, nil
}

// initServices builds the services and handlers
func (d *Dependencies) initServices(context.Context) error {
	hasher, err := services.NewBcryptHasher(d.Config.Auth.HashCost, 0)
	if err != nil {
		return err
	}
	d.Credentials = services.NewCredentialService(d.Repos, hasher, d.Logger)
	d.Users = services.NewUserService(d.Repos, d.Logger)

	d.AuthHandler = handlers.NewAuthHandler(d.Credentials, d.Codec, d.Carrier, d.Logger)
	d.UserHandler = handlers.NewUserHandler(d.Users, d.Logger)
	d.ThrottleHandler = handlers.NewThrottleHandler(d.Throttle, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(d.DB, d.Redis, handlers.StatusInfo{
		Service:     "acquisitions-api",
		Version:     Version,
		Environment: d.Config.Environment,
		UserStore:   d.Config.Database.Adapter,
		RateStore:   d.Config.Throttle.Backend,
	}, d.Logger)
	return nil
}

// StartWorkers runs rate store housekeeping until ctx is done
func (d *Dependencies) StartWorkers(ctx context.Context) {
	interval := d.Config.Throttle.CleanupPeriod
	if interval <= 0 {
		return
	}

	switch store := d.RateStore.(type) {
	case *ratelimit.MemoryStore:
		go store.StartJanitor(ctx, interval)
	case *ratelimit.PostgresStore:
		go store.StartCleanupWorker(ctx, interval, d.Config.Throttle.Window)
	}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}
