package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tagboard/tagboard/internal/api"
	"github.com/tagboard/tagboard/internal/audit"
	"github.com/tagboard/tagboard/internal/auth"
	"github.com/tagboard/tagboard/internal/mail"
	"github.com/tagboard/tagboard/internal/observability"
	"github.com/tagboard/tagboard/internal/platform/cache"
	"github.com/tagboard/tagboard/internal/platform/db"
	"github.com/tagboard/tagboard/internal/posts"
	"github.com/tagboard/tagboard/internal/shared"
	"github.com/tagboard/tagboard/internal/users"
	"github.com/tagboard/tagboard/jobs"
)

// Services is the wired application core.
type Services struct {
	Config     *Config
	Logger     *slog.Logger
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Metrics    *observability.Metrics
	Users      *users.PGRepository
	Posts      *posts.PGRepository
	Audit      *audit.Logger
	Timeline   *audit.Service
	Queue      *jobs.Client
	Sessions   *shared.SessionManager
	Auth       *auth.Service
	Dispatcher *api.Dispatcher
}

// NewServices connects the stores and builds the dispatcher.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	validator, err := users.NewValidator(cfg.UserRules())
	if err != nil {
		return nil, err
	}
	codec, err := auth.NewTokenCodec(cfg.RememberSecret)
	if err != nil {
		return nil, fmt.Errorf("app: remember token: %w", err)
	}

	pool, err := db.New(ctx, cfg.Database("cli"))
	if err != nil {
		return nil, err
	}
	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &Services{
		Config:  cfg,
		Logger:  logger,
		Pool:    pool,
		Redis:   redisClient,
		Metrics: observability.NewMetrics(),
		Users:   users.NewRepository(pool),
		Posts:   posts.NewRepository(pool),
		Queue:   jobs.NewClient(cfg.Redis().QueueOpts()),
	}
	auditRepo := audit.NewRepository(pool)
	s.Audit = audit.NewLogger(auditRepo, logger, audit.LoggerConfig{})
	s.Timeline = audit.NewService(auditRepo)
	s.Sessions = shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	s.Auth = auth.NewService(s.Users, codec, cfg.AuthOptions(), logger)
	s.Dispatcher = api.NewDispatcher(&api.Env{
		Policy:    policy,
		Users:     s.Users,
		Posts:     s.Posts,
		Validator: validator,
		Audit:     s.Audit,
		Mail:      mail.NewQueueSink(s.Queue),
		Templates: cfg.MailTemplates(),
		Logger:    logger,
	}, s.Metrics, logger)
	return s, nil
}

// Close flushes the audit log and releases connections.
func (s *Services) Close(ctx context.Context) {
	if err := s.Audit.Close(ctx); err != nil {
		s.Logger.Warn("audit close", slog.Any("error", err))
	}
	if err := s.Queue.Close(); err != nil {
		s.Logger.Warn("queue close", slog.Any("error", err))
	}
	if err := s.Redis.Close(); err != nil {
		s.Logger.Warn("redis close", slog.Any("error", err))
	}
	s.Pool.Close()
}
