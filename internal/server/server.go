package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizgrade/internal/api"
	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
	"github.com/victornm/quizgrade/internal/event"
	"github.com/victornm/quizgrade/internal/infra/memory"
	"github.com/victornm/quizgrade/internal/infra/postgres"
	"github.com/victornm/quizgrade/internal/leaderboard"
	"github.com/victornm/quizgrade/internal/quiz"
	"github.com/victornm/quizgrade/internal/result"
	"github.com/victornm/quizgrade/internal/session"
	"github.com/victornm/quizgrade/internal/submission"
	"github.com/victornm/quizgrade/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port         int32
		AllowOrigins []string
	}

	GRPC struct {
		Port int32
	}

	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Cache struct {
			Addrs  []string
			Pass   string
			Prefix string
			TTL    time.Duration
		}
	}

	// Postgres.DSN empty keeps sessions and submissions in memory and
	// serves quizzes from Quiz.File; meant for local runs only.
	Postgres struct {
		DSN string
	}

	Quiz struct {
		File string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
			cache       redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	store struct {
		sessions    domain.SessionRepository
		submissions domain.SubmissionRepository
		quizzes     domain.QuizProvider
	}

	service struct {
		session     *session.Service
		submission  *submission.Service
		result      *result.Service
		leaderboard *leaderboard.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initStore(); err != nil {
		return nil, fmt.Errorf("server: init store: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		return ConnectRedis(context.Background(), addrs, pass)
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	s.infra.redis.cache, err = connect(s.c.Redis.Cache.Addrs, s.c.Redis.Cache.Pass)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() (err error) {
	if s.c.Postgres.DSN == "" {
		slog.Warn("server: postgres not configured, sessions and submissions are kept in memory")
		return nil
	}

	s.infra.postgres, err = Connect(context.Background(), s.c.Postgres.DSN)
	return err
}

// ConnectRedis opens an instrumented Redis client and pings it.
func ConnectRedis(ctx context.Context, addrs []string, pass string) (redis.UniversalClient, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		_ = r.Close()
		return nil, err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		_ = r.Close()
		return nil, err
	}

	return r, nil
}

// Connect opens and pings a pgx pool.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initStore() error {
	var loader domain.QuizProvider

	if s.infra.postgres != nil {
		s.store.sessions = postgres.NewSessionStore(s.infra.postgres)
		s.store.submissions = postgres.NewSubmissionStore(s.infra.postgres)
		loader = quiz.NewPostgresLoader(s.infra.postgres)
	} else {
		s.store.sessions = memory.NewSessionStore()
		s.store.submissions = memory.NewSubmissionStore()

		var quizzes []domain.Quiz
		if s.c.Quiz.File != "" {
			var err error
			if quizzes, err = quiz.ReadFile(s.c.Quiz.File); err != nil {
				return err
			}
		}
		loader = quiz.NewStaticLoader(quizzes...)
	}

	s.store.quizzes = quiz.NewCache(quiz.CacheConfig{
		Redis:  s.infra.redis.cache,
		Loader: loader,
		Prefix: s.c.Redis.Cache.Prefix,
		TTL:    s.c.Redis.Cache.TTL,
	})

	return nil
}

func (s *Server) initService() {
	s.service.session = session.NewService(session.Config{
		Sessions: s.store.sessions,
		Quizzes:  s.store.quizzes,
	})

	s.service.submission = submission.NewService(submission.Config{
		EventBus:    s.eb,
		Sessions:    s.store.sessions,
		Submissions: s.store.submissions,
		Quizzes:     s.store.quizzes,
	})

	s.service.result = result.NewService(result.Config{
		Sessions:    s.store.sessions,
		Submissions: s.store.submissions,
		Quizzes:     s.store.quizzes,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Redis:    s.infra.redis.leaderboard,
		Sessions: s.store.sessions,
		Prefix:   s.c.Redis.Leaderboard.Prefix,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.HTTPServerLogger(), s.cors())
	e.GET("/healthz", s.healthz)

	s.grpc = grpc.NewServer(
		telemetry.GRPCServerInterceptor(),
		telemetry.GRPCStreamInterceptor(),
		grpc.ChainUnaryInterceptor(errors.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(errors.StreamServerInterceptor()),
	)
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		Router:       e,
		EventBus:     s.eb,
		Session:      s.service.session,
		Submission:   s.service.submission,
		Result:       s.service.result,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) cors() gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(s.c.HTTP.AllowOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = s.c.HTTP.AllowOrigins
	}

	return cors.New(cc)
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error { return s.infra.redis.leaderboard.Ping(ctx).Err() })
	eg.Go(func() error { return s.infra.redis.pubsub.Ping(ctx).Err() })
	if s.infra.postgres != nil {
		eg.Go(func() error { return s.infra.postgres.Ping(ctx) })
	}

	if err := eg.Wait(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Start serves gRPC and HTTP until Shutdown is called or one of them fails.
// It returns the first serving error, nil after a clean shutdown.
func (s *Server) Start() error {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		if err := s.grpc.Serve(lis); err != nil {
			_ = s.http.Close()
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			// Unblock the gRPC side so Start can return.
			s.grpc.Stop()
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.leaderboard.Close()
	s.eb.Stop()

	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub, s.infra.redis.cache} {
		if err := r.Close(); err != nil {
			slog.WarnContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
