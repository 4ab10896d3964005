// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/memberauth/internal/account"
	"github.com/yourusername/memberauth/internal/auth"
	"github.com/yourusername/memberauth/internal/config"
	"github.com/yourusername/memberauth/internal/credential"
	"github.com/yourusername/memberauth/internal/logging"
	"github.com/yourusername/memberauth/internal/metrics"
	"github.com/yourusername/memberauth/internal/session"
	"github.com/yourusername/memberauth/internal/web"
)

const (
	serviceName    = "memberauth"
	serviceVersion = "0.1.0"

	shutdownTimeout = 10 * time.Second
	janitorInterval = time.Minute
)

// pinger は /health で疎通を確認する依存先です。
type pinger interface {
	Ping(ctx context.Context) error
}

// server はルーティングに必要な依存をまとめたものです。
type server struct {
	cfg      *config.Config
	logger   *slog.Logger
	sessions *session.Manager
	handler  *auth.Handler
	metrics  *metrics.Metrics // METRICS_ENABLED=false なら nil
	checks   map[string]pinger
}

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gin.SetMode(cfg.GinMode)
	logger := logging.New(os.Stdout, serviceName, logging.ParseLevel(cfg.LogLevel), cfg.IsRelease())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 起動時に接続できなければ終了する
	db, err := account.Open(ctx, account.Options{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	defer db.Close()

	sessionStore, closeSessionStore, err := openSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer closeSessionStore()

	hasher, err := credential.NewHasher(cfg.BcryptCost, cfg.HashConcurrency)
	if err != nil {
		return err
	}

	srv := newServer(cfg, logger, db, sessionStore, hasher)
	router := newRouter(srv)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", httpServer.Addr, "mode", cfg.GinMode, "session_store", cfg.SessionStore)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down server")
		return httpServer.Shutdown(shutdownCtx)
	})
	if mem, ok := sessionStore.(*session.MemoryStore); ok {
		g.Go(func() error {
			mem.RunJanitor(gctx, janitorInterval)
			return nil
		})
	}

	return g.Wait()
}

func newServer(cfg *config.Config, logger *slog.Logger, db account.Database, store session.Store, hasher *credential.Hasher) *server {
	manager := session.NewManager(store, cfg.SessionIdleTimeout, session.WithLogger(logger))

	opts := []auth.ServiceOption{auth.WithLogger(logger)}
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
		opts = append(opts, auth.WithRecorder(m))
	}
	svc := auth.NewService(db, hasher, manager, opts...)
	throttle := auth.NewThrottle(cfg.LoginMaxAttempts, cfg.LoginWindow, cfg.LoginLockDuration)

	checks := map[string]pinger{"database": db}
	if p, ok := store.(pinger); ok {
		checks["sessions"] = p
	}

	return &server{
		cfg:      cfg,
		logger:   logger,
		sessions: manager,
		handler:  auth.NewHandler(svc, throttle, logger),
		metrics:  m,
		checks:   checks,
	}
}

func newRouter(s *server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware(s.logger))
	if s.metrics != nil {
		router.Use(s.metrics.Middleware())
	}

	// CORSミドルウェアの設定（許可オリジンがある場合のみ）
	if len(s.cfg.CORSAllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = s.cfg.CORSAllowedOrigins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{
			"Origin",
			"Content-Type",
			"Accept",
			"X-CSRF-Token", // CSRF保護用ヘッダー
		}
		corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
		router.Use(cors.New(corsConfig))
	}

	setupRoutes(router, s)
	return router
}

// setupRoutes は運用エンドポイントと画面のルートを登録します。
func setupRoutes(router *gin.Engine, s *server) {
	// セッションを作らないエンドポイント
	router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	router.NoRoute(web.NotFound)

	cookieStore := session.NewCookieStore([]byte(s.cfg.SessionSecret), s.cfg.SessionIdleTimeout, s.cfg.IsRelease())
	pages := router.Group("/")
	pages.Use(
		web.SecurityHeaders(),
		sessions.Sessions(session.CookieName, cookieStore),
		s.sessions.Middleware(sessionUnavailable),
	)
	s.handler.Register(pages)
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func (s *server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := gin.H{}
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
			deps[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":       state,
		"service":      serviceName,
		"version":      serviceVersion,
		"dependencies": deps,
	})
}

func sessionUnavailable(c *gin.Context, _ error) {
	var buf bytes.Buffer
	web.Message(&buf, "Something went wrong", "Please try again later.")
	c.Data(http.StatusInternalServerError, web.ContentType, buf.Bytes())
}
