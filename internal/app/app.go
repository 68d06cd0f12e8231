package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/brightpearl/brightpearl/internal/auth"
	"github.com/brightpearl/brightpearl/internal/cache"
	"github.com/brightpearl/brightpearl/internal/config"
	"github.com/brightpearl/brightpearl/internal/database"
	"github.com/brightpearl/brightpearl/internal/handler"
	"github.com/brightpearl/brightpearl/internal/logger"
	"github.com/brightpearl/brightpearl/internal/metrics"
	"github.com/brightpearl/brightpearl/internal/middleware"
	"github.com/brightpearl/brightpearl/internal/moderation"
	"github.com/brightpearl/brightpearl/internal/ratelimit"
	"github.com/brightpearl/brightpearl/internal/report"
	"github.com/brightpearl/brightpearl/internal/repository"
	"github.com/brightpearl/brightpearl/internal/security"
	"github.com/brightpearl/brightpearl/internal/worker/retention"
)

// listingCacheEntries は公開一覧キャッシュの最大エントリ数。
const listingCacheEntries = 1000

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	flush, err := logger.InitSentry(cfg.SentryDSN, cfg.Environment)
	if err != nil {
		slog.Warn("error tracking disabled", slog.String("error", err.Error()))
	}
	defer flush()

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("environment", cfg.Environment),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.BackendTimeout)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. レート制限バックエンド
	store, closeStore, err := newRateLimitStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter := ratelimit.NewLimiter(store, cfg.BackendTimeout)
	scopes := ratelimit.NewScopes(cfg.RateLimitSubmit, cfg.RateLimitModerator, cfg.RateLimitPublicRead, cfg.RateLimitWindow)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. リポジトリとキャッシュの初期化
	reportRepo := repository.NewPostgresReportRepo(db)
	actionRepo := repository.NewPostgresModeratorActionRepo(db)

	listingCache, err := cache.New[*report.PublicPage](listingCacheEntries, cfg.PublicCacheTTL)
	if err != nil {
		return fmt.Errorf("failed to create listing cache: %w", err)
	}
	defer listingCache.Close()

	// 5. ドメインサービスの初期化
	hasher := security.NewIPHasher(cfg.IPHashSecret)
	if cfg.IPHashSecret == "" {
		slog.Warn("IP_HASH_SECRET is not set; client identities use plain SHA-256")
	}

	reportService := report.NewService(reportRepo, limiter, hasher, listingCache, collector, slog.Default(), report.Config{
		Production:     cfg.IsProduction(),
		SubmitScope:    scopes.Submit,
		BackendTimeout: cfg.BackendTimeout,
	})
	moderationService := moderation.NewService(
		reportRepo, actionRepo, security.NewDescriptionSanitizer(), listingCache,
		collector, slog.Default(), cfg.BackendTimeout,
	)

	verifier, err := auth.NewJWTVerifier(auth.JWTVerifierConfig{
		Secret: cfg.ModeratorJWTSecret,
		Issuer: cfg.ModeratorJWTIssuer,
	})
	if err != nil {
		return fmt.Errorf("failed to create token verifier: %w", err)
	}

	// 6. ルーターの構築
	burstConfig := middleware.DefaultBurstConfig()
	burstConfig.Rate = rate.Limit(cfg.BurstRatePerSecond)
	burstConfig.Burst = cfg.BurstSize
	burstLimiter := middleware.NewBurstLimiter(burstConfig)
	defer burstLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Metrics:            collector,
		MetricsHandler:     metrics.Handler(registry),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustProxyHeaders:  cfg.TrustProxyHeaders,
		Hasher:             hasher,
		BurstLimiter:       burstLimiter,
		RateLimiter:        limiter,
		Scopes:             scopes,
		Verifier:           verifier,
		ReportService:      reportService,
		ModerationService:  moderationService,
		PublicCacheTTL:     cfg.PublicCacheTTL,
		DB:                 db,
		HealthTimeout:      cfg.BackendTimeout,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newRateLimitStore はREDIS_URLの有無に応じてレート制限のバックエンドを選ぶ。
// 未設定の場合はプロセス内カウンタを使う（複数インスタンス間では共有されない）。
func newRateLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	if cfg.RedisURL == "" {
		slog.Warn("REDIS_URL is not set; rate limit counters are kept in process memory")
		store := ratelimit.NewMemoryStore(5 * time.Minute)
		return store, store.Stop, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.BackendTimeout)
	defer cancel()
	client, err := ratelimit.NewRedisClient(pingCtx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")
	return ratelimit.NewRedisStore(client), func() { client.Close() }, nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、IPハッシュの保持期限ジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.BackendTimeout)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	job := retention.NewJob(db, slog.Default())
	job.RetentionDays = cfg.IPHashRetentionDays

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("retention_interval", cfg.RetentionInterval),
		slog.Int("retention_days", cfg.IPHashRetentionDays),
	)

	job.Start(ctx, cfg.RetentionInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
