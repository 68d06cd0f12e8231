package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightpearl/brightpearl/internal/auth"
	"github.com/brightpearl/brightpearl/internal/metrics"
	"github.com/brightpearl/brightpearl/internal/middleware"
	"github.com/brightpearl/brightpearl/internal/ratelimit"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger             *slog.Logger
	Metrics            metrics.MetricsCollector
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	TrustProxyHeaders  bool
	Hasher             middleware.IdentityHasher
	BurstLimiter       *middleware.BurstLimiter

	// レート制限
	RateLimiter middleware.ScopeChecker
	Scopes      ratelimit.Scopes

	// モデレーター認証
	Verifier auth.TokenVerifier

	// サービス
	ReportService     ReportServiceInterface
	ModerationService ModerationServiceInterface
	PublicCacheTTL    time.Duration

	// ヘルスチェック
	DB            HealthChecker
	HealthTimeout time.Duration
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → ClientIdentity
//
// 匿名ユーザー向けの経路にはバースト制限、公開一覧にはさらに public_read、モデレーター向けには認証の後に moderator のスコープ制限を適用する。
// 通報受付の submit スコープは検証の後にサービス層で判定する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))
	r.Use(middleware.NewClientIdentityMiddleware(deps.TrustProxyHeaders, deps.Hasher))

	reportHandler := NewReportHandler(deps.ReportService, deps.PublicCacheTTL)
	moderationHandler := NewModerationHandler(deps.ModerationService)
	healthHandler := NewHealthHandler(deps.DB, deps.HealthTimeout)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 匿名ユーザー向け ---
	// バースト制限は匿名ユーザーの経路にのみ適用し、モデレーターには適用しない
	r.Group(func(r chi.Router) {
		if deps.BurstLimiter != nil {
			r.Use(deps.BurstLimiter.Middleware())
		}

		r.Post("/submit-report", reportHandler.SubmitReport)
		r.With(middleware.NewScopeRateLimitMiddleware(
			deps.RateLimiter, deps.Scopes.PublicRead, middleware.ClientHashIdentity, deps.Metrics,
		)).Get("/get-public-reports", reportHandler.GetPublicReports)
	})

	// --- モデレーター向け ---
	// ミドルウェアスタック: ModeratorAuth → RateLimit(moderator)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewModeratorAuthMiddleware(deps.Verifier))
		r.Use(middleware.NewScopeRateLimitMiddleware(
			deps.RateLimiter, deps.Scopes.Moderator, middleware.ModeratorIdentity, deps.Metrics,
		))

		r.Post("/approve-report", moderationHandler.ApproveReport)
		r.Post("/update-status", moderationHandler.UpdateStatus)
		r.Get("/pending-reports", moderationHandler.PendingReports)
		r.Get("/moderation-stats", moderationHandler.ModerationStats)
	})

	return r
}
