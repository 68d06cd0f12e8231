package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/brightpearl/brightpearl/internal/metrics"
	"github.com/brightpearl/brightpearl/internal/model"
	"github.com/brightpearl/brightpearl/internal/ratelimit"
)

// ScopeChecker はスコープ単位の固定ウィンドウ制限を判定するインターフェース。
type ScopeChecker interface {
	Check(ctx context.Context, scope ratelimit.Scope, identity string) (ratelimit.Result, error)
}

// IdentityFunc はリクエストからレート制限の識別子を取り出す。
type IdentityFunc func(r *http.Request) string

// ClientHashIdentity はクライアントIPのハッシュを識別子とする。
func ClientHashIdentity(r *http.Request) string {
	return ClientHashFromContext(r.Context())
}

// ModeratorIdentity は認証済みモデレーターのIDを識別子とする。
func ModeratorIdentity(r *http.Request) string {
	if m, ok := ModeratorFromContext(r.Context()); ok {
		return m.ID
	}
	return ""
}

// NewScopeRateLimitMiddleware は指定スコープの固定ウィンドウ制限を適用するミドルウェアを返す。
// 制限超過時は429とRetry-After、判定自体に失敗した場合は500を返す。
func NewScopeRateLimitMiddleware(checker ScopeChecker, scope ratelimit.Scope, identity IdentityFunc, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := checker.Check(r.Context(), scope, identity(r))
			if err != nil {
				slog.Error("rate limit check failed",
					slog.String("scope", scope.Name),
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			if !result.Allowed {
				collector.RecordRateLimited(scope.Name)
				slog.Warn("rate_limited",
					slog.String("scope", scope.Name),
					slog.Int("retry_after", result.RetryAfter),
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError(result.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
