package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/brightpearl/brightpearl/internal/auth"
	"github.com/brightpearl/brightpearl/internal/model"
)

// NewModeratorAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// モデレーターをリクエストコンテキストに注入するミドルウェアを返す。
// トークンが無いか無効な場合は401、モデレーターロールが無い場合は403を返す。
func NewModeratorAuthMiddleware(verifier auth.TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError(""))
				return
			}

			moderator, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Warn("moderator token rejected",
					slog.String("request_id", RequestIDFromContext(r.Context())),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError("Invalid or expired token"))
				return
			}
			if !moderator.IsModerator {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}

			ctx := ContextWithModerator(r.Context(), moderator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken は "Bearer <token>" 形式のヘッダー値からトークンを取り出す。
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
