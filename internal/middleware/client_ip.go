package middleware

import (
	"net"
	"net/http"
	"strings"
)

// IdentityHasher はクライアントIPを不可逆なキーに変換するインターフェース。
type IdentityHasher interface {
	Hash(ip string) string
}

// ClientIP はリクエスト元のIPアドレスを返す。
// trustProxy が true の場合のみ X-Forwarded-For の先頭、次に X-Real-IP を参照する。
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewClientIdentityMiddleware はクライアントIPとそのハッシュをコンテキストに注入するミドルウェアを返す。
// 以降のレート制限はハッシュのみを識別子として使用する。
func NewClientIdentityMiddleware(trustProxy bool, hasher IdentityHasher) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trustProxy)
			ctx := ContextWithClient(r.Context(), ip, hasher.Hash(ip))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
