// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/brightpearl/brightpearl/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	moderatorContextKey  = contextKey("moderator")
	requestIDContextKey  = contextKey("request_id")
	clientIPContextKey   = contextKey("client_ip")
	clientHashContextKey = contextKey("client_hash")
	requestLogContextKey = contextKey("request_log")
)

// requestLog はロギングミドルウェアより内側で判明した値を受け渡す。
type requestLog struct {
	moderatorID string
}

// ModeratorFromContext はリクエストコンテキストから認証済みモデレーターを取得する。
// モデレーター認証ミドルウェアを通過したリクエストでのみ有効。
func ModeratorFromContext(ctx context.Context) (*model.Moderator, bool) {
	m, ok := ctx.Value(moderatorContextKey).(*model.Moderator)
	return m, ok && m != nil
}

// ContextWithModerator はコンテキストにモデレーターを注入する。
func ContextWithModerator(ctx context.Context, m *model.Moderator) context.Context {
	if rl, ok := ctx.Value(requestLogContextKey).(*requestLog); ok {
		rl.moderatorID = m.ID
	}
	return context.WithValue(ctx, moderatorContextKey, m)
}

// RequestIDFromContext はリクエストIDを取得する。未設定の場合は空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// ClientIPFromContext はクライアントIPを取得する。未設定の場合は空文字列。
func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey).(string)
	return ip
}

// ClientHashFromContext はクライアントIPのハッシュを取得する。未設定の場合は空文字列。
func ClientHashFromContext(ctx context.Context) string {
	h, _ := ctx.Value(clientHashContextKey).(string)
	return h
}

// ContextWithClient はクライアントIPとそのハッシュをコンテキストに注入する。
func ContextWithClient(ctx context.Context, ip, hash string) context.Context {
	ctx = context.WithValue(ctx, clientIPContextKey, ip)
	return context.WithValue(ctx, clientHashContextKey, hash)
}
