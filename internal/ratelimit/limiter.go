// Package ratelimit は固定ウィンドウ方式のレート制限を提供する。
//
// カウンタの読み取り・更新はストア側でアトミックに行う。
// 複数インスタンスで動かす場合は RedisStore を使用する。
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Result はレート制限の判定結果を表す。
type Result struct {
	Allowed bool
	// RetryAfter は拒否時に次のウィンドウが始まるまでの秒数（切り上げ）。
	RetryAfter int
}

// Store は固定ウィンドウのカウンタを保持するバックエンドのインターフェース。
type Store interface {
	// Hit はキーのカウンタを1件分評価する。
	// ウィンドウが存在しないか期限切れの場合は count=1 で新しいウィンドウを開始する。
	// count < limit の場合は加算して許可し、それ以外は加算せずに拒否する。
	Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Scope はレート制限の対象範囲と予算を表す。
// スコープごとにキー空間が分かれ、互いに影響しない。
type Scope struct {
	Name   string
	Limit  int
	Window time.Duration
}

// スコープ名
const (
	ScopeSubmit     = "submit"
	ScopeModerator  = "moderator"
	ScopePublicRead = "public_read"
)

// Scopes はサービスで使用する3種類のスコープをまとめたもの。
type Scopes struct {
	Submit     Scope
	Moderator  Scope
	PublicRead Scope
}

// DefaultScopes はデフォルトの予算（1時間あたり 5 / 100 / 1000 回）を返す。
func DefaultScopes() Scopes {
	return NewScopes(5, 100, 1000, time.Hour)
}

// NewScopes は指定した予算とウィンドウで Scopes を生成する。
func NewScopes(submit, moderator, publicRead int, window time.Duration) Scopes {
	return Scopes{
		Submit:     Scope{Name: ScopeSubmit, Limit: submit, Window: window},
		Moderator:  Scope{Name: ScopeModerator, Limit: moderator, Window: window},
		PublicRead: Scope{Name: ScopePublicRead, Limit: publicRead, Window: window},
	}
}

// Limiter はスコープと識別子からキーを組み立ててストアに問い合わせる。
type Limiter struct {
	store   Store
	timeout time.Duration
}

// NewLimiter は Limiter を生成する。
// timeout はストアへの1回の問い合わせの上限時間で、0以下の場合は制限しない。
func NewLimiter(store Store, timeout time.Duration) *Limiter {
	return &Limiter{store: store, timeout: timeout}
}

// Check は identity に対してスコープのレート制限を評価する。
// ストアのエラーやタイムアウトはそのまま返し、呼び出し側で内部エラーとして扱う。
func (l *Limiter) Check(ctx context.Context, scope Scope, identity string) (Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	res, err := l.store.Hit(ctx, Key(scope.Name, identity), scope.Limit, scope.Window)
	if err != nil {
		return Result{}, fmt.Errorf("レート制限の評価に失敗: scope=%s: %w", scope.Name, err)
	}
	return res, nil
}

// Key はスコープと識別子からカウンタのキーを生成する。
func Key(scope, identity string) string {
	return "ratelimit:" + scope + ":" + identity
}

// retryAfterSeconds は残り時間を秒に切り上げる。拒否時は最低1秒とする。
func retryAfterSeconds(remaining time.Duration) int {
	secs := int((remaining + time.Second - 1) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}
