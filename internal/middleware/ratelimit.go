package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brightpearl/brightpearl/internal/model"
)

// BurstConfig は短時間の連続リクエストを抑えるトークンバケットの設定を保持する。
type BurstConfig struct {
	Rate            rate.Limit    // 1秒あたりの補充トークン数
	Burst           int           // バケットの容量
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultBurstConfig はデフォルトの設定（10 req/sec、バースト20）を返す。
func DefaultBurstConfig() BurstConfig {
	return BurstConfig{
		Rate:            rate.Limit(10),
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
	}
}

// clientLimiter はクライアントごとのレートリミッターとアクセス時刻を保持する。
type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// BurstLimiter はクライアントIPハッシュごとのトークンバケットを管理する。
// インスタンス内で完結し、スコープごとの固定ウィンドウ制限とは独立に動作する。
type BurstLimiter struct {
	config BurstConfig

	mu       sync.Mutex
	limiters map[string]*clientLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewBurstLimiter は新しいBurstLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewBurstLimiter(config BurstConfig) *BurstLimiter {
	bl := &BurstLimiter{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		stopCh:   make(chan struct{}),
	}

	if config.CleanupInterval > 0 {
		go bl.cleanupLoop()
	}

	return bl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (bl *BurstLimiter) Stop() {
	bl.stopOnce.Do(func() { close(bl.stopCh) })
}

// Middleware はクライアントごとのバースト制限ミドルウェアを返す。
// NewClientIdentityMiddleware の後に配置する。
func (bl *BurstLimiter) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientHashFromContext(r.Context())

			if !bl.allow(key) {
				slog.Warn("burst limit exceeded",
					slog.String("request_id", RequestIDFromContext(r.Context())),
				)
				WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitError(1))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Len は現在管理されているリミッターのエントリ数を返す。
func (bl *BurstLimiter) Len() int {
	bl.mu.Lock()
	defer bl.mu.Unlock()
	return len(bl.limiters)
}

func (bl *BurstLimiter) allow(key string) bool {
	bl.mu.Lock()
	cl, exists := bl.limiters[key]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(bl.config.Rate, bl.config.Burst)}
		bl.limiters[key] = cl
	}
	cl.lastAccess = time.Now()
	bl.mu.Unlock()

	return cl.limiter.Allow()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (bl *BurstLimiter) cleanupLoop() {
	ticker := time.NewTicker(bl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bl.cleanup(time.Now())
		case <-bl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (bl *BurstLimiter) cleanup(now time.Time) {
	ttl := bl.config.CleanupInterval * 2

	bl.mu.Lock()
	defer bl.mu.Unlock()
	for key, cl := range bl.limiters {
		if now.Sub(cl.lastAccess) > ttl {
			delete(bl.limiters, key)
		}
	}
}
