package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// fixedWindowScript は固定ウィンドウの判定を Redis 上でアトミックに実行する。
// キーの TTL がウィンドウの終了時刻を表し、期限切れのキーは存在しないものとして扱う。
// 戻り値は {allowed(0|1), 残りミリ秒}。
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local current = redis.call('GET', KEYS[1])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window}
end
if tonumber(current) < limit then
  redis.call('INCR', KEYS[1])
  return {1, ttl}
end
return {0, ttl}
`)

// RedisStore は Redis を使った Store の実装。
// 複数インスタンス間でカウンタを共有する。
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore は RedisStore を生成する。
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient は redis:// 形式のURLからクライアントを生成し、接続を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗: %w", err)
	}
	opts.PoolSize = 20
	opts.MinIdleConns = 2

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	return client, nil
}

// Hit は Store インターフェースを実装する。
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	vals, err := fixedWindowScript.Run(ctx, s.client, []string{key}, limit, window.Milliseconds()).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("固定ウィンドウスクリプトの実行に失敗: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("固定ウィンドウスクリプトの戻り値が不正: %v", vals)
	}

	allowed, ok1 := vals[0].(int64)
	remainingMs, ok2 := vals[1].(int64)
	if !ok1 || !ok2 {
		return Result{}, fmt.Errorf("固定ウィンドウスクリプトの戻り値の型が不正: %v", vals)
	}

	if allowed == 1 {
		return Result{Allowed: true}, nil
	}
	return Result{
		Allowed:    false,
		RetryAfter: retryAfterSeconds(time.Duration(remainingMs) * time.Millisecond),
	}, nil
}

var _ Store = (*RedisStore)(nil)
