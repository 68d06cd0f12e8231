// Package cache はTTL付きのインメモリキャッシュを提供する。
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// TTLCache はristrettoを使用した型付きのTTLキャッシュ。
// 全てのエントリは生成時に指定したTTLで失効する。
//
// Clear のたびに世代が進む。Clear より前に読み出した値を後から書き戻さないよう、
// 読み出し側は Generation を控えておき SetIfGeneration で保存する。
type TTLCache[V any] struct {
	cache *ristretto.Cache
	ttl   time.Duration

	mu         sync.RWMutex
	generation uint64
}

// New はTTLCacheを生成する。
// maxEntries はおおよその最大エントリ数（各エントリのコストを1として扱う）。
func New[V any](maxEntries int64, ttl time.Duration) (*TTLCache[V], error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &TTLCache[V]{cache: c, ttl: ttl}, nil
}

// Get はキーに対応する値を返す。存在しないか失効している場合は false を返す。
func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.cache.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set は値を保存する。書き込みは非同期に反映される。
func (c *TTLCache[V]) Set(key string, value V) {
	c.cache.SetWithTTL(key, value, 1, c.ttl)
}

// Generation は現在の世代を返す。
func (c *TTLCache[V]) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// SetIfGeneration は世代が gen のままの場合にのみ値を保存する。
// 間に Clear が挟まっていた場合は保存せず false を返す。
func (c *TTLCache[V]) SetIfGeneration(key string, value V, gen uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.generation != gen {
		return false
	}
	c.cache.SetWithTTL(key, value, 1, c.ttl)
	return true
}

// Wait は保留中の書き込みが反映されるまで待つ。
func (c *TTLCache[V]) Wait() {
	c.cache.Wait()
}

// Clear は全てのエントリを削除し、世代を進める。
// 保留中の書き込みも破棄される。
func (c *TTLCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.cache.Clear()
}

// Close はキャッシュのバックグラウンド処理を停止する。
func (c *TTLCache[V]) Close() {
	c.cache.Close()
}
