package ratelimit

import (
	"context"
	"sync"
	"time"
)

// window は1つのキーの固定ウィンドウの状態を表す。
type window struct {
	count   int
	resetAt time.Time
}

// MemoryStore はプロセス内のマップでカウンタを保持する Store の実装。
// 単一インスタンスでの運用や開発環境向け。
// 判定はミューテックスで保護され、キー単位でアトミックに行われる。
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time

	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

// NewMemoryStore は MemoryStore を生成する。
// cleanupInterval が正の場合、バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows:         make(map[string]*window),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go s.cleanupLoop()
	}

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Hit は Store インターフェースを実装する。
func (s *MemoryStore) Hit(_ context.Context, key string, limit int, windowSize time.Duration) (Result, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.windows[key]
	if !exists || now.After(w.resetAt) {
		// 期限切れのウィンドウはリセットし、前のウィンドウの件数は引き継がない
		s.windows[key] = &window{count: 1, resetAt: now.Add(windowSize)}
		return Result{Allowed: true}, nil
	}

	if w.count < limit {
		w.count++
		return Result{Allowed: true}, nil
	}

	return Result{
		Allowed:    false,
		RetryAfter: retryAfterSeconds(w.resetAt.Sub(now)),
	}, nil
}

// Len は現在保持しているキーの数を返す。
// テストおよびメトリクス用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup はウィンドウの終了時刻を過ぎたエントリを削除する。
func (s *MemoryStore) cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, w := range s.windows {
		if now.After(w.resetAt) {
			delete(s.windows, key)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
