// Package retention は通報者IPハッシュの保持期限ジョブを提供する。
// 保持日数（デフォルト90日）を超過した通報の submitter_ip_hash を NULL にする。
// 通報そのものは削除せず、updated_at も変更しない。
package retention

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultRetentionDays はIPハッシュの保持日数の既定値。
const DefaultRetentionDays = 90

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Job は保持期限を超過したIPハッシュを消去するジョブ。
// 冪等であり、何度実行しても結果は変わらない。
type Job struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int
}

// NewJob は新しいJobを生成する。
func NewJob(db Executor, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		db:            db,
		logger:        logger,
		RetentionDays: DefaultRetentionDays,
	}
}

const clearExpiredHashesQuery = `UPDATE reports
SET submitter_ip_hash = NULL
WHERE submitter_ip_hash IS NOT NULL
  AND created_at < now() - make_interval(days => $1)`

// Run はcreated_atがRetentionDays日より古い通報のIPハッシュを消去する。
// 対象が無い場合もエラーにならない。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, clearExpiredHashesQuery, j.RetentionDays)
	if err != nil {
		j.logger.Error("retention_failed",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("IPハッシュの消去に失敗しました: %w", err)
	}

	cleared, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("retention_failed",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("消去件数の取得に失敗しました: %w", err)
	}

	j.logger.Info("retention_completed",
		slog.Int64("cleared_count", cleared),
		slog.Int("retention_days", j.RetentionDays),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// Start は起動直後に1回、その後intervalごとにRunを実行する。
// ctxがキャンセルされるまでブロックする。個々の実行エラーはログに残して継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	j.runLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

func (j *Job) runLogged(ctx context.Context) {
	if err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Warn("retention job will retry on next tick", slog.String("error", err.Error()))
	}
}
