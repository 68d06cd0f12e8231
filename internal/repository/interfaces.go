// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/brightpearl/brightpearl/internal/model"
)

// ErrDuplicateNormalizedLink は正規化URLの一意制約に違反した場合のエラー。
// 同時に同じURLが初回通報された場合に発生し、呼び出し側は加算処理に切り替える。
var ErrDuplicateNormalizedLink = errors.New("normalized content link already exists")

// ReportRepository はレポートデータの永続化インターフェース。
type ReportRepository interface {
	// IncrementByNormalizedLink は正規化URLが一致するレポートの report_count を1加算し、
	// updated_at を更新した結果を返す。該当するレポートが無い場合はnilを返す。
	// status と activity_status は変更しない。
	IncrementByNormalizedLink(ctx context.Context, normalized string, now time.Time) (*model.Report, error)

	// Create はレポートを作成し、採番されたIDを report.ID に設定する。
	// 正規化URLが既に存在する場合は ErrDuplicateNormalizedLink を返す。
	Create(ctx context.Context, report *model.Report) error

	// FindByID は指定IDのレポートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Report, error)

	// UpdateStatusIfPending は status が pending の場合に限り status を更新する。
	// 条件に一致しない（存在しない、または決定済み）場合はnilを返す。
	UpdateStatusIfPending(ctx context.Context, id int64, status model.ReportStatus, now time.Time) (*model.Report, error)

	// UpdateActivityStatus は activity_status を更新し、更新後のレポートと更新前の値を返す。
	// 見つからない場合はnilを返す。
	UpdateActivityStatus(ctx context.Context, id int64, status model.ActivityStatus, now time.Time) (*model.Report, model.ActivityStatus, error)

	// ListApproved は承認済みレポートを created_at DESC, id DESC の順で取得し、
	// 条件に一致する総件数とともに返す。
	ListApproved(ctx context.Context, filter model.PublicFilter, limit, offset int) ([]*model.Report, int, error)

	// ListByStatus は指定ステータスのレポートを created_at DESC, id DESC の順で取得し、総件数とともに返す。
	ListByStatus(ctx context.Context, status model.ReportStatus, limit, offset int) ([]*model.Report, int, error)

	// Stats はモデレーター向けの集計値を返す。
	// since 以降の承認・却下の件数は監査ログから数える。
	Stats(ctx context.Context, since time.Time) (*model.ModerationStats, error)
}

// ModeratorActionRepository は監査ログの永続化インターフェース。
// 追記のみを提供し、更新・削除は行わない。
type ModeratorActionRepository interface {
	// Create は監査ログを1件追記する。
	Create(ctx context.Context, action *model.ModeratorActionLog) error
}
